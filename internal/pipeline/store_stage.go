package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"readcast/internal/publish"
	"readcast/internal/records"
	"readcast/internal/services"
	"readcast/internal/stage"
)

// storeStage uploads the local artifact to the bucket and records its
// bucket-relative location. Uploads are plain PUTs, so re-running after a
// crash just overwrites the same key.
type storeStage struct {
	uploader publish.Uploader
	logger   *slog.Logger
}

func newStoreStage(uploader publish.Uploader, logger *slog.Logger) *storeStage {
	return &storeStage{uploader: uploader, logger: logger}
}

func (s *storeStage) Prepare(ctx context.Context, record *records.Record) error {
	if record.LocalArtifactPath == "" {
		return errors.New("record in downloaded state without a local artifact")
	}
	return nil
}

func (s *storeStage) Execute(ctx context.Context, record *records.Record) error {
	if _, err := os.Stat(record.LocalArtifactPath); err != nil {
		return services.Wrap(services.ErrRejected, stage.NameStore, "local artifact",
			"artifact file missing from staging", err)
	}

	key := publish.EpisodeKey(record.SourceID)
	if err := s.uploader.UploadFile(ctx, key, record.LocalArtifactPath, "audio/mpeg"); err != nil {
		return err
	}

	// Only the relative location is stored; the public host joins it at feed
	// render time.
	record.ArtifactLocation = key
	record.State = records.StateStored
	return nil
}

func (s *storeStage) HealthCheck(ctx context.Context) stage.Health {
	if s.uploader == nil {
		return stage.Unhealthy(stage.NameStore, "no bucket configured")
	}
	if err := s.uploader.Ping(ctx); err != nil {
		return stage.Unhealthy(stage.NameStore, err.Error())
	}
	return stage.Healthy(stage.NameStore)
}
