package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"readcast/internal/logging"
	"readcast/internal/records"
	"readcast/internal/stage"
)

// publishStage flips a stored record to published and cleans up its staged
// files. The feed itself is rendered once per run, after the budget loop.
type publishStage struct {
	logger *slog.Logger
	now    func() time.Time
}

func newPublishStage(logger *slog.Logger) *publishStage {
	return &publishStage{logger: logger, now: time.Now}
}

func (s *publishStage) Prepare(ctx context.Context, record *records.Record) error {
	if record.ArtifactLocation == "" {
		return errors.New("record in stored state without an artifact location")
	}
	return nil
}

func (s *publishStage) Execute(ctx context.Context, record *records.Record) error {
	record.MarkPublished(s.now())

	for _, path := range []string{record.LocalArtifactPath, record.ContentPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("could not remove staged file",
				logging.String(logging.FieldRecordID, record.SourceID),
				logging.String("path", path),
				logging.Error(err))
		}
	}
	record.LocalArtifactPath = ""
	record.ContentPath = ""
	return nil
}

func (s *publishStage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(stage.NamePublish)
}
