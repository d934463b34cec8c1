package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"readcast/internal/config"
	"readcast/internal/generation"
	"readcast/internal/records"
	"readcast/internal/services"
	"readcast/internal/stage"
)

// downloadStage retrieves the finished audio artifact into the staging
// directory and validates its size. The backend occasionally reports a job
// ready and then serves a truncated stub; the size floor catches those
// before they reach the feed.
type downloadStage struct {
	cfg     *config.Config
	backend generation.Backend
	logger  *slog.Logger
}

func newDownloadStage(cfg *config.Config, backend generation.Backend, logger *slog.Logger) *downloadStage {
	return &downloadStage{cfg: cfg, backend: backend, logger: logger}
}

func (s *downloadStage) Prepare(ctx context.Context, record *records.Record) error {
	if record.GenerationJobID == "" {
		return errors.New("record in generated state without a job id")
	}
	return nil
}

func (s *downloadStage) Execute(ctx context.Context, record *records.Record) error {
	job, err := s.backend.Poll(ctx, record.GenerationJobID)
	if err != nil {
		return err
	}
	if job.Status != generation.StatusReady {
		return services.Wrap(services.ErrTransient, stage.NameDownload, "job status",
			fmt.Sprintf("job %s no longer ready (%s)", record.GenerationJobID, job.Status), nil)
	}

	dest := filepath.Join(s.cfg.Paths.StagingDir, record.SourceID+".mp3")
	size, err := s.backend.Download(ctx, job, dest)
	if err != nil {
		return err
	}

	if size < s.cfg.Generation.MinArtifactBytes {
		_ = os.Remove(dest)
		return services.Wrap(services.ErrRejected, stage.NameDownload, "validate artifact",
			fmt.Sprintf("artifact is %d bytes, below the %d byte floor", size, s.cfg.Generation.MinArtifactBytes), nil)
	}

	record.LocalArtifactPath = dest
	record.ArtifactBytes = size
	record.State = records.StateDownloaded
	return nil
}

func (s *downloadStage) HealthCheck(ctx context.Context) stage.Health {
	if s.backend == nil {
		return stage.Unhealthy(stage.NameDownload, "no generation backend configured")
	}
	if err := os.MkdirAll(s.cfg.Paths.StagingDir, 0o755); err != nil {
		return stage.Unhealthy(stage.NameDownload, "staging dir unavailable: "+err.Error())
	}
	return stage.Healthy(stage.NameDownload)
}
