package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"readcast/internal/generation"
	"readcast/internal/logging"
	"readcast/internal/records"
	"readcast/internal/services"
	"readcast/internal/stage"
)

// createStage submits staged article content to the generation backend. The
// orchestrator persists the creating state before Execute runs; a record
// found in creating with a job ID already set skips the create call
// entirely, because issuing a second job for the same article would be a
// second billable generation.
type createStage struct {
	backend generation.Backend
	logger  *slog.Logger
	now     func() time.Time
}

func newCreateStage(backend generation.Backend, logger *slog.Logger, now func() time.Time) *createStage {
	if now == nil {
		now = time.Now
	}
	return &createStage{backend: backend, logger: logger, now: now}
}

func (s *createStage) Prepare(ctx context.Context, record *records.Record) error {
	if record.GenerationJobID != "" {
		return nil
	}
	if record.ContentPath == "" {
		return services.Wrap(services.ErrRejected, stage.NameCreate, "prepare",
			"record has no staged content", nil)
	}
	return nil
}

func (s *createStage) Execute(ctx context.Context, record *records.Record) error {
	if record.GenerationJobID != "" {
		s.logger.Info("generation job already issued, resuming",
			logging.String(logging.FieldRecordID, record.SourceID),
			logging.String("job_id", record.GenerationJobID))
		record.State = records.StateGenerating
		return nil
	}

	content, err := os.ReadFile(record.ContentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Staged content lost between runs; the record has to refetch,
			// but the state machine only moves forward, so abandon.
			return services.Wrap(services.ErrRejected, stage.NameCreate, "read content",
				"staged content missing", err)
		}
		return services.Wrap(services.ErrTransient, stage.NameCreate, "read content", "", err)
	}

	job, err := s.backend.Create(ctx, record.Title, string(content))
	if err != nil {
		return err
	}

	issued := s.now().UTC()
	record.GenerationJobID = job.ID
	record.GenerationStartedAt = &issued
	record.State = records.StateGenerating
	return nil
}

func (s *createStage) HealthCheck(ctx context.Context) stage.Health {
	if s.backend == nil {
		return stage.Unhealthy(stage.NameCreate, "no generation backend configured")
	}
	if err := s.backend.Ping(ctx); err != nil {
		return stage.Unhealthy(stage.NameCreate, err.Error())
	}
	return stage.Healthy(stage.NameCreate)
}
