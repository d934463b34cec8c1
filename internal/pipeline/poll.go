package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"readcast/internal/config"
	"readcast/internal/generation"
	"readcast/internal/logging"
	"readcast/internal/records"
	"readcast/internal/services"
	"readcast/internal/stage"
)

// pollStage asks the generation backend whether a job finished. A job still
// pending leaves the record where it is without counting a failure; the
// budget unit it consumed is the cost of asking. Jobs pending past the
// configured age are given up on, so a backend that silently loses a job
// cannot be polled forever.
type pollStage struct {
	backend   generation.Backend
	logger    *slog.Logger
	now       func() time.Time
	maxJobAge time.Duration
}

func newPollStage(cfg *config.Config, backend generation.Backend, logger *slog.Logger, now func() time.Time) *pollStage {
	if now == nil {
		now = time.Now
	}
	return &pollStage{
		backend:   backend,
		logger:    logger,
		now:       now,
		maxJobAge: time.Duration(cfg.Generation.MaxJobAgeSeconds) * time.Second,
	}
}

func (s *pollStage) Prepare(ctx context.Context, record *records.Record) error {
	if record.GenerationJobID == "" {
		return errors.New("record in generating state without a job id")
	}
	return nil
}

func (s *pollStage) Execute(ctx context.Context, record *records.Record) error {
	job, err := s.backend.Poll(ctx, record.GenerationJobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case generation.StatusReady:
		record.State = records.StateGenerated
		return nil
	case generation.StatusFailed:
		detail := job.Detail
		if detail == "" {
			detail = "backend reported generation failed"
		}
		return services.Wrap(services.ErrRejected, stage.NamePoll, "job status", detail, nil)
	default:
		if age, expired := s.jobAge(record); expired {
			return services.Wrap(services.ErrRejected, stage.NamePoll, "job status",
				fmt.Sprintf("generation still pending after %s, past the %s limit",
					age.Round(time.Second), s.maxJobAge), nil)
		}
		s.logger.Info("generation still pending",
			logging.String(logging.FieldRecordID, record.SourceID),
			logging.String("job_id", record.GenerationJobID))
		return nil
	}
}

// jobAge measures how long the job has been outstanding. Records written
// before the start timestamp existed fall back to their creation time.
func (s *pollStage) jobAge(record *records.Record) (time.Duration, bool) {
	if s.maxJobAge <= 0 {
		return 0, false
	}
	start := record.CreatedAt
	if record.GenerationStartedAt != nil {
		start = *record.GenerationStartedAt
	}
	if start.IsZero() {
		return 0, false
	}
	age := s.now().Sub(start)
	return age, age > s.maxJobAge
}

func (s *pollStage) HealthCheck(ctx context.Context) stage.Health {
	if s.backend == nil {
		return stage.Unhealthy(stage.NamePoll, "no generation backend configured")
	}
	return stage.Healthy(stage.NamePoll)
}
