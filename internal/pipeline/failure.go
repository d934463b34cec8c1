package pipeline

import (
	"context"
	"log/slog"
	"time"

	"readcast/internal/logging"
	"readcast/internal/records"
	"readcast/internal/services"
)

// handleStageFailure classifies a non-systemic stage error and persists the
// outcome. Rejections abandon the record immediately; transient failures
// count an attempt and abandon only once the per-stage ceiling is reached.
func (o *Orchestrator) handleStageFailure(ctx context.Context, logger *slog.Logger, summary *Summary, stageName string, record *records.Record, stageErr error) {
	now := o.now()
	record.RecordFailure(stageName, stageErr.Error(), now)

	abandonReason := ""
	if services.IsRejection(stageErr) {
		abandonReason = "rejected: " + stageErr.Error()
	} else if record.AttemptsFor(stageName) >= o.cfg.Pipeline.MaxAttempts {
		abandonReason = "retries exhausted: " + stageErr.Error()
	}

	if abandonReason != "" {
		record.MarkAbandoned(abandonReason)
		summary.Abandoned++
		logger.Error("record abandoned",
			logging.String(logging.FieldEventType, "record_abandoned"),
			logging.String("reason", abandonReason),
			logging.Int("attempts", record.AttemptsFor(stageName)))
	} else {
		summary.Retried++
		logger.Warn("stage failed, will retry",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Error(stageErr),
			logging.Int("attempts", record.AttemptsFor(stageName)),
			logging.Duration("next_attempt_in", o.backoffDelay(record.AttemptsFor(stageName))))
	}

	if err := o.store.Upsert(ctx, record); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
}

// eligibleAt reports whether a record's backoff window has elapsed. Records
// with no recorded failure are always eligible.
func (o *Orchestrator) eligibleAt(record *records.Record) (time.Duration, bool) {
	attempts := record.AttemptsFor(o.stageNameFor(record.State))
	if attempts == 0 || record.LastAttemptAt == nil {
		return 0, true
	}
	readyAt := record.LastAttemptAt.Add(o.backoffDelay(attempts))
	now := o.now()
	if now.Before(readyAt) {
		return readyAt.Sub(now), false
	}
	return 0, true
}

// backoffDelay doubles per failed attempt from the configured floor, capped
// at the configured ceiling.
func (o *Orchestrator) backoffDelay(attempts int) time.Duration {
	initial := time.Duration(o.cfg.Pipeline.BackoffInitialSeconds) * time.Second
	max := time.Duration(o.cfg.Pipeline.BackoffMaxSeconds) * time.Second
	if initial < 0 {
		initial = 0
	}
	if max < initial {
		max = initial
	}
	delay := initial
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

func (o *Orchestrator) stageNameFor(state records.State) string {
	if st, ok := o.stages[state]; ok {
		return st.name
	}
	return string(state)
}
