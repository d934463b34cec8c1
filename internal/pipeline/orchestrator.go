package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"readcast/internal/config"
	"readcast/internal/generation"
	"readcast/internal/logging"
	"readcast/internal/publish"
	"readcast/internal/records"
	"readcast/internal/services"
	"readcast/internal/source"
	"readcast/internal/stage"
)

// Orchestrator drives one cron invocation: discover new saved articles,
// spend the work budget advancing pending records through their stages, then
// re-render the feed if the published set changed.
type Orchestrator struct {
	cfg      *config.Config
	store    *records.Store
	logger   *slog.Logger
	articles source.Lister
	backend  generation.Backend
	uploader publish.Uploader
	renderer *publish.FeedRenderer
	stages   map[records.State]pipelineStage
	now      func() time.Time
}

// pipelineStage binds a handler to the states it advances between. A
// non-empty processing state is persisted before Execute runs, which is what
// makes non-idempotent external calls recoverable after a crash.
type pipelineStage struct {
	name       string
	processing records.State
	handler    stage.Handler
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New wires an orchestrator from its collaborators.
func New(
	cfg *config.Config,
	store *records.Store,
	logger *slog.Logger,
	articles source.Lister,
	backend generation.Backend,
	uploader publish.Uploader,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "orchestrator")),
		articles: articles,
		backend:  backend,
		uploader: uploader,
		renderer: publish.NewFeedRenderer(cfg.Feed, cfg.Publish.PublicBaseURL),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	create := newCreateStage(backend, o.logger, o.now)
	o.stages = map[records.State]pipelineStage{
		records.StateDiscovered: {name: stage.NameFetch, handler: newFetchStage(cfg, articles, o.logger)},
		records.StateFetched:    {name: stage.NameCreate, processing: records.StateCreating, handler: create},
		records.StateCreating:   {name: stage.NameCreate, processing: records.StateCreating, handler: create},
		records.StateGenerating: {name: stage.NamePoll, handler: newPollStage(cfg, backend, o.logger, o.now)},
		records.StateGenerated:  {name: stage.NameDownload, handler: newDownloadStage(cfg, backend, o.logger)},
		records.StateDownloaded: {name: stage.NameStore, handler: newStoreStage(uploader, o.logger)},
		records.StateStored:     {name: stage.NamePublish, handler: newPublishStage(o.logger)},
	}
	return o
}

// Summary reports what one run accomplished.
type Summary struct {
	Discovered   int
	Advanced     int
	Skipped      int
	Retried      int
	Abandoned    int
	Published    int
	FeedRendered bool
	Halted       bool
	HaltReason   string
}

// RunOptions adjusts a single invocation.
type RunOptions struct {
	// LimitOverride replaces the configured work budget when positive.
	LimitOverride int
}

// Run executes one full invocation. A systemic failure (bad credentials)
// halts the run early; the returned summary reflects the work done up to
// that point.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	runID := uuid.NewString()
	logger := o.logger.With(logging.String(logging.FieldCorrelationID, runID))
	summary := &Summary{}
	start := o.now()

	limit := o.cfg.Pipeline.RunLimit
	if opts.LimitOverride > 0 {
		limit = opts.LimitOverride
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("limit", limit))

	if err := o.discover(ctx, logger, summary); err != nil {
		if services.IsSystemic(err) {
			return o.halt(logger, summary, start, err), nil
		}
		if errors.Is(err, context.Canceled) {
			return summary, err
		}
		// Discovery trouble should not stop already-known records from
		// advancing.
		logger.Warn("discovery failed", logging.Error(err))
	}

	if err := o.advance(ctx, logger, summary, limit); err != nil {
		if services.IsSystemic(err) {
			return o.halt(logger, summary, start, err), nil
		}
		return summary, err
	}

	if err := o.renderFeedIfDirty(ctx, logger, summary); err != nil {
		if services.IsSystemic(err) {
			return o.halt(logger, summary, start, err), nil
		}
		logger.Warn("feed render failed, will retry next run", logging.Error(err))
	}

	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("discovered", summary.Discovered),
		logging.Int("advanced", summary.Advanced),
		logging.Int("retried", summary.Retried),
		logging.Int("abandoned", summary.Abandoned),
		logging.Int("published", summary.Published),
		logging.Bool("feed_rendered", summary.FeedRendered),
		logging.Duration("run_duration", o.now().Sub(start)))
	return summary, nil
}

func (o *Orchestrator) halt(logger *slog.Logger, summary *Summary, start time.Time, err error) *Summary {
	summary.Halted = true
	summary.HaltReason = err.Error()
	logger.Error("run halted on systemic failure",
		logging.String(logging.FieldEventType, "run_halt"),
		logging.Error(err),
		logging.Duration("run_duration", o.now().Sub(start)))
	return summary
}

// advance spends the work budget on pending records, oldest first. Each
// stage execution costs one unit whether or not it moves the record, so a
// backend that answers "still pending" cannot starve the rest of the run
// forever, and a single run can walk one record through several stages when
// budget remains.
func (o *Orchestrator) advance(ctx context.Context, logger *slog.Logger, summary *Summary, limit int) error {
	pending, err := o.store.Pending(ctx)
	if err != nil {
		return err
	}

	budget := limit
	for _, record := range pending {
		if budget <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if wait, ready := o.eligibleAt(record); !ready {
			logger.Debug("record in backoff",
				logging.String(logging.FieldRecordID, record.SourceID),
				logging.Duration("remaining", wait))
			summary.Skipped++
			continue
		}

		used, err := o.advanceRecord(ctx, logger, summary, record, budget)
		budget -= used
		if err != nil {
			if services.IsSystemic(err) || errors.Is(err, context.Canceled) {
				return err
			}
			// Non-systemic failures were already classified and persisted;
			// move on to the next record.
		}
	}
	return nil
}

// advanceRecord walks one record forward until it parks, fails, or the
// budget runs out. Returns the budget units consumed.
func (o *Orchestrator) advanceRecord(ctx context.Context, logger *slog.Logger, summary *Summary, record *records.Record, budget int) (int, error) {
	used := 0
	for budget-used > 0 && !record.State.IsTerminal() {
		st, ok := o.stages[record.State]
		if !ok {
			logger.Warn("no stage configured for state",
				logging.String(logging.FieldRecordID, record.SourceID),
				logging.String(logging.FieldState, string(record.State)))
			return used, nil
		}

		stageCtx := services.WithStage(services.WithRecordID(ctx, record.SourceID), st.name)
		stageLogger := logging.WithContext(stageCtx, logger)
		before := record.State
		used++

		if err := o.executeStage(stageCtx, stageLogger, st, record); err != nil {
			if services.IsSystemic(err) || errors.Is(err, context.Canceled) {
				return used, err
			}
			o.handleStageFailure(ctx, stageLogger, summary, st.name, record, err)
			return used, err
		}

		if record.State == before {
			// Stage ran but the record is parked (generation still pending).
			record.UpdatedAt = o.now()
			if err := o.store.Upsert(ctx, record); err != nil {
				return used, err
			}
			return used, nil
		}

		summary.Advanced++
		if record.State == records.StatePublished {
			// The store flags the feed dirty in the same transaction as the
			// publish transition.
			summary.Published++
		}
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String(logging.FieldState, string(record.State)))
	}
	return used, nil
}

// executeStage mirrors persist-before-execute: when the stage declares a
// processing state, that state is durably recorded before the handler's
// Execute runs its external call.
func (o *Orchestrator) executeStage(ctx context.Context, logger *slog.Logger, st pipelineStage, record *records.Record) error {
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String(logging.FieldState, string(record.State)))

	if err := st.handler.Prepare(ctx, record); err != nil {
		return err
	}

	if st.processing != "" && record.State != st.processing {
		record.State = st.processing
		if err := o.store.Upsert(ctx, record); err != nil {
			return fmt.Errorf("persist processing transition: %w", err)
		}
	}

	if err := st.handler.Execute(ctx, record); err != nil {
		return err
	}

	if err := o.store.Upsert(ctx, record); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}
	return nil
}

// renderFeedIfDirty regenerates and uploads the feed document when the
// published set changed, clearing the dirty flag only after a successful
// upload so a failed upload is retried on the next run.
func (o *Orchestrator) renderFeedIfDirty(ctx context.Context, logger *slog.Logger, summary *Summary) error {
	dirty, err := o.store.FeedDirty(ctx)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}

	published, err := o.store.Published(ctx)
	if err != nil {
		return err
	}
	withArtwork, err := o.uploader.Exists(ctx, publish.ArtworkKey)
	if err != nil {
		logger.Warn("artwork probe failed, rendering without artwork",
			logging.Error(err))
		withArtwork = false
	}
	doc := o.renderer.Render(published, o.now(), withArtwork)
	if err := o.uploader.UploadBytes(ctx, publish.FeedKey, []byte(doc), "application/rss+xml"); err != nil {
		return err
	}
	if err := o.store.SetFeedDirty(ctx, false); err != nil {
		return err
	}
	summary.FeedRendered = true
	logger.Info("feed rendered",
		logging.String(logging.FieldEventType, "feed_rendered"),
		logging.Int("episodes", len(published)))
	return nil
}

// HealthCheck runs every stage's health probe.
func (o *Orchestrator) HealthCheck(ctx context.Context) []stage.Health {
	seen := map[string]bool{}
	var result []stage.Health
	for _, state := range records.AllStates() {
		st, ok := o.stages[state]
		if !ok || seen[st.name] {
			continue
		}
		seen[st.name] = true
		result = append(result, st.handler.HealthCheck(ctx))
	}
	return result
}
