package records_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"readcast/internal/records"
	"readcast/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewRecord(t, store, "article-1", "Sample Article")
	if record.State != records.StateDiscovered {
		t.Fatalf("new record state = %s, want discovered", record.State)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Get(ctx, "article-1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if loaded == nil || loaded.Title != "Sample Article" {
		t.Fatalf("record did not survive reopen: %+v", loaded)
	}
}

func TestOpenRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.MustOpenStore(t, cfg)

	_, err := records.Open(cfg)
	if !errors.Is(err, records.ErrLocked) {
		t.Fatalf("second open error = %v, want ErrLocked", err)
	}
}

func TestUpsertEnforcesTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.NewRecord(t, store, "article-1", "Sample Article")

	record.State = records.StateFetched
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("forward step rejected: %v", err)
	}

	record.State = records.StateGenerated
	if err := store.Upsert(ctx, record); !errors.Is(err, records.ErrIllegalTransition) {
		t.Fatalf("skip-ahead error = %v, want ErrIllegalTransition", err)
	}

	// The failed write must not have touched the stored record.
	loaded, err := store.Get(ctx, "article-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.State != records.StateFetched {
		t.Fatalf("stored state = %s, want fetched", loaded.State)
	}
}

func TestUpsertRefusesJobIDReassignment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.NewRecord(t, store, "article-1", "Sample Article")
	record.State = records.StateFetched
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("advance to fetched: %v", err)
	}

	record.State = records.StateCreating
	record.GenerationJobID = "job-111"
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("set job id: %v", err)
	}

	record.GenerationJobID = "job-222"
	if err := store.Upsert(ctx, record); !errors.Is(err, records.ErrJobIDReassigned) {
		t.Fatalf("reassignment error = %v, want ErrJobIDReassigned", err)
	}

	// Writing the same job id again is fine.
	record.GenerationJobID = "job-111"
	record.State = records.StateGenerating
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("re-write with same job id: %v", err)
	}
}

func TestUpsertRoundTripsAllFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	attemptAt := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	record := &records.Record{
		SourceID:    "article-9",
		Title:       "Deep Dive",
		Author:      "Jane Writer",
		OriginalURL: "https://example.com/deep-dive",
		Summary:     "A long read about storage engines.",
		State:       records.StateDiscovered,
	}
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("insert: %v", err)
	}

	started := time.Date(2026, 4, 2, 8, 15, 0, 0, time.UTC)
	record.State = records.StateFetched
	record.ContentPath = "/tmp/staging/article-9.txt"
	record.GenerationStartedAt = &started
	record.RecordFailure("create", "transient outage", attemptAt)
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := store.Get(ctx, "article-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Author != "Jane Writer" || loaded.Summary == "" {
		t.Fatalf("metadata lost: %+v", loaded)
	}
	if loaded.ContentPath != "/tmp/staging/article-9.txt" {
		t.Fatalf("content path = %q", loaded.ContentPath)
	}
	if loaded.GenerationStartedAt == nil || !loaded.GenerationStartedAt.Equal(started) {
		t.Fatalf("generation started at = %v", loaded.GenerationStartedAt)
	}
	if loaded.AttemptsFor("create") != 1 {
		t.Fatalf("attempts = %d, want 1", loaded.AttemptsFor("create"))
	}
	if loaded.LastError != "transient outage" {
		t.Fatalf("last error = %q", loaded.LastError)
	}
	if loaded.LastAttemptAt == nil || !loaded.LastAttemptAt.Equal(attemptAt) {
		t.Fatalf("last attempt at = %v", loaded.LastAttemptAt)
	}
	if loaded.CreatedAt.IsZero() || loaded.UpdatedAt.Before(loaded.CreatedAt) {
		t.Fatalf("timestamps: created %v updated %v", loaded.CreatedAt, loaded.UpdatedAt)
	}
}

func TestPendingOrdersByOldestUpdate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewRecord(t, store, "article-1", "First")
	testsupport.NewRecord(t, store, "article-2", "Second")

	published := testsupport.NewRecord(t, store, "article-3", "Done")
	for state := records.StateFetched; state != ""; state = state.Next() {
		published.State = state
		if err := store.Upsert(ctx, published); err != nil {
			t.Fatalf("advance to %s: %v", state, err)
		}
	}

	// Touch the first record so it sorts behind the second.
	first.Summary = "touched"
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("touch first: %v", err)
	}

	pending, err := store.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending count = %d, want 2", len(pending))
	}
	if pending[0].SourceID != "article-2" || pending[1].SourceID != "article-1" {
		t.Fatalf("pending order = %s, %s", pending[0].SourceID, pending[1].SourceID)
	}
}

func TestRetryAbandonedResumesOrigin(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.NewRecord(t, store, "article-1", "Sample Article")
	record.State = records.StateFetched
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("advance: %v", err)
	}
	record.RecordFailure("create", "backend rejected input", time.Now())
	record.MarkAbandoned("backend rejected input")
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	restored, err := store.RetryAbandoned(ctx, "article-1")
	if err != nil {
		t.Fatalf("retry abandoned: %v", err)
	}
	if restored.State != records.StateFetched {
		t.Fatalf("restored state = %s, want fetched", restored.State)
	}
	if restored.AttemptsFor("create") != 0 {
		t.Fatalf("attempts not cleared: %d", restored.AttemptsFor("create"))
	}
	if restored.LastError != "" || restored.AbandonedFrom != "" {
		t.Fatalf("failure bookkeeping not cleared: %+v", restored)
	}
}

func TestRetryAbandonedRejectsActiveRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewRecord(t, store, "article-1", "Sample Article")
	if _, err := store.RetryAbandoned(ctx, "article-1"); err == nil {
		t.Fatal("expected error retrying a non-abandoned record")
	}
	if _, err := store.RetryAbandoned(ctx, "missing"); err == nil {
		t.Fatal("expected error retrying an unknown record")
	}
}

func TestCursorAndFeedDirty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cursor, err := store.Cursor(ctx)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != "" {
		t.Fatalf("fresh cursor = %q, want empty", cursor)
	}

	watermark := time.Now().UTC().Format(time.RFC3339Nano)
	if err := store.SetCursor(ctx, watermark); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	cursor, err = store.Cursor(ctx)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != watermark {
		t.Fatalf("cursor = %q", cursor)
	}

	dirty, err := store.FeedDirty(ctx)
	if err != nil {
		t.Fatalf("feed dirty: %v", err)
	}
	if dirty {
		t.Fatal("fresh store should not owe a feed render")
	}
	if err := store.SetFeedDirty(ctx, true); err != nil {
		t.Fatalf("set feed dirty: %v", err)
	}
	dirty, err = store.FeedDirty(ctx)
	if err != nil {
		t.Fatalf("feed dirty: %v", err)
	}
	if !dirty {
		t.Fatal("feed dirty flag did not persist")
	}
}

func TestUpsertPublishFlagsFeedDirty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.NewRecord(t, store, "article-1", "Nearly Done")
	for state := records.StateFetched; state != records.StatePublished; state = state.Next() {
		record.State = state
		if err := store.Upsert(ctx, record); err != nil {
			t.Fatalf("advance to %s: %v", state, err)
		}
	}
	dirty, err := store.FeedDirty(ctx)
	if err != nil {
		t.Fatalf("feed dirty: %v", err)
	}
	if dirty {
		t.Fatal("feed flagged before any record published")
	}

	// The publish transition flags the feed in the same write, so there is
	// no window where a published record exists without the flag.
	record.MarkPublished(time.Now())
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("publish: %v", err)
	}
	dirty, err = store.FeedDirty(ctx)
	if err != nil {
		t.Fatalf("feed dirty: %v", err)
	}
	if !dirty {
		t.Fatal("publish transition did not flag the feed")
	}

	// Re-writing an already published record does not re-flag it.
	if err := store.SetFeedDirty(ctx, false); err != nil {
		t.Fatalf("clear feed dirty: %v", err)
	}
	record.Summary = "tweaked after the fact"
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("re-write published: %v", err)
	}
	dirty, err = store.FeedDirty(ctx)
	if err != nil {
		t.Fatalf("feed dirty: %v", err)
	}
	if dirty {
		t.Fatal("re-writing a published record must not re-flag the feed")
	}
}

func TestStatsGroupsByState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewRecord(t, store, "article-1", "One")
	testsupport.NewRecord(t, store, "article-2", "Two")
	record := testsupport.NewRecord(t, store, "article-3", "Three")
	record.State = records.StateFetched
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("advance: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[records.StateDiscovered] != 2 || stats[records.StateFetched] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Total() != 3 {
		t.Fatalf("total = %d, want 3", stats.Total())
	}
}
