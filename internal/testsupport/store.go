package testsupport

import (
	"context"
	"testing"
	"time"

	"readcast/internal/config"
	"readcast/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord persists a freshly discovered record for tests.
func NewRecord(t testing.TB, store *records.Store, sourceID, title string) *records.Record {
	t.Helper()

	record := &records.Record{
		SourceID:    sourceID,
		Title:       title,
		Author:      "Test Author",
		OriginalURL: "https://example.com/articles/" + sourceID,
		State:       records.StateDiscovered,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("store.Upsert: %v", err)
	}
	return record
}
