package records

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"forward step", StateDiscovered, StateFetched, true},
		{"forward step mid chain", StateGenerating, StateGenerated, true},
		{"stored to published", StateStored, StatePublished, true},
		{"same state", StateCreating, StateCreating, true},
		{"skip a step", StateDiscovered, StateCreating, false},
		{"backwards", StateGenerated, StateGenerating, false},
		{"abandon non-terminal", StateGenerating, StateAbandoned, true},
		{"abandon discovered", StateDiscovered, StateAbandoned, true},
		{"abandon published", StatePublished, StateAbandoned, false},
		{"leave abandoned", StateAbandoned, StateDiscovered, false},
		{"leave published", StatePublished, StateStored, false},
		{"unknown target", StateFetched, State("bogus"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestNextWalksFullChain(t *testing.T) {
	want := []State{
		StateDiscovered,
		StateFetched,
		StateCreating,
		StateGenerating,
		StateGenerated,
		StateDownloaded,
		StateStored,
		StatePublished,
	}
	state := StateDiscovered
	for i := 1; i < len(want); i++ {
		state = state.Next()
		if state != want[i] {
			t.Fatalf("step %d: got %s, want %s", i, state, want[i])
		}
	}
	if next := state.Next(); next != "" {
		t.Fatalf("published should have no successor, got %s", next)
	}
	if next := StateAbandoned.Next(); next != "" {
		t.Fatalf("abandoned should have no successor, got %s", next)
	}
}

func TestParseState(t *testing.T) {
	if state, ok := ParseState("  Generating "); !ok || state != StateGenerating {
		t.Fatalf("ParseState(generating) = %s, %v", state, ok)
	}
	if _, ok := ParseState("ripping"); ok {
		t.Fatal("ParseState accepted an unknown state")
	}
	if _, ok := ParseState(""); ok {
		t.Fatal("ParseState accepted an empty state")
	}
}

func TestRecordFailureBookkeeping(t *testing.T) {
	record := &Record{SourceID: "a1", State: StateFetched}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	record.RecordFailure("create", "backend timed out", now)
	record.RecordFailure("create", "backend timed out again", now.Add(time.Hour))

	if got := record.AttemptsFor("create"); got != 2 {
		t.Fatalf("AttemptsFor(create) = %d, want 2", got)
	}
	if got := record.AttemptsFor("fetch"); got != 0 {
		t.Fatalf("AttemptsFor(fetch) = %d, want 0", got)
	}
	if record.LastError != "backend timed out again" {
		t.Fatalf("unexpected last error %q", record.LastError)
	}
	if record.LastAttemptAt == nil || !record.LastAttemptAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected last attempt time %v", record.LastAttemptAt)
	}
}

func TestMarkAbandonedRemembersOrigin(t *testing.T) {
	record := &Record{SourceID: "a1", State: StateGenerating}
	record.MarkAbandoned("retries exhausted")

	if record.State != StateAbandoned {
		t.Fatalf("state = %s, want abandoned", record.State)
	}
	if record.AbandonedFrom != StateGenerating {
		t.Fatalf("abandoned from = %s, want generating", record.AbandonedFrom)
	}

	// A second call must not clobber the origin.
	record.MarkAbandoned("again")
	if record.AbandonedFrom != StateGenerating {
		t.Fatalf("abandoned from after repeat = %s, want generating", record.AbandonedFrom)
	}
}

func TestStatsTotal(t *testing.T) {
	stats := Stats{StateDiscovered: 2, StatePublished: 3}
	if got := stats.Total(); got != 5 {
		t.Fatalf("Total() = %d, want 5", got)
	}
}
