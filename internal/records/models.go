package records

import (
	"strings"
	"time"
)

// State represents the lifecycle of an article record.
type State string

const (
	StateDiscovered State = "discovered"
	StateFetched    State = "fetched"
	StateCreating   State = "creating"
	StateGenerating State = "generating"
	StateGenerated  State = "generated"
	StateDownloaded State = "downloaded"
	StateStored     State = "stored"
	StatePublished  State = "published"
	StateAbandoned  State = "abandoned"
)

var allStates = []State{
	StateDiscovered,
	StateFetched,
	StateCreating,
	StateGenerating,
	StateGenerated,
	StateDownloaded,
	StateStored,
	StatePublished,
	StateAbandoned,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// forwardNext maps each state to its single forward successor.
var forwardNext = map[State]State{
	StateDiscovered: StateFetched,
	StateFetched:    StateCreating,
	StateCreating:   StateGenerating,
	StateGenerating: StateGenerated,
	StateGenerated:  StateDownloaded,
	StateDownloaded: StateStored,
	StateStored:     StatePublished,
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state ends the pipeline.
func (s State) IsTerminal() bool {
	return s == StatePublished || s == StateAbandoned
}

// Next returns the forward successor of a state, or "" for terminal states.
func (s State) Next() State {
	return forwardNext[s]
}

// CanTransition reports whether moving a record from one state to another is
// legal: staying put, a single forward step, or abandoning a non-terminal
// state. Nothing else, which is what keeps the machine monotonic.
func CanTransition(from, to State) bool {
	if _, ok := stateSet[to]; !ok {
		return false
	}
	if from == to {
		return true
	}
	if to == StateAbandoned {
		return !from.IsTerminal()
	}
	return forwardNext[from] == to
}

// Record is the persisted state for one source article's journey through the
// pipeline. Identity is the stable source article ID; records are never
// deleted so they double as the discovery dedup guard.
type Record struct {
	SourceID        string
	Title           string
	Author          string
	OriginalURL     string
	Summary         string
	State           State
	GenerationJobID string
	// GenerationStartedAt is stamped when the generation job is issued; the
	// poll stage measures pending age against it.
	GenerationStartedAt *time.Time
	ContentPath         string
	LocalArtifactPath   string
	ArtifactLocation    string
	ArtifactBytes       int64
	Attempts            map[string]int
	LastError           string
	LastAttemptAt       *time.Time
	AbandonedFrom       State
	PublishedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AttemptsFor returns the failure count recorded for a stage.
func (r *Record) AttemptsFor(stage string) int {
	if r.Attempts == nil {
		return 0
	}
	return r.Attempts[stage]
}

// RecordFailure notes one failed attempt for a stage.
func (r *Record) RecordFailure(stage, message string, at time.Time) {
	if r.Attempts == nil {
		r.Attempts = make(map[string]int)
	}
	r.Attempts[stage]++
	r.LastError = message
	when := at.UTC()
	r.LastAttemptAt = &when
}

// MarkAbandoned moves the record to the abandoned terminal state, remembering
// the state it was abandoned from so an operator retry can resume there.
func (r *Record) MarkAbandoned(reason string) {
	if r.State != StateAbandoned {
		r.AbandonedFrom = r.State
	}
	r.State = StateAbandoned
	r.LastError = reason
}

// MarkPublished stamps the publication time and advances the state.
func (r *Record) MarkPublished(at time.Time) {
	when := at.UTC()
	r.PublishedAt = &when
	r.State = StatePublished
}

// RunState is the single process-wide row: the discovery watermark plus a
// flag marking that the published set changed and the feed document has not
// been successfully re-rendered since.
type RunState struct {
	Cursor    string
	FeedDirty bool
	UpdatedAt time.Time
}

// Stats is a count of records grouped by state.
type Stats map[State]int

// Total sums all counts.
func (s Stats) Total() int {
	total := 0
	for _, count := range s {
		total += count
	}
	return total
}
