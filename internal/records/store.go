package records

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"readcast/internal/config"
	"readcast/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

var (
	// ErrLocked indicates another readcast instance holds the store lock.
	ErrLocked = errors.New("record store is locked by another instance")
	// ErrJobIDReassigned indicates an attempt to overwrite a generation job
	// identifier. Job IDs are set at most once per record; re-creating a job
	// would duplicate a billable generation.
	ErrJobIDReassigned = errors.New("generation job id already assigned")
	// ErrIllegalTransition indicates a state change the machine does not allow.
	ErrIllegalTransition = errors.New("illegal state transition")
)

// Store manages record persistence backed by SQLite. A file lock next to the
// database enforces a single writer across processes for the lifetime of the
// store, so two overlapping invocations cannot both issue generation jobs.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open initializes or connects to the record database, acquires the
// single-instance lock, and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "readcast.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "records.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, lock: lock}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection and releases the instance lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return services.Wrap(services.ErrStoreCorrupt, "records", "check schema", "", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return services.Wrap(services.ErrStoreCorrupt, "records", "read schema version", "", err)
	}
	if version != schemaVersion {
		return services.Wrap(services.ErrStoreCorrupt, "records", "schema version",
			fmt.Sprintf("database has version %d, expected %d", version, schemaVersion), nil)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO run_state (id, cursor, feed_dirty, updated_at) VALUES (1, '', 0, ?)", now); err != nil {
		return fmt.Errorf("seed run state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Upsert atomically writes the full record, creating it when new. The prior
// version is read inside the same transaction to enforce the transition rules
// and the job-ID write-once invariant, so a crash between any two calls
// leaves the store exactly at the last completed Upsert.
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return errors.New("record is nil")
	}
	if record.SourceID == "" {
		return errors.New("record source id is required")
	}
	if _, ok := stateSet[record.State]; !ok {
		return fmt.Errorf("%w: unknown state %q", ErrIllegalTransition, record.State)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prior, err := getRecordTx(ctx, tx, record.SourceID)
	if err != nil {
		return err
	}
	if prior != nil {
		if prior.GenerationJobID != "" && record.GenerationJobID != prior.GenerationJobID {
			return fmt.Errorf("%w: record %s", ErrJobIDReassigned, record.SourceID)
		}
		if !CanTransition(prior.State, record.State) {
			return fmt.Errorf("%w: record %s: %s -> %s", ErrIllegalTransition, record.SourceID, prior.State, record.State)
		}
	}

	attemptsJSON, err := json.Marshal(record.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	if record.Attempts == nil {
		attemptsJSON = []byte("{}")
	}

	record.UpdatedAt = now
	if prior == nil {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
	} else {
		record.CreatedAt = prior.CreatedAt
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO article_records (
            source_id, title, author, original_url, summary, state,
            generation_job_id, generation_started_at, content_path,
            local_artifact_path, artifact_location, artifact_bytes,
            attempts_json, last_error, last_attempt_at, abandoned_from,
            published_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(source_id) DO UPDATE SET
            title = excluded.title,
            author = excluded.author,
            original_url = excluded.original_url,
            summary = excluded.summary,
            state = excluded.state,
            generation_job_id = excluded.generation_job_id,
            generation_started_at = excluded.generation_started_at,
            content_path = excluded.content_path,
            local_artifact_path = excluded.local_artifact_path,
            artifact_location = excluded.artifact_location,
            artifact_bytes = excluded.artifact_bytes,
            attempts_json = excluded.attempts_json,
            last_error = excluded.last_error,
            last_attempt_at = excluded.last_attempt_at,
            abandoned_from = excluded.abandoned_from,
            published_at = excluded.published_at,
            updated_at = excluded.updated_at`,
		record.SourceID,
		record.Title,
		record.Author,
		record.OriginalURL,
		record.Summary,
		record.State,
		record.GenerationJobID,
		nullableTime(record.GenerationStartedAt),
		record.ContentPath,
		record.LocalArtifactPath,
		record.ArtifactLocation,
		record.ArtifactBytes,
		string(attemptsJSON),
		record.LastError,
		nullableTime(record.LastAttemptAt),
		string(record.AbandonedFrom),
		nullableTime(record.PublishedAt),
		record.CreatedAt.Format(time.RFC3339Nano),
		record.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	// Flag the feed in the same transaction as the publish, so a crash after
	// commit cannot leave a published record the feed never picks up.
	if record.State == StatePublished && (prior == nil || prior.State != StatePublished) {
		_, err = tx.ExecContext(ctx,
			`UPDATE run_state SET feed_dirty = 1, updated_at = ? WHERE id = 1`,
			now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("flag feed dirty: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Get fetches a record by source ID, or nil when unknown.
func (s *Store) Get(ctx context.Context, sourceID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM article_records WHERE source_id = ?`, sourceID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// LoadAll returns every record ordered by creation time.
func (s *Store) LoadAll(ctx context.Context) ([]*Record, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM article_records ORDER BY created_at, source_id`)
}

// ListByState returns records in any of the given states, ordered by creation time.
func (s *Store) ListByState(ctx context.Context, states ...State) ([]*Record, error) {
	if len(states) == 0 {
		return s.LoadAll(ctx)
	}
	placeholders := makePlaceholders(len(states))
	args := make([]any, len(states))
	for i, state := range states {
		args[i] = state
	}
	query := `SELECT ` + recordColumns + ` FROM article_records WHERE state IN (` + placeholders + `) ORDER BY created_at, source_id`
	return s.queryRecords(ctx, query, args...)
}

// Pending returns non-terminal records ordered by oldest update first, the
// order the orchestrator spends its per-run budget in.
func (s *Store) Pending(ctx context.Context) ([]*Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM article_records WHERE state NOT IN (?, ?) ORDER BY updated_at, source_id`,
		StatePublished, StateAbandoned)
}

// Published returns published records, newest publication first.
func (s *Store) Published(ctx context.Context) ([]*Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM article_records WHERE state = ? ORDER BY published_at DESC, source_id`,
		StatePublished)
}

// RetryAbandoned restores an abandoned record to the state it was abandoned
// from, clearing its failure bookkeeping. Operator escape hatch; the normal
// transition rules deliberately do not allow this.
func (s *Store) RetryAbandoned(ctx context.Context, sourceID string) (*Record, error) {
	record, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("record %s: %w", sourceID, services.ErrNotFound)
	}
	if record.State != StateAbandoned {
		return nil, fmt.Errorf("record %s is %s, not abandoned", sourceID, record.State)
	}
	resume := record.AbandonedFrom
	if resume == "" || resume == StateAbandoned {
		resume = StateDiscovered
	}

	now := time.Now().UTC()
	attemptsJSON := []byte("{}")
	_, err = s.db.ExecContext(ctx,
		`UPDATE article_records
         SET state = ?, attempts_json = ?, last_error = '', last_attempt_at = NULL,
             abandoned_from = '', updated_at = ?
         WHERE source_id = ?`,
		resume,
		string(attemptsJSON),
		now.Format(time.RFC3339Nano),
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("retry abandoned: %w", err)
	}
	return s.Get(ctx, sourceID)
}

// Cursor returns the discovery watermark.
func (s *Store) Cursor(ctx context.Context) (string, error) {
	state, err := s.runState(ctx)
	if err != nil {
		return "", err
	}
	return state.Cursor, nil
}

// SetCursor advances the discovery watermark.
func (s *Store) SetCursor(ctx context.Context, token string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `UPDATE run_state SET cursor = ?, updated_at = ? WHERE id = 1`, token, now)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// FeedDirty reports whether the feed document is out of date with the
// published set.
func (s *Store) FeedDirty(ctx context.Context) (bool, error) {
	state, err := s.runState(ctx)
	if err != nil {
		return false, err
	}
	return state.FeedDirty, nil
}

// SetFeedDirty records whether a feed re-render is owed.
func (s *Store) SetFeedDirty(ctx context.Context, dirty bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	value := 0
	if dirty {
		value = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE run_state SET feed_dirty = ?, updated_at = ? WHERE id = 1`, value, now)
	if err != nil {
		return fmt.Errorf("set feed dirty: %w", err)
	}
	return nil
}

func (s *Store) runState(ctx context.Context) (RunState, error) {
	var (
		cursor  string
		dirty   int
		updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT cursor, feed_dirty, updated_at FROM run_state WHERE id = 1`).
		Scan(&cursor, &dirty, &updated)
	if err != nil {
		return RunState{}, services.Wrap(services.ErrStoreCorrupt, "records", "read run state", "", err)
	}
	state := RunState{Cursor: cursor, FeedDirty: dirty != 0}
	if when, err := parseTimeString(updated); err == nil {
		state.UpdatedAt = when
	}
	return state, nil
}

// Stats returns a count of records grouped by state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM article_records GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("record stats: %w", err)
	}
	defer rows.Close()

	stats := make(Stats)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func getRecordTx(ctx context.Context, tx *sql.Tx, sourceID string) (*Record, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM article_records WHERE source_id = ?`, sourceID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prior record: %w", err)
	}
	return record, nil
}

const recordColumns = "source_id, title, author, original_url, summary, state, generation_job_id, generation_started_at, content_path, local_artifact_path, artifact_location, artifact_bytes, attempts_json, last_error, last_attempt_at, abandoned_from, published_at, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		sourceID       string
		title          string
		author         string
		originalURL    string
		summary        string
		stateStr       string
		jobID          string
		genStartedRaw  sql.NullString
		contentPath    string
		localArtifact  string
		artifactLoc    string
		artifactBytes  int64
		attemptsRaw    string
		lastError      string
		lastAttemptRaw sql.NullString
		abandonedFrom  string
		publishedRaw   sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&sourceID,
		&title,
		&author,
		&originalURL,
		&summary,
		&stateStr,
		&jobID,
		&genStartedRaw,
		&contentPath,
		&localArtifact,
		&artifactLoc,
		&artifactBytes,
		&attemptsRaw,
		&lastError,
		&lastAttemptRaw,
		&abandonedFrom,
		&publishedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		SourceID:          sourceID,
		Title:             title,
		Author:            author,
		OriginalURL:       originalURL,
		Summary:           summary,
		State:             State(stateStr),
		GenerationJobID:   jobID,
		ContentPath:       contentPath,
		LocalArtifactPath: localArtifact,
		ArtifactLocation:  artifactLoc,
		ArtifactBytes:     artifactBytes,
		LastError:         lastError,
		AbandonedFrom:     State(abandonedFrom),
	}

	// Unknown keys in attempts_json are preserved by the map, keeping the
	// layout forward compatible.
	if attemptsRaw != "" && attemptsRaw != "{}" {
		attempts := make(map[string]int)
		if err := json.Unmarshal([]byte(attemptsRaw), &attempts); err != nil {
			return nil, services.Wrap(services.ErrStoreCorrupt, "records", "decode attempts",
				fmt.Sprintf("record %s", sourceID), err)
		}
		record.Attempts = attempts
	}

	if genStartedRaw.Valid {
		if when, err := parseTimeString(genStartedRaw.String); err == nil {
			record.GenerationStartedAt = &when
		}
	}
	if lastAttemptRaw.Valid {
		if when, err := parseTimeString(lastAttemptRaw.String); err == nil {
			record.LastAttemptAt = &when
		}
	}
	if publishedRaw.Valid {
		if when, err := parseTimeString(publishedRaw.String); err == nil {
			record.PublishedAt = &when
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
