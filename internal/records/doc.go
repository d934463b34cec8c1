// Package records persists per-article pipeline state in SQLite.
//
// Each saved article gets one durable Record keyed by its source ID. The
// record's State walks a fixed forward chain from discovered to published,
// with abandoned as the only side exit, and the store refuses writes that
// would skip a step or move backwards. The store also refuses to overwrite a
// generation job ID once one is set, which is what makes crash recovery safe
// around the non-idempotent generation backend.
//
// A single run_state row carries the discovery cursor and the feed-dirty
// flag. A file lock next to the database rejects a second concurrent
// instance.
package records
