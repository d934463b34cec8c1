// Package logging builds the slog loggers used across readcast and defines
// the standardized attribute keys (record_id, stage, correlation_id) that
// keep run output greppable. Console output is used on terminals; structured
// JSON everywhere else so scheduled runs produce machine-readable logs.
package logging
