// Package services defines shared utilities consumed by the pipeline stage
// handlers and the external adapters.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the failure
//     policy classify adapter errors (transient vs rejected vs systemic).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, retries, observability) stays uniform across the pipeline.
package services
