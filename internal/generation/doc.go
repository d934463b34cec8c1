// Package generation drives the remote audio generation backend: submitting
// article content, polling job status, and downloading finished artifacts.
// Job creation is billable and not idempotent, which is why callers persist
// the job ID before doing anything else with it.
package generation
