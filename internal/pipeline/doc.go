// Package pipeline orchestrates one cron invocation of the article-to-audio
// workflow.
//
// A run has three phases: discovery lists newly saved articles into the
// record store, the budget loop advances pending records through their
// stages oldest-first, and a final feed phase re-renders the podcast RSS
// when the published set changed. The budget counts stage executions, not
// records, so one cheap record can cross several stages in a run while an
// expensive one costs only the stages it actually runs.
//
// Failures are classified through the services sentinels: transient errors
// back off and retry across runs, rejections abandon the record, and an
// authentication error halts the whole run because every later call would
// fail the same way.
package pipeline
