// Package engine implements the bulk reconciliation engine.
//
// The core abstraction is [Reconciler], which drives every item visible on a
// paginated shelf toward the policy's desired state: it deduplicates items
// already handled this run, batches and concurrency-limits actuation, verifies
// each actuation when the actuator exposes an observable indicator, retries
// transient failures with exponential backoff, accumulates statistics, and
// advances pagination until the shelf reports its last page. A final pass
// re-scans the last page to catch items whose state changed concurrently with
// processing.
//
// [Controller] provides cooperative pause/resume/stop. [Reconciler.Run]
// consults the controller's gate between units of work (page cycles and
// batches), never mid-unit, so pausing lets in-flight actuations finish and
// stopping is observed at the next gate.
//
// Operations emit progress updates via channels for non-blocking status
// reporting to CLI/UI layers.
package engine
