// Package store persists datasets, runs, issues and lifecycle events in
// SQLite.
//
// # Tables
//
//   - datasets: generated datasets keyed by content fingerprint
//   - runs: one row per evaluation pass
//   - issues: a run's issues with their current lifecycle state
//   - issue_events: append-only audit log of lifecycle transitions
//
// # Ordering
//
// Reads are deterministic: runs by run_id, issues by (run_id, position),
// events by seq, datasets by insertion seq. Timestamps are stored as
// RFC 3339 UTC text and never used for ordering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
