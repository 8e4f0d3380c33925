// Package harness runs rule scenarios: a small hand-written dataset is
// evaluated against a set of rules, lifecycle commands are applied to the
// resulting run, and assertions are checked against the final issues.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: stale_deal
//	description: "A deal untouched for 79 days is a Medium issue"
//	now: "2026-02-18T12:00:00Z"
//	rules: [stale_opportunity]
//	settings:
//	  stale_opportunity.low_days: 30
//	dataset:
//	  reps: [{id: 1, name: Ada Lovelace, ...}]
//	  accounts: [...]
//	  opportunities: [...]
//	  opportunity_history: [...]
//	steps:
//	  - command: snooze
//	    issue: issue-0001
//	  - command: expire
//	    after: 25h
//	assertions:
//	  - type: issue_present
//	    rule: stale_opportunity
//	    severity: Medium
//	    subject: Deal A
//	  - type: issue_count
//	    count: 1
//	  - type: final_status
//	    issue: issue-0001
//	    status: Open
//
// The dataset block uses the same field names as the generated JSON.
// When rules is set, every other built-in rule is disabled. Issue ids are
// issued in order as issue-0001, issue-0002 and so on.
//
// # Assertion Types
//
//   - issue_present: an issue matches rule, and optionally severity,
//     subject (opportunity, account or rep name) and metric
//   - issue_absent: no issue matches rule and optional subject
//   - issue_count: the number of issues, optionally filtered by rule and
//     severity, equals count
//   - final_status: the issue ends in the given status
//
// # Deterministic Testing
//
// Each scenario runs against a fresh in-memory store with sequential issue
// ids and a fixed clock, so snapshots can be compared with golden files.
package harness
