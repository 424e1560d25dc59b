// Package dispatch is the runtime entry point for agent tool calls.
// It validates untrusted arguments, consults policy, executes or parks
// invocations for confirmation, and records an audit entry for every
// state transition.
//
// Invariants:
// - Terminal invocation states are immutable and retained for audit.
// - Every transition commits exactly one audit entry atomically with
//   the status change; no result is observable before its audit trail.
// - Executor calls for the same ticket are serialized by a per-ticket
//   lock held through the audit commit.
package dispatch
