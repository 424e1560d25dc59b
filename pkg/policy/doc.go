// Package policy maps a tool contract plus invocation context to an
// execution decision: auto-execute, require-confirmation, or deny.
//
// Invariants:
// - NEVER_AUTO contracts never yield AUTO_EXECUTE, under any context.
// - Decisions are deterministic given an identical call sequence; the
//   rate window consults invocation timestamps, not the wall clock.
package policy
