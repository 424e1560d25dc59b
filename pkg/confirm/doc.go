// Package confirm resolves invocations parked for human review.
//
// Approval executes the parked invocation's stored, already-validated
// arguments; re-validation does not happen at resolution time.
// Rejection and expiry both end in DENIED, distinguished only by the
// audit reason.
package confirm
