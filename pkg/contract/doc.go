// Package contract defines the immutable description of one callable
// agent action: its input schema, category, and risk tier.
//
// Invariants:
// - A contract's input schema is satisfiable (no contradictory bounds).
// - Translation to the provider tool-calling shape is deterministic.
// - Validation never panics on malformed input; it returns violations.
package contract
