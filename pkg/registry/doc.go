// Package registry is the catalog of registered tool contracts.
//
// Invariants:
// - Tool names are unique; duplicates fail registration.
// - Contracts that cannot be translated to the provider protocol are
//   rejected at registration, never at call time.
// - The registry is written once at startup and frozen; reads after
//   Freeze take no lock.
package registry
