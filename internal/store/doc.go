// Package store holds pitchwatch's in-memory state.
//
// Fixtures maps fixture id to an immutable State (current and previous
// snapshot). Apply swaps in a new State under a short lock and refuses
// writes from a scan older than the one that produced the stored state.
// Finished fixtures are evicted by Run after a grace period.
//
// Alerts is the bounded alert history: a FIFO ring whose Recent(limit)
// returns newest first.
package store
