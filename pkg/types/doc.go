// Package types defines the shared in-memory records that flow between the
// scanner, the alert engine and the read API: fixture snapshots and alerts.
// Values of both types are treated as immutable once published.
package types
