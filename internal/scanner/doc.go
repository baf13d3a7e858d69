// Package scanner runs one pass over the monitored fixtures.
//
// For every fixture id it calls the upstream client, derives a snapshot
// against the stored previous one, applies it to the fixture store under
// the scan's sequence number and, inside the configured minute window,
// evaluates alert rules. Fetches run with bounded concurrency.
//
// Failure handling follows the upstream taxonomy: an auth rejection aborts
// the batch and is returned; a rate limit skips the rest of the batch; any
// other failure drops only that fixture from this scan's results.
package scanner
