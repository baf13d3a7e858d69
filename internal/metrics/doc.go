// Package metrics defines pitchwatch's Prometheus collectors and exposes
// them at /metrics. WriteText dumps the service's own families for the
// scan-once command.
package metrics
