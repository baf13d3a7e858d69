// Package api serves the read-only query surface and the manual scan
// trigger over HTTP.
//
// Routes:
//
//	GET  /api/v1/health
//	GET  /api/v1/status
//	GET  /api/v1/snapshot
//	GET  /api/v1/fixtures
//	GET  /api/v1/fixtures/{id}
//	GET  /api/v1/alerts?limit=N
//	GET  /api/v1/alerts/active
//	GET  /api/v1/rules
//	POST /api/v1/scan
//	GET  /metrics
//	GET  /ws/stream
//
// Reads always return the best-known state, even after a failed scan.
package api
