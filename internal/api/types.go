package api

import (
	"time"

	"github.com/obsidianstack/pitchwatch/internal/alerts"
	"github.com/obsidianstack/pitchwatch/internal/scheduler"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Scheduler string `json:"scheduler"`
	Fixtures  int    `json:"fixtures"`
	Alerts    int    `json:"alerts"`
}

// FixtureResponse is the payload for GET /api/v1/fixtures/{id}.
type FixtureResponse struct {
	Current  *types.FixtureSnapshot `json:"current"`
	Previous *types.FixtureSnapshot `json:"previous,omitempty"`
	Seq      uint64                 `json:"seq"`
	Updated  string                 `json:"updated_at"` // RFC3339
	Active   []alerts.ActiveRule    `json:"active_rules"`
}

// ScanResponse is the payload for POST /api/v1/scan.
type ScanResponse struct {
	Status string `json:"status"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Fixtures    []*types.FixtureSnapshot `json:"fixtures"`
	Alerts      []types.Alert           `json:"alerts"`
	Scheduler   scheduler.Status        `json:"scheduler"`
	GeneratedAt string                  `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
