package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/obsidianstack/pitchwatch/internal/alerts"
	"github.com/obsidianstack/pitchwatch/internal/scheduler"
	"github.com/obsidianstack/pitchwatch/internal/store"
)

// DefaultAlertLimit is the page size of GET /api/v1/alerts without ?limit.
const DefaultAlertLimit = 50

// Trigger is the scheduler surface the API needs.
type Trigger interface {
	Trigger() error
	Status() scheduler.Status
}

// Handler serves the /api/v1 routes from the read-only stores.
type Handler struct {
	fixtures  *store.Fixtures
	history   *store.Alerts
	engine    *alerts.Engine
	scheduler Trigger
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Scheduler: h.scheduler.Status().State,
		Fixtures:  h.fixtures.Count(),
		Alerts:    h.history.Len(),
	})
}

// listFixtures returns GET /api/v1/fixtures, sorted by id.
func (h *Handler) listFixtures(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.fixtures.List())
}

// getFixture returns GET /api/v1/fixtures/{id}. A fixture that has never
// been scanned gets an empty response with a null current snapshot.
func (h *Handler) getFixture(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		jsonErr(w, http.StatusBadRequest, "invalid fixture id")
		return
	}
	st, ok := h.fixtures.Get(id)
	if !ok {
		st = &store.State{}
	}

	active := make([]alerts.ActiveRule, 0)
	if h.engine != nil {
		for _, a := range h.engine.Active() {
			if a.FixtureID == id {
				active = append(active, a)
			}
		}
	}
	jsonResp(w, http.StatusOK, FixtureResponse{
		Current:  st.Current,
		Previous: st.Previous,
		Seq:      st.Seq,
		Updated:  rfc3339(st.UpdatedAt),
		Active:   active,
	})
}

// recentAlerts returns GET /api/v1/alerts?limit=N, newest first.
func (h *Handler) recentAlerts(w http.ResponseWriter, r *http.Request) {
	limit := DefaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if c := h.history.Cap(); limit > c {
		limit = c
	}
	jsonResp(w, http.StatusOK, h.history.Recent(limit))
}

// activeAlerts returns GET /api/v1/alerts/active.
func (h *Handler) activeAlerts(w http.ResponseWriter, r *http.Request) {
	out := make([]alerts.ActiveRule, 0)
	if h.engine != nil {
		out = append(out, h.engine.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// rules returns GET /api/v1/rules.
func (h *Handler) rules(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.engine.Rules())
}

// triggerScan handles POST /api/v1/scan. A scan already in flight is
// reported, not queued.
func (h *Handler) triggerScan(w http.ResponseWriter, r *http.Request) {
	switch err := h.scheduler.Trigger(); {
	case err == nil:
		jsonResp(w, http.StatusAccepted, ScanResponse{Status: "scan_started"})
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		jsonResp(w, http.StatusConflict, ScanResponse{Status: "already_running"})
	default:
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
	}
}

// status returns GET /api/v1/status.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.scheduler.Status())
}

// snapshot returns GET /api/v1/snapshot: fixtures, recent alerts and
// scheduler status in one document.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, SnapshotResponse{
		Fixtures:    h.fixtures.List(),
		Alerts:      h.history.Recent(DefaultAlertLimit),
		Scheduler:   h.scheduler.Status(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

