package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/pitchwatch/internal/alerts"
	"github.com/obsidianstack/pitchwatch/internal/api"
	"github.com/obsidianstack/pitchwatch/internal/config"
	"github.com/obsidianstack/pitchwatch/internal/metrics"
	"github.com/obsidianstack/pitchwatch/internal/scheduler"
	"github.com/obsidianstack/pitchwatch/internal/store"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// --- test helpers -----------------------------------------------------------

var baseTime = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	err   error
	calls int
}

func (f *fakeScheduler) Trigger() error {
	f.calls++
	return f.err
}

func (f *fakeScheduler) Status() scheduler.Status {
	return scheduler.Status{State: scheduler.StateIdle, Interval: 12 * time.Second}
}

type fixture struct {
	fixtures *store.Fixtures
	history  *store.Alerts
	engine   *alerts.Engine
	sched    *fakeScheduler
	handler  http.Handler
}

func newFixture(t *testing.T, snaps ...types.FixtureSnapshot) *fixture {
	t.Helper()
	f := &fixture{
		fixtures: store.NewFixtures(10 * time.Minute),
		history:  store.NewAlerts(5),
		sched:    &fakeScheduler{},
	}
	f.engine = alerts.New([]config.AlertRule{{
		ID: "danger", Signal: "dangerous_attacks", Comparator: ">=", Threshold: 5,
		Policy: config.PolicyRecross, Severity: types.SeverityWarning,
	}}, f.history, nil)
	for i, s := range snaps {
		f.fixtures.Apply(uint64(i+1), s)
	}
	f.handler = api.New(api.Options{
		Fixtures:  f.fixtures,
		Alerts:    f.history,
		Engine:    f.engine,
		Scheduler: f.sched,
		Metrics:   metrics.New().Handler(),
	})
	return f
}

func snap(id int64, danger int) types.FixtureSnapshot {
	return types.FixtureSnapshot{
		ID: id, League: "Premier League", Status: "2H", ElapsedMinutes: 60,
		HomeTeam: "Arsenal", AwayTeam: "Chelsea",
		DangerousAttacks: danger, CapturedAt: baseTime,
	}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodGet, path)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func appendAlerts(f *fixture, n int) {
	for i := 1; i <= n; i++ {
		f.history.Append(types.Alert{
			ID: fmt.Sprintf("a%d", i), FixtureID: 1, RuleID: "danger",
			RaisedAt: baseTime.Add(time.Duration(i) * time.Second),
		})
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	f := newFixture(t, snap(1, 3), snap(2, 4))
	appendAlerts(f, 2)

	rr := get(t, f.handler, "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.Fixtures != 2 || resp.Alerts != 2 || resp.Scheduler != "idle" {
		t.Errorf("health = %+v", resp)
	}
}

// --- /api/v1/fixtures -------------------------------------------------------

func TestListFixtures_EmptyIsEmptyArray(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.handler, "/api/v1/fixtures")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestListFixtures_SortedByID(t *testing.T) {
	f := newFixture(t, snap(30, 1), snap(10, 2), snap(20, 3))
	rr := get(t, f.handler, "/api/v1/fixtures")

	var resp []map[string]any
	decode(t, rr, &resp)
	if len(resp) != 3 {
		t.Fatalf("got %d fixtures, want 3", len(resp))
	}
	for i, want := range []float64{10, 20, 30} {
		if resp[i]["id"] != want {
			t.Errorf("fixtures[%d].id = %v, want %v", i, resp[i]["id"], want)
		}
	}
	if resp[0]["home_team"] != "Arsenal" || resp[0]["dangerous_attacks"] != 2.0 {
		t.Errorf("fields = %v", resp[0])
	}
}

func TestGetFixture(t *testing.T) {
	first := snap(7, 3)
	second := snap(7, 6)
	second.CapturedAt = baseTime.Add(time.Minute)
	f := newFixture(t, first, second)
	f.engine.Evaluate(f.fixtures.Current(7))

	rr := get(t, f.handler, "/api/v1/fixtures/7")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.FixtureResponse
	decode(t, rr, &resp)
	if resp.Current == nil || resp.Current.DangerousAttacks != 6 {
		t.Errorf("current = %+v", resp.Current)
	}
	if resp.Previous == nil || resp.Previous.DangerousAttacks != 3 {
		t.Errorf("previous = %+v", resp.Previous)
	}
	if resp.Seq != 2 || len(resp.Active) != 1 || resp.Active[0].RuleID != "danger" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetFixture_NeverScanned(t *testing.T) {
	f := newFixture(t, snap(1, 1))

	rr := get(t, f.handler, "/api/v1/fixtures/999")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]any
	decode(t, rr, &resp)
	if cur, ok := resp["current"]; !ok || cur != nil {
		t.Errorf("current = %v, want null", cur)
	}
	if _, ok := resp["error"]; ok {
		t.Errorf("unexpected error body: %v", resp)
	}
	if act, ok := resp["active_rules"].([]any); !ok || len(act) != 0 {
		t.Errorf("active_rules = %v, want []", resp["active_rules"])
	}
}

func TestGetFixture_Errors(t *testing.T) {
	f := newFixture(t, snap(1, 1))
	cases := []struct {
		path string
		code int
	}{
		{"/api/v1/fixtures/abc", http.StatusBadRequest},
		{"/api/v1/fixtures/-4", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rr := get(t, f.handler, tc.path)
			if rr.Code != tc.code {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.code)
			}
			var e map[string]string
			decode(t, rr, &e)
			if e["error"] == "" {
				t.Error("error body missing")
			}
		})
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestRecentAlerts(t *testing.T) {
	f := newFixture(t)
	appendAlerts(f, 4)

	cases := []struct {
		name    string
		query   string
		code    int
		wantIDs []string
	}{
		{"default limit", "", http.StatusOK, []string{"a4", "a3", "a2", "a1"}},
		{"limit 2", "?limit=2", http.StatusOK, []string{"a4", "a3"}},
		{"limit above capacity", "?limit=1000", http.StatusOK, []string{"a4", "a3", "a2", "a1"}},
		{"zero", "?limit=0", http.StatusBadRequest, nil},
		{"not a number", "?limit=ten", http.StatusBadRequest, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := get(t, f.handler, "/api/v1/alerts"+tc.query)
			if rr.Code != tc.code {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.code)
			}
			if tc.code != http.StatusOK {
				return
			}
			var got []types.Alert
			decode(t, rr, &got)
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("got %d alerts, want %d", len(got), len(tc.wantIDs))
			}
			for i, id := range tc.wantIDs {
				if got[i].ID != id {
					t.Errorf("alerts[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestRecentAlerts_EmptyIsEmptyArray(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.handler, "/api/v1/alerts")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestActiveAlertsAndRules(t *testing.T) {
	f := newFixture(t, snap(1, 9))
	f.engine.Evaluate(f.fixtures.Current(1))

	var active []alerts.ActiveRule
	decode(t, get(t, f.handler, "/api/v1/alerts/active"), &active)
	if len(active) != 1 || active[0].FixtureID != 1 {
		t.Errorf("active = %+v", active)
	}

	var rules []config.AlertRule
	decode(t, get(t, f.handler, "/api/v1/rules"), &rules)
	if len(rules) != 1 || rules[0].ID != "danger" {
		t.Errorf("rules = %+v", rules)
	}
}

// --- /api/v1/scan -----------------------------------------------------------

func TestTriggerScan(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"started", nil, http.StatusAccepted, "scan_started"},
		{"already running", scheduler.ErrAlreadyRunning, http.StatusConflict, "already_running"},
		{"stopped", scheduler.ErrStopped, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.sched.err = tc.err
			rr := do(t, f.handler, http.MethodPost, "/api/v1/scan")
			if rr.Code != tc.code {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.code)
			}
			if f.sched.calls != 1 {
				t.Errorf("Trigger calls = %d, want 1", f.sched.calls)
			}
			if tc.status == "" {
				return
			}
			var resp api.ScanResponse
			decode(t, rr, &resp)
			if resp.Status != tc.status {
				t.Errorf("status field = %q, want %q", resp.Status, tc.status)
			}
		})
	}
}

func TestTriggerScan_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.handler, "/api/v1/scan")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d, want 405", rr.Code)
	}
	if f.sched.calls != 0 {
		t.Error("GET must not trigger a scan")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
}

// --- misc -------------------------------------------------------------------

func TestStatusAndSnapshot(t *testing.T) {
	f := newFixture(t, snap(1, 2))
	appendAlerts(f, 1)

	var st scheduler.Status
	decode(t, get(t, f.handler, "/api/v1/status"), &st)
	if st.State != scheduler.StateIdle || st.Interval != 12*time.Second {
		t.Errorf("status = %+v", st)
	}

	var snapResp api.SnapshotResponse
	decode(t, get(t, f.handler, "/api/v1/snapshot"), &snapResp)
	if len(snapResp.Fixtures) != 1 || len(snapResp.Alerts) != 1 || snapResp.GeneratedAt == "" {
		t.Errorf("snapshot = %+v", snapResp)
	}
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.handler, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "pitchwatch_fixtures_tracked") {
		t.Error("metrics body missing pitchwatch_fixtures_tracked")
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.handler, "/api/v1/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
}
