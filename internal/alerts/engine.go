package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/pitchwatch/internal/config"
	"github.com/obsidianstack/pitchwatch/internal/store"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

const deliveryTimeout = 10 * time.Second

// Notifier delivers raised alerts to an external destination.
type Notifier interface {
	Notify(ctx context.Context, a types.Alert) error
}

// ActiveRule is a (fixture, rule) pair whose condition currently holds.
type ActiveRule struct {
	FixtureID int64     `json:"fixture_id"`
	RuleID    string    `json:"rule_id"`
	LastFired time.Time `json:"last_fired"`
}

type ruleKey struct {
	fixture int64
	rule    string
}

// ruleState tracks one (fixture, rule) pair between evaluations.
type ruleState struct {
	breached bool // condition held at the last evaluation
	lastFire time.Time
}

// Engine evaluates threshold rules against fixture snapshots. A rule fires
// when its condition starts to hold; repeat breaches are suppressed until the
// condition clears (recross policy) or the cooldown elapses (cooldown policy).
//
// Engine is safe for concurrent use.
type Engine struct {
	history  *store.Alerts
	notifier Notifier

	mu       sync.Mutex
	rules    []config.AlertRule
	states   map[ruleKey]*ruleState
	lastSeen map[int64]time.Time // CapturedAt of the last snapshot evaluated per fixture

	newID func() string

	deliveries sync.WaitGroup
}

// New creates an Engine that appends raised alerts to history and hands them
// to notifier, which may be nil. An Engine with no rules never fires.
func New(rules []config.AlertRule, history *store.Alerts, notifier Notifier) *Engine {
	return &Engine{
		history:  history,
		notifier: notifier,
		rules:    append([]config.AlertRule(nil), rules...),
		states:   make(map[ruleKey]*ruleState),
		lastSeen: make(map[int64]time.Time),
		newID:    uuid.NewString,
	}
}

// Evaluate tests every rule against snap and returns the alerts newly raised.
//
// A snapshot captured no later than the last one evaluated for the same
// fixture is ignored, so repeated calls with the same data raise nothing.
// A snapshot without a capture time is never evaluated.
func (e *Engine) Evaluate(snap *types.FixtureSnapshot) []types.Alert {
	at := snap.CapturedAt
	if at.IsZero() {
		slog.Debug("alerts: skipping snapshot without capture time", "fixture", snap.ID)
		return nil
	}

	e.mu.Lock()
	if last, ok := e.lastSeen[snap.ID]; ok && !at.After(last) {
		e.mu.Unlock()
		return nil
	}
	e.lastSeen[snap.ID] = at

	var raised []types.Alert
	for _, rule := range e.rules {
		v, ok := signalValue(rule.Signal, snap)
		if !ok {
			continue
		}
		holds := snap.ElapsedMinutes >= rule.MinElapsed && compareFloat(v, rule.Comparator, rule.Threshold)

		key := ruleKey{fixture: snap.ID, rule: rule.ID}
		st := e.states[key]
		if st == nil {
			st = &ruleState{}
			e.states[key] = st
		}

		if shouldFire(rule, st, holds, at) {
			a := types.Alert{
				ID:        e.newID(),
				FixtureID: snap.ID,
				RuleID:    rule.ID,
				Signal:    rule.Signal,
				Severity:  rule.Severity,
				RaisedAt:  at,
				Value:     v,
				Message:   message(rule, snap, v),
			}
			st.lastFire = at
			raised = append(raised, a)
			e.history.Append(a)
		}
		st.breached = holds
	}
	e.mu.Unlock()

	for _, a := range raised {
		slog.Warn("alert fired",
			"rule", a.RuleID,
			"fixture", a.FixtureID,
			"signal", a.Signal,
			"value", a.Value,
			"severity", a.Severity,
		)
		if e.notifier != nil {
			e.deliveries.Add(1)
			go e.deliver(a)
		}
	}
	return raised
}

// shouldFire decides whether rule fires given the pair's previous state.
func shouldFire(rule config.AlertRule, st *ruleState, holds bool, at time.Time) bool {
	if !holds {
		return false
	}
	if rule.Policy == config.PolicyCooldown {
		return st.lastFire.IsZero() || at.Sub(st.lastFire) >= rule.Cooldown
	}
	return !st.breached
}

func (e *Engine) deliver(a types.Alert) {
	defer e.deliveries.Done()
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := e.notifier.Notify(ctx, a); err != nil {
		slog.Error("alerts: delivery failed", "rule", a.RuleID, "fixture", a.FixtureID, "err", err)
	}
}

// Wait blocks until every pending notification has been delivered or has
// timed out.
func (e *Engine) Wait() {
	e.deliveries.Wait()
}

// SetRules replaces the rule set. State is kept for rule ids that survive.
func (e *Engine) SetRules(rules []config.AlertRule) {
	keep := make(map[string]bool, len(rules))
	for _, r := range rules {
		keep[r.ID] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append([]config.AlertRule(nil), rules...)
	for k := range e.states {
		if !keep[k.rule] {
			delete(e.states, k)
		}
	}
	slog.Info("alerts: rules updated", "count", len(rules))
}

// Rules returns a copy of the current rule set.
func (e *Engine) Rules() []config.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]config.AlertRule(nil), e.rules...)
}

// Forget drops all per-fixture state for the given fixtures.
func (e *Engine) Forget(ids []int64) {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.states {
		if drop[k.fixture] {
			delete(e.states, k)
		}
	}
	for _, id := range ids {
		delete(e.lastSeen, id)
	}
}

// Active returns every (fixture, rule) pair whose condition held at its last
// evaluation, ordered by fixture then rule.
func (e *Engine) Active() []ActiveRule {
	e.mu.Lock()
	out := make([]ActiveRule, 0, len(e.states))
	for k, st := range e.states {
		if st.breached {
			out = append(out, ActiveRule{FixtureID: k.fixture, RuleID: k.rule, LastFired: st.lastFire})
		}
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FixtureID != out[j].FixtureID {
			return out[i].FixtureID < out[j].FixtureID
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

func message(rule config.AlertRule, s *types.FixtureSnapshot, v float64) string {
	return fmt.Sprintf("%s %d-%d %s (%d'): %s %s %g, now %.2f",
		s.HomeTeam, s.HomeGoals, s.AwayGoals, s.AwayTeam, s.ElapsedMinutes,
		rule.Signal, rule.Comparator, rule.Threshold, v)
}
