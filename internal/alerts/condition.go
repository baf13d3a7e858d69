package alerts

import (
	"fmt"
	"sort"

	"github.com/obsidianstack/pitchwatch/internal/config"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// signals maps every rule signal name to its value in a snapshot.
//
//	pressure                 0..100 pressure index
//	dangerous_attacks        cumulative, both teams
//	shots_on_target          cumulative, both teams
//	xg                       cumulative expected goals
//	dangerous_attacks_delta  growth since the previous poll
//	shots_on_target_delta
//	xg_delta
//	attack_rate              dangerous attacks per minute
//	elapsed                  match minute
//	total_goals
//	goal_diff                absolute goal difference
var signals = map[string]func(*types.FixtureSnapshot) float64{
	"pressure":                func(s *types.FixtureSnapshot) float64 { return s.Pressure },
	"dangerous_attacks":       func(s *types.FixtureSnapshot) float64 { return float64(s.DangerousAttacks) },
	"shots_on_target":         func(s *types.FixtureSnapshot) float64 { return float64(s.ShotsOnTarget) },
	"xg":                      func(s *types.FixtureSnapshot) float64 { return s.XG },
	"dangerous_attacks_delta": func(s *types.FixtureSnapshot) float64 { return float64(s.DangerousAttacksDelta) },
	"shots_on_target_delta":   func(s *types.FixtureSnapshot) float64 { return float64(s.ShotsOnTargetDelta) },
	"xg_delta":                func(s *types.FixtureSnapshot) float64 { return s.XGDelta },
	"attack_rate":             func(s *types.FixtureSnapshot) float64 { return s.AttackRate },
	"elapsed":                 func(s *types.FixtureSnapshot) float64 { return float64(s.ElapsedMinutes) },
	"total_goals":             func(s *types.FixtureSnapshot) float64 { return float64(s.TotalGoals()) },
	"goal_diff": func(s *types.FixtureSnapshot) float64 {
		d := s.HomeGoals - s.AwayGoals
		if d < 0 {
			d = -d
		}
		return float64(d)
	},
}

// Signals returns the sorted list of signal names rules may reference.
func Signals() []string {
	out := make([]string, 0, len(signals))
	for name := range signals {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CheckRules reports the first rule that references an unknown signal.
func CheckRules(rules []config.AlertRule) error {
	for _, r := range rules {
		if _, ok := signals[r.Signal]; !ok {
			return fmt.Errorf("alerts: rule %q: unknown signal %q", r.ID, r.Signal)
		}
	}
	return nil
}

// signalValue returns the value of the named signal and whether it exists.
func signalValue(name string, snap *types.FixtureSnapshot) (float64, bool) {
	fn, ok := signals[name]
	if !ok {
		return 0, false
	}
	return fn(snap), true
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
