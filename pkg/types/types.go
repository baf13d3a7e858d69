package types

import "time"

// Pressure levels derived from the pressure index.
const (
	LevelGreen  = "green"
	LevelYellow = "yellow"
	LevelRed    = "red"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// FixtureSnapshot is one point-in-time record for a fixture: the raw match
// state reported by the provider plus the signals derived from it.
//
// A snapshot is never mutated after it is published to the fixture store;
// a later scan produces a new snapshot that supersedes it.
type FixtureSnapshot struct {
	ID             int64  `json:"id"`
	League         string `json:"league"`
	Status         string `json:"status"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
	HomeTeam       string `json:"home_team"`
	AwayTeam       string `json:"away_team"`
	HomeGoals      int    `json:"home_goals"`
	AwayGoals      int    `json:"away_goals"`

	// Cumulative counters, summed over both teams.
	DangerousAttacks int     `json:"dangerous_attacks"`
	ShotsOnTarget    int     `json:"shots_on_target"`
	XG               float64 `json:"xg"`

	// Growth of the cumulative counters since the previous snapshot.
	// Zero on the first observation of a fixture.
	DangerousAttacksDelta int     `json:"dangerous_attacks_delta"`
	ShotsOnTargetDelta    int     `json:"shots_on_target_delta"`
	XGDelta               float64 `json:"xg_delta"`

	// AttackRate is dangerous attacks per elapsed minute.
	AttackRate float64 `json:"attack_rate"`

	// Pressure is the composite pressure index in the range 0..100.
	Pressure float64 `json:"pressure"`
	Level    string  `json:"level"`

	CapturedAt time.Time `json:"captured_at"`
	ScanSeq    uint64    `json:"scan_seq"`
}

// TotalGoals returns the combined score.
func (s *FixtureSnapshot) TotalGoals() int { return s.HomeGoals + s.AwayGoals }

// Alert is a single threshold breach raised by the alert engine.
// Its dedup identity is (FixtureID, RuleID).
type Alert struct {
	ID        string    `json:"id"`
	FixtureID int64     `json:"fixture_id"`
	RuleID    string    `json:"rule_id"`
	Signal    string    `json:"signal"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	RaisedAt  time.Time `json:"raised_at"`
	Value     float64   `json:"signal_value_at_raise"`
}

// terminalStatuses are the provider short codes for fixtures that will not
// produce further data.
var terminalStatuses = map[string]bool{
	"FT": true, "AET": true, "PEN": true,
	"CANC": true, "ABD": true, "AWD": true, "WO": true, "PST": true,
}

// IsTerminal reports whether a provider status code means the fixture is over.
func IsTerminal(status string) bool { return terminalStatuses[status] }
