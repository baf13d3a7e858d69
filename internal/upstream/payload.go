package upstream

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RawFixture is the flattened, validated form of one provider fixture plus
// its cumulative match statistics. Counters are summed over both teams.
type RawFixture struct {
	ID        int64
	League    string
	Status    string
	Elapsed   int
	HomeTeam  string
	AwayTeam  string
	HomeGoals int
	AwayGoals int

	DangerousAttacks int
	ShotsOnTarget    int
	TotalShots       int
	XG               float64

	FetchedAt time.Time
}

// envelope is the outer shape shared by every provider endpoint.
type envelope struct {
	Errors   json.RawMessage   `json:"errors"`
	Response []json.RawMessage `json:"response"`
}

type fixtureItem struct {
	Fixture struct {
		ID     *int64 `json:"id"`
		Status struct {
			Elapsed *int   `json:"elapsed"`
			Short   string `json:"short"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		Name string `json:"name"`
	} `json:"league"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
}

type teamStatistics struct {
	Team struct {
		ID int64 `json:"id"`
	} `json:"team"`
	Statistics []struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"statistics"`
}

// Statistic type names reported by the provider.
const (
	statDangerousAttacks = "Dangerous Attacks"
	statShotsOnGoal      = "Shots on Goal"
	statShotsOnTarget    = "Shots on Target"
	statTotalShots       = "Total Shots"
	statExpectedGoals    = "expected_goals"
)

// providerErrors extracts the provider's in-band "errors" object. The field
// is an empty array on success and an object of name→message on failure.
func providerErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

// toRaw maps a decoded fixture item into a RawFixture. It returns false when
// mandatory fields are missing so the caller can fail closed.
func (f *fixtureItem) toRaw() (RawFixture, bool) {
	if f.Fixture.ID == nil || *f.Fixture.ID <= 0 {
		return RawFixture{}, false
	}
	r := RawFixture{
		ID:       *f.Fixture.ID,
		League:   f.League.Name,
		Status:   f.Fixture.Status.Short,
		HomeTeam: f.Teams.Home.Name,
		AwayTeam: f.Teams.Away.Name,
	}
	if f.Fixture.Status.Elapsed != nil && *f.Fixture.Status.Elapsed > 0 {
		r.Elapsed = *f.Fixture.Status.Elapsed
	}
	if f.Goals.Home != nil {
		r.HomeGoals = *f.Goals.Home
	}
	if f.Goals.Away != nil {
		r.AwayGoals = *f.Goals.Away
	}
	return r, true
}

// applyStatistics adds the per-team statistics into r.
func applyStatistics(r *RawFixture, teams []teamStatistics) {
	for _, t := range teams {
		for _, s := range t.Statistics {
			v := statValue(s.Value)
			switch s.Type {
			case statDangerousAttacks:
				r.DangerousAttacks += int(v)
			case statShotsOnGoal, statShotsOnTarget:
				r.ShotsOnTarget += int(v)
			case statTotalShots:
				r.TotalShots += int(v)
			case statExpectedGoals:
				r.XG += v
			}
		}
	}
}

// statValue decodes a statistic value. The provider sends numbers, numeric
// strings ("1.24"), percentages ("55%") or null. Anything unparseable is 0.
func statValue(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return nonNegative(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return nonNegative(n)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
