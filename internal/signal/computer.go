package signal

import (
	"github.com/obsidianstack/pitchwatch/internal/upstream"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// Computer turns raw provider data into FixtureSnapshots. It holds no state
// between calls: the previous snapshot is always passed in, so Derive is a
// pure function of its arguments.
type Computer struct {
	weights Weights
}

// NewComputer returns a Computer using w. Zero level thresholds take the
// defaults; zero weights switch their term off.
func NewComputer(w Weights) *Computer {
	return &Computer{weights: w.withDefaults()}
}

// Weights returns the effective weights.
func (c *Computer) Weights() Weights { return c.weights }

// Derive builds the snapshot for raw given the previous snapshot of the same
// fixture, or nil on the first observation.
//
// Cumulative counters pass through unchanged. Deltas are computed against
// previous and clamped at zero so a provider-side counter reset never yields
// a negative rate; on the first observation they are zero. Every division by
// elapsed minutes uses a floor of one minute.
func (c *Computer) Derive(previous *types.FixtureSnapshot, raw upstream.RawFixture) types.FixtureSnapshot {
	snap := types.FixtureSnapshot{
		ID:               raw.ID,
		League:           raw.League,
		Status:           raw.Status,
		ElapsedMinutes:   raw.Elapsed,
		HomeTeam:         raw.HomeTeam,
		AwayTeam:         raw.AwayTeam,
		HomeGoals:        raw.HomeGoals,
		AwayGoals:        raw.AwayGoals,
		DangerousAttacks: raw.DangerousAttacks,
		ShotsOnTarget:    raw.ShotsOnTarget,
		XG:               raw.XG,
		CapturedAt:       raw.FetchedAt,
	}

	snap.AttackRate = float64(raw.DangerousAttacks) / minutes(raw.Elapsed)

	in := Input{AttackRate: snap.AttackRate}
	if previous != nil && previous.ID == raw.ID {
		snap.DangerousAttacksDelta = int(deltaOf(float64(raw.DangerousAttacks), float64(previous.DangerousAttacks)))
		snap.ShotsOnTargetDelta = int(deltaOf(float64(raw.ShotsOnTarget), float64(previous.ShotsOnTarget)))
		snap.XGDelta = deltaOf(raw.XG, previous.XG)

		window := minutes(raw.Elapsed - previous.ElapsedMinutes)
		in.DangerRate = float64(snap.DangerousAttacksDelta) / window
		in.ShotsOTRate = float64(snap.ShotsOnTargetDelta) / window
		in.XGRate = snap.XGDelta / window
	}

	snap.Pressure = Pressure(in, c.weights)
	snap.Level = Level(snap.Pressure, c.weights)
	return snap
}

// minutes applies the one-minute floor used for every rate.
func minutes(m int) float64 {
	if m < 1 {
		return 1
	}
	return float64(m)
}

// deltaOf returns current - previous, clamped to zero on counter resets.
func deltaOf(current, previous float64) float64 {
	d := current - previous
	if d < 0 {
		return 0
	}
	return d
}
