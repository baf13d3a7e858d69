package signal

import (
	"math"
	"testing"
	"time"

	"github.com/obsidianstack/pitchwatch/internal/config"
	"github.com/obsidianstack/pitchwatch/internal/upstream"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

var baseTime = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func raw(elapsed, danger, shotsOT int, xg float64) upstream.RawFixture {
	return upstream.RawFixture{
		ID:               1035,
		League:           "Premier League",
		Status:           "2H",
		Elapsed:          elapsed,
		HomeTeam:         "Arsenal",
		AwayTeam:         "Chelsea",
		DangerousAttacks: danger,
		ShotsOnTarget:    shotsOT,
		XG:               xg,
		FetchedAt:        baseTime.Add(time.Duration(elapsed) * time.Minute),
	}
}

func TestDerive_FirstObservation_ZeroDeltas(t *testing.T) {
	c := NewComputer(DefaultWeights())
	snap := c.Derive(nil, raw(20, 30, 4, 1.2))

	if snap.DangerousAttacks != 30 || snap.ShotsOnTarget != 4 || snap.XG != 1.2 {
		t.Errorf("cumulative fields not passed through: %+v", snap)
	}
	if snap.DangerousAttacksDelta != 0 || snap.ShotsOnTargetDelta != 0 || snap.XGDelta != 0 {
		t.Errorf("first observation deltas should be zero: %+v", snap)
	}
	if !almostEqual(snap.AttackRate, 1.5, 1e-9) {
		t.Errorf("AttackRate = %v, want 1.5", snap.AttackRate)
	}
	// Only the attack-rate term contributes: 1.5 * 10.
	if !almostEqual(snap.Pressure, 15, 1e-9) {
		t.Errorf("Pressure = %v, want 15", snap.Pressure)
	}
	if snap.Level != types.LevelGreen {
		t.Errorf("Level = %q, want green", snap.Level)
	}
	if !snap.CapturedAt.Equal(baseTime.Add(20 * time.Minute)) {
		t.Errorf("CapturedAt = %v", snap.CapturedAt)
	}
}

func TestDerive_Deltas(t *testing.T) {
	c := NewComputer(DefaultWeights())
	prev := c.Derive(nil, raw(60, 30, 4, 1.0))
	cur := c.Derive(&prev, raw(62, 36, 6, 1.4))

	if cur.DangerousAttacksDelta != 6 {
		t.Errorf("DangerousAttacksDelta = %d, want 6", cur.DangerousAttacksDelta)
	}
	if cur.ShotsOnTargetDelta != 2 {
		t.Errorf("ShotsOnTargetDelta = %d, want 2", cur.ShotsOnTargetDelta)
	}
	if !almostEqual(cur.XGDelta, 0.4, 1e-9) {
		t.Errorf("XGDelta = %v, want 0.4", cur.XGDelta)
	}

	// attack rate 36/62*10 + (6/2)*1.5 + (2/2)*1.8 + (0.4/2)*20
	want := 36.0/62.0*10 + 3*1.5 + 1*1.8 + 0.2*20
	if !almostEqual(cur.Pressure, want, 1e-9) {
		t.Errorf("Pressure = %v, want %v", cur.Pressure, want)
	}
}

func TestDerive_SameMinuteUsesOneMinuteFloor(t *testing.T) {
	c := NewComputer(DefaultWeights())
	prev := c.Derive(nil, raw(0, 0, 0, 0))
	cur := c.Derive(&prev, raw(0, 2, 0, 0))

	if math.IsInf(cur.Pressure, 0) || math.IsNaN(cur.Pressure) {
		t.Fatalf("Pressure not finite: %v", cur.Pressure)
	}
	if !almostEqual(cur.AttackRate, 2, 1e-9) {
		t.Errorf("AttackRate = %v, want 2 (floor of one minute)", cur.AttackRate)
	}
	want := 2*10.0 + 2*1.5
	if !almostEqual(cur.Pressure, want, 1e-9) {
		t.Errorf("Pressure = %v, want %v", cur.Pressure, want)
	}
}

func TestDerive_CounterResetNeverNegative(t *testing.T) {
	c := NewComputer(DefaultWeights())
	prev := c.Derive(nil, raw(50, 40, 7, 2.0))
	cur := c.Derive(&prev, raw(51, 3, 1, 0.1))

	if cur.DangerousAttacksDelta != 0 || cur.ShotsOnTargetDelta != 0 || cur.XGDelta != 0 {
		t.Errorf("deltas after reset should clamp to 0: %+v", cur)
	}
	if cur.Pressure < 0 || cur.AttackRate < 0 {
		t.Errorf("negative derived values: pressure=%v rate=%v", cur.Pressure, cur.AttackRate)
	}
}

func TestDerive_IgnoresPreviousOfOtherFixture(t *testing.T) {
	c := NewComputer(DefaultWeights())
	other := types.FixtureSnapshot{ID: 9, DangerousAttacks: 1}
	cur := c.Derive(&other, raw(30, 20, 3, 0.5))
	if cur.DangerousAttacksDelta != 0 {
		t.Errorf("delta against a different fixture: %d", cur.DangerousAttacksDelta)
	}
}

func TestDerive_Deterministic(t *testing.T) {
	c := NewComputer(DefaultWeights())
	prev := c.Derive(nil, raw(70, 50, 6, 1.8))
	a := c.Derive(&prev, raw(72, 58, 8, 2.3))
	b := c.Derive(&prev, raw(72, 58, 8, 2.3))
	if a != b {
		t.Errorf("Derive not deterministic:\n a=%+v\n b=%+v", a, b)
	}
}

func TestPressure_Clamped(t *testing.T) {
	w := DefaultWeights()
	if got := Pressure(Input{AttackRate: 50}, w); got != 100 {
		t.Errorf("Pressure = %v, want 100", got)
	}
	if got := Pressure(Input{}, w); got != 0 {
		t.Errorf("Pressure = %v, want 0", got)
	}
}

func TestLevel(t *testing.T) {
	w := DefaultWeights()
	tests := []struct {
		pressure float64
		want     string
	}{
		{0, types.LevelGreen},
		{39.9, types.LevelGreen},
		{40, types.LevelYellow},
		{69.9, types.LevelYellow},
		{70, types.LevelRed},
		{100, types.LevelRed},
	}
	for _, tt := range tests {
		if got := Level(tt.pressure, w); got != tt.want {
			t.Errorf("Level(%v) = %q, want %q", tt.pressure, got, tt.want)
		}
	}
}

func TestWeights_Defaults(t *testing.T) {
	c := NewComputer(Weights{AttackRate: 5, DangerDelta: -2, RedAt: 10, YellowAt: 20})
	w := c.Weights()
	if w.AttackRate != 5 {
		t.Errorf("AttackRate = %v, want 5", w.AttackRate)
	}
	if w.DangerDelta != 0 {
		t.Errorf("negative DangerDelta should clamp to 0, got %v", w.DangerDelta)
	}
	if w.RedAt != DefaultRedAt {
		t.Errorf("RedAt below YellowAt should fall back to default, got %v", w.RedAt)
	}
}

func TestFromConfig(t *testing.T) {
	zero, two := 0.0, 2.0
	w := FromConfig(config.SignalWeights{XGDelta: &zero, DangerDelta: &two})

	if w.XGDelta != 0 {
		t.Errorf("XGDelta = %v, want 0 (term disabled)", w.XGDelta)
	}
	if w.DangerDelta != 2 {
		t.Errorf("DangerDelta = %v, want 2", w.DangerDelta)
	}
	if w.AttackRate != DefaultWeightAttackRate || w.ShotsOTDelta != DefaultWeightShotsOTDelta {
		t.Errorf("unset weights should take defaults, got %+v", w)
	}
	if w.YellowAt != DefaultYellowAt || w.RedAt != DefaultRedAt {
		t.Errorf("unset thresholds should take defaults, got %+v", w)
	}

	in := Input{XGRate: 1.5}
	if got := Pressure(in, w); got != 0 {
		t.Errorf("Pressure with xg_delta disabled = %v, want 0", got)
	}
}
