package signal

import (
	"github.com/obsidianstack/pitchwatch/internal/config"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// Default pressure index weights.
const (
	DefaultWeightAttackRate   = 10.0
	DefaultWeightDangerDelta  = 1.5
	DefaultWeightShotsOTDelta = 1.8
	DefaultWeightXGDelta      = 20.0

	DefaultYellowAt = 40.0
	DefaultRedAt    = 70.0
)

// Weights tunes the pressure index.
type Weights struct {
	AttackRate   float64
	DangerDelta  float64
	ShotsOTDelta float64
	XGDelta      float64

	// Level thresholds on the 0..100 index.
	YellowAt float64
	RedAt    float64
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		AttackRate:   DefaultWeightAttackRate,
		DangerDelta:  DefaultWeightDangerDelta,
		ShotsOTDelta: DefaultWeightShotsOTDelta,
		XGDelta:      DefaultWeightXGDelta,
		YellowAt:     DefaultYellowAt,
		RedAt:        DefaultRedAt,
	}
}

// withDefaults clamps negative weights to zero and fills unset level
// thresholds from DefaultWeights.
func (w Weights) withDefaults() Weights {
	d := DefaultWeights()
	for _, p := range []*float64{&w.AttackRate, &w.DangerDelta, &w.ShotsOTDelta, &w.XGDelta} {
		if *p < 0 {
			*p = 0
		}
	}
	if w.YellowAt <= 0 {
		w.YellowAt = d.YellowAt
	}
	if w.RedAt <= 0 || w.RedAt < w.YellowAt {
		w.RedAt = d.RedAt
	}
	return w
}

// FromConfig builds Weights from the signals section. Unset weights take the
// defaults; an explicit 0 disables that term.
func FromConfig(c config.SignalWeights) Weights {
	w := DefaultWeights()
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&w.AttackRate, c.AttackRate)
	set(&w.DangerDelta, c.DangerDelta)
	set(&w.ShotsOTDelta, c.ShotsOTDelta)
	set(&w.XGDelta, c.XGDelta)
	if c.YellowAt > 0 {
		w.YellowAt = c.YellowAt
	}
	if c.RedAt > 0 {
		w.RedAt = c.RedAt
	}
	return w
}

// Input holds the normalised per-minute values fed into the pressure formula.
type Input struct {
	AttackRate  float64 // dangerous attacks per match minute, whole match
	DangerRate  float64 // new dangerous attacks per minute since the previous poll
	ShotsOTRate float64 // new shots on target per minute since the previous poll
	XGRate      float64 // xG gained per minute since the previous poll
}

// Pressure computes the pressure index:
//
//	pressure = clamp(
//	    attack_rate   * w.AttackRate   +
//	    danger_rate   * w.DangerDelta  +
//	    shots_ot_rate * w.ShotsOTDelta +
//	    xg_rate       * w.XGDelta,
//	0, 100)
func Pressure(in Input, w Weights) float64 {
	p := in.AttackRate*w.AttackRate +
		in.DangerRate*w.DangerDelta +
		in.ShotsOTRate*w.ShotsOTDelta +
		in.XGRate*w.XGDelta
	return clamp(p, 0, 100)
}

// Level maps a pressure index to a named level.
func Level(pressure float64, w Weights) string {
	switch {
	case pressure >= w.RedAt:
		return types.LevelRed
	case pressure >= w.YellowAt:
		return types.LevelYellow
	default:
		return types.LevelGreen
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
