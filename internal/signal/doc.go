// Package signal derives match-pressure signals from raw provider data.
//
// computer.go holds Computer.Derive(previous, raw), a deterministic function
// that carries cumulative counters through, computes deltas against the
// previous snapshot (zero on first sight, never negative) and normalises
// them by elapsed minutes with a one-minute floor.
//
// score.go holds the pure Pressure(Input, Weights) formula and the
// green / yellow (≥40) / red (≥70) level mapping.
package signal
