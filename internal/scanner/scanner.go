package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/pitchwatch/internal/alerts"
	"github.com/obsidianstack/pitchwatch/internal/config"
	"github.com/obsidianstack/pitchwatch/internal/metrics"
	"github.com/obsidianstack/pitchwatch/internal/signal"
	"github.com/obsidianstack/pitchwatch/internal/store"
	"github.com/obsidianstack/pitchwatch/internal/upstream"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// Fetcher is the subset of upstream.Client the scanner depends on.
type Fetcher interface {
	FetchFixture(ctx context.Context, fixtureID int64) (upstream.RawFixture, error)
	LiveFixtureIDs(ctx context.Context) ([]int64, error)
}

// Report summarises one scan.
type Report struct {
	Seq         uint64        `json:"seq"`
	Requested   int           `json:"requested"`
	Scanned     int           `json:"scanned"`
	NoData      int           `json:"no_data"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Alerts      int           `json:"alerts"`
	RateLimited bool          `json:"rate_limited"`
	Duration    time.Duration `json:"duration_ns"`
}

// Scanner runs scans: fetch each fixture, derive its snapshot, store it and
// evaluate alert rules against it.
type Scanner struct {
	fetcher  Fetcher
	computer *signal.Computer
	fixtures *store.Fixtures
	engine   *alerts.Engine
	metrics  *metrics.Metrics

	concurrency int
	minMinute   int
	maxMinute   int
	discover    bool

	seq atomic.Uint64

	mu  sync.RWMutex
	ids []int64
}

// New wires a Scanner. m may be nil.
func New(fetcher Fetcher, computer *signal.Computer, fixtures *store.Fixtures,
	engine *alerts.Engine, cfg config.ScanConfig, m *metrics.Metrics) *Scanner {
	conc := cfg.Concurrency
	if conc < 1 {
		conc = 1
	}
	return &Scanner{
		fetcher:     fetcher,
		computer:    computer,
		fixtures:    fixtures,
		engine:      engine,
		metrics:     m,
		concurrency: conc,
		minMinute:   cfg.MinMinute,
		maxMinute:   cfg.MaxMinute,
		discover:    cfg.DiscoverLive,
		ids:         append([]int64(nil), cfg.Fixtures...),
	}
}

// SetFixtures replaces the configured fixture set.
func (s *Scanner) SetFixtures(ids []int64) {
	s.mu.Lock()
	s.ids = append([]int64(nil), ids...)
	s.mu.Unlock()
}

// Fixtures returns the configured fixture set.
func (s *Scanner) Fixtures() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.ids...)
}

// Scan resolves the fixture set (configured ids, else live discovery when
// enabled) and scans it.
func (s *Scanner) Scan(ctx context.Context) (Report, error) {
	ids := s.Fixtures()
	if len(ids) == 0 && s.discover {
		live, err := s.fetcher.LiveFixtureIDs(ctx)
		if err != nil {
			if upstream.IsFatal(err) {
				s.observeScan("fatal", 0)
				return Report{}, err
			}
			slog.Warn("scanner: live discovery failed", "err", err)
			s.observeScan("partial", 0)
			return Report{RateLimited: errors.Is(err, upstream.ErrRateLimited)}, nil
		}
		ids = live
	}
	_, rep, err := s.run(ctx, ids)
	return rep, err
}

// ScanAll scans ids and returns one snapshot per fixture scanned
// successfully, in input order. Transient failures are skipped. An
// ErrAuthRejected aborts the remaining batch and is returned; an
// ErrRateLimited skips every fixture not yet started.
func (s *Scanner) ScanAll(ctx context.Context, ids []int64) ([]types.FixtureSnapshot, error) {
	snaps, _, err := s.run(ctx, ids)
	return snaps, err
}

func (s *Scanner) run(ctx context.Context, ids []int64) ([]types.FixtureSnapshot, Report, error) {
	start := time.Now()
	seq := s.seq.Add(1)
	rep := Report{Seq: seq, Requested: len(ids)}

	results := make([]*types.FixtureSnapshot, len(ids))
	var (
		limited atomic.Bool
		mu      sync.Mutex // guards rep counters
	)
	count := func(f func()) {
		mu.Lock()
		defer mu.Unlock()
		f()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil || limited.Load() {
				count(func() { rep.Skipped++ })
				s.observeFixture("skipped")
				return nil
			}

			snap, raised, err := s.scanOne(gctx, seq, id)
			s.observeFixture(upstream.Outcome(err))
			switch {
			case err == nil:
				results[i] = snap
				count(func() {
					if snap != nil {
						rep.Scanned++
					}
					rep.Alerts += raised
				})
			case upstream.IsFatal(err):
				slog.Error("scanner: credentials rejected, aborting scan", "fixture", id, "err", err)
				count(func() { rep.Failed++ })
				return err
			case errors.Is(err, upstream.ErrRateLimited):
				if !limited.Swap(true) {
					slog.Warn("scanner: rate limited, skipping rest of batch", "fixture", id, "err", err)
				}
				count(func() {
					rep.Failed++
					rep.RateLimited = true
				})
			case errors.Is(err, upstream.ErrNoData):
				slog.Debug("scanner: fixture not live", "fixture", id)
				count(func() { rep.NoData++ })
			default:
				slog.Warn("scanner: fixture scan failed", "fixture", id, "err", err)
				count(func() { rep.Failed++ })
			}
			return nil
		})
	}
	err := g.Wait()

	out := make([]types.FixtureSnapshot, 0, len(ids))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	rep.Duration = time.Since(start)

	result := "ok"
	switch {
	case err != nil:
		result = "fatal"
	case rep.Failed > 0 || rep.Skipped > 0:
		result = "partial"
	}
	s.observeScan(result, rep.Duration)
	if s.metrics != nil {
		s.metrics.FixturesTracked.Set(float64(s.fixtures.Count()))
	}

	slog.Info("scanner: scan finished",
		"seq", seq,
		"requested", rep.Requested,
		"scanned", rep.Scanned,
		"no_data", rep.NoData,
		"failed", rep.Failed,
		"skipped", rep.Skipped,
		"alerts", rep.Alerts,
		"duration", rep.Duration,
	)
	if err != nil {
		return out, rep, fmt.Errorf("scanner: scan %d aborted: %w", seq, err)
	}
	return out, rep, nil
}

// scanOne fetches, derives and stores one fixture, then evaluates rules if
// the fixture is inside the alerting window. A nil snapshot with a nil error
// means a newer scan had already stored this fixture.
func (s *Scanner) scanOne(ctx context.Context, seq uint64, id int64) (*types.FixtureSnapshot, int, error) {
	raw, err := s.fetcher.FetchFixture(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	snap := s.computer.Derive(s.fixtures.Current(id), raw)
	if !s.fixtures.Apply(seq, snap) {
		return nil, 0, nil
	}
	stored := s.fixtures.Current(id)
	if stored == nil || stored.ScanSeq != seq {
		return nil, 0, nil
	}

	if !s.inWindow(stored) {
		return stored, 0, nil
	}
	raised := s.engine.Evaluate(stored)
	if s.metrics != nil {
		for _, a := range raised {
			s.metrics.AlertsRaised.WithLabelValues(a.RuleID, a.Severity).Inc()
		}
	}
	return stored, len(raised), nil
}

func (s *Scanner) inWindow(snap *types.FixtureSnapshot) bool {
	if types.IsTerminal(snap.Status) {
		return false
	}
	if snap.ElapsedMinutes < s.minMinute {
		return false
	}
	return s.maxMinute <= 0 || snap.ElapsedMinutes <= s.maxMinute
}

func (s *Scanner) observeFixture(outcome string) {
	if s.metrics != nil {
		s.metrics.FixturesScanned.WithLabelValues(outcome).Inc()
	}
}

func (s *Scanner) observeScan(result string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Scans.WithLabelValues(result).Inc()
	if d > 0 {
		s.metrics.ScanDuration.Observe(d.Seconds())
	}
}
