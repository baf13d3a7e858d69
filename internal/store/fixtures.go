package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// State holds the two most recent snapshots of one fixture. A State is never
// modified after it is stored; every update swaps in a new State.
type State struct {
	Current  *types.FixtureSnapshot
	Previous *types.FixtureSnapshot

	// Seq is the scan sequence number that produced Current.
	Seq       uint64
	UpdatedAt time.Time

	// TerminalSince is when the fixture was first seen in a terminal status.
	TerminalSince time.Time
}

// Fixtures is the thread-safe keyed FixtureState store. Writers hold the
// lock only for the map swap; readers receive immutable values.
type Fixtures struct {
	mu    sync.RWMutex
	data  map[int64]*State
	grace time.Duration
	now   func() time.Time // injectable for deterministic tests
}

// NewFixtures creates a store that drops finished fixtures grace after they
// were first seen finished.
func NewFixtures(grace time.Duration) *Fixtures {
	return &Fixtures{
		data:  make(map[int64]*State),
		grace: grace,
		now:   time.Now,
	}
}

// Apply stores snap as the current snapshot for its fixture, demoting the
// existing one to Previous. It returns false, leaving the store unchanged,
// when the stored state was produced by a later scan than seq.
func (f *Fixtures) Apply(seq uint64, snap types.FixtureSnapshot) bool {
	now := f.now()
	snap.ScanSeq = seq

	f.mu.Lock()
	defer f.mu.Unlock()

	old := f.data[snap.ID]
	if old != nil && old.Seq > seq {
		slog.Debug("store: rejecting out-of-order snapshot",
			"fixture", snap.ID, "seq", seq, "stored_seq", old.Seq)
		return false
	}

	next := &State{Current: &snap, Seq: seq, UpdatedAt: now}
	if old != nil {
		next.Previous = old.Current
		next.TerminalSince = old.TerminalSince
	}
	if types.IsTerminal(snap.Status) {
		if next.TerminalSince.IsZero() {
			next.TerminalSince = now
		}
	} else {
		next.TerminalSince = time.Time{}
	}
	f.data[snap.ID] = next
	return true
}

// Get returns the State for id and whether it exists.
func (f *Fixtures) Get(id int64) (*State, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.data[id]
	return st, ok
}

// Current returns the latest snapshot for id, or nil if the fixture has
// never been scanned successfully.
func (f *Fixtures) Current(id int64) *types.FixtureSnapshot {
	if st, ok := f.Get(id); ok {
		return st.Current
	}
	return nil
}

// List returns the current snapshot of every tracked fixture, ordered by id.
// The result is never nil.
func (f *Fixtures) List() []*types.FixtureSnapshot {
	f.mu.RLock()
	out := make([]*types.FixtureSnapshot, 0, len(f.data))
	for _, st := range f.data {
		out = append(out, st.Current)
	}
	f.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of tracked fixtures.
func (f *Fixtures) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data)
}

// Evict removes fixtures that have been terminal for longer than the grace
// period and returns their ids.
func (f *Fixtures) Evict(now time.Time) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed []int64
	for id, st := range f.data {
		if st.TerminalSince.IsZero() {
			continue
		}
		if now.Sub(st.TerminalSince) >= f.grace {
			delete(f.data, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Run starts the background eviction loop, ticking at half the grace period
// (minimum 1 second). onEvict, if non-nil, is called with every batch of
// evicted ids. Run blocks until ctx is cancelled.
func (f *Fixtures) Run(ctx context.Context, onEvict func(ids []int64)) {
	interval := f.grace / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ids := f.Evict(f.now())
			if len(ids) == 0 {
				continue
			}
			slog.Info("store: dropped finished fixtures", "count", len(ids), "ids", ids)
			if onEvict != nil {
				onEvict(ids)
			}
		}
	}
}
