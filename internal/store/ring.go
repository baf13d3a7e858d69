package store

import (
	"sync"

	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// Alerts is a fixed-capacity ring of alerts in insertion order. Appending to
// a full ring overwrites the oldest entry.
//
// Alerts is safe for concurrent use.
type Alerts struct {
	mu    sync.RWMutex
	buf   []types.Alert
	start int // index of the oldest entry
	n     int
}

// NewAlerts returns an empty ring holding at most capacity alerts.
// A capacity below 1 is raised to 1.
func NewAlerts(capacity int) *Alerts {
	if capacity < 1 {
		capacity = 1
	}
	return &Alerts{buf: make([]types.Alert, capacity)}
}

// Append adds a at the newest end, evicting the oldest entry when full.
func (r *Alerts) Append(a types.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = a
		r.n++
		return
	}
	r.buf[r.start] = a
	r.start = (r.start + 1) % len(r.buf)
}

// Recent returns up to limit alerts, newest first. A limit of 0 or less
// returns everything held. The result is never nil.
func (r *Alerts) Recent(limit int) []types.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > r.n {
		limit = r.n
	}
	out := make([]types.Alert, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.start + r.n - 1 - i) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns the number of alerts held.
func (r *Alerts) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

// Cap returns the ring capacity.
func (r *Alerts) Cap() int { return len(r.buf) }
