package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/pitchwatch/internal/scanner"
	"github.com/obsidianstack/pitchwatch/internal/upstream"
)

// Scheduler states.
const (
	StateIdle     = "idle"
	StateScanning = "scanning"
	StatePaused   = "paused"
)

// States lists every state, for metrics.
var States = []string{StateIdle, StateScanning, StatePaused}

var (
	// ErrAlreadyRunning is returned by Trigger while a scan is in flight.
	ErrAlreadyRunning = errors.New("scheduler: scan already running")
	// ErrStopped is returned by Trigger once shutdown has begun.
	ErrStopped = errors.New("scheduler: stopped")
)

// ScanFunc performs one full scan.
type ScanFunc func(ctx context.Context) (scanner.Report, error)

// Status is a point-in-time view of the scheduler.
type Status struct {
	State      string          `json:"state"`
	Interval   time.Duration   `json:"interval_ns"`
	Scans      uint64          `json:"scans"`
	LastStart  time.Time       `json:"last_start,omitempty"`
	LastFinish time.Time       `json:"last_finish,omitempty"`
	LastReport *scanner.Report `json:"last_report,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
}

// Scheduler runs scans on a fixed interval and on demand, never more than
// one at a time. A fatal upstream error pauses the timer until the next
// manual trigger.
type Scheduler struct {
	scan     ScanFunc
	interval time.Duration
	base     context.Context
	onState  func(state string)
	now      func() time.Time

	mu      sync.Mutex
	state   string
	stopped bool
	status  Status

	wg sync.WaitGroup
}

// New returns an idle Scheduler.
func New(scan ScanFunc, interval time.Duration) *Scheduler {
	return &Scheduler{
		scan:     scan,
		interval: interval,
		base:     context.Background(),
		onState:  func(string) {},
		now:      time.Now,
		state:    StateIdle,
	}
}

// OnStateChange registers fn to be called on every state transition. fn
// runs under the scheduler lock and must not call back into the Scheduler.
// Must be called before Run.
func (s *Scheduler) OnStateChange(fn func(state string)) {
	if fn != nil {
		s.onState = fn
		fn(StateIdle)
	}
}

// Trigger starts a scan immediately. It returns ErrAlreadyRunning when a
// scan is in flight; the request is not queued. A paused scheduler resumes.
func (s *Scheduler) Trigger() error {
	return s.start("manual", true)
}

// Run drives timed scans until ctx is cancelled. It runs one scan straight
// away. On cancellation it stops the timer and waits for any in-flight scan
// to finish before returning.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.base = context.WithoutCancel(ctx)
	s.mu.Unlock()

	slog.Info("scheduler: started", "interval", s.interval)
	s.start("startup", false)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
			slog.Info("scheduler: stopping, waiting for in-flight scan")
			s.wg.Wait()
			slog.Info("scheduler: stopped")
			return
		case <-t.C:
			s.start("timer", false)
		}
	}
}

// Status returns the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.State = s.state
	st.Interval = s.interval
	return st
}

var errPaused = errors.New("scheduler: paused")

// start moves idle (or, when manual, paused) to scanning and launches the
// scan.
func (s *Scheduler) start(trigger string, manual bool) error {
	s.mu.Lock()
	var err error
	switch {
	case s.stopped:
		err = ErrStopped
	case s.state == StateScanning:
		err = ErrAlreadyRunning
	case s.state == StatePaused && !manual:
		err = errPaused
	}
	if err != nil {
		s.mu.Unlock()
		slog.Debug("scheduler: scan not started", "trigger", trigger, "reason", err)
		return err
	}
	s.state = StateScanning
	s.status.LastStart = s.now()
	ctx := s.base
	s.wg.Add(1)
	s.onState(StateScanning)
	s.mu.Unlock()

	go s.runScan(ctx, trigger)
	return nil
}

func (s *Scheduler) runScan(ctx context.Context, trigger string) {
	defer s.wg.Done()

	rep, err := s.scan(ctx)

	s.mu.Lock()
	s.status.Scans++
	s.status.LastFinish = s.now()
	s.status.LastReport = &rep
	s.status.LastError = ""
	next := StateIdle
	if err != nil {
		s.status.LastError = err.Error()
		if upstream.IsFatal(err) {
			next = StatePaused
		}
	}
	s.state = next
	s.onState(next)
	s.mu.Unlock()

	switch {
	case next == StatePaused:
		slog.Error("scheduler: fatal upstream error, timed scans paused until manual trigger",
			"trigger", trigger, "err", err)
	case err != nil:
		slog.Warn("scheduler: scan failed", "trigger", trigger, "err", err)
	default:
		slog.Debug("scheduler: scan complete", "trigger", trigger, "seq", rep.Seq)
	}
}
