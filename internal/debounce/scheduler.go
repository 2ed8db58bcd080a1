// Package debounce coalesces bursts of change signals into a single
// deferred flush.
//
// Every Notify rearms one timer with the quiet window. When the window passes
// without another signal the flush runs on the timer goroutine. At most one
// flush is in flight: a timer that fires during a flush schedules exactly one
// follow-up, which starts as soon as the current flush returns.
package debounce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQuietPeriod is the quiet window used when none is configured.
const DefaultQuietPeriod = 5 * time.Second

// State is the scheduler's externally visible state.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateUploading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateUploading:
		return "uploading"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FlushFunc performs one flush. Errors are the callee's concern; the
// scheduler never retries.
type FlushFunc func(ctx context.Context)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler is a single-timer, single-flight debouncer.
//
// Thread-safety: all methods are safe for concurrent use.
type Scheduler struct {
	quiet  time.Duration
	flush  FlushFunc
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64 // bumped on every rearm; stale timer callbacks compare against it
	inFlight bool
	trailing bool
	closing  bool // set by Drain; new signals are ignored
	stopped  bool

	flushes atomic.Int64
}

// New creates a scheduler that calls flush after quiet of inactivity.
// A non-positive quiet uses DefaultQuietPeriod.
func New(quiet time.Duration, flush FlushFunc, opts ...Option) *Scheduler {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		quiet:  quiet,
		flush:  flush,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify records a change signal, restarting the quiet window from zero.
// It never blocks on a flush.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.closing {
		return
	}
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, func() { s.fire(gen) })
}

// FlushNow cancels any pending timer and starts a flush immediately. If a
// flush is already running, one follow-up is queued instead.
func (s *Scheduler) FlushNow() {
	s.mu.Lock()
	if s.stopped || s.closing {
		s.mu.Unlock()
		return
	}
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.beginLocked() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	go s.run()
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || s.closing || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if !s.beginLocked() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.run()
}

// beginLocked claims the in-flight slot, or marks a trailing flush if the
// slot is taken. It reports whether the caller must run the flush.
func (s *Scheduler) beginLocked() bool {
	if s.inFlight {
		s.trailing = true
		s.logger.Debug("flush in flight, queued follow-up")
		return false
	}
	s.inFlight = true
	s.wg.Add(1)
	return true
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		s.flush(s.ctx)
		s.flushes.Add(1)

		s.mu.Lock()
		if s.trailing && !s.stopped {
			s.trailing = false
			s.mu.Unlock()
			continue
		}
		s.trailing = false
		s.inFlight = false
		s.mu.Unlock()
		return
	}
}

// State reports Uploading while a flush runs, Scheduled while a timer is
// armed, and Idle otherwise.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.inFlight:
		return StateUploading
	case s.timer != nil:
		return StateScheduled
	default:
		return StateIdle
	}
}

// Flushes returns the number of completed flushes.
func (s *Scheduler) Flushes() int64 {
	return s.flushes.Load()
}

// Pending reports whether a flush is owed: a timer is armed or a follow-up
// is queued behind the in-flight flush.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil || s.trailing
}

// Drain stops the scheduler without losing owed work. An armed timer is
// flushed at once, a queued follow-up still runs after the in-flight flush,
// and Drain returns when no flush is running. It reports whether anything
// was pending. Signals that arrive while draining are ignored.
func (s *Scheduler) Drain() bool {
	s.mu.Lock()
	if s.stopped || s.closing {
		s.mu.Unlock()
		return false
	}
	s.closing = true
	pending := s.timer != nil || s.trailing
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	start := pending && s.beginLocked()
	s.mu.Unlock()

	if start {
		go s.run()
	}
	s.wg.Wait()
	s.Stop()
	return pending
}

// Stop cancels the pending timer, drops any queued follow-up and waits for
// the in-flight flush to return. Notify and FlushNow are no-ops afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
}
