package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the instant a DeterministicClock starts from when none is given.
var DefaultEpoch = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock for tests that advances by a fixed step
// on every reading, so records created in sequence get distinct, predictable
// timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	seq   int64
}

// NewDeterministicClock creates a clock starting at start and advancing by
// step. A zero start uses DefaultEpoch; a zero step uses one second.
//
// The first call to Now() returns start + step.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	if step == 0 {
		step = time.Second
	}
	return &DeterministicClock{start: start.UTC(), step: step}
}

// Now advances the clock one step and returns the new instant.
// Its signature matches time.Now so it can be injected as a clock func.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.start.Add(time.Duration(c.seq) * c.step)
}

// Current returns the current instant without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.seq) * c.step)
}

// Reset rewinds the clock to its start.
//
// Used for test reuse. After Reset(), the next call to Now() returns start + step.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// FixedNow returns a clock func that always reports t.
func FixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
