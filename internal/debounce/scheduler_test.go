package debounce

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingFlush records concurrency and holds each flush until released.
type blockingFlush struct {
	started chan struct{}
	release chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newBlockingFlush() *blockingFlush {
	return &blockingFlush{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingFlush) flush(ctx context.Context) {
	n := b.active.Add(1)
	for {
		m := b.maxSeen.Load()
		if n <= m || b.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	b.started <- struct{}{}
	<-b.release
	b.active.Add(-1)
}

func waitStarted(t *testing.T, b *blockingFlush) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not start")
	}
}

func TestNew_DefaultQuietPeriod(t *testing.T) {
	s := New(0, func(context.Context) {})
	defer s.Stop()
	assert.Equal(t, DefaultQuietPeriod, s.quiet)
	assert.Equal(t, StateIdle, s.State())
}

func TestNotify_BurstCollapsesToOneFlush(t *testing.T) {
	var calls atomic.Int32
	s := New(50*time.Millisecond, func(context.Context) { calls.Add(1) })
	defer s.Stop()

	for i := 0; i < 10; i++ {
		s.Notify()
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, StateScheduled, s.State())

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), s.Flushes())
	assert.Equal(t, StateIdle, s.State())
}

func TestNotify_RearmRestartsWindow(t *testing.T) {
	var calls atomic.Int32
	s := New(200*time.Millisecond, func(context.Context) { calls.Add(1) })
	defer s.Stop()

	s.Notify()
	time.Sleep(120 * time.Millisecond)
	s.Notify()
	time.Sleep(120 * time.Millisecond)

	// 240ms after the first signal but only 120ms after the second.
	assert.Equal(t, int32(0), calls.Load())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_SingleFlightWithOneFollowUp(t *testing.T) {
	bf := newBlockingFlush()
	s := New(10*time.Millisecond, bf.flush)
	defer s.Stop()

	s.Notify()
	waitStarted(t, bf)
	assert.Equal(t, StateUploading, s.State())

	// Several signals whose timers fire while the first flush is blocked.
	for i := 0; i < 3; i++ {
		s.Notify()
		time.Sleep(30 * time.Millisecond)
	}
	assert.Equal(t, StateUploading, s.State())

	bf.release <- struct{}{}
	waitStarted(t, bf)
	bf.release <- struct{}{}

	require.Eventually(t, func() bool { return s.State() == StateIdle }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), s.Flushes(), "exactly one follow-up")
	assert.Equal(t, int32(1), bf.maxSeen.Load(), "never two flushes at once")
}

func TestScheduler_SignalDuringUploadLeavesScheduled(t *testing.T) {
	bf := newBlockingFlush()
	s := New(300*time.Millisecond, bf.flush)
	defer s.Stop()

	s.FlushNow()
	waitStarted(t, bf)

	s.Notify()
	bf.release <- struct{}{}

	require.Eventually(t, func() bool { return s.State() == StateScheduled }, time.Second, 2*time.Millisecond)

	waitStarted(t, bf)
	bf.release <- struct{}{}
	require.Eventually(t, func() bool { return s.State() == StateIdle }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), s.Flushes())
}

func TestFlushNow_CancelsPendingTimer(t *testing.T) {
	var calls atomic.Int32
	s := New(100*time.Millisecond, func(context.Context) { calls.Add(1) })
	defer s.Stop()

	s.Notify()
	s.FlushNow()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStop_CancelsPendingTimer(t *testing.T) {
	var calls atomic.Int32
	s := New(50*time.Millisecond, func(context.Context) { calls.Add(1) })

	s.Notify()
	s.Stop()
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, StateIdle, s.State())

	s.Notify()
	s.FlushNow()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load(), "stopped scheduler ignores signals")
}

func TestStop_WaitsForInFlightFlush(t *testing.T) {
	bf := newBlockingFlush()
	s := New(time.Hour, bf.flush)

	s.FlushNow()
	waitStarted(t, bf)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned while a flush was running")
	case <-time.After(50 * time.Millisecond):
	}

	bf.release <- struct{}{}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after flush completed")
	}
	assert.Equal(t, int64(1), s.Flushes())
}

func TestDrain_FlushesArmedTimer(t *testing.T) {
	var calls atomic.Int32
	s := New(time.Hour, func(context.Context) { calls.Add(1) })

	s.Notify()
	assert.True(t, s.Pending())
	assert.True(t, s.Drain())
	assert.Equal(t, int32(1), calls.Load())

	s.Notify()
	assert.False(t, s.Pending(), "drained scheduler ignores signals")
	assert.False(t, s.Drain())
}

func TestDrain_RunsFollowUpBehindInFlightFlush(t *testing.T) {
	bf := newBlockingFlush()
	s := New(time.Hour, bf.flush)

	s.FlushNow()
	waitStarted(t, bf)

	// A change lands while the upload runs; State reports Uploading, not
	// Scheduled, but the change is still owed.
	s.Notify()
	assert.Equal(t, StateUploading, s.State())
	assert.True(t, s.Pending())

	done := make(chan bool, 1)
	go func() { done <- s.Drain() }()

	bf.release <- struct{}{}
	waitStarted(t, bf)
	bf.release <- struct{}{}

	select {
	case pending := <-done:
		assert.True(t, pending)
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return")
	}
	assert.Equal(t, int64(2), s.Flushes())
	assert.Equal(t, int32(1), bf.maxSeen.Load())
}

func TestDrain_IdleIsStop(t *testing.T) {
	var calls atomic.Int32
	s := New(time.Hour, func(context.Context) { calls.Add(1) })

	assert.False(t, s.Drain())
	assert.Equal(t, int32(0), calls.Load())
	s.Stop()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scheduled", StateScheduled.String())
	assert.Equal(t, "uploading", StateUploading.String())
	assert.Equal(t, "State(7)", State(7).String())
}
