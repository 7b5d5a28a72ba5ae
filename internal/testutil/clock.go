package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually driven clock for wait tests.
//
// Sleep never blocks: it records the requested slice and advances the
// clock by exactly that amount, so elapsed times are deterministic.
// FakeClock satisfies sleep.Clock.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
// The OnSleep hook runs after the mutex is released, so it may call back
// into the clock.
type FakeClock struct {
	mu      sync.Mutex
	start   time.Time
	now     time.Time
	sleeps  []time.Duration
	onSleep func(now time.Time)
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{start: start, now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d and records d.
//
// Panics on a negative d: a waiter must never request one.
func (c *FakeClock) Sleep(d time.Duration) {
	if d < 0 {
		panic("FakeClock: negative sleep " + d.String())
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	now, hook := c.now, c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}
}

// Advance moves the clock forward without recording a sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// OnSleep installs a hook called after every Sleep with the new time.
// Tests use it to raise a cancellation signal mid-wait.
func (c *FakeClock) OnSleep(hook func(now time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSleep = hook
}

// Elapsed returns how far the clock moved since creation or the last Reset.
func (c *FakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}

// Sleeps returns a copy of every recorded slice, in order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Reset forgets recorded sleeps and makes the current time the new start.
// The hook is kept.
func (c *FakeClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = c.now
	c.sleeps = nil
}
