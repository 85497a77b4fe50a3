// Package testutil holds deterministic test doubles shared across packages.
package testutil

import (
	"sync"
	"time"
)

// Clock provides a thread-safe deterministic wall clock for tests.
//
// Time only moves when a test advances it, so timestamps recorded through an
// injected Clock are stable across runs and safe to compare against golden
// snapshots.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current clock time without advancing it.
//
// Method value (clock.Now) satisfies the `func() time.Time` injection point
// used throughout the pipeline.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps the clock to t.
//
// Used for test reuse; Advance is preferred inside a single scenario so
// time never runs backwards.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
