// Package testutil provides shared fixtures for tests: a controllable wall
// clock and small, hand-checked datasets and issues.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the fixed "now" of the shared fixtures.
var Epoch = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

// Clock is a wall clock that only moves when told to. Pass Clock.Now
// wherever a func() time.Time is accepted.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

// NewClock creates a clock reading start.
func NewClock(start time.Time) *Clock {
	return &Clock{start: start, now: start}
}

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
// A negative d is ignored; the clock never runs backwards.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Reset returns the clock to its start reading.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
