package testutil

import (
	"sync"
	"time"
)

// Epoch is the fixed start time of every FakeClock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a manually driven wall clock for telemetry in tests.
//
// Each Now call advances the clock by Tick, so latencies are non-zero and
// identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tick time.Duration
}

// NewFakeClock creates a clock at Epoch advancing tick per reading.
func NewFakeClock(tick time.Duration) *FakeClock {
	return &FakeClock{now: Epoch, tick: tick}
}

// Now returns the current time, then advances by the tick.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.tick)
	return t
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset returns the clock to Epoch.
func (c *FakeClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
