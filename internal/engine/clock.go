package engine

import "sync/atomic"

// Clock is the monotonic logical clock behind ticket issuance.
//
// Every ticket is stamped with a strictly increasing value from this clock.
// This ensures:
// - Deterministic ordering (no wall-clock race conditions)
// - Replay sees the recorded order, never a re-derived one
// - Causal relationships are explicit
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The Scheduler still serializes Next and AdvancePast under its own mutex so
// that parent validation and allocation form one critical section.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific value.
// Used on restart to resume past the ledger's highest recorded clock.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next value and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// AdvancePast moves the clock forward so the next value exceeds v.
// It never moves the clock backwards.
func (c *Clock) AdvancePast(v int64) {
	for {
		cur := c.seq.Load()
		if cur >= v || c.seq.CompareAndSwap(cur, v) {
			return
		}
	}
}
