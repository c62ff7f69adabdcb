package ledger

import "sync/atomic"

// Clock is a monotonic logical clock. Each confirmed record is stamped with
// a strictly increasing value, so confirmation order is explicit and
// replayable without relying on wall time.
type Clock struct {
	tick atomic.Uint64
}

// Next advances the clock and returns the new value. The first call returns 1.
func (c *Clock) Next() uint64 {
	return c.tick.Add(1)
}

// Current returns the last value handed out, or 0 if none.
func (c *Clock) Current() uint64 {
	return c.tick.Load()
}
