package order

import "sync/atomic"

// Clock issues monotonically increasing order ids.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Orders are created from the application goroutine and from engines
// running inside consumer callbacks, so ids must never repeat.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next id is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next id and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued id without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// IDs is the process-wide order id source.
//
// Every Order created without WithClock draws its id here. It is the only
// package-level mutable state in this package.
var IDs = NewClock()
