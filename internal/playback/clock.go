package playback

import (
	"sync"
	"time"
)

// TickSource is the host clock. RequestTick arranges for exactly one future
// call of fn with the current time; Cancel drops a request that has not
// fired yet. The scheduler re-arms from inside each tick, so at most one
// request is outstanding at any time.
type TickSource interface {
	RequestTick(fn func(now time.Time))
	Cancel()
}

// ManualClock is a TickSource driven by hand, for tests and simulations.
// Nothing fires until Step or Run is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	pending func(time.Time)
}

// NewManualClock returns a clock whose current time is start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// RequestTick implements TickSource.
func (c *ManualClock) RequestTick(fn func(time.Time)) {
	c.mu.Lock()
	c.pending = fn
	c.mu.Unlock()
}

// Cancel implements TickSource.
func (c *ManualClock) Cancel() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// Now is the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Armed reports whether a tick has been requested and not yet delivered.
func (c *ManualClock) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Step moves time forward by d and delivers the pending tick, if any. It
// reports whether a tick was delivered.
func (c *ManualClock) Step(d time.Duration) bool {
	c.mu.Lock()
	c.now = c.now.Add(d)
	fn, now := c.pending, c.now
	c.pending = nil
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(now)
	return true
}

// Run steps by frame until no tick is pending or limit steps have been
// taken. It returns the number of ticks delivered.
func (c *ManualClock) Run(frame time.Duration, limit int) int {
	n := 0
	for n < limit && c.Step(frame) {
		n++
	}
	return n
}

// FrameClock is a TickSource backed by a timer firing every Interval, the
// stand-in for a display's per-frame callback.
type FrameClock struct {
	Interval time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewFrameClock returns a clock that delivers ticks interval apart.
func NewFrameClock(interval time.Duration) *FrameClock {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &FrameClock{Interval: interval}
}

// RequestTick implements TickSource.
func (c *FrameClock) RequestTick(fn func(time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.Interval, func() {
		c.mu.Lock()
		live := gen == c.gen
		if live {
			c.timer = nil
		}
		c.mu.Unlock()
		if live {
			fn(time.Now())
		}
	})
}

// Cancel implements TickSource.
func (c *FrameClock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
