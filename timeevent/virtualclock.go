package timeevent

import (
	"sync"
	"time"
)

// VirtualClock is a Clock whose notion of "now" only moves when Advance is
// called, used by tests for the cache, entry-group, and query-accumulator
// timers so that probe/announce/expiry scenarios (spec §8) run
// deterministically and instantly instead of waiting on real wall-clock
// time.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []vcWaiter
}

type vcWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewVirtualClock returns a VirtualClock starting at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now returns the clock's current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that fires once the virtual clock has advanced by
// at least d from the current time.
func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.now.Add(d)

	if !deadline.After(c.now) {
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, vcWaiter{deadline, ch})
	return ch
}

// Advance moves the virtual clock forward by d, firing any waiters whose
// deadline has been reached, in deadline order.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)

	remaining := c.waiters[:0]
	var due []vcWaiter

	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			due = append(due, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining

	for _, w := range due {
		w.ch <- c.now
	}
}
