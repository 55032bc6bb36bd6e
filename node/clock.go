package node

import (
	"math"
	"time"

	"github.com/ruteri/tee-enclave-node/interfaces"
	"go.uber.org/atomic"
)

// HostClock records time as reported by the host through ticks. It never
// reads the local clock. Safe for concurrent use.
type HostClock struct {
	now     atomic.Int64
	known   atomic.Bool
	elapsed atomic.Int64
}

// Advance records a tick. now is stored as reported; elapsed accumulates,
// ignoring negative values and saturating at math.MaxInt64.
func (c *HostClock) Advance(now interfaces.TimePoint, elapsed interfaces.Millis) {
	c.now.Store(now.Ticks())
	c.known.Store(true)

	if elapsed <= 0 {
		return
	}
	for {
		cur := c.elapsed.Load()
		next := cur + elapsed.Milliseconds()
		if next < cur {
			next = math.MaxInt64
		}
		if c.elapsed.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Restore seeds the clock with a host time recovered from sealed state.
// It has no effect once a tick was recorded.
func (c *HostClock) Restore(floor interfaces.TimePoint) {
	if c.known.Load() {
		return
	}
	c.now.Store(floor.Ticks())
	c.known.Store(true)
}

// Now returns the last host time and whether any is known.
func (c *HostClock) Now() (interfaces.TimePoint, bool) {
	if !c.known.Load() {
		return 0, false
	}
	return interfaces.TimePoint(c.now.Load()), true
}

// Elapsed returns the host-reported time accumulated over all ticks.
func (c *HostClock) Elapsed() interfaces.Millis {
	return interfaces.Millis(c.elapsed.Load())
}

// Time is Now as a time.Time, falling back to fallback when nothing is known.
func (c *HostClock) Time(fallback func() time.Time) time.Time {
	if now, ok := c.Now(); ok {
		return now.Time()
	}
	return fallback()
}
