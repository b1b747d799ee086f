package clock

import (
	"sync"
	"time"
)

// SteppingClock yields a given series of times, one per call of Now.  Once
// the series is exhausted it keeps yielding the last one.  With an empty
// series it yields the GPS epoch.
type SteppingClock struct {
	mutex sync.Mutex
	next  int
	times []time.Time
}

var _ Clock = (*SteppingClock)(nil)

// NewSteppingClock creates a SteppingClock.
func NewSteppingClock(times ...time.Time) *SteppingClock {
	return &SteppingClock{times: times}
}

// Now returns the next time in the series.
func (c *SteppingClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.times) == 0 {
		return time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)
	}
	if c.next >= len(c.times) {
		return c.times[len(c.times)-1]
	}
	t := c.times[c.next]
	c.next++
	return t
}
