package clock

import (
	"sync"
	"time"
)

// StoppedClock always yields the same time until it's told otherwise.
type StoppedClock struct {
	mutex sync.Mutex
	time  time.Time
}

var _ Clock = (*StoppedClock)(nil)

// NewStoppedClock creates a StoppedClock showing the given time.
func NewStoppedClock(t time.Time) *StoppedClock {
	return &StoppedClock{time: t}
}

// SetTime changes the time shown.
func (c *StoppedClock) SetTime(t time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.time = t
}

// Now returns the time set.
func (c *StoppedClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.time
}
