package clock

import (
	"time"
)

// SystemClock yields the system time.
type SystemClock struct{}

var _ Clock = SystemClock{}

// NewSystemClock creates a SystemClock.
func NewSystemClock() Clock {
	return SystemClock{}
}

// Now returns the system time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
