// Package clock supplies the current time to the decoders.  An RTCM version
// 2 stream only carries the time within the hour and a GPS ephemeris only
// carries a ten-bit week number, so the decoders resolve both against the
// time given by a Clock.  Production code uses the system clock, tests use
// a stopped or stepping clock so that the results are repeatable.
package clock

import (
	"time"

	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Clock yields the current time.
type Clock interface {
	Now() time.Time
}

// GPSTime returns the GPS week and seconds of week for the clock's current
// time, which is taken to be UTC.  leapSeconds is the GPS-UTC offset.
func GPSTime(c Clock, leapSeconds int) (int, float64) {
	return utils.GPSWeekAndSeconds(c.Now(), leapSeconds)
}
