// Package ephemeris models broadcast ephemerides, computes satellite
// positions and clock offsets from them and keeps a per-satellite cache of
// the most recent versions, keyed by Issue Of Data.
package ephemeris

import (
	"fmt"
	"math"

	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Ephemeris is implemented by the GPS and GLONASS broadcast ephemeris types.
type Ephemeris interface {
	// Satellite returns the RINEX-style satellite name, for example "G05".
	Satellite() string
	// IOD returns the issue of data used to match corrections to this
	// ephemeris.
	IOD() int
	// Position computes the satellite position and clock at the given GPS
	// time.
	Position(week int, seconds float64) (Position, error)
	// IsNewerThan returns true if this ephemeris has a later reference time
	// than the other.
	IsNewerThan(other Ephemeris) bool
	// ReferenceTime returns the GPS week and seconds of the ephemeris
	// reference epoch.
	ReferenceTime() (int, float64)
}

// Position is an ECEF satellite position and velocity in metres and metres
// per second, with the satellite clock offset in seconds.
type Position struct {
	X, Y, Z    float64
	VX, VY, VZ float64
	Clock      float64
}

// String returns a readable version of the position.
func (p Position) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f) clock %.12f", p.X, p.Y, p.Z, p.Clock)
}

// timeDiff returns the difference in seconds between two GPS times.
func timeDiff(week1 int, sec1 float64, week2 int, sec2 float64) float64 {
	return float64(week1-week2)*utils.SecondsInWeek + sec1 - sec2
}

// Range holds the result of CmpRho.
type Range struct {
	// Rho is the geometric range in metres, corrected for the signal travel
	// time and the rotation of the Earth during that time.
	Rho float64
	// EmissionWeek and EmissionSeconds give the time the signal left the
	// satellite.
	EmissionWeek    int
	EmissionSeconds float64
	// Sat is the satellite position at emission time, rotated into the
	// Earth-fixed frame at reception time.  Its Clock is in metres.
	Sat Position
}

const omegaEarth = 7292115.1467e-11

// CmpRho computes the range between a station and a satellite for a signal
// received at the given GPS time.  It iterates on the light time until the
// range changes by less than 0.1 mm.
func CmpRho(eph Ephemeris, staX, staY, staZ float64, week int, seconds float64) (Range, error) {
	var result Range

	sat, err := eph.Position(week, seconds)
	if err != nil {
		return result, err
	}

	rho := 0.0
	for i := 0; i < 10; i++ {
		rhoLast := rho
		rho = math.Sqrt(sq(sat.X-staX) + sq(sat.Y-staY) + sq(sat.Z-staZ))

		emissionWeek := week
		emissionSeconds := seconds - rho/utils.SpeedOfLightMS
		for emissionSeconds < 0 {
			emissionSeconds += utils.SecondsInWeek
			emissionWeek--
		}

		sat, err = eph.Position(emissionWeek, emissionSeconds)
		if err != nil {
			return result, err
		}

		phi := omegaEarth * rho / utils.SpeedOfLightMS
		x := sat.X*math.Cos(phi) + sat.Y*math.Sin(phi)
		y := sat.Y*math.Cos(phi) - sat.X*math.Sin(phi)
		sat.X, sat.Y = x, y

		rho = math.Sqrt(sq(sat.X-staX) + sq(sat.Y-staY) + sq(sat.Z-staZ))
		result.EmissionWeek = emissionWeek
		result.EmissionSeconds = emissionSeconds

		if math.Abs(rho-rhoLast) <= 1e-4 {
			break
		}
	}

	sat.Clock *= utils.SpeedOfLightMS
	result.Rho = rho
	result.Sat = sat
	return result, nil
}

func sq(x float64) float64 { return x * x }
