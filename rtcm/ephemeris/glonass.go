package ephemeris

import (
	"fmt"
	"math"

	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
)

// Glonass is a GLONASS broadcast ephemeris.  The state vector is in
// kilometres, km/s and km/s² in the PZ-90 frame, as broadcast.
type Glonass struct {
	SatNum          int `json:"satellite"`
	FrequencyNumber int `json:"frequency_number"`

	// Week and TOC give the reference time (tb) converted to GPS time.
	Week int     `json:"week"`
	TOC  float64 `json:"toc"`
	// Tb is the reference time of day in Moscow time, in seconds.
	Tb int `json:"tb"`
	// Tk is the frame start time of day in Moscow time, in seconds.
	Tk int `json:"tk"`

	// Position (km), velocity (km/s) and lunisolar acceleration (km/s²).
	XPos float64 `json:"x"`
	YPos float64 `json:"y"`
	ZPos float64 `json:"z"`
	XVel float64 `json:"vx"`
	YVel float64 `json:"vy"`
	ZVel float64 `json:"vz"`
	XAcc float64 `json:"ax"`
	YAcc float64 `json:"ay"`
	ZAcc float64 `json:"az"`

	Gamma float64 `json:"gamma"`
	Tau   float64 `json:"tau"`
	// E is the age of the data in days.
	E int `json:"age"`

	Unhealthy       bool `json:"unhealthy"`
	AlmanacHealth   bool `json:"almanac_health"`
	AlmanacHealthOK bool `json:"almanac_health_ok"`
	P1              int  `json:"p1"`
	P2              int  `json:"p2"`
	P3              int  `json:"p3"`
}

// Satellite returns the satellite name, for example "R07".
func (e *Glonass) Satellite() string {
	return fmt.Sprintf("R%02d", e.SatNum)
}

// IOD returns the index of the 15 minute interval of tb in the Moscow day.
func (e *Glonass) IOD() int {
	return e.Tb / 900
}

// ReferenceTime returns the reference time in GPS time.
func (e *Glonass) ReferenceTime() (int, float64) {
	return e.Week, e.TOC
}

// IsNewerThan compares the reference times.
func (e *Glonass) IsNewerThan(other Ephemeris) bool {
	w, s := other.ReferenceTime()
	return timeDiff(e.Week, e.TOC, w, s) > 0
}

const (
	gmWGS     = 398.60044e12
	aeGlonass = 6378136.0
	omegaGlo  = 7292115.e-11
	c20       = -1082.6257e-6
	gloStep   = 10.0
)

// Position integrates the broadcast state vector from the reference time
// with a fourth order Runge-Kutta integrator.  Positions more than a day
// from the reference time are refused.
func (e *Glonass) Position(week int, seconds float64) (Position, error) {
	var p Position

	dt := timeDiff(week, seconds, e.Week, e.TOC)
	if math.Abs(dt) > 24*3600.0 {
		return p, rtcmerr.New(rtcmerr.Range, "%s: %.0f seconds from the reference time", e.Satellite(), dt)
	}

	state := [6]float64{
		e.XPos * 1e3, e.YPos * 1e3, e.ZPos * 1e3,
		e.XVel * 1e3, e.YVel * 1e3, e.ZVel * 1e3,
	}
	acc := [3]float64{e.XAcc * 1e3, e.YAcc * 1e3, e.ZAcc * 1e3}

	nSteps := int(math.Abs(dt)/gloStep) + 1
	step := dt / float64(nSteps)
	for i := 0; i < nSteps; i++ {
		state = rungeKutta4(state, step, acc)
	}

	p.X, p.Y, p.Z = state[0], state[1], state[2]
	p.VX, p.VY, p.VZ = state[3], state[4], state[5]
	p.Clock = -e.Tau + e.Gamma*dt
	return p, nil
}

func rungeKutta4(x [6]float64, h float64, acc [3]float64) [6]float64 {
	k1 := gloDeriv(x, acc)
	k2 := gloDeriv(addScaled(x, k1, h/2), acc)
	k3 := gloDeriv(addScaled(x, k2, h/2), acc)
	k4 := gloDeriv(addScaled(x, k3, h), acc)
	var result [6]float64
	for i := range x {
		result[i] = x[i] + h*(k1[i]+2*k2[i]+2*k3[i]+k4[i])/6
	}
	return result
}

func addScaled(x, d [6]float64, h float64) [6]float64 {
	var result [6]float64
	for i := range x {
		result[i] = x[i] + h*d[i]
	}
	return result
}

// gloDeriv is the GLONASS ICD force model: central body, J2 and the
// rotating frame terms plus the broadcast lunisolar acceleration.
func gloDeriv(x [6]float64, acc [3]float64) [6]float64 {
	rho := math.Sqrt(x[0]*x[0] + x[1]*x[1] + x[2]*x[2])
	t1 := -gmWGS / (rho * rho * rho)
	t2 := 3.0 / 2.0 * c20 * (gmWGS * aeGlonass * aeGlonass) / math.Pow(rho, 5)
	t3 := omegaGlo * omegaGlo
	t4 := 2.0 * omegaGlo
	z2 := x[2] * x[2]

	return [6]float64{
		x[3], x[4], x[5],
		(t1+t2*(1.0-5.0*z2/(rho*rho))+t3)*x[0] + t4*x[4] + acc[0],
		(t1+t2*(1.0-5.0*z2/(rho*rho))+t3)*x[1] - t4*x[3] + acc[1],
		(t1+t2*(3.0-5.0*z2/(rho*rho)))*x[2] + acc[2],
	}
}

// String returns a readable summary.
func (e *Glonass) String() string {
	return fmt.Sprintf("%s channel %d week %d toc %.0f tb %d\n",
		e.Satellite(), e.FrequencyNumber, e.Week, e.TOC, e.Tb)
}
