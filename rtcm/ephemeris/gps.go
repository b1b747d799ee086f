package ephemeris

import (
	"fmt"
	"math"

	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
)

// GPS is a GPS broadcast ephemeris.  Angles are in radians, times in seconds
// of the GPS week.
type GPS struct {
	SatNum int `json:"satellite"`
	Week   int `json:"week"`
	IODE   int `json:"iode"`
	IODC   int `json:"iodc"`

	URAIndex int `json:"ura_index"`
	Health   int `json:"health"`
	L2Code   int `json:"l2_code"`
	L2PData  int `json:"l2p_data"`

	TOC float64 `json:"toc"`
	TOE float64 `json:"toe"`

	ClockBias      float64 `json:"af0"`
	ClockDrift     float64 `json:"af1"`
	ClockDriftRate float64 `json:"af2"`

	Crs      float64 `json:"crs"`
	DeltaN   float64 `json:"delta_n"`
	M0       float64 `json:"m0"`
	Cuc      float64 `json:"cuc"`
	E        float64 `json:"e"`
	Cus      float64 `json:"cus"`
	SqrtA    float64 `json:"sqrt_a"`
	Cic      float64 `json:"cic"`
	Omega0   float64 `json:"omega0"`
	Cis      float64 `json:"cis"`
	I0       float64 `json:"i0"`
	Crc      float64 `json:"crc"`
	Omega    float64 `json:"omega"`
	OmegaDot float64 `json:"omega_dot"`
	IDOT     float64 `json:"idot"`
	TGD      float64 `json:"tgd"`
}

const gmGPS = 398.6005e12

// Satellite returns the satellite name, for example "G05".
func (e *GPS) Satellite() string {
	return fmt.Sprintf("G%02d", e.SatNum)
}

// IOD returns the IODE, which is what RTCM corrections refer to.
func (e *GPS) IOD() int {
	return e.IODE
}

// ReferenceTime returns the time of ephemeris.
func (e *GPS) ReferenceTime() (int, float64) {
	return e.Week, e.TOE
}

// IsNewerThan compares week then time of ephemeris.
func (e *GPS) IsNewerThan(other Ephemeris) bool {
	w, s := other.ReferenceTime()
	return timeDiff(e.Week, e.TOE, w, s) > 0
}

// Position computes the satellite position, velocity and clock using the
// ICD-GPS-200 broadcast orbit model.  The clock includes the relativistic
// correction.
func (e *GPS) Position(week int, seconds float64) (Position, error) {
	var p Position

	a0 := e.SqrtA * e.SqrtA
	if a0 == 0 {
		return p, rtcmerr.New(rtcmerr.Range, "%s: ephemeris has zero semi-major axis", e.Satellite())
	}

	n0 := math.Sqrt(gmGPS / (a0 * a0 * a0))
	tk := timeDiff(week, seconds, e.Week, e.TOE)
	n := n0 + e.DeltaN
	m := e.M0 + n*tk

	// Kepler's equation.
	ecc := m
	for i := 0; i < 30; i++ {
		last := ecc
		ecc = m + e.E*math.Sin(ecc)
		if math.Abs(ecc-last)*a0 <= 0.001 {
			break
		}
	}

	v := 2.0 * math.Atan(math.Sqrt((1.0+e.E)/(1.0-e.E))*math.Tan(ecc/2))
	u0 := v + e.Omega
	sin2u0 := math.Sin(2 * u0)
	cos2u0 := math.Cos(2 * u0)
	r := a0*(1-e.E*math.Cos(ecc)) + e.Crc*cos2u0 + e.Crs*sin2u0
	inc := e.I0 + e.IDOT*tk + e.Cic*cos2u0 + e.Cis*sin2u0
	u := u0 + e.Cuc*cos2u0 + e.Cus*sin2u0
	xp := r * math.Cos(u)
	yp := r * math.Sin(u)
	om := e.Omega0 + (e.OmegaDot-omegaEarth)*tk - omegaEarth*e.TOE

	sinom, cosom := math.Sin(om), math.Cos(om)
	sini, cosi := math.Sin(inc), math.Cos(inc)
	p.X = xp*cosom - yp*cosi*sinom
	p.Y = xp*sinom + yp*cosi*cosom
	p.Z = yp * sini

	tc := timeDiff(week, seconds, e.Week, e.TOC)
	p.Clock = e.ClockBias + e.ClockDrift*tc + e.ClockDriftRate*tc*tc -
		4.442807633e-10*e.E*math.Sqrt(a0)*math.Sin(ecc)

	tanv2 := math.Tan(v / 2)
	dEdM := 1 / (1 - e.E*math.Cos(ecc))
	dotv := math.Sqrt((1.0+e.E)/(1.0-e.E)) / math.Cos(ecc/2) / math.Cos(ecc/2) /
		(1 + tanv2*tanv2) * dEdM * n
	dotu := dotv + (-e.Cuc*sin2u0+e.Cus*cos2u0)*2*dotv
	dotom := e.OmegaDot - omegaEarth
	doti := e.IDOT + (-e.Cic*sin2u0+e.Cis*cos2u0)*2*dotv
	dotr := a0*e.E*math.Sin(ecc)*dEdM*n + (-e.Crc*sin2u0+e.Crs*cos2u0)*2*dotv
	dotx := dotr*math.Cos(u) - r*math.Sin(u)*dotu
	doty := dotr*math.Sin(u) + r*math.Cos(u)*dotu

	p.VX = cosom*dotx - cosi*sinom*doty -
		xp*sinom*dotom - yp*cosi*cosom*dotom +
		yp*sini*sinom*doti
	p.VY = sinom*dotx + cosi*cosom*doty +
		xp*cosom*dotom - yp*cosi*sinom*dotom -
		yp*sini*cosom*doti
	p.VZ = sini*doty + yp*cosi*doti

	return p, nil
}

// String returns a readable summary.
func (e *GPS) String() string {
	return fmt.Sprintf("%s week %d toe %.0f toc %.0f iode %d iodc %d health %d\n",
		e.Satellite(), e.Week, e.TOE, e.TOC, e.IODE, e.IODC, e.Health)
}
