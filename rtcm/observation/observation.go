// Package observation holds the normalised records produced by both the
// RTCM version 2 and version 3 decoders: satellite observations and base
// station antenna records.
package observation

import (
	"fmt"
	"log/slog"
)

// ZeroValue stands in for a measurement whose true value is zero, since a
// zero field means that the measurement is not available.
const ZeroValue = 1e-100

// Observation holds the measurements made by a reference station of one
// satellite at one epoch.  Ranges are in metres, phases in cycles, Dopplers
// in Hz and signal strengths in dBHz.  A zero value means not available.
type Observation struct {
	// System is the constellation letter, 'G' for GPS, 'R' for GLONASS.
	System byte `json:"system"`
	// SatNum is the satellite number within the constellation.
	SatNum int `json:"satellite"`
	// GlonassChannel is the GLONASS frequency channel number (-7 to +6).
	GlonassChannel int `json:"glonass_channel,omitempty"`

	GPSWeek    int     `json:"gps_week"`
	GPSSeconds float64 `json:"gps_seconds"`

	C1 float64 `json:"c1"`
	P1 float64 `json:"p1"`
	C2 float64 `json:"c2"`
	P2 float64 `json:"p2"`
	L1 float64 `json:"l1"`
	L2 float64 `json:"l2"`
	D1 float64 `json:"d1"`
	D2 float64 `json:"d2"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`

	// SlipCountL1 and SlipCountL2 are cumulative loss-of-lock counters.  A
	// change between epochs means a cycle slip.
	SlipCountL1 int `json:"slip_l1"`
	SlipCountL2 int `json:"slip_l2"`

	// SlipL1 and SlipL2 are set when the decoder has seen a slip on this
	// epoch.
	SlipL1 bool `json:"slip_flag_l1"`
	SlipL2 bool `json:"slip_flag_l2"`

	LogLevel slog.Level `json:"-"`
}

// SatelliteName returns the satellite identifier in RINEX style, for
// example "G05".
func (o *Observation) SatelliteName() string {
	return fmt.Sprintf("%c%02d", o.System, o.SatNum)
}

// String returns a readable version of the observation.
func (o *Observation) String() string {
	result := fmt.Sprintf("%s week %d tow %.3f\n", o.SatelliteName(), o.GPSWeek, o.GPSSeconds)
	result += fmt.Sprintf("C1 %.3f P1 %.3f L1 %.3f S1 %.2f slip %d\n",
		o.C1, o.P1, o.L1, o.S1, o.SlipCountL1)
	result += fmt.Sprintf("C2 %.3f P2 %.3f L2 %.3f S2 %.2f slip %d\n",
		o.C2, o.P2, o.L2, o.S2, o.SlipCountL2)
	if o.LogLevel == slog.LevelDebug {
		result += fmt.Sprintf("D1 %.3f D2 %.3f channel %d slip flags %v %v\n",
			o.D1, o.D2, o.GlonassChannel, o.SlipL1, o.SlipL2)
	}
	return result
}

// Epoch groups the observations of every satellite taken at the same time.
type Epoch struct {
	GPSWeek      int           `json:"gps_week"`
	GPSSeconds   float64       `json:"gps_seconds"`
	Observations []Observation `json:"observations"`
}
