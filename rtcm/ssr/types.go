// Package ssr encodes and decodes State Space Representation corrections:
// orbit, clock, user range accuracy, high rate clock and code bias messages
// for GPS and GLONASS.
//
// A ClockOrbit or Bias holds GPS satellites in slots 0 to 31 and GLONASS
// satellites from slot 32 on.
package ssr

import (
	"fmt"
	"log/slog"

	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

const (
	// NumGPS is the number of GPS slots.
	NumGPS = 32
	// NumGlonass is the number of GLONASS slots.
	NumGlonass = 24
	// NumBias is the maximum number of code biases per satellite.
	NumBias = 10
	// GlonassOffset is the slot of the first GLONASS satellite.
	GlonassOffset = NumGPS

	// maxCombinedSats is the number of satellites that fit in one combined
	// orbit and clock message.
	maxCombinedSats = 28
)

// Type selects the messages that MakeClockOrbit and MakeBias produce.
// Auto produces every message that the data supports.
type Type int

const (
	Auto Type = 0

	GPSOrbit        Type = utils.MessageTypeSSRGPSOrbit
	GPSClock        Type = utils.MessageTypeSSRGPSClock
	GPSBias         Type = utils.MessageTypeSSRGPSBias
	GPSCombined     Type = utils.MessageTypeSSRGPSCombined
	GPSURA          Type = utils.MessageTypeSSRGPSURA
	GPSHR           Type = utils.MessageTypeSSRGPSHR
	GlonassOrbit    Type = utils.MessageTypeSSRGlonassOrbit
	GlonassClock    Type = utils.MessageTypeSSRGlonassClock
	GlonassBias     Type = utils.MessageTypeSSRGlonassBias
	GlonassCombined Type = utils.MessageTypeSSRGlonassCombined
	GlonassURA      Type = utils.MessageTypeSSRGlonassURA
	GlonassHR       Type = utils.MessageTypeSSRGlonassHR
)

// legacyTypes maps the message numbers used before the SSR messages were
// standardised onto the current ones.
var legacyTypes = map[int]Type{
	utils.MessageTypeSSRLegacyGPSOrbit:        GPSOrbit,
	utils.MessageTypeSSRLegacyGPSClock:        GPSClock,
	utils.MessageTypeSSRLegacyGPSBias:         GPSBias,
	utils.MessageTypeSSRLegacyGPSCombined:     GPSCombined,
	utils.MessageTypeSSRLegacyGlonassOrbit:    GlonassOrbit,
	utils.MessageTypeSSRLegacyGlonassClock:    GlonassClock,
	utils.MessageTypeSSRLegacyGlonassBias:     GlonassBias,
	utils.MessageTypeSSRLegacyGlonassCombined: GlonassCombined,
}

// IsSSR returns true if the message type is an SSR message, including the
// legacy numbers.
func IsSSR(messageType int) bool {
	if _, ok := legacyTypes[messageType]; ok {
		return true
	}
	return messageType >= int(GPSOrbit) && messageType <= int(GlonassHR)
}

// canonicalType returns the current message number for a legacy one.
func canonicalType(messageType int) Type {
	if t, ok := legacyTypes[messageType]; ok {
		return t
	}
	return Type(messageType)
}

// ReferencePoint says whether the orbit corrections refer to the
// ionosphere-free phase centre or the centre of mass.
type ReferencePoint int

const (
	PointIonoFree ReferencePoint = 0
	PointCenter   ReferencePoint = 1
)

// ReferenceDatum is the datum of the orbit corrections.
type ReferenceDatum int

const (
	DatumITRF  ReferenceDatum = 0
	DatumLocal ReferenceDatum = 1
)

// Bits of the Supplied fields.
const (
	SuppliedGPS     = 1
	SuppliedGlonass = 2
)

// Orbit holds the radial, along track and cross track corrections in
// metres with their rates and accelerations.
type Orbit struct {
	DeltaRadial           float64 `json:"delta_radial"`
	DeltaAlongTrack       float64 `json:"delta_along_track"`
	DeltaCrossTrack       float64 `json:"delta_cross_track"`
	DotDeltaRadial        float64 `json:"dot_delta_radial"`
	DotDeltaAlongTrack    float64 `json:"dot_delta_along_track"`
	DotDeltaCrossTrack    float64 `json:"dot_delta_cross_track"`
	DotDotDeltaRadial     float64 `json:"dot_dot_delta_radial"`
	DotDotDeltaAlongTrack float64 `json:"dot_dot_delta_along_track"`
	DotDotDeltaCrossTrack float64 `json:"dot_dot_delta_cross_track"`
}

// Clock holds the clock correction polynomial in metres, m/s and m/s².
type Clock struct {
	DeltaA0 float64 `json:"delta_a0"`
	DeltaA1 float64 `json:"delta_a1"`
	DeltaA2 float64 `json:"delta_a2"`
}

// SatData is the correction for one satellite.
type SatData struct {
	ID      int     `json:"id"`
	IOD     int     `json:"iod"`
	URA     int     `json:"ura"`
	HRClock float64 `json:"hr_clock"`
	Orbit   Orbit   `json:"orbit"`
	Clock   Clock   `json:"clock"`
}

// ClockOrbit holds the orbit and clock corrections for one epoch.
type ClockOrbit struct {
	// MessageType is the type of the last message decoded into the record.
	MessageType int `json:"message_type"`
	// GPSEpochTime is in seconds of the GPS week.
	GPSEpochTime int `json:"gps_epoch_time"`
	// GlonassEpochTime is in seconds of the GLONASS day.
	GlonassEpochTime   int `json:"glonass_epoch_time"`
	NumberOfGPSSat     int `json:"number_of_gps_sat"`
	NumberOfGlonassSat int `json:"number_of_glonass_sat"`

	// The Supplied fields are made up of SuppliedGPS and SuppliedGlonass.
	ClockDataSupplied int `json:"clock_data_supplied"`
	HRDataSupplied    int `json:"hr_data_supplied"`
	OrbitDataSupplied int `json:"orbit_data_supplied"`
	URADataSupplied   int `json:"ura_data_supplied"`

	UpdateInterval int            `json:"update_interval"`
	SatRefPoint    ReferencePoint `json:"sat_ref_point"`
	SatRefDatum    ReferenceDatum `json:"sat_ref_datum"`

	Sat [NumGPS + NumGlonass]SatData `json:"sat"`

	LogLevel slog.Level `json:"-"`
}

// GPSSatellites returns the GPS slots in use.
func (co *ClockOrbit) GPSSatellites() []SatData {
	return co.Sat[:co.NumberOfGPSSat]
}

// GlonassSatellites returns the GLONASS slots in use.
func (co *ClockOrbit) GlonassSatellites() []SatData {
	return co.Sat[GlonassOffset : GlonassOffset+co.NumberOfGlonassSat]
}

// Empty returns true if the record holds no satellites.
func (co *ClockOrbit) Empty() bool {
	return co.NumberOfGPSSat == 0 && co.NumberOfGlonassSat == 0
}

// String returns a readable version of the record.
func (co *ClockOrbit) String() string {
	result := fmt.Sprintf("clock and orbit corrections, GPS epoch %d, GLONASS epoch %d, update interval %d\n",
		co.GPSEpochTime, co.GlonassEpochTime, co.UpdateInterval)
	for _, sat := range co.GPSSatellites() {
		result += co.satString('G', &sat)
	}
	for _, sat := range co.GlonassSatellites() {
		result += co.satString('R', &sat)
	}
	return result
}

func (co *ClockOrbit) satString(system byte, sat *SatData) string {
	result := fmt.Sprintf("%c%02d iod %3d radial %8.4f along %8.4f cross %8.4f clock %8.4f\n",
		system, sat.ID, sat.IOD,
		sat.Orbit.DeltaRadial, sat.Orbit.DeltaAlongTrack, sat.Orbit.DeltaCrossTrack,
		sat.Clock.DeltaA0)
	if co.LogLevel == slog.LevelDebug {
		result += fmt.Sprintf("    rates %.6f %.6f %.6f, clock rates %.6f %.8f, ura %d, hr clock %.4f\n",
			sat.Orbit.DotDeltaRadial, sat.Orbit.DotDeltaAlongTrack, sat.Orbit.DotDeltaCrossTrack,
			sat.Clock.DeltaA1, sat.Clock.DeltaA2, sat.URA, sat.HRClock)
	}
	return result
}

// CodeBias is one signal's code bias in metres.
type CodeBias struct {
	Type int     `json:"type"`
	Bias float64 `json:"bias"`
}

// BiasSat holds the code biases of one satellite.
type BiasSat struct {
	ID                 int                `json:"id"`
	NumberOfCodeBiases int                `json:"number_of_code_biases"`
	Biases             [NumBias]CodeBias `json:"biases"`
}

// Bias holds the code biases for one epoch.
type Bias struct {
	MessageType        int `json:"message_type"`
	GPSEpochTime       int `json:"gps_epoch_time"`
	GlonassEpochTime   int `json:"glonass_epoch_time"`
	NumberOfGPSSat     int `json:"number_of_gps_sat"`
	NumberOfGlonassSat int `json:"number_of_glonass_sat"`
	UpdateInterval     int `json:"update_interval"`

	Sat [NumGPS + NumGlonass]BiasSat `json:"sat"`

	LogLevel slog.Level `json:"-"`
}

// GPSSatellites returns the GPS slots in use.
func (b *Bias) GPSSatellites() []BiasSat {
	return b.Sat[:b.NumberOfGPSSat]
}

// GlonassSatellites returns the GLONASS slots in use.
func (b *Bias) GlonassSatellites() []BiasSat {
	return b.Sat[GlonassOffset : GlonassOffset+b.NumberOfGlonassSat]
}

// Empty returns true if the record holds no satellites.
func (b *Bias) Empty() bool {
	return b.NumberOfGPSSat == 0 && b.NumberOfGlonassSat == 0
}

// String returns a readable version of the record.
func (b *Bias) String() string {
	result := fmt.Sprintf("code biases, GPS epoch %d, GLONASS epoch %d\n",
		b.GPSEpochTime, b.GlonassEpochTime)
	for _, sat := range b.GPSSatellites() {
		result += biasString('G', &sat)
	}
	for _, sat := range b.GlonassSatellites() {
		result += biasString('R', &sat)
	}
	return result
}

func biasString(system byte, sat *BiasSat) string {
	result := fmt.Sprintf("%c%02d", system, sat.ID)
	for _, cb := range sat.Biases[:sat.NumberOfCodeBiases] {
		result += fmt.Sprintf(" type %d %.2f", cb.Type, cb.Bias)
	}
	return result + "\n"
}
