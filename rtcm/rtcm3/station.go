package rtcm3

import (
	"fmt"
	"log/slog"

	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Lengths of the fields in message types 1005 and 1006.
const (
	lenMessageType         = 12
	lenStationID           = 12
	lenITRFRealisationYear = 6
	lenAntennaRef          = 38
	lenAntennaHeight       = 16
)

// The antenna reference coordinates and height are in units of 1/10,000 of
// a metre.
const stationScaleFactor = 0.0001

// StationMessage is a message of type 1005 (base position) or 1006 (base
// position and height).
type StationMessage struct {
	MessageType int `json:"message_type"`

	// StationID - uint12.
	StationID uint `json:"station_id"`

	// ITRFRealisationYear - uint6, reserved.
	ITRFRealisationYear uint `json:"itrf_realisation_year"`

	// The constellation indicators say which systems the station observes.
	GPSIndicator              bool `json:"gps_indicator"`
	GlonassIndicator          bool `json:"glonass_indicator"`
	GalileoIndicator          bool `json:"galileo_indicator"`
	ReferenceStationIndicator bool `json:"reference_station_indicator"`

	// AntennaRefX, Y and Z are the antenna reference point in ECEF - int38,
	// scaled integers in 0.0001 m units.
	AntennaRefX int64 `json:"antenna_ref_x"`
	AntennaRefY int64 `json:"antenna_ref_y"`
	AntennaRefZ int64 `json:"antenna_ref_z"`

	SingleReceiverOscillator bool `json:"single_receiver_oscillator"`
	QuarterCycleIndicator    uint `json:"quarter_cycle_indicator"`

	// AntennaHeight - uint16, 0.0001 m units.  Only in message type 1006.
	AntennaHeight uint `json:"antenna_height"`

	logLevel slog.Level
}

// getStationMessage parses the embedded message of a type 1005 or 1006.
func getStationMessage(payload []byte, logLevel slog.Level) (*StationMessage, error) {
	b := newBitReader(payload)
	m := StationMessage{logLevel: logLevel}

	m.MessageType = int(b.uint(lenMessageType))
	b.messageType = m.MessageType
	if m.MessageType != utils.MessageType1005 && m.MessageType != utils.MessageType1006 {
		return nil, rtcmerr.New(rtcmerr.Unknown, "expected message type 1005 or 1006 got %d", m.MessageType)
	}

	m.StationID = uint(b.uint(lenStationID))
	m.ITRFRealisationYear = uint(b.uint(lenITRFRealisationYear))
	m.GPSIndicator = b.flag()
	m.GlonassIndicator = b.flag()
	m.GalileoIndicator = b.flag()
	m.ReferenceStationIndicator = b.flag()
	m.AntennaRefX = b.int(lenAntennaRef)
	m.SingleReceiverOscillator = b.flag()
	b.skip(1)
	m.AntennaRefY = b.int(lenAntennaRef)
	m.QuarterCycleIndicator = uint(b.uint(2))
	m.AntennaRefZ = b.int(lenAntennaRef)
	if m.MessageType == utils.MessageType1006 {
		m.AntennaHeight = uint(b.uint(lenAntennaHeight))
	}

	if err := b.err(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Position returns the antenna reference point as a normalised record.
func (m *StationMessage) Position() observation.AntennaPosition {
	return observation.AntennaPosition{
		StationID: m.StationID,
		Type:      observation.ARP,
		X:         float64(m.AntennaRefX) * stationScaleFactor,
		Y:         float64(m.AntennaRefY) * stationScaleFactor,
		Z:         float64(m.AntennaRefZ) * stationScaleFactor,
		Height:    float64(m.AntennaHeight) * stationScaleFactor,
		HeightSet: m.MessageType == utils.MessageType1006,
		LogLevel:  m.logLevel,
	}
}

// String returns a text version of the message.
func (m *StationMessage) String() string {
	display := fmt.Sprintf("stationID %d, ITRF realisation year %d,", m.StationID, m.ITRFRealisationYear)

	if m.logLevel == slog.LevelDebug {
		display += fmt.Sprintf(" GPS %v, GLONASS %v, Galileo %v, reference station %v,\n",
			m.GPSIndicator, m.GlonassIndicator, m.GalileoIndicator, m.ReferenceStationIndicator)
		display += fmt.Sprintf("x %d, y %d, z %d, single oscillator %v, quarter cycle %d,\n",
			m.AntennaRefX, m.AntennaRefY, m.AntennaRefZ,
			m.SingleReceiverOscillator, m.QuarterCycleIndicator)
	} else {
		display += "\n"
	}

	p := m.Position()
	display += fmt.Sprintf("ECEF coords in metres (%.4f, %.4f, %.4f)\n", p.X, p.Y, p.Z)
	if p.HeightSet {
		display += fmt.Sprintf("antenna height %.4f\n", p.Height)
	}
	return display
}
