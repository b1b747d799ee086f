package rtcm3

import (
	"fmt"
	"log/slog"

	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

const (
	// invalidPhaseDiff marks a phase range that is not available.
	invalidPhaseDiff = -0x80000
	// invalidRangeDiff marks an L2-L1 pseudorange difference that is not
	// available.
	invalidRangeDiff = -0x2000

	// The pseudorange ambiguity units in metres, one light millisecond for
	// GPS and two for GLONASS.
	gpsAmbiguityMetres     = 299792.458
	glonassAmbiguityMetres = 599584.916

	rangeResolution = 0.02
	phaseResolution = 0.0005
	cnrResolution   = 0.25

	// sbasOffset is added to GPS satellite numbers of 40 and above.
	sbasOffset = 80
	// maxGlonassSlot is the highest GLONASS slot number.
	maxGlonassSlot = 24
)

// ObsHeader is the header of an observation message.
type ObsHeader struct {
	MessageType int  `json:"message_type"`
	StationID   uint `json:"station_id"`
	// Time is the GPS time of week in milliseconds (1001-1004) or the
	// GLONASS time of day in Moscow in milliseconds (1009-1012).
	Time uint `json:"time"`
	// Sync says that more observations for the same epoch follow.
	Sync               bool `json:"sync"`
	NumSignals         int  `json:"num_signals"`
	SmoothingIndicator bool `json:"smoothing_indicator"`
	SmoothingInterval  uint `json:"smoothing_interval"`
}

// SatObs holds the raw fields for one satellite.
type SatObs struct {
	SatID int `json:"sat_id"`
	// Channel is the GLONASS frequency channel number, -7 to +6.
	Channel     int    `json:"channel,omitempty"`
	L1Code      uint   `json:"l1_code"`
	L1Range     uint64 `json:"l1_range"`
	L1PhaseDiff int64  `json:"l1_phase_diff"`
	L1Lock      uint   `json:"l1_lock"`
	Ambiguity   uint   `json:"ambiguity"`
	L1CNR       uint   `json:"l1_cnr"`
	L2Code      uint   `json:"l2_code"`
	L2RangeDiff int64  `json:"l2_range_diff"`
	L2PhaseDiff int64  `json:"l2_phase_diff"`
	L2Lock      uint   `json:"l2_lock"`
	L2CNR       uint   `json:"l2_cnr"`
}

// ObservationMessage is a GPS (1001-1004) or GLONASS (1009-1012)
// observation message.
type ObservationMessage struct {
	Header     ObsHeader `json:"header"`
	Satellites []SatObs  `json:"satellites"`
}

// IsGlonass returns true for the GLONASS message types.
func (m *ObservationMessage) IsGlonass() bool {
	return m.Header.MessageType >= utils.MessageType1009
}

func hasExtendedL1(messageType int) bool {
	switch messageType {
	case utils.MessageType1002, utils.MessageType1004, utils.MessageType1010, utils.MessageType1012:
		return true
	}
	return false
}

func hasL2(messageType int) bool {
	switch messageType {
	case utils.MessageType1003, utils.MessageType1004, utils.MessageType1011, utils.MessageType1012:
		return true
	}
	return false
}

// getObservationMessage parses message types 1001 to 1004 and 1009 to 1012.
// GLONASS satellites with a slot number outside 1 to 24 are dropped.
func getObservationMessage(payload []byte) (*ObservationMessage, error) {
	b := newBitReader(payload)
	var m ObservationMessage
	h := &m.Header

	h.MessageType = int(b.uint(lenMessageType))
	b.messageType = h.MessageType
	glonass := false
	switch {
	case h.MessageType >= utils.MessageType1001 && h.MessageType <= utils.MessageType1004:
	case h.MessageType >= utils.MessageType1009 && h.MessageType <= utils.MessageType1012:
		glonass = true
	default:
		return nil, rtcmerr.New(rtcmerr.Unknown, "expected an observation message got message type %d", h.MessageType)
	}

	h.StationID = uint(b.uint(lenStationID))
	if glonass {
		h.Time = uint(b.uint(27))
	} else {
		h.Time = uint(b.uint(30))
	}
	h.Sync = b.flag()
	h.NumSignals = int(b.uint(5))
	h.SmoothingIndicator = b.flag()
	h.SmoothingInterval = uint(b.uint(3))

	extended := hasExtendedL1(h.MessageType)
	dual := hasL2(h.MessageType)

	for i := 0; i < h.NumSignals; i++ {
		var s SatObs
		s.SatID = int(b.uint(6))
		s.L1Code = uint(b.uint(1))
		if glonass {
			s.Channel = int(b.uint(5)) - 7
			s.L1Range = b.uint(25)
		} else {
			s.L1Range = b.uint(24)
		}
		s.L1PhaseDiff = b.int(20)
		s.L1Lock = uint(b.uint(7))
		if extended {
			if glonass {
				s.Ambiguity = uint(b.uint(7))
			} else {
				s.Ambiguity = uint(b.uint(8))
			}
			s.L1CNR = uint(b.uint(8))
		}
		if dual {
			s.L2Code = uint(b.uint(2))
			s.L2RangeDiff = b.int(14)
			s.L2PhaseDiff = b.int(20)
			s.L2Lock = uint(b.uint(7))
			if extended {
				s.L2CNR = uint(b.uint(8))
			}
		}

		if glonass && (s.SatID == 0 || s.SatID > maxGlonassSlot) {
			continue
		}
		m.Satellites = append(m.Satellites, s)
	}

	if err := b.err(); err != nil {
		return nil, err
	}
	return &m, nil
}

// system returns the constellation letter and satellite number.
func (m *ObservationMessage) system(s *SatObs) (byte, int) {
	if m.IsGlonass() {
		return 'R', s.SatID
	}
	if s.SatID >= 40 {
		return 'S', s.SatID + sbasOffset
	}
	return 'G', s.SatID
}

// Observations converts the raw fields to normalised observations at the
// given GPS time.  The code and phase ranges are only set if the phase range
// is valid.  Slips are left for the caller to fill in.
func (m *ObservationMessage) Observations(week int, seconds float64, logLevel slog.Level) []observation.Observation {
	ambiguityMetres := gpsAmbiguityMetres
	if m.IsGlonass() {
		ambiguityMetres = glonassAmbiguityMetres
	}
	extended := hasExtendedL1(m.Header.MessageType)
	dual := hasL2(m.Header.MessageType)

	result := make([]observation.Observation, 0, len(m.Satellites))
	for i := range m.Satellites {
		s := &m.Satellites[i]
		system, satNum := m.system(s)
		obs := observation.Observation{
			System: system, SatNum: satNum,
			GPSWeek: week, GPSSeconds: seconds,
			LogLevel: logLevel,
		}

		wavelength1, wavelength2 := utils.WavelengthL1, utils.WavelengthL2
		if m.IsGlonass() {
			obs.GlonassChannel = s.Channel
			wavelength1 = utils.GlonassWavelengthL1(s.Channel)
			wavelength2 = utils.GlonassWavelengthL2(s.Channel)
		}

		pseudorange := float64(s.L1Range)*rangeResolution + float64(s.Ambiguity)*ambiguityMetres
		if s.L1PhaseDiff != invalidPhaseDiff {
			if s.L1Code == 1 {
				obs.P1 = nonZero(pseudorange)
			} else {
				obs.C1 = nonZero(pseudorange)
			}
			obs.L1 = nonZero((pseudorange + float64(s.L1PhaseDiff)*phaseResolution) / wavelength1)
		}
		if extended && s.L1CNR != 0 {
			obs.S1 = float64(s.L1CNR) * cnrResolution
		}

		if dual {
			if s.L2RangeDiff != invalidRangeDiff {
				r := nonZero(pseudorange + float64(s.L2RangeDiff)*rangeResolution)
				if s.L2Code != 0 {
					obs.P2 = r
				} else {
					obs.C2 = r
				}
			}
			if s.L2PhaseDiff != invalidPhaseDiff {
				obs.L2 = nonZero((pseudorange + float64(s.L2PhaseDiff)*phaseResolution) / wavelength2)
			}
			if extended && s.L2CNR != 0 {
				obs.S2 = float64(s.L2CNR) * cnrResolution
			}
		}

		result = append(result, obs)
	}
	return result
}

// nonZero replaces a true zero, which would read as "not available".
func nonZero(v float64) float64 {
	if v == 0 {
		return observation.ZeroValue
	}
	return v
}

// String returns a text version of the message.
func (m *ObservationMessage) String() string {
	h := &m.Header
	display := fmt.Sprintf("type %d stationID %d time %d sync %v satellites %d\n",
		h.MessageType, h.StationID, h.Time, h.Sync, len(m.Satellites))
	for i := range m.Satellites {
		s := &m.Satellites[i]
		system, satNum := m.system(s)
		display += fmt.Sprintf("%c%02d range %d phase diff %d lock %d ambiguity %d cnr %d",
			system, satNum, s.L1Range, s.L1PhaseDiff, s.L1Lock, s.Ambiguity, s.L1CNR)
		if hasL2(h.MessageType) {
			display += fmt.Sprintf(", L2 range diff %d phase diff %d lock %d cnr %d",
				s.L2RangeDiff, s.L2PhaseDiff, s.L2Lock, s.L2CNR)
		}
		display += "\n"
	}
	return display
}

const (
	msInWeek = int64(utils.SecondsInWeek) * 1000
	msInDay  = int64(utils.SecondsInDay) * 1000
)

// resolveGPSTime finds the GPS week for a time of week in milliseconds,
// choosing the week that puts it within half a week of the reference.
func resolveGPSTime(towMs int64, refWeek int, refMs int64) (int, int64) {
	week := refWeek
	switch diff := towMs - refMs; {
	case diff < -msInWeek/2:
		week++
	case diff > msInWeek/2:
		week--
	}
	return week, towMs
}

// resolveGlonassTime converts a GLONASS time of day in Moscow in
// milliseconds to GPS week and milliseconds of week, choosing the day that
// puts it within 12 hours of the reference.
func resolveGlonassTime(todMs int64, leapSeconds int, refWeek int, refMs int64) (int, int64) {
	offset := int64(utils.GlonassTimeOffsetSeconds-leapSeconds) * 1000
	refTod := ((refMs+offset)%msInDay + msInDay) % msInDay

	diff := todMs - refTod
	if diff > msInDay/2 {
		diff -= msInDay
	} else if diff < -msInDay/2 {
		diff += msInDay
	}

	week, ms := refWeek, refMs+diff
	if ms < 0 {
		ms += msInWeek
		week--
	} else if ms >= msInWeek {
		ms -= msInWeek
		week++
	}
	return week, ms
}
