package ssr

import (
	"log/slog"

	"github.com/goblimey/go-crc24q/crc24q"

	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Result says whether a decoded message completes a set.
type Result int

const (
	// OK means the message was the last of its set.
	OK Result = iota
	// MessageFollows means more messages of the same epoch are on the way.
	MessageFollows
)

func (r Result) String() string {
	if r == MessageFollows {
		return "message follows"
	}
	return "ok"
}

// Decoder merges SSR messages into a ClockOrbit and a Bias record.  The
// messages of one epoch are merged by satellite so that, for example, an
// orbit message followed by a clock message for the same satellites
// produces one entry per satellite with both parts filled in.
//
// Within an epoch a message either continues the one before it, when that
// had the multiple message indicator set and was of the same type, adding
// satellites not yet seen, or it supplies a kind of data not yet supplied
// for exactly the satellites already collected.  Anything else is a
// DataMismatch.
type Decoder struct {
	co       ClockOrbit
	bias     Bias
	coLast   lastMessage
	biasLast lastMessage
	logLevel slog.Level
}

// lastMessage is the last message merged into a record.
type lastMessage struct {
	t   Type
	mmi int
}

func (m lastMessage) continuedBy(t Type) bool {
	return m.mmi == 1 && m.t == t
}

// NewDecoder creates a Decoder.
func NewDecoder(logLevel slog.Level) *Decoder {
	d := &Decoder{logLevel: logLevel}
	d.Reset()
	return d
}

// Reset clears both records.
func (d *Decoder) Reset() {
	d.co = ClockOrbit{LogLevel: d.logLevel}
	d.bias = Bias{LogLevel: d.logLevel}
	d.coLast = lastMessage{}
	d.biasLast = lastMessage{}
}

// ClockOrbit returns a copy of the orbit and clock record.
func (d *Decoder) ClockOrbit() *ClockOrbit {
	co := d.co
	return &co
}

// Bias returns a copy of the code bias record.
func (d *Decoder) Bias() *Bias {
	b := d.bias
	return &b
}

// GetClockOrbitBias decodes the message frame at the start of buf and
// merges it into the records.  It returns the number of bytes used.
//
// If buf doesn't hold a whole frame the error is an Underrun and nothing is
// used.  If buf doesn't start with a frame, or the CRC check fails, one byte
// is used so that the caller can search for the next frame.  Otherwise the
// whole frame is used.  An error while decoding a frame leaves the records
// as they were.
//
// A message whose epoch differs from the one already being collected is a
// TimeMismatch error.  More satellites than a record can hold is a
// DataMismatch error, as is a message that doesn't fit with the ones
// already merged for its epoch.
func (d *Decoder) GetClockOrbitBias(buf []byte) (Result, int, error) {
	if len(buf) < 7 {
		return OK, 0, rtcmerr.New(rtcmerr.Underrun, "short buffer - %d bytes", len(buf))
	}
	if buf[0] != utils.StartOfMessageFrame || buf[1]&0xfc != 0 {
		return OK, 1, rtcmerr.New(rtcmerr.Unknown, "buffer does not start with a message frame")
	}
	length := int(buf[1]&0x03)<<8 | int(buf[2])
	frameLength := utils.LeaderLengthBytes + length + utils.CRCLengthBytes
	if len(buf) < frameLength {
		return OK, 0, rtcmerr.New(rtcmerr.Underrun,
			"message exceeds buffer - want %d bytes, got %d", frameLength, len(buf))
	}

	crc := crc24q.Hash(buf[:utils.LeaderLengthBytes+length])
	given := buf[utils.LeaderLengthBytes+length:]
	if crc24q.HiByte(crc) != given[0] || crc24q.MiByte(crc) != given[1] || crc24q.LoByte(crc) != given[2] {
		return OK, 1, rtcmerr.New(rtcmerr.CRC, "CRC mismatch in SSR message")
	}

	result, err := d.Decode(buf[utils.LeaderLengthBytes : utils.LeaderLengthBytes+length])
	return result, frameLength, err
}

// Decode decodes an embedded message that has already been taken out of
// its frame and merges it into the records.
func (d *Decoder) Decode(payload []byte) (Result, error) {
	p := newPayloadReader(payload)
	messageType := p.uint(bitsMessageType)
	t := canonicalType(messageType)

	var mmi int
	var err error
	switch t {
	case GPSBias, GlonassBias:
		bias := d.bias
		mmi, err = decodeBias(p, &bias, t, messageType, d.biasLast.continuedBy(t))
		if err == nil {
			d.bias = bias
			d.biasLast = lastMessage{t: t, mmi: mmi}
		}
	case GPSOrbit, GPSClock, GPSCombined, GPSURA, GPSHR,
		GlonassOrbit, GlonassClock, GlonassCombined, GlonassURA, GlonassHR:
		co := d.co
		mmi, err = decodeClockOrbit(p, &co, t, messageType, d.coLast.continuedBy(t))
		if err == nil {
			d.co = co
			d.coLast = lastMessage{t: t, mmi: mmi}
		}
	default:
		return OK, rtcmerr.New(rtcmerr.Unknown, "message type %d is not an SSR message", messageType)
	}

	if err != nil {
		return OK, err
	}
	if mmi == 1 {
		return MessageFollows, nil
	}
	return OK, nil
}

// header reads the fields that precede the satellites.  It checks the epoch
// against the one being collected.
func header(p *payloadReader, glonass, hasInterval bool, gpsEpoch, glonassEpoch *int,
	updateInterval *int, inProgress bool, messageType int) (int, int, error) {

	if glonass {
		epoch := p.uint(bitsGlonassEpoch)
		if inProgress && epoch != *glonassEpoch {
			return 0, 0, rtcmerr.New(rtcmerr.TimeMismatch,
				"message type %d has GLONASS epoch %d, expected %d", messageType, epoch, *glonassEpoch)
		}
		*glonassEpoch = epoch
	} else {
		epoch := p.uint(bitsGPSEpoch)
		if inProgress && epoch != *gpsEpoch {
			return 0, 0, rtcmerr.New(rtcmerr.TimeMismatch,
				"message type %d has GPS epoch %d, expected %d", messageType, epoch, *gpsEpoch)
		}
		*gpsEpoch = epoch
	}
	if hasInterval {
		*updateInterval = p.uint(bitsUpdateInterval)
	}
	mmi := p.uint(1)
	p.skip(5)
	nums := p.uint(bitsNumSats)
	return mmi, nums, nil
}

// slot finds the slot of a satellite, adding it if it's new.  first and
// limit give the range of slots for the constellation and count is the
// number in use.
func slot(ids func(int) int, first, limit int, count *int, id, messageType int) (int, error) {
	pos := first
	for pos < first+*count && ids(pos) != id {
		pos++
	}
	if pos >= first+limit {
		return 0, rtcmerr.New(rtcmerr.DataMismatch,
			"message type %d - no room for satellite %d", messageType, id)
	}
	if pos == first+*count {
		*count++
	}
	return pos, nil
}

// checkSatellite checks one satellite of a message against those already
// collected.  existing says whether the satellite was already there.
func checkSatellite(continued, existing bool, collected, id, messageType int) error {
	switch {
	case continued && existing:
		return rtcmerr.New(rtcmerr.DataMismatch,
			"message type %d - satellite %d was in the last message", messageType, id)
	case !continued && collected > 0 && !existing:
		return rtcmerr.New(rtcmerr.DataMismatch,
			"message type %d - satellite %d is not in the earlier messages", messageType, id)
	}
	return nil
}

// supplies says whether the record already holds the kind of data that a
// message of type t carries for the constellation.
func (co *ClockOrbit) supplies(t Type, supplied int) bool {
	switch t {
	case GPSOrbit, GlonassOrbit:
		return co.OrbitDataSupplied&supplied != 0
	case GPSClock, GlonassClock:
		return co.ClockDataSupplied&supplied != 0
	case GPSCombined, GlonassCombined:
		return (co.OrbitDataSupplied|co.ClockDataSupplied)&supplied != 0
	case GPSURA, GlonassURA:
		return co.URADataSupplied&supplied != 0
	case GPSHR, GlonassHR:
		return co.HRDataSupplied&supplied != 0
	}
	return false
}

func decodeClockOrbit(p *payloadReader, co *ClockOrbit, t Type, messageType int, continued bool) (int, error) {
	glonass := t >= GlonassOrbit
	hasInterval := t != GPSURA && t != GlonassURA

	first, limit, count, supplied := 0, NumGPS, &co.NumberOfGPSSat, SuppliedGPS
	idBits := uint(bitsGPSSatID)
	if glonass {
		first, limit, count, supplied = GlonassOffset, NumGlonass, &co.NumberOfGlonassSat, SuppliedGlonass
		idBits = bitsGlonassSatID
	}

	mmi, nums, err := header(p, glonass, hasInterval, &co.GPSEpochTime, &co.GlonassEpochTime,
		&co.UpdateInterval, *count > 0, messageType)
	if err != nil {
		return 0, err
	}
	co.MessageType = messageType

	collected := *count
	if !continued {
		if co.supplies(t, supplied) {
			return 0, rtcmerr.New(rtcmerr.DataMismatch,
				"message type %d repeats data already supplied for this epoch", messageType)
		}
		if collected > 0 && nums != collected {
			return 0, rtcmerr.New(rtcmerr.DataMismatch,
				"message type %d has %d satellites, expected %d", messageType, nums, collected)
		}
	}

	switch t {
	case GPSOrbit, GlonassOrbit:
		co.OrbitDataSupplied |= supplied
	case GPSClock, GlonassClock:
		co.ClockDataSupplied |= supplied
	case GPSCombined, GlonassCombined:
		co.OrbitDataSupplied |= supplied
		co.ClockDataSupplied |= supplied
	case GPSURA, GlonassURA:
		co.URADataSupplied |= supplied
	case GPSHR, GlonassHR:
		co.HRDataSupplied |= supplied
	}

	ids := func(pos int) int { return co.Sat[pos].ID }
	for i := 0; i < nums; i++ {
		id := p.uint(idBits)
		pos, err := slot(ids, first, limit, count, id, messageType)
		if err != nil {
			return 0, err
		}
		if err := checkSatellite(continued, pos < first+collected, collected, id, messageType); err != nil {
			return 0, err
		}
		sat := &co.Sat[pos]
		sat.ID = id

		switch t {
		case GPSOrbit, GlonassOrbit:
			sat.IOD = p.uint(bitsIOD)
			co.getOrbit(p, sat)
		case GPSClock, GlonassClock:
			getClock(p, sat)
		case GPSCombined, GlonassCombined:
			sat.IOD = p.uint(bitsIOD)
			co.getOrbit(p, sat)
			getClock(p, sat)
		case GPSURA, GlonassURA:
			sat.URA = p.uint(bitsURA)
		case GPSHR, GlonassHR:
			sat.HRClock = p.scaled(22, scaleHRClock)
		}
	}

	if p.short {
		return 0, rtcmerr.New(rtcmerr.Range, "message type %d is too short for %d satellites", messageType, nums)
	}
	return mmi, nil
}

func (co *ClockOrbit) getOrbit(p *payloadReader, sat *SatData) {
	sat.Orbit.DeltaRadial = p.scaled(22, scaleRadial)
	sat.Orbit.DeltaAlongTrack = p.scaled(20, scaleAlong)
	sat.Orbit.DeltaCrossTrack = p.scaled(20, scaleAlong)
	sat.Orbit.DotDeltaRadial = p.scaled(21, scaleDotRadial)
	sat.Orbit.DotDeltaAlongTrack = p.scaled(19, scaleDotAlong)
	sat.Orbit.DotDeltaCrossTrack = p.scaled(19, scaleDotAlong)
	sat.Orbit.DotDotDeltaRadial = p.scaled(27, scaleDotDotRadial)
	sat.Orbit.DotDotDeltaAlongTrack = p.scaled(25, scaleDotDotAlong)
	sat.Orbit.DotDotDeltaCrossTrack = p.scaled(25, scaleDotDotAlong)
	co.SatRefPoint = ReferencePoint(p.uint(1))
	co.SatRefDatum = ReferenceDatum(p.uint(1))
}

func getClock(p *payloadReader, sat *SatData) {
	sat.Clock.DeltaA0 = p.scaled(22, scaleC0)
	sat.Clock.DeltaA1 = p.scaled(21, scaleC1)
	sat.Clock.DeltaA2 = p.scaled(27, scaleC2)
}

func decodeBias(p *payloadReader, b *Bias, t Type, messageType int, continued bool) (int, error) {
	glonass := t == GlonassBias
	first, limit, count := 0, NumGPS, &b.NumberOfGPSSat
	idBits := uint(bitsGPSSatID)
	if glonass {
		first, limit, count = GlonassOffset, NumGlonass, &b.NumberOfGlonassSat
		idBits = bitsGlonassSatID
	}

	mmi, nums, err := header(p, glonass, true, &b.GPSEpochTime, &b.GlonassEpochTime,
		&b.UpdateInterval, *count > 0, messageType)
	if err != nil {
		return 0, err
	}
	b.MessageType = messageType

	collected := *count
	if collected > 0 && !continued {
		return 0, rtcmerr.New(rtcmerr.DataMismatch,
			"message type %d repeats data already supplied for this epoch", messageType)
	}

	ids := func(pos int) int { return b.Sat[pos].ID }
	for i := 0; i < nums; i++ {
		id := p.uint(idBits)
		pos, err := slot(ids, first, limit, count, id, messageType)
		if err != nil {
			return 0, err
		}
		if err := checkSatellite(continued, pos < first+collected, collected, id, messageType); err != nil {
			return 0, err
		}
		sat := &b.Sat[pos]
		sat.ID = id

		n := p.uint(bitsNumBiases)
		if n > NumBias {
			return 0, rtcmerr.New(rtcmerr.DataMismatch,
				"message type %d - satellite %d has %d code biases, maximum %d", messageType, id, n, NumBias)
		}
		sat.NumberOfCodeBiases = n
		for j := 0; j < n; j++ {
			sat.Biases[j].Type = p.uint(bitsSignalID)
			sat.Biases[j].Bias = p.scaled(14, scaleBias)
		}
	}

	if p.short {
		return 0, rtcmerr.New(rtcmerr.Range, "message type %d is too short for %d satellites", messageType, nums)
	}
	return mmi, nil
}
