package rtcm3

import (
	"log/slog"

	"github.com/bsdroid/ntrip-sub004/clock"
	"github.com/bsdroid/ntrip-sub004/rtcm/ephemeris"
	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/ssr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Options controls a Decoder.
type Options struct {
	// LeapSeconds is the GPS-UTC offset, used to read the clock and to turn
	// GLONASS (Moscow) times into GPS times.
	LeapSeconds int
}

// DefaultOptions returns the usual settings.
func DefaultOptions() Options {
	return Options{LeapSeconds: utils.GPSLeapSeconds}
}

type satKey struct {
	system byte
	sat    int
}

// lockState follows the lock time indicators of one satellite.  A lock
// time that goes down means that the receiver lost lock.
type lockState struct {
	l1, l2         uint
	slips1, slips2 int
}

// Decoder decodes an RTCM version 3 stream.  Like the version 2 decoder it
// keeps partial frames, the epoch being assembled and the SSR records
// between calls of Decode, so each stream needs its own.
type Decoder struct {
	options     Options
	clock       clock.Clock
	ephemerides *ephemeris.Store
	logger      *slog.Logger
	logLevel    slog.Level

	framer Framer
	ssr    *ssr.Decoder
	locks  map[satKey]*lockState

	// The observations of the epoch being assembled.
	pending     []observation.Observation
	havePending bool
	pendingWeek int
	pendingMs   int64

	// The time of the last observations, used to resolve the next.
	haveLast bool
	lastWeek int
	lastMs   int64

	typeList     []int
	observations []observation.Observation
	positions    []observation.AntennaPosition
	descriptors  []observation.AntennaDescriptor
	newEphs      []ephemeris.Ephemeris
	clockOrbits  []ssr.ClockOrbit
	biases       []ssr.Bias
}

// New creates a Decoder.  Decoded ephemerides go into the store, which may
// be shared with other decoders.
func New(options Options, c clock.Clock, store *ephemeris.Store, logger *slog.Logger, logLevel slog.Level) *Decoder {
	if store == nil {
		store = ephemeris.NewStore(ephemeris.DefaultDepth)
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := Decoder{
		options:     options,
		clock:       c,
		ephemerides: store,
		logger:      logger,
		logLevel:    logLevel,
		ssr:         ssr.NewDecoder(logLevel),
	}
	d.Reset()
	return &d
}

// Reset discards all the state built up from earlier input.
func (d *Decoder) Reset() {
	d.framer.Reset()
	d.ssr.Reset()
	d.locks = make(map[satKey]*lockState)
	d.pending = nil
	d.havePending = false
	d.haveLast = false
	d.typeList = nil
	d.observations = nil
	d.positions = nil
	d.descriptors = nil
	d.newEphs = nil
	d.clockOrbits = nil
	d.biases = nil
}

// Decode adds buf to the input and decodes every complete frame.  It
// returns true if at least one record was produced, plus a list of
// diagnostics.  Bytes left over from an incomplete frame are kept for the
// next call.
func (d *Decoder) Decode(buf []byte) (bool, []string) {
	var errs []string
	decoded := false
	d.typeList = d.typeList[:0]

	d.framer.Add(buf)
	for {
		frame, err := d.framer.Next()
		if err != nil {
			if rtcmerr.Is(err, rtcmerr.Underrun) {
				break
			}
			d.logger.Debug("rtcm3: discarding frame", "error", err)
			continue
		}

		messageType := MessageType(frame)
		payload := Payload(frame)
		d.typeList = append(d.typeList, messageType)

		ok, err := d.decodeMessage(messageType, payload)
		if err != nil {
			errs = append(errs, err.Error())
		}
		decoded = decoded || ok
	}

	return decoded, errs
}

// decodeMessage dispatches an embedded message by type.  It returns true if
// a record was produced.
func (d *Decoder) decodeMessage(messageType int, payload []byte) (bool, error) {
	switch messageType {
	case utils.MessageType1001, utils.MessageType1002, utils.MessageType1003, utils.MessageType1004,
		utils.MessageType1009, utils.MessageType1010, utils.MessageType1011, utils.MessageType1012:
		return d.decodeObservations(payload)

	case utils.MessageType1005, utils.MessageType1006:
		m, err := getStationMessage(payload, d.logLevel)
		if err != nil {
			return false, err
		}
		if d.logLevel == slog.LevelDebug {
			d.logger.Debug("rtcm3: station", "message", m.String())
		}
		d.positions = append(d.positions, m.Position())
		return true, nil

	case utils.MessageType1007, utils.MessageType1008, utils.MessageType1033:
		a, err := getAntennaDescriptor(payload, d.logLevel)
		if err != nil {
			return false, err
		}
		d.descriptors = append(d.descriptors, *a)
		return true, nil

	case utils.MessageType1019:
		refWeek, _ := d.referenceTime()
		e, err := getGPSEphemeris(payload, refWeek)
		if err != nil {
			return false, err
		}
		d.addEphemeris(e)
		return true, nil

	case utils.MessageType1020:
		refWeek, refMs := d.referenceTime()
		e, err := getGlonassEphemeris(payload, d.options.LeapSeconds, refWeek, refMs)
		if err != nil {
			return false, err
		}
		d.addEphemeris(e)
		return true, nil

	default:
		if ssr.IsSSR(messageType) {
			return d.decodeSSR(payload)
		}
		d.logger.Debug("rtcm3: ignoring message", "type", messageType, "title", utils.GetTitle(messageType))
		return false, nil
	}
}

func (d *Decoder) addEphemeris(e ephemeris.Ephemeris) {
	if d.ephemerides.Put(e) {
		d.logger.Debug("rtcm3: new ephemeris", "satellite", e.Satellite(), "iod", e.IOD())
	}
	d.newEphs = append(d.newEphs, e)
}

// decodeObservations adds the observations in a message to the epoch being
// assembled.  The epoch is complete when a message arrives without the sync
// flag or with a different time.
func (d *Decoder) decodeObservations(payload []byte) (bool, error) {
	m, err := getObservationMessage(payload)
	if err != nil {
		return false, err
	}
	if d.logLevel == slog.LevelDebug {
		d.logger.Debug("rtcm3: observations", "message", m.String())
	}

	refWeek, refMs := d.referenceTime()
	var week int
	var ms int64
	if m.IsGlonass() {
		week, ms = resolveGlonassTime(int64(m.Header.Time), d.options.LeapSeconds, refWeek, refMs)
	} else {
		week, ms = resolveGPSTime(int64(m.Header.Time), refWeek, refMs)
	}

	decoded := false
	if d.havePending && (week != d.pendingWeek || ms != d.pendingMs) {
		decoded = d.flushEpoch()
	}

	obs := m.Observations(week, float64(ms)/1000, d.logLevel)
	d.applyLocks(m, obs)
	for _, o := range obs {
		d.addPending(o)
	}
	d.havePending = true
	d.pendingWeek, d.pendingMs = week, ms
	d.haveLast = true
	d.lastWeek, d.lastMs = week, ms

	if !m.Header.Sync {
		decoded = d.flushEpoch() || decoded
	}
	return decoded, nil
}

// addPending adds an observation to the epoch, replacing an earlier one of
// the same satellite.
func (d *Decoder) addPending(o observation.Observation) {
	for i := range d.pending {
		if d.pending[i].System == o.System && d.pending[i].SatNum == o.SatNum {
			d.pending[i] = o
			return
		}
	}
	d.pending = append(d.pending, o)
}

// applyLocks compares the lock time indicators with the last ones seen for
// each satellite and records any slips.
func (d *Decoder) applyLocks(m *ObservationMessage, obs []observation.Observation) {
	dual := hasL2(m.Header.MessageType)
	for i := range obs {
		s := &m.Satellites[i]
		key := satKey{obs[i].System, obs[i].SatNum}
		st, found := d.locks[key]
		if !found {
			st = &lockState{l1: s.L1Lock, l2: s.L2Lock}
			d.locks[key] = st
		}
		if st.l1 > s.L1Lock {
			st.slips1++
			obs[i].SlipL1 = true
		}
		st.l1 = s.L1Lock
		obs[i].SlipCountL1 = st.slips1

		if dual {
			if st.l2 > s.L2Lock {
				st.slips2++
				obs[i].SlipL2 = true
			}
			st.l2 = s.L2Lock
			obs[i].SlipCountL2 = st.slips2
		}
	}
}

// flushEpoch releases the epoch being assembled.
func (d *Decoder) flushEpoch() bool {
	released := len(d.pending) > 0
	d.observations = append(d.observations, d.pending...)
	d.pending = nil
	d.havePending = false
	return released
}

// Flush releases any observations and SSR records still being assembled,
// for example at the end of the input.
func (d *Decoder) Flush() bool {
	epoch := d.flushEpoch()
	corrections := d.flushSSR()
	return epoch || corrections
}

// decodeSSR passes a message to the SSR decoder.  A message from a new
// epoch while the last set is still incomplete releases the incomplete set
// and starts again.
func (d *Decoder) decodeSSR(payload []byte) (bool, error) {
	decoded := false
	result, err := d.ssr.Decode(payload)
	if rtcmerr.Is(err, rtcmerr.TimeMismatch) {
		d.logger.Debug("rtcm3: incomplete SSR set", "error", err)
		decoded = d.flushSSR()
		result, err = d.ssr.Decode(payload)
	}
	if err != nil {
		return decoded, err
	}
	if result == ssr.OK {
		decoded = d.flushSSR() || decoded
	}
	return decoded, nil
}

func (d *Decoder) flushSSR() bool {
	released := false
	if co := d.ssr.ClockOrbit(); !co.Empty() {
		d.clockOrbits = append(d.clockOrbits, *co)
		released = true
	}
	if b := d.ssr.Bias(); !b.Empty() {
		d.biases = append(d.biases, *b)
		released = true
	}
	d.ssr.Reset()
	return released
}

// referenceTime returns the GPS week and millisecond of week that message
// times are resolved against: the time of the last observations if there
// are any, otherwise the clock.
func (d *Decoder) referenceTime() (int, int64) {
	if d.haveLast {
		return d.lastWeek, d.lastMs
	}
	c := d.clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	week, seconds := clock.GPSTime(c, d.options.LeapSeconds)
	return week, int64(seconds * 1000)
}

// TypeList returns the types of the messages found by the last call of
// Decode, in order.
func (d *Decoder) TypeList() []int {
	result := make([]int, len(d.typeList))
	copy(result, d.typeList)
	return result
}

// TakeObservations returns the observations of the completed epochs and
// forgets them.
func (d *Decoder) TakeObservations() []observation.Observation {
	result := d.observations
	d.observations = nil
	return result
}

// TakeAntennaPositions returns the antenna positions decoded so far and
// forgets them.
func (d *Decoder) TakeAntennaPositions() []observation.AntennaPosition {
	result := d.positions
	d.positions = nil
	return result
}

// TakeAntennaDescriptors returns the antenna descriptors decoded so far and
// forgets them.
func (d *Decoder) TakeAntennaDescriptors() []observation.AntennaDescriptor {
	result := d.descriptors
	d.descriptors = nil
	return result
}

// TakeEphemerides returns the ephemerides decoded so far and forgets them.
// They are also in the store.
func (d *Decoder) TakeEphemerides() []ephemeris.Ephemeris {
	result := d.newEphs
	d.newEphs = nil
	return result
}

// TakeClockOrbits returns the completed orbit and clock correction sets and
// forgets them.
func (d *Decoder) TakeClockOrbits() []ssr.ClockOrbit {
	result := d.clockOrbits
	d.clockOrbits = nil
	return result
}

// TakeBiases returns the completed code bias sets and forgets them.
func (d *Decoder) TakeBiases() []ssr.Bias {
	result := d.biases
	d.biases = nil
	return result
}

// Ephemerides returns the store the decoder uses.
func (d *Decoder) Ephemerides() *ephemeris.Store {
	return d.ephemerides
}
