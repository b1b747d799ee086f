package rtcm2

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/bsdroid/ntrip-sub004/clock"
	"github.com/bsdroid/ntrip-sub004/rtcm/ephemeris"
	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Options controls a Decoder.
type Options struct {
	Obs ObsOptions
	// LeapSeconds is the GPS-UTC offset used to turn the clock's time into
	// the GPS time that the epochs are resolved against.
	LeapSeconds int
}

// DefaultOptions returns the usual settings.
func DefaultOptions() Options {
	return Options{
		Obs:         ObsOptions{AmbiguityCycles: DefaultAmbiguityCycles},
		LeapSeconds: utils.GPSLeapSeconds,
	}
}

// Decoder decodes an RTCM version 2 stream.  It keeps the partial packet
// and the multi-message state between calls of Decode, so each stream
// needs its own Decoder.  Records accumulate until they're taken.
type Decoder struct {
	options     Options
	clock       clock.Clock
	ephemerides *ephemeris.Store
	logger      *slog.Logger
	logLevel    slog.Level

	buffer []byte
	word   ThirtyBitWord

	obsBlock    *ObsBlock
	corrections *HiResCorrections
	msg3        Message3
	msg22       Message22
	msg23       Message23
	msg24       Message24

	typeList     []int
	observations []observation.Observation
	positions    []observation.AntennaPosition
	descriptors  []observation.AntennaDescriptor
}

// New creates a Decoder.  The ephemeris store supplies the broadcast
// ephemerides needed to turn the corrections in messages 20 and 21 into
// observations.  It may be shared with other decoders.
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
	}
	d.Reset()
	return &d
}

// Reset discards all the state built up from earlier input.
func (d *Decoder) Reset() {
	d.buffer = nil
	d.word.Reset()
	d.obsBlock = NewObsBlock(d.options.Obs)
	d.corrections = NewHiResCorrections()
	d.msg3 = Message3{}
	d.msg22 = Message22{}
	d.msg23 = Message23{}
	d.msg24 = Message24{}
	d.typeList = nil
	d.observations = nil
	d.positions = nil
	d.descriptors = nil
}

// Decode adds buf to the input and decodes every complete packet.  It
// returns true if at least one record was produced, plus a list of
// diagnostics.  Bytes left over from an incomplete packet are kept for the
// next call.
func (d *Decoder) Decode(buf []byte) (bool, []string) {
	var errs []string
	decoded := false
	d.typeList = d.typeList[:0]

	d.buffer = append(d.buffer, buf...)
	refWeek, refSeconds := d.referenceTime()

	for {
		p, n, err := GetPacket(d.buffer, &d.word)
		d.buffer = d.buffer[n:]
		if err != nil {
			if rtcmerr.Is(err, rtcmerr.Underrun) {
				break
			}
			d.logger.Debug("rtcm2: discarding packet", "error", err)
			continue
		}

		messageType := p.MessageType()
		d.typeList = append(d.typeList, messageType)

		if d.logLevel == slog.LevelDebug {
			d.logger.Debug("rtcm2: packet", "header", strings.TrimSpace(p.String()))
		}

		switch messageType {
		case utils.MessageType2CarrierPhase, utils.MessageType2Pseudorange:
			if err := d.obsBlock.Extract(p); err != nil {
				errs = append(errs, err.Error())
				break
			}
			if d.obsBlock.Valid() {
				week, seconds := d.obsBlock.ResolveEpoch(refWeek, refSeconds)
				d.observations = append(d.observations, d.obsBlock.Observations(week, seconds)...)
				d.obsBlock.Clear()
				decoded = true
			}

		case utils.MessageType2PhaseCorrection, utils.MessageType2RangeCorrection:
			if err := d.corrections.Extract(p); err != nil {
				errs = append(errs, err.Error())
				break
			}
			if d.corrections.Valid() {
				decoded = true
				errs = append(errs, d.translateCorrections(refWeek, refSeconds)...)
			}

		case utils.MessageType2ReferenceStation:
			if err := d.msg3.Extract(p); err != nil {
				errs = append(errs, err.Error())
				break
			}
			x, y, z, _ := d.StationCoordinates()
			d.positions = append(d.positions, observation.AntennaPosition{
				StationID: p.StationID(), Type: observation.APC,
				X: x, Y: y, Z: z, LogLevel: d.logLevel,
			})
			decoded = true

		case utils.MessageType2AntennaOffset:
			if err := d.msg22.Extract(p); err != nil {
				errs = append(errs, err.Error())
			}

		case utils.MessageType2AntennaType:
			if err := d.msg23.Extract(p); err != nil {
				errs = append(errs, err.Error())
				break
			}
			d.descriptors = append(d.descriptors, observation.AntennaDescriptor{
				StationID:  p.StationID(),
				Descriptor: d.msg23.Descriptor,
				SetupID:    d.msg23.SetupID,
				Serial:     d.msg23.Serial,
				LogLevel:   d.logLevel,
			})
			decoded = true

		case utils.MessageType2AntennaRefPoint:
			if err := d.msg24.Extract(p); err != nil {
				errs = append(errs, err.Error())
				break
			}
			d.positions = append(d.positions, observation.AntennaPosition{
				StationID: p.StationID(), Type: observation.ARP,
				X: d.msg24.X, Y: d.msg24.Y, Z: d.msg24.Z,
				Height: d.msg24.Height, HeightSet: d.msg24.HeightSet,
				LogLevel: d.logLevel,
			})
			decoded = true

		default:
			d.logger.Debug("rtcm2: ignoring message", "type", messageType)
		}
	}

	return decoded, errs
}

// referenceTime gives the current GPS time, against which the times within
// the hour are resolved.
func (d *Decoder) referenceTime() (int, float64) {
	if d.clock == nil {
		return clock.GPSTime(clock.NewSystemClock(), d.options.LeapSeconds)
	}
	return clock.GPSTime(d.clock, d.options.LeapSeconds)
}

// TypeList returns the types of the messages found by the last call of
// Decode, in order.
func (d *Decoder) TypeList() []int {
	result := make([]int, len(d.typeList))
	copy(result, d.typeList)
	return result
}

// StationCoordinates returns the L1 phase centre of the reference station,
// from message 3 plus the offsets in message 22 if there is one.  ok is
// false if no message 3 has been seen.
func (d *Decoder) StationCoordinates() (x, y, z float64, ok bool) {
	if !d.msg3.Valid {
		return 0, 0, 0, false
	}
	x, y, z = d.msg3.X, d.msg3.Y, d.msg3.Z
	if d.msg22.Valid {
		x += d.msg22.DL1[0]
		y += d.msg22.DL1[1]
		z += d.msg22.DL1[2]
	}
	return x, y, z, true
}

// AntennaOffsets returns the L1 and L2 phase centre offsets from message
// 22, or zeros if there isn't one.
func (d *Decoder) AntennaOffsets() (l1, l2 [3]float64) {
	if !d.msg22.Valid {
		return l1, l2
	}
	return d.msg22.DL1, d.msg22.DL2
}

// TakeObservations returns the observations decoded so far and forgets
// them.
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

// Ephemerides returns the store the decoder uses.
func (d *Decoder) Ephemerides() *ephemeris.Store {
	return d.ephemerides
}

// translateCorrections turns the corrections in messages 20 and 21 into
// observations: the range computed from the broadcast ephemeris with the
// matching IOD, less the correction, plus the receiver clock bias, less the
// satellite clock.  It returns a diagnostic for each satellite whose
// corrections refer to an ephemeris the store doesn't have.
func (d *Decoder) translateCorrections(refWeek int, refSeconds float64) []string {
	staX, staY, staZ, ok := d.StationCoordinates()
	if !ok || !d.corrections.Valid() {
		return nil
	}

	// The receiver clock reading is the estimated time of measurement
	// rounded to 10 ms.  See RTCM 2.3, message 18, note 1.
	estimated := d.corrections.HourSeconds()
	received := math.RoundToEven(estimated*1e2) / 1e2
	rcvClockBias := (estimated - received) * utils.SpeedOfLightMS

	week, seconds := ResolveEpoch(estimated, refWeek, refSeconds)
	weekRcv, secondsRcv := ResolveEpoch(received, refWeek, refSeconds)

	var errs []string
	for _, corr := range d.corrections.Corrections() {
		// Only GPS so far.
		if corr.PRN >= glonassPRNOffset {
			continue
		}
		name := fmt.Sprintf("G%02d", corr.PRN)

		var obs *observation.Observation
		var missing []string

		items := []struct {
			label string
			iod   int
			corr  float64
		}{
			{"L1", corr.IODp1, corr.Phase1 * utils.WavelengthL1},
			{"L2", corr.IODp2, corr.Phase2 * utils.WavelengthL2},
			{"P1", corr.IODr1, corr.Range1},
			{"P2", corr.IODr2, corr.Range2},
		}
		for i, item := range items {
			eph, found := d.ephemerides.Get(name, item.iod)
			if !found {
				if item.iod != 0 {
					missing = append(missing, fmt.Sprintf("%s:%3d", item.label, item.iod))
				}
				continue
			}

			rho, err := ephemeris.CmpRho(eph, staX, staY, staZ, week, seconds)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s %s: %v", name, item.label, err))
				continue
			}

			value := rho.Rho - item.corr + rcvClockBias - rho.Sat.Clock
			if value == 0 {
				value = observation.ZeroValue
			}

			if obs == nil {
				obs = &observation.Observation{
					System: 'G', SatNum: corr.PRN,
					GPSWeek: weekRcv, GPSSeconds: secondsRcv,
					LogLevel: d.logLevel,
				}
			}

			switch i {
			case 0:
				obs.L1 = value / utils.WavelengthL1
				obs.SlipCountL1 = corr.Lock1
			case 1:
				obs.L2 = value / utils.WavelengthL2
				obs.SlipCountL2 = corr.Lock2
			case 2:
				if corr.PInd1 {
					obs.P1 = value
				} else {
					obs.C1 = value
				}
			case 3:
				if corr.PInd2 {
					obs.P2 = value
				} else {
					obs.C2 = value
				}
			}
		}

		if len(missing) > 0 {
			var sb strings.Builder
			for _, m := range missing {
				sb.WriteString(m)
				sb.WriteString("   ")
			}
			err := rtcmerr.New(rtcmerr.MissingEphemeris, "missing eph for %s , IODs %s", name, sb.String())
			errs = append(errs, err.Error())
		}

		if obs != nil {
			d.observations = append(d.observations, *obs)
		}
	}
	return errs
}
