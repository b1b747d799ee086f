package rtcm2

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsdroid/ntrip-sub004/clock"
	"github.com/bsdroid/ntrip-sub004/rtcm/ephemeris"
	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestDecoder creates a decoder whose clock reads the given UTC time.
func newTestDecoder(now time.Time, store *ephemeris.Store) *Decoder {
	return New(DefaultOptions(), clock.NewStoppedClock(now), store, quietLogger, slog.LevelInfo)
}

func message3(e *Encoder, x, y, z int64) []byte {
	return e.Encode(utils.MessageType2ReferenceStation, 5, 100, 0, 0,
		PackFields(Signed(32, x), Signed(32, y), Signed(32, z)))
}

func TestDecodeMessage3(t *testing.T) {
	var e Encoder
	d := newTestDecoder(time.Now(), nil)

	ok, errs := d.Decode(message3(&e, 123456, 0, -100))
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.Equal(t, []int{3}, d.TypeList())

	x, y, z, found := d.StationCoordinates()
	require.True(t, found)
	assert.InDelta(t, 1234.56, x, 1e-9)
	assert.InDelta(t, 0.0, y, 1e-9)
	assert.InDelta(t, -1.0, z, 1e-9)

	positions := d.TakeAntennaPositions()
	require.Len(t, positions, 1)
	want := observation.AntennaPosition{
		StationID: 5, Type: observation.APC, X: x, Y: y, Z: z,
		LogLevel: slog.LevelInfo,
	}
	if diff := cmp.Diff(want, positions[0]); diff != "" {
		t.Error(diff)
	}
	assert.Empty(t, d.TakeAntennaPositions())
}

// TestDecodeAcrossCalls splits a message between two calls.
func TestDecodeAcrossCalls(t *testing.T) {
	var e Encoder
	buf := message3(&e, 123456, 0, 0)

	d := newTestDecoder(time.Now(), nil)
	ok, _ := d.Decode(buf[:13])
	assert.False(t, ok)
	assert.Empty(t, d.TypeList())

	ok, _ = d.Decode(buf[13:])
	assert.True(t, ok)
	x, _, _, _ := d.StationCoordinates()
	assert.InDelta(t, 1234.56, x, 1e-9)
}

// TestDecodeResynchronises checks that the decoder finds a good message
// after junk and after a corrupted message.
func TestDecodeResynchronises(t *testing.T) {
	var e Encoder
	bad := message3(&e, 111111, 0, 0)
	bad[12] ^= 0x01
	good := message3(&e, 123456, 0, 0)

	buf := append([]byte{0x00}, bad...)
	buf = append(buf, good...)

	d := newTestDecoder(time.Now(), nil)
	ok, _ := d.Decode(buf)
	assert.True(t, ok)
	assert.Equal(t, []int{3}, d.TypeList())

	positions := d.TakeAntennaPositions()
	require.Len(t, positions, 1)
	assert.InDelta(t, 1234.56, positions[0].X, 1e-9)
}

func TestDecodeStationWithOffsets(t *testing.T) {
	var e Encoder
	buf := e.Encode(utils.MessageType2AntennaOffset, 5, 100, 0, 0,
		PackFields(Signed(8, 100), Signed(8, 0), Signed(8, -100)))
	buf = append(buf, message3(&e, 100, 200, 300)...)

	d := newTestDecoder(time.Now(), nil)
	ok, errs := d.Decode(buf)
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.Equal(t, []int{22, 3}, d.TypeList())

	// The L1 offsets are in 1/256 cm.
	x, y, z, _ := d.StationCoordinates()
	assert.InDelta(t, 1.00390625, x, 1e-9)
	assert.InDelta(t, 2.0, y, 1e-9)
	assert.InDelta(t, 2.99609375, z, 1e-9)

	positions := d.TakeAntennaPositions()
	require.Len(t, positions, 1)
	assert.InDelta(t, 1.00390625, positions[0].X, 1e-9)

	l1, l2 := d.AntennaOffsets()
	assert.InDelta(t, 0.00390625, l1[0], 1e-12)
	assert.Equal(t, [3]float64{}, l2)
}

func TestDecodeAntennaMessages(t *testing.T) {
	var e Encoder
	fields := []Field{Unsigned(2, 0), Unsigned(1, 0), Unsigned(5, 4)}
	fields = append(fields, stringFields("TEST")...)
	buf := e.Encode(utils.MessageType2AntennaType, 7, 100, 0, 0, PackFields(fields...))
	buf = append(buf, e.Encode(utils.MessageType2AntennaRefPoint, 7, 100, 0, 0, PackFields(
		Signed(32, 192901), Unsigned(6, 14), Unsigned(2, 0),
		Signed(32, 0), Unsigned(6, 0), Unsigned(2, 0),
		Signed(32, 0), Unsigned(6, 0), Unsigned(1, 0), Unsigned(1, 0),
		Unsigned(24, 0),
	))...)
	// A type the decoder doesn't handle.
	buf = append(buf, e.Encode(9, 7, 100, 0, 0, PackFields(Unsigned(24, 0)))...)

	d := newTestDecoder(time.Now(), nil)
	ok, errs := d.Decode(buf)
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.Equal(t, []int{23, 24, 9}, d.TypeList())

	descriptors := d.TakeAntennaDescriptors()
	require.Len(t, descriptors, 1)
	assert.Equal(t, "TEST", descriptors[0].Descriptor)
	assert.Equal(t, uint(7), descriptors[0].StationID)

	positions := d.TakeAntennaPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, observation.ARP, positions[0].Type)
	assert.InDelta(t, 1234.5678, positions[0].X, 1e-9)
}

// TestDecodeObservations feeds carrier phase and pseudorange messages for
// PRN 5 and checks the combined observation.
func TestDecodeObservations(t *testing.T) {
	const ambig = DefaultAmbiguityCycles
	const c1 = 20000000.00
	const p2 = 20000001.00

	trueL1 := c1/utils.WavelengthL1 + 0.25
	trueL2 := c1/utils.WavelengthL2 + 0.5
	phaseBits := func(phase float64) int64 {
		return int64(math.Round(-wrap(phase, ambig) * 256))
	}

	var e Encoder
	encode := func(isPhase, isL1 bool, value int64) []byte {
		messageType := utils.MessageType2Pseudorange
		if isPhase {
			messageType = utils.MessageType2CarrierPhase
		}
		sats := []testSat{{sid: 5, value: value, loss: 2}}
		return e.Encode(messageType, 5, 1000, 0, 0, PackFields(obsFields(isPhase, isL1, 0, sats)...))
	}

	// 01:00:10 UTC is 3628 seconds into the GPS week.
	now := time.Date(2020, time.November, 15, 1, 0, 10, 0, time.UTC)
	d := newTestDecoder(now, nil)

	ok, _ := d.Decode(encode(true, true, phaseBits(trueL1)))
	assert.False(t, ok)
	ok, _ = d.Decode(encode(true, false, phaseBits(trueL2)))
	assert.False(t, ok)
	ok, _ = d.Decode(encode(false, true, int64(math.Round(c1/0.02))))
	assert.False(t, ok)
	assert.Empty(t, d.TakeObservations())

	ok, errs := d.Decode(encode(false, false, int64(math.Round(p2/0.02))))
	assert.True(t, ok)
	assert.Empty(t, errs)

	obs := d.TakeObservations()
	require.Len(t, obs, 1)
	o := obs[0]
	assert.Equal(t, "G05", o.SatelliteName())
	assert.Equal(t, 2132, o.GPSWeek)
	assert.InDelta(t, 4200.0, o.GPSSeconds, 1e-6)
	assert.InDelta(t, c1, o.C1, 1e-6)
	assert.InDelta(t, c1, o.P1, 1e-6)
	assert.InDelta(t, p2, o.P2, 1e-6)
	assert.InDelta(t, trueL1, o.L1, 0.01)
	assert.InDelta(t, trueL2, o.L2, 0.01)
	assert.Equal(t, 2, o.SlipCountL1)
	assert.Equal(t, 2, o.SlipCountL2)
}

// correctionFields builds the data words of a message 20 or 21 for one
// satellite.
func correctionFields(isPhase bool, microseconds uint64, sid, iod uint64, value int64) []Field {
	fields := []Field{
		Unsigned(1, 0), Unsigned(1, 0), Unsigned(2, 0), Unsigned(20, microseconds),
		Unsigned(1, 0), Unsigned(1, 0), Unsigned(1, 0), Unsigned(5, sid),
	}
	if isPhase {
		fields = append(fields, Unsigned(3, 0), Unsigned(5, 3), Unsigned(8, iod), Signed(24, value))
	} else {
		fields = append(fields, Unsigned(1, 0), Unsigned(2, 0), Unsigned(2, 0), Unsigned(3, 0),
			Unsigned(8, iod), Signed(16, value), Signed(8, 0))
	}
	return fields
}

func TestDecodeCorrections(t *testing.T) {
	const staX = 6378137.0
	eph := &ephemeris.GPS{
		SatNum: 5, Week: 2132, IODE: 10, IODC: 10,
		SqrtA: 5153.7, ClockBias: 1e-5,
	}
	store := ephemeris.NewStore(ephemeris.DefaultDepth)
	store.Put(eph)

	// 00:10:00 UTC is 618 seconds into the GPS week.
	now := time.Date(2020, time.November, 15, 0, 10, 0, 0, time.UTC)
	d := newTestDecoder(now, store)

	var e Encoder
	buf := message3(&e, int64(staX*100), 0, 0)
	buf = append(buf, e.Encode(utils.MessageType2PhaseCorrection, 5, 1000, 0, 0,
		PackFields(correctionFields(true, 3000, 5, 10, 256)...))...)
	buf = append(buf, e.Encode(utils.MessageType2RangeCorrection, 5, 1000, 0, 0,
		PackFields(correctionFields(false, 3000, 5, 10, 50)...))...)

	ok, errs := d.Decode(buf)
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.Equal(t, []int{3, 20, 21}, d.TypeList())

	estimated := 0.6*1000 + 3000*1e-6
	rcvClockBias := (estimated - 600) * utils.SpeedOfLightMS
	r, err := ephemeris.CmpRho(eph, staX, 0, 0, 2132, estimated)
	require.NoError(t, err)

	// The phase correction is one cycle and the range correction one metre.
	wantL1 := (r.Rho - utils.WavelengthL1 + rcvClockBias - r.Sat.Clock) / utils.WavelengthL1
	wantC1 := r.Rho - 1.0 + rcvClockBias - r.Sat.Clock

	obs := d.TakeObservations()
	require.Len(t, obs, 1)
	o := obs[0]
	assert.Equal(t, "G05", o.SatelliteName())
	assert.Equal(t, 2132, o.GPSWeek)
	assert.InDelta(t, 600.0, o.GPSSeconds, 1e-9)
	assert.InDelta(t, wantL1, o.L1, 1e-6)
	assert.InDelta(t, wantC1, o.C1, 1e-6)
	assert.Zero(t, o.P1)
	assert.Equal(t, 3, o.SlipCountL1)
}

func TestDecodeCorrectionsMissingEphemeris(t *testing.T) {
	now := time.Date(2020, time.November, 15, 0, 10, 0, 0, time.UTC)
	d := newTestDecoder(now, ephemeris.NewStore(0))

	var e Encoder
	buf := message3(&e, 637813700, 0, 0)
	buf = append(buf, e.Encode(utils.MessageType2PhaseCorrection, 5, 1000, 0, 0,
		PackFields(correctionFields(true, 0, 5, 11, 0)...))...)
	buf = append(buf, e.Encode(utils.MessageType2RangeCorrection, 5, 1000, 0, 0,
		PackFields(correctionFields(false, 0, 5, 11, 0)...))...)

	ok, errs := d.Decode(buf)
	assert.True(t, ok)
	assert.Equal(t, []string{"missing eph for G05 , IODs L1: 11   P1: 11   "}, errs)
	assert.Empty(t, d.TakeObservations())
}

func TestDecoderReset(t *testing.T) {
	var e Encoder
	buf := message3(&e, 123456, 0, 0)

	d := newTestDecoder(time.Now(), nil)
	d.Decode(buf[:13])
	d.Reset()
	// The first half has gone, so the second half alone is useless.
	ok, _ := d.Decode(buf[13:])
	assert.False(t, ok)
	_, _, _, found := d.StationCoordinates()
	assert.False(t, found)
}
