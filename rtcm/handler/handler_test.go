package handler

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kylelemons/godebug/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsdroid/ntrip-sub004/clock"
	"github.com/bsdroid/ntrip-sub004/rtcm/ephemeris"
	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcm2"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcm3"
	"github.com/bsdroid/ntrip-sub004/rtcm/ssr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testTime = time.Date(2023, time.June, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(options Options) *Handler {
	return New(options, clock.NewStoppedClock(testTime), quietLogger, slog.LevelInfo)
}

func message1005(station uint, x, y, z int64) []byte {
	return rtcm3.EncodeFrame(rtcm3.PackPayload(
		rtcm3.Unsigned(12, 1005), rtcm3.Unsigned(12, uint64(station)), rtcm3.Unsigned(6, 0),
		rtcm3.Unsigned(4, 0xc),
		rtcm3.Signed(38, x), rtcm3.Unsigned(2, 0),
		rtcm3.Signed(38, y), rtcm3.Unsigned(2, 0),
		rtcm3.Signed(38, z),
	))
}

// message1004 makes an observation message for one GPS satellite at the
// time given by testTime.
func message1004(sync bool) []byte {
	_, seconds := utils.GPSWeekAndSeconds(testTime, utils.GPSLeapSeconds)
	syncBit := uint64(0)
	if sync {
		syncBit = 1
	}
	return rtcm3.EncodeFrame(rtcm3.PackPayload(
		rtcm3.Unsigned(12, 1004), rtcm3.Unsigned(12, 1), rtcm3.Unsigned(30, uint64(seconds*1000)),
		rtcm3.Unsigned(1, syncBit), rtcm3.Unsigned(5, 1), rtcm3.Unsigned(1, 0), rtcm3.Unsigned(3, 0),
		rtcm3.Unsigned(6, 17), rtcm3.Unsigned(1, 0), rtcm3.Unsigned(24, 1000000), rtcm3.Signed(20, 0),
		rtcm3.Unsigned(7, 10), rtcm3.Unsigned(8, 70), rtcm3.Unsigned(8, 160),
		rtcm3.Unsigned(2, 0), rtcm3.Signed(14, 0), rtcm3.Signed(20, 0),
		rtcm3.Unsigned(7, 10), rtcm3.Unsigned(8, 150),
	))
}

func message3(e *rtcm2.Encoder) []byte {
	return e.Encode(utils.MessageType2ReferenceStation, 5, 100, 0, 0,
		rtcm2.PackFields(rtcm2.Signed(32, 123456), rtcm2.Signed(32, 0), rtcm2.Signed(32, -100)))
}

// run sends the input through HandleMessages and returns what comes out.
func run(h *Handler, input []byte) []Message {
	chIn := make(chan byte, len(input)+1)
	chOut := make(chan Message, 100)
	for _, b := range input {
		chIn <- b
	}
	close(chIn)

	h.HandleMessages(chIn, chOut)

	var result []Message
	for m := range chOut {
		result = append(result, m)
	}
	return result
}

func recordTypes(messages []Message) []RecordType {
	result := make([]RecordType, 0, len(messages))
	for _, m := range messages {
		result = append(result, m.Record)
	}
	return result
}

func TestParseProtocol(t *testing.T) {
	var testData = []struct {
		description string
		name        string
		want        string
		wantError   string
	}{
		{"empty", "", ProtocolAuto, ""},
		{"auto", "auto", ProtocolAuto, ""},
		{"rtcm2", "rtcm2", ProtocolRTCM2, ""},
		{"rtcm3", "rtcm3", ProtocolRTCM3, ""},
		{"junk", "rtcm4", "", `unknown protocol "rtcm4" - expected auto, rtcm2 or rtcm3`},
	}
	for _, td := range testData {
		got, err := ParseProtocol(td.name)
		assert.Equal(t, td.want, got, td.description)
		if td.wantError == "" {
			assert.NoError(t, err, td.description)
		} else {
			require.Error(t, err, td.description)
			assert.Equal(t, td.wantError, err.Error(), td.description)
		}
	}
}

func TestSniff(t *testing.T) {
	var e rtcm2.Encoder
	rtcm2Data := message3(&e)
	rtcm3Data := message1005(1, 1, 2, 3)

	var testData = []struct {
		description string
		input       []byte
		want        string
		wantFound   bool
	}{
		{"rtcm3", rtcm3Data, ProtocolRTCM3, true},
		{"rtcm3 after junk", append([]byte("$GPGGA,junk\r\n"), rtcm3Data...), ProtocolRTCM3, true},
		{"rtcm2", rtcm2Data, ProtocolRTCM2, true},
		{"incomplete rtcm3", rtcm3Data[:len(rtcm3Data)-1], ProtocolAuto, false},
		{"incomplete rtcm2", rtcm2Data[:12], ProtocolAuto, false},
		{"empty", nil, ProtocolAuto, false},
	}
	for _, td := range testData {
		got, found := Sniff(td.input)
		assert.Equal(t, td.want, got, td.description)
		assert.Equal(t, td.wantFound, found, td.description)
	}
}

// TestHandleMessagesRTCM3 checks that the handler finds the protocol and
// turns a mixed RTCM3 stream into records.
func TestHandleMessagesRTCM3(t *testing.T) {
	var co ssr.ClockOrbit
	_, seconds := utils.GPSWeekAndSeconds(testTime, utils.GPSLeapSeconds)
	co.GPSEpochTime = int(seconds)
	co.ClockDataSupplied = ssr.SuppliedGPS
	co.NumberOfGPSSat = 1
	co.Sat[0] = ssr.SatData{ID: 17, Clock: ssr.Clock{DeltaA0: 0.25}}
	clockFrame, err := ssr.MakeClockOrbit(&co, ssr.GPSClock, false)
	require.NoError(t, err)

	var input []byte
	input = append(input, "junk"...)
	input = append(input, message1005(9, 10000, 20000, 30000)...)
	input = append(input, message1004(false)...)
	input = append(input, clockFrame...)

	options := DefaultOptions()
	options.ChunkSize = 7
	h := newTestHandler(options)
	messages := run(h, input)

	assert.Equal(t, ProtocolRTCM3, h.Protocol())
	want := []RecordType{RecordAntennaPosition, RecordObservation, RecordClockOrbit}
	require.Equal(t, want, recordTypes(messages))

	p, ok := messages[0].Readable.(*observation.AntennaPosition)
	require.True(t, ok)
	assert.Equal(t, uint(9), p.StationID)
	assert.InDelta(t, 1.0, p.X, 1e-9)
	assert.Equal(t, testTime, messages[0].Timestamp)

	o, ok := messages[1].Readable.(*observation.Observation)
	require.True(t, ok)
	assert.Equal(t, "G17", o.SatelliteName())
	assert.True(t, testTime.Equal(messages[1].Timestamp), messages[1].Timestamp)

	c, ok := messages[2].Readable.(*ssr.ClockOrbit)
	require.True(t, ok)
	assert.Equal(t, utils.MessageTypeSSRGPSClock, messages[2].MessageType)
	assert.InDelta(t, 0.25, c.Sat[0].Clock.DeltaA0, 1e-9)
	assert.True(t, testTime.Equal(messages[2].Timestamp), messages[2].Timestamp)

	counts := h.Counts()
	assert.Equal(t, 1, counts[1005])
	assert.Equal(t, 1, counts[1004])
	assert.Equal(t, 1, counts[utils.MessageTypeSSRGPSClock])
}

// TestHandleMessagesRTCM2 checks an RTCM2 stream.
func TestHandleMessagesRTCM2(t *testing.T) {
	var e rtcm2.Encoder
	var input []byte
	input = append(input, message3(&e)...)
	input = append(input, message3(&e)...)

	h := newTestHandler(DefaultOptions())
	messages := run(h, input)

	assert.Equal(t, ProtocolRTCM2, h.Protocol())
	require.Equal(t, []RecordType{RecordAntennaPosition, RecordAntennaPosition}, recordTypes(messages))
	p := messages[1].Readable.(*observation.AntennaPosition)
	assert.Equal(t, observation.APC, p.Type)
	assert.InDelta(t, 1234.56, p.X, 1e-9)
	assert.Equal(t, ProtocolRTCM2, messages[1].Protocol)
	assert.Equal(t, 2, h.Counts()[utils.MessageType2ReferenceStation])
}

// TestHandleMessagesFixedProtocol checks that a fixed protocol isn't
// changed by the data.
func TestHandleMessagesFixedProtocol(t *testing.T) {
	options := DefaultOptions()
	options.Protocol = ProtocolRTCM2

	h := newTestHandler(options)
	messages := run(h, message1005(1, 1, 2, 3))

	assert.Equal(t, ProtocolRTCM2, h.Protocol())
	assert.Empty(t, messages)
}

// TestHandleMessagesWithJunk checks that unrecognisable input comes out as
// non-RTCM messages.
func TestHandleMessagesWithJunk(t *testing.T) {
	options := DefaultOptions()
	options.SniffLimit = 10
	options.ChunkSize = 4

	h := newTestHandler(options)
	messages := run(h, []byte("this is not RTCM"))

	require.Len(t, messages, 2)
	assert.Equal(t, RecordNonRTCM, messages[0].Record)
	assert.Equal(t, "this is no", string(messages[0].RawData)[:10])
	var all []byte
	for _, m := range messages {
		assert.Equal(t, utils.NonRTCMMessage, m.MessageType)
		all = append(all, m.RawData...)
	}
	assert.Equal(t, "this is not RTCM", string(all))
	assert.Equal(t, ProtocolAuto, h.Protocol())
}

// TestHandleMessagesFlushesAtEnd checks that an epoch still waiting for
// more messages is released when the input ends.
func TestHandleMessagesFlushesAtEnd(t *testing.T) {
	h := newTestHandler(DefaultOptions())
	messages := run(h, message1004(true))

	require.Len(t, messages, 1)
	assert.Equal(t, RecordObservation, messages[0].Record)
}

func TestDecodeReportsErrors(t *testing.T) {
	options := DefaultOptions()
	options.Protocol = ProtocolRTCM3
	h := newTestHandler(options)

	// A 1005 cut short inside the payload but with a good CRC.
	short := rtcm3.EncodeFrame(rtcm3.PackPayload(rtcm3.Unsigned(12, 1005), rtcm3.Unsigned(12, 1)))
	messages := h.Decode(short)

	require.Len(t, messages, 1)
	assert.Equal(t, RecordError, messages[0].Record)
	assert.Contains(t, messages[0].ErrorMessage, "overrun")
}

func TestEphemerisMessages(t *testing.T) {
	options := DefaultOptions()
	options.Protocol = ProtocolRTCM3
	h := newTestHandler(options)

	week, _ := utils.GPSWeekAndSeconds(testTime, utils.GPSLeapSeconds)
	fields := []rtcm3.Field{
		rtcm3.Unsigned(12, 1019), rtcm3.Unsigned(6, 3), rtcm3.Unsigned(10, uint64(week%1024)),
		rtcm3.Unsigned(4, 0), rtcm3.Unsigned(2, 0), rtcm3.Signed(14, 0), rtcm3.Unsigned(8, 77),
		rtcm3.Unsigned(16, 0),
	}
	// The remaining fields of a 1019 are all zero.
	fields = append(fields, rtcm3.Unsigned(64, 0), rtcm3.Unsigned(64, 0), rtcm3.Unsigned(64, 0),
		rtcm3.Unsigned(64, 0), rtcm3.Unsigned(64, 0), rtcm3.Unsigned(64, 0), rtcm3.Unsigned(31, 0))
	messages := h.Decode(rtcm3.EncodeFrame(rtcm3.PackPayload(fields...)))

	require.Len(t, messages, 1)
	assert.Equal(t, RecordEphemeris, messages[0].Record)
	assert.Equal(t, utils.MessageType1019, messages[0].MessageType)
	e, ok := messages[0].Readable.(*ephemeris.GPS)
	require.True(t, ok)
	assert.Equal(t, 77, e.IODE)
	assert.Equal(t, utils.GPSTimeToUTC(week, 0, utils.GPSLeapSeconds), messages[0].Timestamp)

	_, found := h.Ephemerides().Get("G03", 77)
	assert.True(t, found)
}

func TestCountsReport(t *testing.T) {
	h := newTestHandler(DefaultOptions())
	h.count([]int{1004, 1005, 1004})

	want := "1004 " + utils.GetTitle(1004) + ": 2\n" +
		"1005 " + utils.GetTitle(1005) + ": 1\n"
	if d := diff.Diff(want, h.CountsReport()); d != "" {
		t.Error(d)
	}
}

func TestMessageString(t *testing.T) {
	p := observation.AntennaPosition{StationID: 1, X: 1, Y: 2, Z: 3}
	m := Message{
		Record:    RecordAntennaPosition,
		Timestamp: testTime,
		Readable:  &p,
	}
	want := "antenna position\n" +
		"2023-06-01T12:00:00Z\n" +
		"stationID 1, ARP\n" +
		"ECEF coords in metres (1.0000, 2.0000, 3.0000)\n"
	if d := diff.Diff(want, m.String()); d != "" {
		t.Error(d)
	}

	nonRTCM := NewNonRTCM([]byte{0x41}, "no RTCM messages found", slog.LevelDebug)
	got := nonRTCM.String()
	assert.True(t, strings.HasPrefix(got, "non-RTCM data\nno RTCM messages found\n1 bytes\n00000000  41 "), got)
	assert.True(t, strings.HasSuffix(got, "|A|\n"), got)
}
