package filehandler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsdroid/ntrip-sub004/clock"
	"github.com/bsdroid/ntrip-sub004/rtcm/handler"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcm3"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newMessageHandler() *handler.Handler {
	return handler.New(handler.DefaultOptions(), clock.NewSystemClock(), quietLogger, slog.LevelInfo)
}

// message1005 makes a station message with the given ID.
func message1005(station uint64) []byte {
	return rtcm3.EncodeFrame(rtcm3.PackPayload(
		rtcm3.Unsigned(12, 1005), rtcm3.Unsigned(12, station), rtcm3.Unsigned(6, 0),
		rtcm3.Unsigned(4, 0),
		rtcm3.Signed(38, 1), rtcm3.Unsigned(2, 0),
		rtcm3.Signed(38, 2), rtcm3.Unsigned(2, 0),
		rtcm3.Signed(38, 3),
	))
}

func collect(ch chan handler.Message) []handler.Message {
	var result []handler.Message
	for m := range ch {
		result = append(result, m)
	}
	return result
}

// TestHandle checks that Handle processes a stream containing a set of
// messages and junk.
func TestHandle(t *testing.T) {
	var input []byte
	input = append(input, message1005(1)...)
	input = append(input, "junk"...)
	input = append(input, message1005(2)...)

	messageChan := make(chan handler.Message, 10)
	fh := New(newMessageHandler(), messageChan, 0, 0)

	var handleErr error
	done := make(chan struct{})
	go func() {
		handleErr = fh.Handle(context.Background(), bytes.NewReader(input))
		close(done)
	}()

	messages := collect(messageChan)
	<-done
	assert.Equal(t, io.EOF, handleErr)

	require.Len(t, messages, 2)
	for _, m := range messages {
		assert.Equal(t, handler.RecordAntennaPosition, m.Record)
	}
}

// TestHandleManyCalls checks that a number of inputs handled in turn give
// their messages in order.
func TestHandleManyCalls(t *testing.T) {
	aggregate := make([]handler.Message, 0)

	for _, input := range [][]byte{message1005(7), message1005(8)} {
		messageChan := make(chan handler.Message, 10)
		fh := New(newMessageHandler(), messageChan, 0, 0)
		go fh.Handle(context.Background(), bytes.NewReader(input))
		aggregate = append(aggregate, collect(messageChan)...)
	}

	require.Len(t, aggregate, 2)
	assert.Contains(t, aggregate[0].String(), "stationID 7")
	assert.Contains(t, aggregate[1].String(), "stationID 8")
}

// slowReader returns EOF a few times before each chunk of its data, the
// way a device does when no data has arrived yet.
type slowReader struct {
	chunks [][]byte
	eofs   int
	count  int
}

func (r *slowReader) Read(buf []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	if r.count < r.eofs {
		r.count++
		return 0, io.EOF
	}
	r.count = 0
	n := copy(buf, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

// TestHandleRetriesOnEOF checks that Handle keeps reading after end of file
// until the timeout expires.
func TestHandleRetriesOnEOF(t *testing.T) {
	frame := message1005(3)
	reader := &slowReader{chunks: [][]byte{frame[:5], frame[5:]}, eofs: 2}

	messageChan := make(chan handler.Message, 10)
	fh := New(newMessageHandler(), messageChan, time.Millisecond, 50*time.Millisecond)

	start := time.Now()
	go fh.Handle(context.Background(), reader)
	messages := collect(messageChan)

	require.Len(t, messages, 1)
	assert.Equal(t, handler.RecordAntennaPosition, messages[0].Record)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) {
	return 0, errors.New("device unplugged")
}

func TestHandleReadError(t *testing.T) {
	messageChan := make(chan handler.Message, 10)
	fh := New(newMessageHandler(), messageChan, time.Millisecond, time.Second)

	err := fh.Handle(context.Background(), errorReader{})
	require.Error(t, err)
	assert.Equal(t, "reading input: device unplugged", err.Error())
	assert.Empty(t, collect(messageChan))
}

func TestHandleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	messageChan := make(chan handler.Message, 10)
	fh := New(newMessageHandler(), messageChan, time.Millisecond, time.Hour)

	err := fh.Handle(ctx, &slowReader{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, collect(messageChan))
}
