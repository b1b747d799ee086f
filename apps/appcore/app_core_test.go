package appcore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsdroid/ntrip-sub004/clock"
	"github.com/bsdroid/ntrip-sub004/config"
	"github.com/bsdroid/ntrip-sub004/rtcm/handler"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcm3"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func message1005(station uint64) []byte {
	return rtcm3.EncodeFrame(rtcm3.PackPayload(
		rtcm3.Unsigned(12, 1005), rtcm3.Unsigned(12, station), rtcm3.Unsigned(6, 0),
		rtcm3.Unsigned(4, 0),
		rtcm3.Signed(38, 1), rtcm3.Unsigned(2, 0),
		rtcm3.Signed(38, 2), rtcm3.Unsigned(2, 0),
		rtcm3.Signed(38, 3),
	))
}

// testInput is two station messages separated by junk.
func testInput() []byte {
	var input []byte
	input = append(input, message1005(1)...)
	input = append(input, "junk"...)
	input = append(input, message1005(2)...)
	return input
}

func newAppCore(conf *config.Config, channels []chan handler.Message) *AppCore {
	h := handler.New(conf.HandlerOptions(), clock.NewSystemClock(), quietLogger, slog.LevelInfo)
	return New(conf, h, channels, quietLogger)
}

// TestHandleMessagesUntilEOF checks that every message goes to each of the
// channels and nil channels are skipped.
func TestHandleMessagesUntilEOF(t *testing.T) {
	conf := config.Default(quietLogger)

	first := make(chan handler.Message, 10)
	second := make(chan handler.Message, 10)
	appCore := newAppCore(conf, []chan handler.Message{first, nil, second, nil})

	err := appCore.HandleMessagesUntilEOF(context.Background(), bytes.NewReader(testInput()))
	assert.Equal(t, io.EOF, err)

	close(first)
	close(second)
	for _, ch := range []chan handler.Message{first, second} {
		var stations []string
		for m := range ch {
			require.Equal(t, handler.RecordAntennaPosition, m.Record)
			stations = append(stations, m.String())
		}
		require.Len(t, stations, 2)
		assert.Contains(t, stations[0], "stationID 1")
		assert.Contains(t, stations[1], "stationID 2")
	}

	assert.Equal(t, map[int]int{1005: 2}, appCore.Handler.Counts())
}

// TestHandleMessages checks that HandleMessages finds the input named in the
// config and stops at the end when told to.
func TestHandleMessages(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "input")
	require.NoError(t, os.WriteFile(name, testInput(), 0o644))

	conf := config.Default(quietLogger)
	conf.Filenames = []string{filepath.Join(dir, "missing"), name}
	conf.StopOnEOF = true

	ch := make(chan handler.Message, 10)
	appCore := newAppCore(conf, []chan handler.Message{ch})

	require.NoError(t, appCore.HandleMessages(context.Background()))
	close(ch)

	count := 0
	for range ch {
		count++
	}
	assert.Equal(t, 2, count)
}

// TestHandleMessagesCancelled checks that HandleMessages gives up waiting
// for the input when the context is cancelled.
func TestHandleMessagesCancelled(t *testing.T) {
	conf := config.Default(quietLogger)
	conf.Filenames = []string{filepath.Join(t.TempDir(), "never")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	appCore := newAppCore(conf, nil)
	err := appCore.HandleMessages(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
