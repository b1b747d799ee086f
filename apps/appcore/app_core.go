// This is the core of the correction decoding applications.  It contains
// functionality to read from an input file (typically either a text file or
// a serial line connected to a device which is sending RTCM messages),
// decode it and send the resulting records to a set of channels.
package appcore

import (
	"bufio"
	"context"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/bsdroid/ntrip-sub004/config"
	filehandler "github.com/bsdroid/ntrip-sub004/file_handler"
	"github.com/bsdroid/ntrip-sub004/rtcm/handler"
)

type AppCore struct {
	Conf     *config.Config
	Channels []chan handler.Message
	Logger   *slog.Logger

	// Handler decodes every input in turn, so the ephemerides and the
	// message counts carry over when the input is reconnected.
	Handler *handler.Handler
}

// New creates an AppCore.  Nil channels in the list are ignored.
func New(conf *config.Config, messageHandler *handler.Handler, channels []chan handler.Message, logger *slog.Logger) *AppCore {
	if logger == nil {
		logger = slog.Default()
	}
	appCore := AppCore{Conf: conf, Channels: channels, Logger: logger, Handler: messageHandler}
	return &appCore
}

// HandleMessages repeatedly searches for and reads the input file(s)
// specified in the config, converts the data to records and sends them to
// the channels.  If input is provided indefinitely, it will run until the
// context is cancelled.  If the config says to stop on EOF, it returns when
// the first input is exhausted.
//
// It's assumed that the input files are the device names of a device that
// is sending data on a serial connection.  If the device is connecting on a
// serial USB connection and connectivity is lost and then restored, the
// device name this time may be different from the one used last time.  The
// config should specify all the possible device file names.
func (appCore *AppCore) HandleMessages(ctx context.Context) error {
	for {
		r, err := appCore.Conf.WaitAndConnectToInput(ctx)
		if err != nil {
			return err
		}

		err = appCore.HandleMessagesUntilEOF(ctx, bufio.NewReader(r))
		r.Close()

		if err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				return err
			}
			// A read error usually means that the device has gone away.
			// Look for it again.
			appCore.Logger.Warn("appcore: input lost", "error", err)
		}

		if appCore.Conf.StopOnEOF {
			return nil
		}
	}
}

// HandleMessagesUntilEOF takes the given reader, creates a file handler and
// runs it.
//
// Whenever it receives a message from the handler, it sends a copy to each
// of the AppCore's channels.  It's assumed that something is listening to
// each channel and doing something with the messages, for example writing
// them to a log file.  It returns when the file handler has stopped and all
// of its messages have been sent, giving the error that stopped it.
func (appCore *AppCore) HandleMessagesUntilEOF(ctx context.Context, reader io.Reader) error {

	messageChan := make(chan handler.Message)

	fh := filehandler.New(appCore.Handler, messageChan,
		appCore.Conf.WaitTimeOnEOF(), appCore.Conf.TimeoutOnEOF())

	// The message handler closes the message channel when the file handler
	// has finished and the last records have been flushed.
	errChan := make(chan error, 1)
	go func() {
		errChan <- fh.Handle(ctx, reader)
	}()

	for message := range messageChan {
		for i := range appCore.Channels {
			if appCore.Channels[i] != nil {
				appCore.Channels[i] <- message
			}
		}
	}

	return <-errChan
}
