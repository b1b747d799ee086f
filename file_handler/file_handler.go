package filehandler

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/bsdroid/ntrip-sub004/rtcm/handler"
)

// readSize is the most bytes read from the input at once.
const readSize = 512

// Handler reads a file or device containing RTCM messages, possibly
// interspersed with data in other formats, and feeds it to a message
// handler.  The message handler sends the decoded records to the message
// channel and closes it when the input is exhausted.
type Handler struct {
	MessageHandler     *handler.Handler     // Decodes the input ...
	MessageChan        chan handler.Message // ... and issues the records on this channel.
	RetryIntervalOnEOF time.Duration        // The time to wait between retries on EOF.
	EOFTimeout         time.Duration        // Give up retrying after this time has elapsed.
}

// New creates a handler.
func New(messageHandler *handler.Handler, messageChan chan handler.Message, retryIntervalOnEOF, eofTimeout time.Duration) *Handler {
	fh := Handler{
		MessageHandler:     messageHandler,
		MessageChan:        messageChan,
		RetryIntervalOnEOF: retryIntervalOnEOF,
		EOFTimeout:         eofTimeout,
	}
	return &fh
}

// Handle reads from the reader and sends the data to the message handler
// until the input is exhausted, the context is cancelled or there is a read
// error.  It returns the error that stopped it, which is io.EOF at the end
// of the input.  The message channel is closed once the records still being
// assembled have been sent.
func (fh *Handler) Handle(ctx context.Context, reader io.Reader) error {

	// An EOF on a read is not necessarily fatal.  It can just mean that there
	// is no data to read just now, but there may be some in the future.  If the
	// EOFTimeout is zero, we return immediately on EOF.  If it's set, then we
	// retry reads for that duration and then return the error if the timeout
	// elapses.  On any other read error we stop immediately.
	//
	// If the reader is connected to a serial line fed by a live source, the
	// bytes should come in indefinitely, for example a burst of messages every
	// second followed by silence for the rest of the second.  If the timeout is
	// set to a small number of seconds then it will only expire if the host
	// loses its connection to the device.

	// timeOfFirstEOF is set when the read has returned EOF one or more times
	// in a row.
	var timeOfFirstEOF *time.Time

	byteChan := make(chan byte, readSize)
	// Closing the byte channel tells the message handler that the input is
	// done.
	defer close(byteChan)

	go fh.MessageHandler.HandleMessages(byteChan, fh.MessageChan)

	buf := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "reading input")
		}

		n, err := reader.Read(buf)

		if n > 0 {
			// We have read some data.  Reset the timeout mechanism and send
			// it to the message handler.
			timeOfFirstEOF = nil
			for _, b := range buf[:n] {
				byteChan <- b
			}
		}

		if err == nil {
			continue
		}

		if err != io.EOF {
			return errors.Wrap(err, "reading input")
		}

		if fh.EOFTimeout == 0 {
			// No timeout so don't retry.
			return err
		}

		if timeOfFirstEOF == nil {
			// The last read was successful, this one produced EOF.
			t := time.Now()
			timeOfFirstEOF = &t
		} else if time.Since(*timeOfFirstEOF) > fh.EOFTimeout {
			// The timeout has elapsed.  Give up.
			return err
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "reading input")
		case <-time.After(fh.RetryIntervalOnEOF):
		}
	}
}
