package pushback

import (
	"github.com/pkg/errors"
)

// ErrDone is returned when the channel is closed and every byte pushed back
// has been read.
var ErrDone = errors.New("done")

// ErrNilChannel is returned by a ByteChannel created without a channel.
var ErrNilChannel = errors.New("channel is nil")

type byteChan chan byte

// ByteChannel is a channel of bytes with pushback.
type ByteChannel struct {
	// pushBackBuffer contains any bytes that have been pushed back.
	pushBackBuffer []byte
	// This is the source of the bytes.
	byteChan
}

// New creates a ByteChannel containing the given byte channel.  ch should
// be a buffered channel.
func New(ch chan byte) *ByteChannel {
	bc := ByteChannel{byteChan: ch}
	return &bc
}

// Close closes the channel.
func (bc *ByteChannel) Close() {
	close(bc.byteChan)
}

// get reads the next byte from the channel (or returns an error),
// ignoring any pushed back bytes.
func (bc *ByteChannel) get() (byte, error) {
	if bc.byteChan == nil {
		return 0, ErrNilChannel
	}
	b, more := <-bc.byteChan
	if !more {
		return 0, ErrDone
	}
	return b, nil
}

// GetNextByte gets the next byte from the channel or, if the channel
// has been closed, returns ErrDone.  If bytes have been pushed back,
// it returns the first of them instead.
func (bc *ByteChannel) GetNextByte() (byte, error) {
	if len(bc.pushBackBuffer) > 0 {
		b := bc.pushBackBuffer[0]
		bc.pushBackBuffer = bc.pushBackBuffer[1:]
		return b, nil
	}

	return bc.get()
}

// Read blocks until at least one byte is available and then returns up to
// max bytes without waiting for more.  Pushed back bytes come first.  If the
// channel is closed it returns what it has read so far plus ErrDone.
func (bc *ByteChannel) Read(max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}

	first, err := bc.GetNextByte()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1, max)
	buf[0] = first

	for len(buf) < max {
		if len(bc.pushBackBuffer) > 0 {
			buf = append(buf, bc.pushBackBuffer[0])
			bc.pushBackBuffer = bc.pushBackBuffer[1:]
			continue
		}
		select {
		case b, more := <-bc.byteChan:
			if !more {
				return buf, ErrDone
			}
			buf = append(buf, b)
		default:
			return buf, nil
		}
	}
	return buf, nil
}

// PushBack pushes back a byte - the next call of GetNextByte will read
// from the buffer rather than the channel.
func (bc *ByteChannel) PushBack(b byte) {
	bc.pushBackBuffer = append(bc.pushBackBuffer, b)
}

// PushBackBytes pushes back a sequence of bytes, which will be read in
// order before any bytes pushed back later.
func (bc *ByteChannel) PushBackBytes(buf []byte) {
	bc.pushBackBuffer = append(bc.pushBackBuffer, buf...)
}

// Buffered returns the number of pushed back bytes waiting to be read.
func (bc *ByteChannel) Buffered() int {
	return len(bc.pushBackBuffer)
}
