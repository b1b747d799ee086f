package rtcm3

import (
	"github.com/bamiaux/iobit"

	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
)

// bitReader reads MSB-first fields from an embedded message.  A read that
// would run off the end returns zero and the overrun is reported by err.
type bitReader struct {
	r           iobit.Reader
	messageType int
	pos         uint
	total       uint
	overrun     uint
}

func newBitReader(payload []byte) *bitReader {
	return &bitReader{r: iobit.NewReader(payload), total: uint(8 * len(payload))}
}

func (b *bitReader) available(n uint) bool {
	if b.overrun > 0 || b.pos+n > b.total {
		if b.overrun == 0 {
			b.overrun = b.pos + n
		}
		return false
	}
	b.pos += n
	return true
}

// uint reads an unsigned field of up to 64 bits.
func (b *bitReader) uint(n uint) uint64 {
	if !b.available(n) {
		return 0
	}
	return b.r.Uint64(n)
}

// int reads a two's complement field.
func (b *bitReader) int(n uint) int64 {
	u := b.uint(n)
	if n == 0 || n >= 64 {
		return int64(u)
	}
	shift := 64 - n
	return int64(u<<shift) >> shift
}

// signMagnitude reads a field whose top bit is the sign.
func (b *bitReader) signMagnitude(n uint) int64 {
	sign := b.uint(1)
	magnitude := int64(b.uint(n - 1))
	if sign == 1 {
		return -magnitude
	}
	return magnitude
}

func (b *bitReader) flag() bool {
	return b.uint(1) == 1
}

func (b *bitReader) skip(n uint) {
	if b.available(n) {
		b.r.Skip(n)
	}
}

// str reads an 8-bit character count followed by the characters.
func (b *bitReader) str() string {
	n := int(b.uint(8))
	chars := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		chars = append(chars, byte(b.uint(8)))
	}
	return string(chars)
}

func (b *bitReader) err() error {
	if b.overrun == 0 {
		return nil
	}
	return rtcmerr.New(rtcmerr.Range, "overrun - expected %d bits in a message type %d, got %d",
		b.overrun, b.messageType, b.total)
}
