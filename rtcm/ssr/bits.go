package ssr

import (
	"math"

	"github.com/bamiaux/iobit"
	"github.com/goblimey/go-crc24q/crc24q"

	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// maxPayload is the largest embedded message that a frame can carry.
const maxPayload = 1023

// payloadWriter packs fields MSB first into an embedded message.  The first
// error sticks and later writes are ignored.
type payloadWriter struct {
	buf  []byte
	w    iobit.Writer
	bits uint
	err  error
}

func newPayloadWriter() *payloadWriter {
	// iobit flushes whole 64-bit words so leave room for the last one.
	buf := make([]byte, maxPayload+8)
	return &payloadWriter{buf: buf, w: iobit.NewWriter(buf)}
}

func (p *payloadWriter) put(n uint, v uint64) {
	if p.err != nil || n == 0 {
		return
	}
	if p.bits+n > 8*maxPayload {
		p.err = rtcmerr.New(rtcmerr.Range, "message is longer than %d bytes", maxPayload)
		return
	}
	p.w.PutUint64(n, v&(uint64(1)<<n-1))
	p.bits += n
}

// putScaled multiplies value by scale, rounds it to the nearest integer and
// writes it as an n-bit two's complement field.
func (p *payloadWriter) putScaled(n uint, scale, value float64, name string) {
	if p.err != nil {
		return
	}
	v := math.Round(value * scale)
	limit := math.Ldexp(1, int(n-1))
	if math.IsNaN(v) || v < -limit || v >= limit {
		p.err = rtcmerr.New(rtcmerr.Range, "%s %g does not fit in %d bits", name, value, n)
		return
	}
	p.put(n, uint64(int64(v)))
}

// frame flushes the writer and wraps the message in a frame.
func (p *payloadWriter) frame() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	// iobit only writes whole bytes, so pad the last one with zeros.
	if rem := p.w.Index() % 8; rem != 0 {
		p.w.PutUint32(uint(8-rem), 0)
	}
	if err := p.w.Flush(); err != nil {
		return nil, rtcmerr.Wrap(rtcmerr.Range, err, "packing the message")
	}
	payload := p.buf[:(p.bits+7)/8]

	frame := make([]byte, 0, utils.LeaderLengthBytes+len(payload)+utils.CRCLengthBytes)
	frame = append(frame, utils.StartOfMessageFrame,
		byte(len(payload)>>8)&0x03, byte(len(payload)&0xff))
	frame = append(frame, payload...)
	crc := crc24q.Hash(frame)
	return append(frame, crc24q.HiByte(crc), crc24q.MiByte(crc), crc24q.LoByte(crc)), nil
}

// payloadReader reads MSB-first fields.  A read past the end returns zero
// and sets short.
type payloadReader struct {
	r     iobit.Reader
	left  uint
	short bool
}

func newPayloadReader(payload []byte) *payloadReader {
	return &payloadReader{r: iobit.NewReader(payload), left: uint(8 * len(payload))}
}

func (p *payloadReader) uint(n uint) int {
	if p.short || n > p.left {
		p.short = true
		return 0
	}
	p.left -= n
	return int(p.r.Uint64(n))
}

func (p *payloadReader) skip(n uint) {
	p.uint(n)
}

// scaled reads an n-bit two's complement field and divides it by scale.
func (p *payloadReader) scaled(n uint, scale float64) float64 {
	u := uint64(p.uint(n))
	shift := 64 - n
	return float64(int64(u<<shift)>>shift) / scale
}
