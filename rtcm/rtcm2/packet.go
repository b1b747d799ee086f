package rtcm2

import (
	"fmt"

	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
)

// Packet is an RTCM version 2 message: two header words and up to 31 data
// words, each holding the sign corrected 30-bit value including parity.
type Packet struct {
	H1 uint32
	H2 uint32
	DW []uint32
}

// Valid is true if the packet holds a message whose header and data words
// all passed the parity check.
func (p *Packet) Valid() bool {
	return p != nil && p.H1 != 0
}

// Clear empties the packet.
func (p *Packet) Clear() {
	p.H1 = 0
	p.H2 = 0
	p.DW = nil
}

// MessageType returns the message type (1 to 63) from header 1.
func (p *Packet) MessageType() int {
	return int(p.H1 >> 16 & 0x3f)
}

// StationID returns the reference station ID (0 to 1023) from header 1.
func (p *Packet) StationID() uint {
	return uint(p.H1 >> 6 & 0x3ff)
}

// ModZCount returns the modified Z-count from header 2, in units of 0.6
// seconds within the hour.
func (p *Packet) ModZCount() uint {
	return uint(p.H2 >> 17 & 0x1fff)
}

// SeqNumber returns the sequence number from header 2.
func (p *Packet) SeqNumber() uint {
	return uint(p.H2 >> 14 & 0x7)
}

// NDataWords returns the number of data words given by header 2.
func (p *Packet) NDataWords() int {
	return int(p.H2 >> 9 & 0x1f)
}

// StationHealth returns the station health from header 2.
func (p *Packet) StationHealth() uint {
	return uint(p.H2 >> 6 & 0x3)
}

// String returns a readable summary of the headers.
func (p *Packet) String() string {
	return fmt.Sprintf("message type %d, station %d, z-count %d, sequence %d, %d data words, health %d\n",
		p.MessageType(), p.StationID(), p.ModZCount(), p.SeqNumber(), p.NDataWords(), p.StationHealth())
}

// GetUnsignedBits returns n bits (at most 32) starting at bit start of the
// data words, counting from the most significant data bit of the first data
// word.  Each data word holds 24 data bits.
func (p *Packet) GetUnsignedBits(start, n uint) (uint32, error) {
	if n > 32 {
		return 0, rtcmerr.New(rtcmerr.Range, "can't handle %d bits, the limit is 32", n)
	}
	if start+n > 24*uint(len(p.DW)) {
		return 0, rtcmerr.New(rtcmerr.Range, "packet too short - bits %d to %d requested, %d available",
			start, start+n, 24*len(p.DW))
	}
	if n == 0 {
		return 0, nil
	}

	first := start / 24
	last := (start + n - 1) / 24
	// A field spans at most three words.  Bits beyond 64 that fall off the
	// top belong to the first word, before the start of the field.
	var v uint64
	for i := first; i <= last; i++ {
		v = v<<24 | uint64(p.DW[i]>>6&0xffffff)
	}
	shift := (last-first+1)*24 - start%24 - n
	return uint32((v >> shift) & (uint64(1)<<n - 1)), nil
}

// GetBits returns n bits starting at bit start as a two's complement value.
func (p *Packet) GetBits(start, n uint) (int32, error) {
	u, err := p.GetUnsignedBits(start, n)
	if err != nil || n == 0 {
		return 0, err
	}
	return int32(u<<(32-n)) >> (32 - n), nil
}

// fieldReader reads a series of fields from a packet, remembering the
// first error so that a decoder can read all its fields and check once.
type fieldReader struct {
	p   *Packet
	err error
}

func (r *fieldReader) u(start, n uint) uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.p.GetUnsignedBits(start, n)
	r.err = err
	return v
}

func (r *fieldReader) s(start, n uint) int32 {
	if r.err != nil {
		return 0
	}
	v, err := r.p.GetBits(start, n)
	r.err = err
	return v
}

// GetPacket extracts the next packet from buf, using and updating the word
// shift register w.  It returns the packet and the number of bytes of buf
// consumed.
//
// If buf holds no header word, every byte is consumed (the register keeps
// the partial word) and an underrun error is returned.  If buf runs out in
// the middle of the packet, nothing is consumed, w is restored and an
// underrun error is returned, so the caller can try again with more bytes.
// If a word of the packet fails the parity check, the packet is discarded,
// the bytes up to the end of header 1 are consumed and a parity error is
// returned, so that the next call resumes the search just after the
// false header.
func GetPacket(buf []byte, w *ThirtyBitWord) (*Packet, int, error) {
	saved := *w

	consumed, err := w.GetHeader(buf)
	if err != nil {
		return nil, consumed, err
	}
	afterHeader := *w
	headerEnd := consumed

	p := Packet{H1: w.Value()}

	if err := w.Get(buf[consumed:]); err != nil {
		c, err := restore(w, err, saved, afterHeader, headerEnd)
		return nil, c, err
	}
	p.H2 = w.Value()
	consumed += BytesPerWord

	n := p.NDataWords()
	p.DW = make([]uint32, n)
	for i := 0; i < n; i++ {
		if err := w.Get(buf[consumed:]); err != nil {
			c, err := restore(w, err, saved, afterHeader, headerEnd)
			return nil, c, err
		}
		p.DW[i] = w.Value()
		consumed += BytesPerWord
	}

	return &p, consumed, nil
}

// restore puts the word register back after a failure and returns the
// number of bytes consumed.
func restore(w *ThirtyBitWord, err error, saved, afterHeader ThirtyBitWord, headerEnd int) (int, error) {
	if rtcmerr.Is(err, rtcmerr.Underrun) {
		*w = saved
		return 0, err
	}
	*w = afterHeader
	return headerEnd, err
}
