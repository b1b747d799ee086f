package rtcm2

import (
	"github.com/bamiaux/iobit"

	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Field is a value to be packed into the data words of a message.  Signed
// values are given as their two's complement bit pattern.
type Field struct {
	Bits  uint
	Value uint64
}

// Signed makes a Field from a signed value.
func Signed(bits uint, value int64) Field {
	return Field{Bits: bits, Value: uint64(value) & (uint64(1)<<bits - 1)}
}

// Unsigned makes a Field from an unsigned value.
func Unsigned(bits uint, value uint64) Field {
	return Field{Bits: bits, Value: value & (uint64(1)<<bits - 1)}
}

// PackFields packs the fields MSB first into 24-bit data words, padding the
// last word with zeros.  A field holds at most 64 bits.
func PackFields(fields ...Field) []uint32 {
	var total uint
	for _, f := range fields {
		total += f.Bits
	}
	nWords := (total + 23) / 24
	buf := make([]byte, 3*nWords+8)

	w := iobit.NewWriter(buf)
	for _, f := range fields {
		if f.Bits == 0 {
			continue
		}
		w.PutUint64(f.Bits, f.Value)
	}
	// iobit only writes whole bytes.
	if rem := w.Index() % 8; rem != 0 {
		w.PutUint32(uint(8-rem), 0)
	}
	if err := w.Flush(); err != nil {
		// The buffer is sized from the fields so this can't happen.
		panic(err)
	}

	words := make([]uint32, nWords)
	for i := range words {
		words[i] = uint32(buf[3*i])<<16 | uint32(buf[3*i+1])<<8 | uint32(buf[3*i+2])
	}
	return words
}

// Encoder produces an RTCM version 2 byte stream.  It remembers the last
// word sent so that the parity of successive words chains correctly.
type Encoder struct {
	last uint32
}

// Encode returns the bytes of one message carrying the given 24-bit data
// words.
func (e *Encoder) Encode(messageType int, stationID, modZCount, seq, health uint, data []uint32) []byte {
	h1 := uint32(utils.MessageType2PreambleHeaderTag)<<16 |
		uint32(messageType&0x3f)<<10 | uint32(stationID&0x3ff)
	h2 := uint32(modZCount&0x1fff)<<11 | uint32(seq&7)<<8 |
		uint32(len(data)&0x1f)<<3 | uint32(health&7)

	result := make([]byte, 0, BytesPerWord*(2+len(data)))
	for _, d := range append([]uint32{h1, h2}, data...) {
		word := EncodeWord(d, e.last)
		result = append(result, WordBytes(word)...)
		e.last = word
	}
	return result
}
