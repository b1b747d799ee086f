// Package rtcm2 decodes RTCM version 2 streams.  Each 30-bit word travels
// in five bytes, six bits to a byte, with GPS-style parity chained from one
// word to the next.
//
// The package also builds streams.  PackFields packs Fields into data words
// and an Encoder turns them into the bytes of a message, so that callers
// can produce test data or simulate a reference station.
package rtcm2

import (
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// BytesPerWord is the number of transmitted bytes that carry one 30-bit word.
const BytesPerWord = 5

// swap reverses the order of the low six bits of a byte.  It's its own
// inverse, so it serves for both decoding and encoding.
var swap = [64]byte{
	0, 32, 16, 48, 8, 40, 24, 56, 4, 36, 20, 52, 12, 44, 28, 60,
	2, 34, 18, 50, 10, 42, 26, 58, 6, 38, 22, 54, 14, 46, 30, 62,
	1, 33, 17, 49, 9, 41, 25, 57, 5, 37, 21, 53, 13, 45, 29, 61,
	3, 35, 19, 51, 11, 43, 27, 59, 7, 39, 23, 55, 15, 47, 31, 63,
}

// byteParity is 1 if a byte has an odd number of bits set.
var byteParity = [256]byte{
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1,
	1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0,
}

// parityMasks select the bits that contribute to parity bits D25 to D30,
// per ICD-GPS-200.  Bit 31 is D29* and bit 30 is D30* of the previous word.
var parityMasks = [6]uint32{
	0xBB1F3480,
	0x5D8F9A40,
	0xAEC7CD00,
	0x5763E680,
	0x6BB1F340,
	0x8B7A89C0,
}

const (
	d30Star      = 0x40000000
	dataBitsMask = 0x3FFFFFC0
	wordMask     = 0x3FFFFFFF
	badByteMask  = 0x1F
)

// ThirtyBitWord is a shift register holding the last 30-bit word received
// plus the two parity bits of the word before it.  The parity bits D29* and
// D30* of the previous word are needed to check the parity of the current
// word and D30* says whether its data bits are inverted.
type ThirtyBitWord struct {
	// W holds D29* and D30* in bits 31 and 30 and the current word in
	// bits 29 to 0.
	W uint32
	// badBytes has a bit set for each of the last five bytes that failed
	// the "01" check.
	badBytes uint8
	// filled counts the bytes appended since the last Reset, up to a
	// whole word.  An all-zero register is a valid word once it's full.
	filled int
}

// Reset clears the word and the parity bits of the previous word.
func (w *ThirtyBitWord) Reset() {
	w.W = 0
	w.badBytes = 0
	w.filled = 0
}

// Append shifts in the six data bits of a transmitted byte.  The top two
// bits of a valid byte are "01".  A byte that fails that check marks the
// word that contains it as failed.
func (w *ThirtyBitWord) Append(b byte) {
	var bad uint8
	if b&0xC0 != 0x40 {
		bad = 1
	}
	w.badBytes = ((w.badBytes << 1) | bad) & badByteMask
	w.W = (w.W << 6) | uint32(swap[b&0x3f])
	if w.filled < BytesPerWord {
		w.filled++
	}
}

// Failed returns true if any of the bytes making up the current word failed
// the "01" check.
func (w *ThirtyBitWord) Failed() bool {
	return w.badBytes != 0
}

// ComputeParity returns the six parity bits of the given 32-bit register,
// using the 24 data bits of the word and D29* and D30*.  The data bits must
// not be inverted: if D30* is set, the caller flips them first.
func ComputeParity(w uint32) uint32 {
	var p uint32
	for _, mask := range parityMasks {
		t := w & mask
		bit := byteParity[t&0xff] ^ byteParity[(t>>8)&0xff] ^
			byteParity[(t>>16)&0xff] ^ byteParity[t>>24]
		p = (p << 1) | uint32(bit)
	}
	return p
}

// ValidParity recomputes the parity of the current word and compares it
// with the received parity bits.
func (w *ThirtyBitWord) ValidParity() bool {
	if w.filled < BytesPerWord || w.Failed() {
		return false
	}
	corrected := w.W
	if corrected&d30Star != 0 {
		corrected ^= dataBitsMask
	}
	return w.W&0x3f == ComputeParity(corrected)
}

// Value returns the current word with its data bits sign corrected, or 0
// if the parity check fails.  Bits 29 to 6 are the data bits d1 to d24 and
// bits 5 to 0 the parity.
func (w *ThirtyBitWord) Value() uint32 {
	if !w.ValidParity() {
		return 0
	}
	v := w.W
	if v&d30Star != 0 {
		v ^= dataBitsMask
	}
	return v & wordMask
}

// IsHeader returns true if the current word is valid and starts with the
// preamble.
func (w *ThirtyBitWord) IsHeader() bool {
	return (w.Value()>>22)&0xff == utils.MessageType2PreambleHeaderTag
}

// Get shifts in the next five bytes of buf.  It returns an underrun error,
// leaving the word unchanged, if buf is too short, and a parity error if
// the resulting word is not valid.
func (w *ThirtyBitWord) Get(buf []byte) error {
	if len(buf) < BytesPerWord {
		return rtcmerr.New(rtcmerr.Underrun, "need %d bytes for a word, got %d", BytesPerWord, len(buf))
	}
	for i := 0; i < BytesPerWord; i++ {
		w.Append(buf[i])
	}
	if !w.ValidParity() {
		return rtcmerr.New(rtcmerr.Parity, "parity failure in word 0x%08x", w.W)
	}
	return nil
}

// GetHeader shifts in bytes from buf one at a time until the word is a
// valid header word.  It returns the number of bytes consumed.  If the
// buffer runs out first it returns the length of the buffer and an
// underrun error.  The word keeps the bytes it has seen, so a later call
// can complete a header that started in this buffer.
func (w *ThirtyBitWord) GetHeader(buf []byte) (int, error) {
	for i, b := range buf {
		w.Append(b)
		if w.IsHeader() {
			return i + 1, nil
		}
	}
	return len(buf), rtcmerr.New(rtcmerr.Underrun, "no header word in %d bytes", len(buf))
}

// EncodeWord builds the 30-bit transmitted form of 24 data bits, given the
// previous transmitted word (only its two parity bits are used).  The data
// bits are inverted if the previous word's D30 is set.
func EncodeWord(data uint32, previous uint32) uint32 {
	data &= 0xFFFFFF
	reg := (previous&3)<<30 | data<<6
	parity := ComputeParity(reg)
	transmitted := data
	if previous&1 != 0 {
		transmitted ^= 0xFFFFFF
	}
	return transmitted<<6 | parity
}

// WordBytes returns the five bytes that carry a transmitted 30-bit word.
func WordBytes(word uint32) []byte {
	result := make([]byte, BytesPerWord)
	for i := 0; i < BytesPerWord; i++ {
		chunk := (word >> uint(24-6*i)) & 0x3f
		result[i] = 0x40 | swap[chunk]
	}
	return result
}
