package rtcm3

import (
	"github.com/bamiaux/iobit"
	"github.com/goblimey/go-crc24q/crc24q"

	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Field is a value to be packed into an embedded message.  Signed values
// are held as their two's complement bit pattern.
type Field struct {
	Bits  uint
	Value uint64
}

// Unsigned makes a Field from an unsigned value.
func Unsigned(bits uint, value uint64) Field {
	if bits >= 64 {
		return Field{Bits: bits, Value: value}
	}
	return Field{Bits: bits, Value: value & (uint64(1)<<bits - 1)}
}

// Signed makes a Field from a signed value.
func Signed(bits uint, value int64) Field {
	return Unsigned(bits, uint64(value))
}

// SignMagnitude makes a Field with the sign in the top bit.
func SignMagnitude(bits uint, value int64) Field {
	if value < 0 {
		return Unsigned(bits, uint64(1)<<(bits-1)|uint64(-value))
	}
	return Unsigned(bits, uint64(value))
}

// String makes the fields for an 8-bit count followed by the characters.
func String(s string) []Field {
	fields := []Field{Unsigned(8, uint64(len(s)))}
	for i := 0; i < len(s); i++ {
		fields = append(fields, Unsigned(8, uint64(s[i])))
	}
	return fields
}

// PackPayload packs the fields MSB first, padding the last byte with zeros.
// The result is an embedded message ready for EncodeFrame.
func PackPayload(fields ...Field) []byte {
	var total uint
	for _, f := range fields {
		total += f.Bits
	}
	n := int(total+7) / 8
	// iobit writes whole 64-bit words so leave room for the last one.
	buf := make([]byte, n+8)

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

	return buf[:n]
}

// EncodeFrame wraps an embedded message in a frame: the leader, the message
// and the CRC.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, 0, utils.LeaderLengthBytes+len(payload)+utils.CRCLengthBytes)
	frame = append(frame, utils.StartOfMessageFrame,
		byte(len(payload)>>8)&0x03, byte(len(payload)&0xff))
	frame = append(frame, payload...)

	crc := crc24q.Hash(frame)
	frame = append(frame, crc24q.HiByte(crc), crc24q.MiByte(crc), crc24q.LoByte(crc))
	return frame
}
