// Package rtcm3 decodes RTCM version 3 streams.  A message frame is a
// 3-byte leader, an embedded message and a 3-byte CRC.  The leader is 0xd3,
// 6 reserved bits which are always zero and a 10-bit message length.  The
// embedded message starts with a 12-bit message type.
//
// The package also builds streams.  PackPayload packs Fields into an
// embedded message and EncodeFrame wraps it in a frame, which is enough to
// produce test data or feed a caster from a simulator.
package rtcm3

import (
	"fmt"

	"github.com/goblimey/go-crc24q/crc24q"

	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// GetFrame looks for the first complete message frame in buf with a good
// CRC.  It returns the frame and the number of bytes of buf consumed,
// including any junk before the frame.
//
// If there isn't a complete frame, the error is an Underrun and only the
// junk before the start of a possible frame is consumed, so the caller can
// add more bytes and try again.  If a frame fails the CRC check, the error
// is a CRC error and one byte is consumed, so that the next call resumes
// the search just after the bogus start of frame.
func GetFrame(buf []byte) ([]byte, int, error) {
	for start := 0; start < len(buf); start++ {
		if buf[start] != utils.StartOfMessageFrame {
			continue
		}

		if len(buf)-start < utils.LeaderLengthBytes {
			return nil, start, rtcmerr.New(rtcmerr.Underrun, "incomplete message frame leader")
		}

		length, ok := getMessageLength(buf[start:])
		if !ok {
			// The reserved bits are not zero so this is not a frame.
			continue
		}

		frameLength := utils.LeaderLengthBytes + int(length) + utils.CRCLengthBytes
		if len(buf)-start < frameLength {
			return nil, start, rtcmerr.New(rtcmerr.Underrun,
				"incomplete message frame - want %d bytes, got %d", frameLength, len(buf)-start)
		}

		frame := buf[start : start+frameLength]
		if err := CheckCRC(frame); err != nil {
			return nil, start + 1, err
		}

		result := make([]byte, frameLength)
		copy(result, frame)
		return result, start + frameLength, nil
	}

	return nil, len(buf), rtcmerr.New(rtcmerr.Underrun, "no start of message frame")
}

// getMessageLength gets the length of the embedded message from the frame
// leader.  ok is false if the reserved bits are not zero.
func getMessageLength(leader []byte) (uint, bool) {
	// The second byte is 6 reserved bits and the top 2 bits of the length.
	if leader[1]&0xfc != 0 {
		return 0, false
	}
	return uint(utils.GetBitsAsUint64(leader, 14, 10)), true
}

// MessageType returns the type of the message in a frame, or NonRTCMMessage
// if the frame is too short to contain one.
func MessageType(frame []byte) int {
	if len(frame) < utils.LeaderLengthBytes+2 {
		return utils.NonRTCMMessage
	}
	return int(utils.GetBitsAsUint64(frame, utils.LeaderLengthBits, 12))
}

// Payload returns the embedded message from a frame.
func Payload(frame []byte) []byte {
	if len(frame) < utils.LeaderLengthBytes+utils.CRCLengthBytes {
		return nil
	}
	return frame[utils.LeaderLengthBytes : len(frame)-utils.CRCLengthBytes]
}

// CheckCRC checks the CRC of a message frame and returns an error if the
// CRC at the end doesn't match the one calculated from the rest.
func CheckCRC(frame []byte) error {
	if len(frame) < (utils.LeaderLengthBytes + utils.CRCLengthBytes) {
		return rtcmerr.New(rtcmerr.CRC, "cannot check CRC - frame is too short")
	}
	// The CRC is the last three bytes of the message frame.
	// The rest of the frame should produce the same CRC.
	startOfCRC := len(frame) - utils.CRCLengthBytes
	crcHiByte := frame[startOfCRC]
	crcMiByte := frame[startOfCRC+1]
	crcLoByte := frame[startOfCRC+2]

	newCRC := crc24q.Hash(frame[:startOfCRC])

	if crc24q.HiByte(newCRC) != crcHiByte ||
		crc24q.MiByte(newCRC) != crcMiByte ||
		crc24q.LoByte(newCRC) != crcLoByte {

		return rtcmerr.New(rtcmerr.CRC,
			"CRC check failed on message type %d, length 0x%x - given %2x %2x %2x, calculated %2x %2x %2x",
			MessageType(frame), startOfCRC-utils.LeaderLengthBytes,
			crcHiByte, crcMiByte, crcLoByte,
			crc24q.HiByte(newCRC), crc24q.MiByte(newCRC), crc24q.LoByte(newCRC),
		)
	}

	return nil
}

// Framer splits a byte stream into message frames, keeping any incomplete
// frame until more bytes arrive.
type Framer struct {
	buffer []byte
}

// Add adds bytes to the end of the input.
func (f *Framer) Add(buf []byte) {
	f.buffer = append(f.buffer, buf...)
}

// Next returns the next good frame.  An Underrun error means that the
// input is used up.  Any other error reports a discarded frame and the
// caller can call Next again.
func (f *Framer) Next() ([]byte, error) {
	frame, n, err := GetFrame(f.buffer)
	f.buffer = f.buffer[n:]
	return frame, err
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (f *Framer) Buffered() int {
	return len(f.buffer)
}

// Reset discards any buffered input.
func (f *Framer) Reset() {
	f.buffer = nil
}

func (f *Framer) String() string {
	return fmt.Sprintf("framer with %d bytes buffered", len(f.buffer))
}
