package rtcm3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPackPayloadPartialByte checks that fields ending part way through a
// byte are written, with the rest of the byte zero.
func TestPackPayloadPartialByte(t *testing.T) {
	payload := PackPayload(Unsigned(12, 1005), Unsigned(3, 5))
	assert.Equal(t, []byte{0x3e, 0xda}, payload)

	payload = PackPayload(Unsigned(12, 1013), Signed(1, -1))
	require.Len(t, payload, 2)
	assert.Equal(t, byte(0x58), payload[1])

	payload = PackPayload(Unsigned(12, 1019), Signed(22, -12345), Unsigned(5, 17))
	require.Len(t, payload, 5)
	r := newBitReader(payload)
	assert.Equal(t, uint64(1019), r.uint(12))
	assert.Equal(t, int64(-12345), r.int(22))
	assert.Equal(t, uint64(17), r.uint(5))
	assert.Zero(t, r.overrun)
}

func TestEncodeFrameLength(t *testing.T) {
	frame := EncodeFrame(PackPayload(Unsigned(12, 1005), Unsigned(3, 5)))
	require.Len(t, frame, 2+6)
	assert.Equal(t, []byte{0xd3, 0x00, 0x02}, frame[:3])
}
