package rtcm2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPackFieldsPartialByte checks fields that end part way through a byte
// and part way through a word.
func TestPackFieldsPartialByte(t *testing.T) {
	words := PackFields(Unsigned(12, 0xabc), Unsigned(4, 0xd), Unsigned(5, 0x1f))
	assert.Equal(t, []uint32{0xabcdf8}, words)

	words = PackFields(Signed(20, -1), Unsigned(7, 0x55))
	assert.Equal(t, []uint32{0xfffffa, 0xa00000}, words)
}
