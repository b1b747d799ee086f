package utils

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestGetBitsAsUint64 checks GetBitsAsUint64 over fields that do and do not
// cross byte boundaries.
func TestGetBitsAsUint64(t *testing.T) {
	bitStream := []byte{0xd3, 0x00, 0x13, 0x3e, 0xd7, 0xd3, 0x02}

	var testData = []struct {
		description string
		pos         uint
		len         uint
		want        uint64
	}{
		{"first byte", 0, 8, 0xd3},
		{"reserved bits", 8, 6, 0},
		{"frame length", 14, 10, 0x13},
		{"message type", 24, 12, 1005},
		{"single bit", 0, 1, 1},
		{"nothing", 3, 0, 0},
	}

	for _, td := range testData {
		got := GetBitsAsUint64(bitStream, td.pos, td.len)
		if got != td.want {
			t.Errorf("%s: want 0x%x, got 0x%x", td.description, td.want, got)
		}
	}
}

// TestGetBitsAsInt64 checks that two's complement values are sign-extended.
func TestGetBitsAsInt64(t *testing.T) {
	var testData = []struct {
		description string
		bitStream   []byte
		pos         uint
		len         uint
		want        int64
	}{
		{"minus one in 4 bits", []byte{0xf0}, 0, 4, -1},
		{"plus seven in 4 bits", []byte{0x70}, 0, 4, 7},
		{"minus eight in 4 bits", []byte{0x80}, 0, 4, -8},
		{"minus one across bytes", []byte{0x0f, 0xf0}, 4, 8, -1},
		{"38 bit negative", []byte{0xff, 0xff, 0xff, 0xff, 0xfc}, 0, 38, -1},
	}

	for _, td := range testData {
		got := GetBitsAsInt64(td.bitStream, td.pos, td.len)
		if got != td.want {
			t.Errorf("%s: want %d, got %d", td.description, td.want, got)
		}
	}
}

// TestGetSignMagnitude checks the sign-magnitude extraction used for GLONASS
// ephemeris fields.
func TestGetSignMagnitude(t *testing.T) {
	var testData = []struct {
		description string
		bitStream   []byte
		want        int64
	}{
		{"positive", []byte{0x05}, 5},
		{"negative", []byte{0x85}, -5},
		{"negative zero", []byte{0x80}, 0},
	}

	for _, td := range testData {
		got := GetSignMagnitude(td.bitStream, 0, 8)
		if got != td.want {
			t.Errorf("%s: want %d, got %d", td.description, td.want, got)
		}
	}
}

// TestBitsAvailable checks the overrun error.
func TestBitsAvailable(t *testing.T) {
	bitStream := make([]byte, 4)

	if err := BitsAvailable(bitStream, 20, 12, 1005); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	err := BitsAvailable(bitStream, 20, 13, 1005)
	if err == nil {
		t.Fatal("expected an error")
	}
	want := "overrun - expected 33 bits in a message type 1005, got 32"
	if err.Error() != want {
		t.Errorf("want %s, got %s", want, err.Error())
	}
}

// TestSignExtensionProperty checks that every value that fits in a field
// survives a round trip through the bit stream.
func TestSignExtensionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.UintRange(2, 38).Draw(t, "length")
		offset := rapid.UintRange(0, 7).Draw(t, "offset")
		limit := int64(1) << (length - 1)
		value := rapid.Int64Range(-limit, limit-1).Draw(t, "value")

		bitStream := make([]byte, 8)
		u := uint64(value) & ((uint64(1) << length) - 1)
		for i := uint(0); i < length; i++ {
			bit := (u >> (length - 1 - i)) & 1
			pos := offset + i
			bitStream[pos/8] |= byte(bit << (7 - pos%8))
		}

		if got := GetBitsAsInt64(bitStream, offset, length); got != value {
			t.Fatalf("signed: want %d, got %d", value, got)
		}
		if got := GetBitsAsUint64(bitStream, offset, length); got != u {
			t.Fatalf("unsigned: want 0x%x, got 0x%x", u, got)
		}
	})
}

// TestGPSWeekAndSeconds checks the conversion from UTC to GPS time and back.
func TestGPSWeekAndSeconds(t *testing.T) {
	// Sunday 2020-11-15 00:00:00 UTC is the start of GPS week 2132 less the
	// leap seconds.
	utc := time.Date(2020, time.November, 15, 0, 0, 0, 0, time.UTC)

	week, secs := GPSWeekAndSeconds(utc, GPSLeapSeconds)
	if week != 2132 {
		t.Errorf("want week 2132, got %d", week)
	}
	if !EqualWithin(3, float64(GPSLeapSeconds), secs) {
		t.Errorf("want %d seconds, got %f", GPSLeapSeconds, secs)
	}

	back := GPSTimeToUTC(week, secs, GPSLeapSeconds)
	if !back.Equal(utc) {
		t.Errorf("want %v, got %v", utc, back)
	}
}

// TestGlonassWavelength checks the frequency channel arithmetic.
func TestGlonassWavelength(t *testing.T) {
	// Channel 0 is the base frequency.
	if !EqualWithin(6, SpeedOfLightMS/FreqL1Glonass, GlonassWavelengthL1(0)) {
		t.Error("channel 0 L1 wavelength wrong")
	}
	// Higher channels have shorter wavelengths.
	if GlonassWavelengthL2(6) >= GlonassWavelengthL2(-7) {
		t.Error("L2 wavelength should decrease with channel number")
	}
}

// TestEqualWithin checks the EqualWithin test helper function.
func TestEqualWithin(t *testing.T) {

	var testData = []struct {
		N    uint
		F1   float64
		F2   float64
		Want bool
	}{
		{0, 100.1, 100.04, true},
		{1, 0.01, 0.04, true},
		{1, 0.01, 0.09, false}, // 0.09 will b rounded up to 0.1.
		{1, 0.5, 0.6, false},
		{2, 1.111, 1.113, true},
		{3, 9.9991, 9.9992, true},
	}

	for _, td := range testData {
		got := EqualWithin(td.N, td.F1, td.F2)

		if got != td.Want {
			t.Errorf("%d %f %f: want %v, got %v",
				td.N, td.F1, td.F2, td.Want, got)
		}
	}
}

// TestGetTitle checks the title lookup.
func TestGetTitle(t *testing.T) {
	if GetTitle(MessageType1005) != "Stationary RTK Reference Station ARP" {
		t.Errorf("wrong title for 1005: %s", GetTitle(MessageType1005))
	}
	if GetTitle(9999) != "" {
		t.Error("expected an empty title for an unknown type")
	}
}
