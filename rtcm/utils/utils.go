// the utils package contains constants, bit extraction helpers and GNSS time
// functions shared by the RTCM version 2 and version 3 decoders.
package utils

import (
	"fmt"
	"math"
	"time"
)

// StartOfMessageFrame is the value of the byte that starts an RTCM3 message frame.
const StartOfMessageFrame byte = 0xd3

// The message type is 12 bits unsigned.
const MaxMessageType = 4095

// MaxFrameLength is the largest payload length that fits in the 10-bit
// length field of an RTCM3 frame header.
const MaxFrameLength = 1023

// NonRTCMMessage indicates a Message that does not contain RTCM data.
const NonRTCMMessage = -1

// LeaderLengthBytes is the length of the RTCM3 frame leader in bytes.
const LeaderLengthBytes = 3

// LeaderLengthBits is the length of the RTCM3 frame leader in bits.
const LeaderLengthBits = LeaderLengthBytes * 8

// CRCLengthBytes is the length of the Cyclic Redundancy check value in bytes.
const CRCLengthBytes = 3

// CRCLengthBits is the length of the Cyclic Redundancy check value in bits.
const CRCLengthBits = CRCLengthBytes * 8

// RTCM2 message types.
const (
	MessageType2ReferenceStation  = 3
	MessageType2CarrierPhase      = 18
	MessageType2Pseudorange       = 19
	MessageType2PhaseCorrection   = 20
	MessageType2RangeCorrection   = 21
	MessageType2AntennaOffset     = 22
	MessageType2AntennaType       = 23
	MessageType2AntennaRefPoint   = 24
	MessageType2MaxType           = 63
	MessageType2PreambleHeaderTag = 0x66
)

// RTCM3 message types.
const (
	MessageType1001 = 1001 // L1-only GPS RTK observables.
	MessageType1002 = 1002 // Extended L1-only GPS RTK observables.
	MessageType1003 = 1003 // L1/L2 GPS RTK observables.
	MessageType1004 = 1004 // Extended L1/L2 GPS RTK observables.
	MessageType1005 = 1005 // Base position.
	MessageType1006 = 1006 // Base position and height.
	MessageType1007 = 1007 // Antenna descriptor.
	MessageType1008 = 1008 // Antenna descriptor and serial number.
	MessageType1009 = 1009 // L1-only GLONASS RTK observables.
	MessageType1010 = 1010 // Extended L1-only GLONASS RTK observables.
	MessageType1011 = 1011 // L1/L2 GLONASS RTK observables.
	MessageType1012 = 1012 // Extended L1/L2 GLONASS RTK observables.
	MessageType1019 = 1019 // GPS ephemeris.
	MessageType1020 = 1020 // GLONASS ephemeris.
	MessageType1033 = 1033 // Receiver and antenna descriptors.
)

// SSR message types.
const (
	MessageTypeSSRGPSOrbit              = 1057
	MessageTypeSSRGPSClock              = 1058
	MessageTypeSSRGPSBias               = 1059
	MessageTypeSSRGPSCombined           = 1060
	MessageTypeSSRGPSURA                = 1061
	MessageTypeSSRGPSHR                 = 1062
	MessageTypeSSRGlonassOrbit          = 1063
	MessageTypeSSRGlonassClock          = 1064
	MessageTypeSSRGlonassBias           = 1065
	MessageTypeSSRGlonassCombined       = 1066
	MessageTypeSSRGlonassURA            = 1067
	MessageTypeSSRGlonassHR             = 1068
	MessageTypeSSRLegacyGPSOrbit        = 4050
	MessageTypeSSRLegacyGPSClock        = 4051
	MessageTypeSSRLegacyGPSBias         = 4052
	MessageTypeSSRLegacyGPSCombined     = 4053
	MessageTypeSSRLegacyGlonassOrbit    = 4054
	MessageTypeSSRLegacyGlonassClock    = 4055
	MessageTypeSSRLegacyGlonassBias     = 4056
	MessageTypeSSRLegacyGlonassCombined = 4057
)

// SpeedOfLightMS is the speed of light in a vacuum in metres per second.
const SpeedOfLightMS = 299792458.0

// OneLightMillisecond is the distance in metres traveled by light in one
// millisecond.  The value can be used to convert a range in milliseconds to a
// distance in metres.  The speed of light is 299792458.0 metres/second.
const OneLightMillisecond float64 = 299792.458

// Freq1 is the GPS L1 carrier frequency in Hz.
const Freq1 float64 = 1.57542e9

// Freq2 is the GPS L2 carrier frequency in Hz.
const Freq2 float64 = 1.22760e9

// FreqL1Glonass is the GLONASS G1 base frequency (Hz).
const FreqL1Glonass float64 = 1.60200e9

// BiasFreq1Glo is the GLONASS G1 bias frequency (Hz/n).
const BiasFreq1Glo float64 = 0.56250e6

// FreqL2Glonass is the GLONASS G2 base frequency (Hz).
const FreqL2Glonass float64 = 1.24600e9

// BiasFreq2Glo is the GLONASS G2 bias frequency (Hz/n).
const BiasFreq2Glo float64 = 0.43750e6

// WavelengthL1 is the GPS L1 carrier wavelength in metres.
const WavelengthL1 = SpeedOfLightMS / Freq1

// WavelengthL2 is the GPS L2 carrier wavelength in metres.
const WavelengthL2 = SpeedOfLightMS / Freq2

// SecondsInWeek is the length of a GPS week.
const SecondsInWeek = 604800

// SecondsInDay is the length of a day.
const SecondsInDay = 86400

// SecondsInHour is the length of an hour.
const SecondsInHour = 3600

// GPSLeapSeconds is the default offset between GPS time and UTC.  GPS
// time has been 18 seconds ahead of UTC since 2017.
const GPSLeapSeconds = 18

// GlonassTimeOffsetSeconds is the offset of GLONASS (Moscow) time from UTC.
const GlonassTimeOffsetSeconds = 3 * SecondsInHour

// DateLayout is the layout used to display timestamps.
const DateLayout = "2006-01-02 15:04:05.999 -0700 MST"

// GPSEpoch is the start of GPS week zero.
var GPSEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// GlonassWavelengthL1 returns the G1 wavelength for the given GLONASS
// frequency channel number (-7 to +6).
func GlonassWavelengthL1(channel int) float64 {
	return SpeedOfLightMS / (FreqL1Glonass + float64(channel)*BiasFreq1Glo)
}

// GlonassWavelengthL2 returns the G2 wavelength for the given GLONASS
// frequency channel number.
func GlonassWavelengthL2(channel int) float64 {
	return SpeedOfLightMS / (FreqL2Glonass + float64(channel)*BiasFreq2Glo)
}

// GPSWeekAndSeconds converts a UTC time to a GPS week number and seconds
// into the week, given the current number of leap seconds.
func GPSWeekAndSeconds(t time.Time, leapSeconds int) (int, float64) {
	gpsTime := t.UTC().Add(time.Duration(leapSeconds) * time.Second)
	elapsed := gpsTime.Sub(GPSEpoch)
	week := int(elapsed / (SecondsInWeek * time.Second))
	remainder := elapsed - time.Duration(week)*SecondsInWeek*time.Second
	return week, remainder.Seconds()
}

// GPSTimeToUTC converts a GPS week and seconds of week back to UTC.
func GPSTimeToUTC(week int, seconds float64, leapSeconds int) time.Time {
	d := time.Duration(week)*SecondsInWeek*time.Second +
		time.Duration(seconds*float64(time.Second)) -
		time.Duration(leapSeconds)*time.Second
	return GPSEpoch.Add(d)
}

// GetBitsAsUint64 extracts len bits from a slice of bytes, starting
// at bit position pos and returns them as a uint64.  See RTKLIB's getbitu.
func GetBitsAsUint64(buff []byte, pos uint, len uint) uint64 {
	var result uint64
	for i := pos; i < pos+len; i++ {
		byteContents := uint64(buff[i/8])
		// Shift the contents down to put the desired bit at the bottom.
		bit := (byteContents >> (7 - i%8)) & 1
		result = (result << 1) | bit
	}
	return result
}

// GetBitsAsInt64 extracts len bits from a slice of bytes, starting at bit
// position pos, interprets the bits as a twos-complement integer and returns
// the resulting as a 64-bit signed int.  See RTKLIB's getbits() function.
func GetBitsAsInt64(buff []byte, pos uint, len uint) int64 {
	uval := GetBitsAsUint64(buff, pos, len)
	if len == 0 || len >= 64 {
		return int64(uval)
	}
	// Shift the top bit of the field into the sign position and back.
	shift := 64 - len
	return int64(uval<<shift) >> shift
}

// GetSignMagnitude extracts len bits starting at pos as a sign-magnitude
// integer: the first bit is the sign and the rest is the magnitude.  GLONASS
// ephemeris values are sent in this format.
func GetSignMagnitude(buff []byte, pos uint, len uint) int64 {
	magnitude := int64(GetBitsAsUint64(buff, pos+1, len-1))
	if GetBitsAsUint64(buff, pos, 1) == 1 {
		return -magnitude
	}
	return magnitude
}

// BitsAvailable returns an error if a field of length bits starting at pos
// would run off the end of the given bitstream.
func BitsAvailable(bitStream []byte, pos, length uint, messageType int) error {
	need := pos + length
	got := uint(8 * len(bitStream))
	if got < need {
		return fmt.Errorf("overrun - expected %d bits in a message type %d, got %d",
			need, messageType, got)
	}
	return nil
}

// EqualWithin return true if the given float64 values are equal
// within (precision) decimal places after rounding.  (This can fail if
// either of the numbers or the difference between them are too large.)
func EqualWithin(precision uint, f1, f2 float64) bool {
	var scaleFactor float64 = math.Pow(10, float64(precision))

	f1 = math.Round(f1 * scaleFactor)
	f2 = math.Round(f2 * scaleFactor)

	return math.Abs(f1-f2) <= 0.1
}

// GetTitle returns the title of the given message type, or "" if the
// type is not known.
func GetTitle(messageType int) string {
	return titles[messageType]
}

var titles = map[int]string{
	MessageType1001:                     "L1-Only GPS RTK Observables",
	MessageType1002:                     "Extended L1-Only GPS RTK Observables",
	MessageType1003:                     "L1&L2 GPS RTK Observables",
	MessageType1004:                     "Extended L1&L2 GPS RTK Observables",
	MessageType1005:                     "Stationary RTK Reference Station ARP",
	MessageType1006:                     "Stationary RTK Reference Station ARP with Antenna Height",
	MessageType1007:                     "Antenna Descriptor",
	MessageType1008:                     "Antenna Descriptor & Serial Number",
	MessageType1009:                     "L1-Only GLONASS RTK Observables",
	MessageType1010:                     "Extended L1-Only GLONASS RTK Observables",
	MessageType1011:                     "L1&L2 GLONASS RTK Observables",
	MessageType1012:                     "Extended L1&L2 GLONASS RTK Observables",
	MessageType1019:                     "GPS Ephemerides",
	MessageType1020:                     "GLONASS Ephemerides",
	MessageType1033:                     "Receiver and Antenna Descriptors",
	MessageTypeSSRGPSOrbit:              "SSR GPS Orbit Correction",
	MessageTypeSSRGPSClock:              "SSR GPS Clock Correction",
	MessageTypeSSRGPSBias:               "SSR GPS Code Bias",
	MessageTypeSSRGPSCombined:           "SSR GPS Combined Orbit and Clock Correction",
	MessageTypeSSRGPSURA:                "SSR GPS URA",
	MessageTypeSSRGPSHR:                 "SSR GPS High Rate Clock Correction",
	MessageTypeSSRGlonassOrbit:          "SSR GLONASS Orbit Correction",
	MessageTypeSSRGlonassClock:          "SSR GLONASS Clock Correction",
	MessageTypeSSRGlonassBias:           "SSR GLONASS Code Bias",
	MessageTypeSSRGlonassCombined:       "SSR GLONASS Combined Orbit and Clock Correction",
	MessageTypeSSRGlonassURA:            "SSR GLONASS URA",
	MessageTypeSSRGlonassHR:             "SSR GLONASS High Rate Clock Correction",
	MessageTypeSSRLegacyGPSOrbit:        "SSR GPS Orbit Correction (legacy numbering)",
	MessageTypeSSRLegacyGPSClock:        "SSR GPS Clock Correction (legacy numbering)",
	MessageTypeSSRLegacyGPSBias:         "SSR GPS Code Bias (legacy numbering)",
	MessageTypeSSRLegacyGPSCombined:     "SSR GPS Combined Correction (legacy numbering)",
	MessageTypeSSRLegacyGlonassOrbit:    "SSR GLONASS Orbit Correction (legacy numbering)",
	MessageTypeSSRLegacyGlonassClock:    "SSR GLONASS Clock Correction (legacy numbering)",
	MessageTypeSSRLegacyGlonassBias:     "SSR GLONASS Code Bias (legacy numbering)",
	MessageTypeSSRLegacyGlonassCombined: "SSR GLONASS Combined Correction (legacy numbering)",
}
