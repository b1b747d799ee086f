package rtcm3

import (
	"math"

	"github.com/bsdroid/ntrip-sub004/rtcm/ephemeris"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Scale factors of the ephemeris fields.
var (
	p2_5  = math.Ldexp(1, -5)
	p2_19 = math.Ldexp(1, -19)
	p2_29 = math.Ldexp(1, -29)
	p2_31 = math.Ldexp(1, -31)
	p2_33 = math.Ldexp(1, -33)
	p2_43 = math.Ldexp(1, -43)
	p2_55 = math.Ldexp(1, -55)

	p2_11 = math.Ldexp(1, -11)
	p2_20 = math.Ldexp(1, -20)
	p2_30 = math.Ldexp(1, -30)
	p2_40 = math.Ldexp(1, -40)
)

// getGPSEphemeris parses message type 1019.  The broadcast week is modulo
// 1024, so the full week is the one nearest to refWeek.
func getGPSEphemeris(payload []byte, refWeek int) (*ephemeris.GPS, error) {
	b := newBitReader(payload)
	messageType := int(b.uint(lenMessageType))
	b.messageType = messageType
	if messageType != utils.MessageType1019 {
		return nil, rtcmerr.New(rtcmerr.Unknown, "expected message type 1019 got %d", messageType)
	}

	var e ephemeris.GPS
	e.SatNum = int(b.uint(6))
	if e.SatNum >= 40 {
		e.SatNum += sbasOffset
	}
	week10 := int(b.uint(10))
	e.Week = week10 + 1024*int(math.Round(float64(refWeek-week10)/1024))
	e.URAIndex = int(b.uint(4))
	e.L2Code = int(b.uint(2))
	e.IDOT = float64(b.int(14)) * p2_43 * math.Pi
	e.IODE = int(b.uint(8))
	e.TOC = float64(b.uint(16) << 4)
	e.ClockDriftRate = float64(b.int(8)) * p2_55
	e.ClockDrift = float64(b.int(16)) * p2_43
	e.ClockBias = float64(b.int(22)) * p2_31
	e.IODC = int(b.uint(10))
	e.Crs = float64(b.int(16)) * p2_5
	e.DeltaN = float64(b.int(16)) * p2_43 * math.Pi
	e.M0 = float64(b.int(32)) * p2_31 * math.Pi
	e.Cuc = float64(b.int(16)) * p2_29
	e.E = float64(b.uint(32)) * p2_33
	e.Cus = float64(b.int(16)) * p2_29
	e.SqrtA = float64(b.uint(32)) * p2_19
	e.TOE = float64(b.uint(16) << 4)
	e.Cic = float64(b.int(16)) * p2_29
	e.Omega0 = float64(b.int(32)) * p2_31 * math.Pi
	e.Cis = float64(b.int(16)) * p2_29
	e.I0 = float64(b.int(32)) * p2_31 * math.Pi
	e.Crc = float64(b.int(16)) * p2_5
	e.Omega = float64(b.int(32)) * p2_31 * math.Pi
	e.OmegaDot = float64(b.int(24)) * p2_43 * math.Pi
	e.TGD = float64(b.int(8)) * p2_31
	e.Health = int(b.uint(6))
	e.L2PData = int(b.uint(1))

	if err := b.err(); err != nil {
		return nil, err
	}
	return &e, nil
}

// getGlonassEphemeris parses message type 1020.  The reference time tb is
// converted to GPS time using the reference GPS time and the leap seconds.
func getGlonassEphemeris(payload []byte, leapSeconds, refWeek int, refMs int64) (*ephemeris.Glonass, error) {
	b := newBitReader(payload)
	messageType := int(b.uint(lenMessageType))
	b.messageType = messageType
	if messageType != utils.MessageType1020 {
		return nil, rtcmerr.New(rtcmerr.Unknown, "expected message type 1020 got %d", messageType)
	}

	var e ephemeris.Glonass
	e.SatNum = int(b.uint(6))
	e.FrequencyNumber = int(b.uint(5)) - 7
	e.AlmanacHealth = b.flag()
	e.AlmanacHealthOK = b.flag()
	e.P1 = int(b.uint(2))
	hours := int(b.uint(5))
	minutes := int(b.uint(6))
	halfMinute := int(b.uint(1))
	e.Tk = hours*utils.SecondsInHour + minutes*60 + halfMinute*30
	e.Unhealthy = b.flag()
	e.P2 = int(b.uint(1))
	e.Tb = int(b.uint(7)) * 900

	e.XVel = float64(b.signMagnitude(24)) * p2_20
	e.XPos = float64(b.signMagnitude(27)) * p2_11
	e.XAcc = float64(b.signMagnitude(5)) * p2_30
	e.YVel = float64(b.signMagnitude(24)) * p2_20
	e.YPos = float64(b.signMagnitude(27)) * p2_11
	e.YAcc = float64(b.signMagnitude(5)) * p2_30
	e.ZVel = float64(b.signMagnitude(24)) * p2_20
	e.ZPos = float64(b.signMagnitude(27)) * p2_11
	e.ZAcc = float64(b.signMagnitude(5)) * p2_30

	e.P3 = int(b.uint(1))
	e.Gamma = float64(b.signMagnitude(11)) * p2_40
	// GLONASS-M P and ln.
	b.skip(3)
	e.Tau = float64(b.signMagnitude(22)) * p2_30
	// GLONASS-M delta tau.
	b.skip(5)
	e.E = int(b.uint(5))

	if err := b.err(); err != nil {
		return nil, err
	}

	week, ms := resolveGlonassTime(int64(e.Tb)*1000, leapSeconds, refWeek, refMs)
	e.Week = week
	e.TOC = float64(ms) / 1000
	return &e, nil
}
