package ssr

import "github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"

// Field widths and scale factors.
const (
	bitsMessageType    = 12
	bitsGPSEpoch       = 20
	bitsGlonassEpoch   = 17
	bitsUpdateInterval = 4
	bitsNumSats        = 6
	bitsGPSSatID       = 6
	bitsGlonassSatID   = 5
	bitsIOD            = 8
	bitsURA            = 4
	bitsNumBiases      = 5
	bitsSignalID       = 5

	scaleRadial       = 10000.0
	scaleAlong        = 2500.0
	scaleDotRadial    = 1000000.0
	scaleDotAlong     = 250000.0
	scaleDotDotRadial = 50000000.0
	scaleDotDotAlong  = 12500000.0
	scaleC0           = 10000.0
	scaleC1           = 1000000.0
	scaleC2           = 50000000.0
	scaleHRClock      = 10000.0
	scaleBias         = 100.0
)

// block is one message to be produced.
type block struct {
	messageType Type
	glonass     bool
	start, num  int
}

// plan works out which messages to produce and in what order.
func (co *ClockOrbit) plan(t Type) []block {
	want := func(candidate Type) bool { return t == Auto || t == candidate }
	var blocks []block

	if n := co.NumberOfGPSSat; n > 0 {
		combined := co.ClockDataSupplied != 0 && co.OrbitDataSupplied != 0 && want(GPSCombined)
		if !combined && co.OrbitDataSupplied != 0 && want(GPSOrbit) {
			blocks = append(blocks, block{messageType: GPSOrbit, num: n})
		}
		if !combined && co.ClockDataSupplied != 0 && want(GPSClock) {
			blocks = append(blocks, block{messageType: GPSClock, num: n})
		}
		if combined {
			for start := 0; start < n; start += maxCombinedSats {
				blocks = append(blocks, block{messageType: GPSCombined, start: start,
					num: min(maxCombinedSats, n-start)})
			}
		}
		if co.HRDataSupplied != 0 && want(GPSHR) {
			blocks = append(blocks, block{messageType: GPSHR, num: n})
		}
		if co.URADataSupplied != 0 && want(GPSURA) {
			blocks = append(blocks, block{messageType: GPSURA, num: n})
		}
	}

	if n := co.NumberOfGlonassSat; n > 0 {
		start := GlonassOffset
		combined := co.ClockDataSupplied != 0 && co.OrbitDataSupplied != 0 && want(GlonassCombined)
		if !combined && co.OrbitDataSupplied != 0 && want(GlonassOrbit) {
			blocks = append(blocks, block{messageType: GlonassOrbit, glonass: true, start: start, num: n})
		}
		if !combined && co.ClockDataSupplied != 0 && want(GlonassClock) {
			blocks = append(blocks, block{messageType: GlonassClock, glonass: true, start: start, num: n})
		}
		if combined {
			blocks = append(blocks, block{messageType: GlonassCombined, glonass: true, start: start, num: n})
		}
		if co.HRDataSupplied != 0 && want(GlonassHR) {
			blocks = append(blocks, block{messageType: GlonassHR, glonass: true, start: start, num: n})
		}
		if co.URADataSupplied != 0 && want(GlonassURA) {
			blocks = append(blocks, block{messageType: GlonassURA, glonass: true, start: start, num: n})
		}
	}

	return blocks
}

// MakeClockOrbit encodes the corrections as a sequence of message frames.
// With type Auto it produces every message that the supplied data allows,
// otherwise just the messages of the given type.  The multiple message
// indicator is set on every message except the last, and on the last too if
// moreMessagesFollow is true.  A value that doesn't fit in its field is a
// Range error.
func MakeClockOrbit(co *ClockOrbit, t Type, moreMessagesFollow bool) ([]byte, error) {
	if err := checkCounts(co.NumberOfGPSSat, co.NumberOfGlonassSat); err != nil {
		return nil, err
	}
	blocks := co.plan(t)
	var result []byte
	for i, b := range blocks {
		mmi := moreMessagesFollow || i < len(blocks)-1
		frame, err := co.makeBlock(b, mmi)
		if err != nil {
			return nil, err
		}
		result = append(result, frame...)
	}
	return result, nil
}

func (co *ClockOrbit) makeBlock(b block, mmi bool) ([]byte, error) {
	p := newPayloadWriter()
	p.put(bitsMessageType, uint64(b.messageType))
	if b.glonass {
		p.put(bitsGlonassEpoch, uint64(co.GlonassEpochTime))
	} else {
		p.put(bitsGPSEpoch, uint64(co.GPSEpochTime))
	}
	if b.messageType != GPSURA && b.messageType != GlonassURA {
		p.put(bitsUpdateInterval, uint64(co.UpdateInterval))
	}
	p.put(1, boolBit(mmi))
	p.put(5, 0)
	p.put(bitsNumSats, uint64(b.num))

	idBits := uint(bitsGPSSatID)
	if b.glonass {
		idBits = bitsGlonassSatID
	}

	for i := b.start; i < b.start+b.num; i++ {
		sat := &co.Sat[i]
		p.put(idBits, uint64(sat.ID))
		switch b.messageType {
		case GPSOrbit, GlonassOrbit:
			p.put(bitsIOD, uint64(sat.IOD))
			co.putOrbit(p, sat)
		case GPSClock, GlonassClock:
			putClock(p, sat)
		case GPSCombined, GlonassCombined:
			p.put(bitsIOD, uint64(sat.IOD))
			co.putOrbit(p, sat)
			putClock(p, sat)
		case GPSHR, GlonassHR:
			p.putScaled(22, scaleHRClock, sat.HRClock, "high rate clock")
		case GPSURA, GlonassURA:
			p.put(bitsURA, uint64(sat.URA))
		}
	}

	return p.frame()
}

func (co *ClockOrbit) putOrbit(p *payloadWriter, sat *SatData) {
	p.putScaled(22, scaleRadial, sat.Orbit.DeltaRadial, "radial")
	p.putScaled(20, scaleAlong, sat.Orbit.DeltaAlongTrack, "along track")
	p.putScaled(20, scaleAlong, sat.Orbit.DeltaCrossTrack, "cross track")
	p.putScaled(21, scaleDotRadial, sat.Orbit.DotDeltaRadial, "radial rate")
	p.putScaled(19, scaleDotAlong, sat.Orbit.DotDeltaAlongTrack, "along track rate")
	p.putScaled(19, scaleDotAlong, sat.Orbit.DotDeltaCrossTrack, "cross track rate")
	p.putScaled(27, scaleDotDotRadial, sat.Orbit.DotDotDeltaRadial, "radial acceleration")
	p.putScaled(25, scaleDotDotAlong, sat.Orbit.DotDotDeltaAlongTrack, "along track acceleration")
	p.putScaled(25, scaleDotDotAlong, sat.Orbit.DotDotDeltaCrossTrack, "cross track acceleration")
	p.put(1, uint64(co.SatRefPoint))
	p.put(1, uint64(co.SatRefDatum))
}

func putClock(p *payloadWriter, sat *SatData) {
	p.putScaled(22, scaleC0, sat.Clock.DeltaA0, "clock C0")
	p.putScaled(21, scaleC1, sat.Clock.DeltaA1, "clock C1")
	p.putScaled(27, scaleC2, sat.Clock.DeltaA2, "clock C2")
}

// MakeBias encodes the code biases.  t is Auto, GPSBias or GlonassBias.
func MakeBias(b *Bias, t Type, moreMessagesFollow bool) ([]byte, error) {
	if err := checkCounts(b.NumberOfGPSSat, b.NumberOfGlonassSat); err != nil {
		return nil, err
	}
	var blocks []block
	if b.NumberOfGPSSat > 0 && (t == Auto || t == GPSBias) {
		blocks = append(blocks, block{messageType: GPSBias, num: b.NumberOfGPSSat})
	}
	if b.NumberOfGlonassSat > 0 && (t == Auto || t == GlonassBias) {
		blocks = append(blocks, block{messageType: GlonassBias, glonass: true,
			start: GlonassOffset, num: b.NumberOfGlonassSat})
	}

	var result []byte
	for i, blk := range blocks {
		p := newPayloadWriter()
		p.put(bitsMessageType, uint64(blk.messageType))
		idBits := uint(bitsGPSSatID)
		if blk.glonass {
			p.put(bitsGlonassEpoch, uint64(b.GlonassEpochTime))
			idBits = bitsGlonassSatID
		} else {
			p.put(bitsGPSEpoch, uint64(b.GPSEpochTime))
		}
		p.put(bitsUpdateInterval, uint64(b.UpdateInterval))
		p.put(1, boolBit(moreMessagesFollow || i < len(blocks)-1))
		p.put(5, 0)
		p.put(bitsNumSats, uint64(blk.num))

		for s := blk.start; s < blk.start+blk.num; s++ {
			sat := &b.Sat[s]
			p.put(idBits, uint64(sat.ID))
			if sat.NumberOfCodeBiases > NumBias {
				return nil, rtcmerr.New(rtcmerr.Range, "satellite %d has %d code biases, maximum %d",
					sat.ID, sat.NumberOfCodeBiases, NumBias)
			}
			p.put(bitsNumBiases, uint64(sat.NumberOfCodeBiases))
			for _, cb := range sat.Biases[:sat.NumberOfCodeBiases] {
				p.put(bitsSignalID, uint64(cb.Type))
				p.putScaled(14, scaleBias, cb.Bias, "code bias")
			}
		}

		frame, err := p.frame()
		if err != nil {
			return nil, err
		}
		result = append(result, frame...)
	}
	return result, nil
}

func checkCounts(gps, glonass int) error {
	if gps < 0 || gps > NumGPS {
		return rtcmerr.New(rtcmerr.Range, "%d GPS satellites, maximum %d", gps, NumGPS)
	}
	if glonass < 0 || glonass > NumGlonass {
		return rtcmerr.New(rtcmerr.Range, "%d GLONASS satellites, maximum %d", glonass, NumGlonass)
	}
	return nil
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
