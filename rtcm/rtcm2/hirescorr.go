package rtcm2

import (
	"math"
	"sort"

	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// The availability flags of a correction block.
const (
	l1PhaseCorr uint8 = 1 << iota
	l2PhaseCorr
	l1RangeCorr
	l2RangeCorr
)

// HiResCorr holds the high resolution corrections for one satellite.
// Phase corrections are in cycles, range corrections in metres and range
// rate corrections in metres per second.
type HiResCorr struct {
	// PRN is the satellite number, plus 200 for a GLONASS satellite.
	PRN int

	Phase1 float64
	Phase2 float64
	Range1 float64
	Range2 float64

	RangeRate1 float64
	RangeRate2 float64

	// The IODs tie each correction to a broadcast ephemeris.
	IODp1 int
	IODp2 int
	IODr1 int
	IODr2 int

	// Lock1 and Lock2 are the cumulative loss of continuity indicators.
	Lock1 int
	Lock2 int

	// PInd1 and PInd2 are set when the range correction applies to the P
	// code rather than C/A.
	PInd1 bool
	PInd2 bool

	UDRE1 int
	UDRE2 int
}

// HiResCorrections collects the corrections from messages 20 and 21 for
// one epoch.  The block is complete once it has L1 phase and range
// corrections and the last message doesn't promise more to follow.
type HiResCorrections struct {
	// Seconds is the epoch in seconds within the hour.
	Seconds float64

	corrections  map[int]*HiResCorr
	availability uint8
	pending      bool
}

// NewHiResCorrections creates an empty block.
func NewHiResCorrections() *HiResCorrections {
	var c HiResCorrections
	c.Clear()
	return &c
}

// Clear empties the block.
func (c *HiResCorrections) Clear() {
	c.Seconds = 0
	c.corrections = make(map[int]*HiResCorr)
	c.availability = 0
	c.pending = true
}

// Valid returns true when the block is complete.
func (c *HiResCorrections) Valid() bool {
	return c.availability&l1PhaseCorr != 0 && c.availability&l1RangeCorr != 0 && !c.pending
}

// HourSeconds returns the estimated time of measurement in seconds within
// the hour.
func (c *HiResCorrections) HourSeconds() float64 {
	return c.Seconds
}

// Corrections returns the satellite corrections in PRN order.
func (c *HiResCorrections) Corrections() []HiResCorr {
	prns := make([]int, 0, len(c.corrections))
	for prn := range c.corrections {
		prns = append(prns, prn)
	}
	sort.Ints(prns)

	result := make([]HiResCorr, 0, len(prns))
	for _, prn := range prns {
		result = append(result, *c.corrections[prn])
	}
	return result
}

func (c *HiResCorrections) get(prn int) *HiResCorr {
	corr, ok := c.corrections[prn]
	if !ok {
		corr = &HiResCorr{PRN: prn}
		c.corrections[prn] = corr
	}
	return corr
}

// Extract adds the contents of a message 20 or 21 to the block.  If the
// block was already complete it's cleared first.
//
// The first data word carries the frequency in bits 0 and 1 and the time
// within the Z-count in microseconds in bits 4 to 23.  Each satellite takes
// two words.  Both messages start the satellite with the multiple message
// indicator, the code indicator, the GLONASS flag, the satellite ID, and
// carry the IOD at bit 40.  Message 20 then has the data quality, the loss
// of continuity indicator and a 24-bit phase correction in 1/256 cycle.
// Message 21 has the scale factor, UDRE, smoothing interval and multipath
// indicator followed by a 16-bit range correction and an 8-bit range rate
// correction.
func (c *HiResCorrections) Extract(p *Packet) error {
	if !p.Valid() {
		return rtcmerr.New(rtcmerr.Parity, "invalid packet")
	}
	isPhase := p.MessageType() == utils.MessageType2PhaseCorrection
	if !isPhase {
		if err := checkType(p, utils.MessageType2RangeCorrection); err != nil {
			return err
		}
	}

	if c.Valid() {
		c.Clear()
	}

	nSat := (len(p.DW) - 1) / 2

	r := fieldReader{p: p}
	t := 0.6*float64(p.ModZCount()) + float64(r.u(4, 20))*1.0e-6
	isL1 := r.u(0, 1) == 0
	isOther := r.u(1, 1) == 1
	pending := r.u(24, 1) == 1
	if r.err != nil {
		return r.err
	}
	if isOther {
		return nil
	}

	if len(c.corrections) == 0 {
		c.Seconds = t
	} else if math.Abs(t-c.Seconds) > 1e-6 {
		c.Clear()
		c.Seconds = t
	}
	c.pending = pending

	updates := make([]HiResCorr, 0, nSat)
	for i := 0; i < nSat; i++ {
		base := uint(48 * i)
		isP := r.u(base+25, 1) == 1
		isGlonass := r.u(base+26, 1) == 1
		sid := int(r.u(base+27, 5))
		if sid == 0 {
			sid = 32
		}
		prn := sid
		if isGlonass {
			prn += glonassPRNOffset
		}
		iod := int(r.u(base+40, 8))

		u := HiResCorr{PRN: prn}
		if isPhase {
			u.Lock1 = int(r.u(base+35, 5))
			u.Phase1 = float64(r.s(base+48, 24)) / 256.0
			u.IODp1 = iod
		} else {
			scale := r.u(base+32, 1)
			u.UDRE1 = int(r.u(base+33, 2))
			prcUnit, rrcUnit := 0.02, 0.002
			if scale == 1 {
				prcUnit, rrcUnit = 0.32, 0.032
			}
			u.Range1 = float64(r.s(base+48, 16)) * prcUnit
			u.RangeRate1 = float64(r.s(base+64, 8)) * rrcUnit
			u.IODr1 = iod
			u.PInd1 = isP
		}
		updates = append(updates, u)
	}
	if r.err != nil {
		return r.err
	}

	switch {
	case isPhase && isL1:
		c.availability |= l1PhaseCorr
	case isPhase:
		c.availability |= l2PhaseCorr
	case isL1:
		c.availability |= l1RangeCorr
	default:
		c.availability |= l2RangeCorr
	}

	for _, u := range updates {
		corr := c.get(u.PRN)
		switch {
		case isPhase && isL1:
			corr.Phase1, corr.IODp1, corr.Lock1 = u.Phase1, u.IODp1, u.Lock1
		case isPhase:
			corr.Phase2, corr.IODp2, corr.Lock2 = u.Phase1, u.IODp1, u.Lock1
		case isL1:
			corr.Range1, corr.RangeRate1, corr.IODr1 = u.Range1, u.RangeRate1, u.IODr1
			corr.PInd1, corr.UDRE1 = u.PInd1, u.UDRE1
		default:
			corr.Range2, corr.RangeRate2, corr.IODr2 = u.Range1, u.RangeRate1, u.IODr1
			corr.PInd2, corr.UDRE2 = u.PInd1, u.UDRE1
		}
	}
	return nil
}
