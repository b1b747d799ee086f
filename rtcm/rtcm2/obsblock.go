package rtcm2

import (
	"math"

	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// DefaultAmbiguityCycles is the carrier phase ambiguity assumed when
// resolving the phases in message 18.  The standard gives 2^24 cycles but
// many receivers send values in the range +/-2^22, and 2^23 works with both.
const DefaultAmbiguityCycles = 1 << 23

// glonassPRNOffset is added to a GLONASS satellite number to give a PRN
// that can't be confused with a GPS one.
const glonassPRNOffset = 200

// The availability flags of an observation block.
const (
	l1PhaseGPS uint8 = 1 << iota
	l2PhaseGPS
	l1RangeGPS
	l2RangeGPS
	l1PhaseGlonass
	l2PhaseGlonass
	l1RangeGlonass
	l2RangeGlonass
)

const (
	allGPS     = l1PhaseGPS | l2PhaseGPS | l1RangeGPS | l2RangeGPS
	allGlonass = l1PhaseGlonass | l2PhaseGlonass | l1RangeGlonass | l2RangeGlonass
)

// ObsOptions controls the handling of messages 18 and 19.
type ObsOptions struct {
	// AmbiguityCycles is the phase ambiguity in cycles.  Zero gives
	// DefaultAmbiguityCycles.
	AmbiguityCycles float64
	// MajorityVoteFix takes the constellation of a message from the
	// majority of its satellites rather than the first one.  Some receivers
	// label single satellites with the wrong constellation flag.
	MajorityVoteFix bool
	// RoundEpoch rounds the epoch to the nearest 100 ms.
	RoundEpoch bool
}

// SatelliteData holds the raw measurements of one satellite.  Phases are in
// cycles, modulo the ambiguity, with the sign matching the range.
type SatelliteData struct {
	// PRN is the satellite number, plus 200 for a GLONASS satellite.
	PRN    int
	C1     float64
	P1     float64
	P2     float64
	L1     float64
	L2     float64
	SlipL1 int
	SlipL2 int
}

// ObsBlock collects the carrier phases and pseudoranges from messages 18
// and 19 for one epoch.  Receivers handle the multiple message indicator
// inconsistently, so the block is only complete once it has code and phase
// on both L1 and L2 for GPS.  GLONASS observations are optional but, if any
// are present, all four kinds must be.  A GLONASS message must follow the
// GPS message of the same epoch.
type ObsBlock struct {
	Options ObsOptions

	// Seconds is the epoch in seconds within the hour, GPS time.
	Seconds    float64
	Satellites []SatelliteData

	availability uint8
	pending      bool
}

// NewObsBlock creates an empty block.
func NewObsBlock(options ObsOptions) *ObsBlock {
	b := ObsBlock{Options: options}
	b.Clear()
	return &b
}

// Clear empties the block.
func (b *ObsBlock) Clear() {
	b.Seconds = 0
	b.Satellites = nil
	b.availability = 0
	b.pending = true
}

func (b *ObsBlock) anyGPS() bool     { return b.availability&allGPS != 0 }
func (b *ObsBlock) anyGlonass() bool { return b.availability&allGlonass != 0 }
func (b *ObsBlock) allGPS() bool     { return b.availability&allGPS == allGPS }
func (b *ObsBlock) allGlonass() bool { return b.availability&allGlonass == allGlonass }

// Valid returns true when the block holds a complete set of observations.
func (b *ObsBlock) Valid() bool {
	return b.allGPS() && (b.allGlonass() || !b.anyGlonass()) && !b.pending
}

// index returns the index of the satellite with the given PRN, adding an
// empty entry if it's not there.
func (b *ObsBlock) index(prn int) int {
	for i := range b.Satellites {
		if b.Satellites[i].PRN == prn {
			return i
		}
	}
	b.Satellites = append(b.Satellites, SatelliteData{PRN: prn})
	return len(b.Satellites) - 1
}

// Extract adds the contents of a message 18 or 19 to the block.  If the
// block was already complete it's cleared first.  Messages for a frequency
// other than L1 or L2 are ignored.
func (b *ObsBlock) Extract(p *Packet) error {
	if !p.Valid() {
		return rtcmerr.New(rtcmerr.Parity, "invalid packet")
	}
	isPhase := p.MessageType() == utils.MessageType2CarrierPhase
	if !isPhase {
		if err := checkType(p, utils.MessageType2Pseudorange); err != nil {
			return err
		}
	}

	if b.Valid() {
		b.Clear()
	}

	nSat := (len(p.DW) - 1) / 2

	r := fieldReader{p: p}
	t := 0.6*float64(p.ModZCount()) + float64(r.u(4, 20))*1.0e-6
	isL1 := r.u(0, 1) == 0
	isOther := r.u(1, 1) == 1
	isGPS := r.u(26, 1) == 0
	pending := r.u(24, 1) == 1
	if r.err != nil {
		return r.err
	}
	if isOther {
		return nil
	}

	if b.Options.MajorityVoteFix && nSat > 0 {
		glonass := 0
		for i := 0; i < nSat; i++ {
			glonass += int(r.u(uint(48*i+26), 1))
		}
		if r.err != nil {
			return r.err
		}
		isGPS = 2*glonass < nSat
	}

	if b.Options.RoundEpoch {
		t = math.Round(t*10) / 10
	}

	b.pending = pending

	// GLONASS time tags differ from GPS ones, so only GPS messages set the
	// epoch.
	if isGPS {
		if len(b.Satellites) == 0 {
			b.Seconds = t
		} else if math.Abs(t-b.Seconds) > 1e-6 {
			b.Clear()
			b.pending = pending
			b.Seconds = t
		}
	}

	if !isGPS && !b.anyGPS() {
		return nil
	}

	var flag uint8
	switch {
	case isPhase && isL1:
		flag = l1PhaseGPS
	case isPhase:
		flag = l2PhaseGPS
	case isL1:
		flag = l1RangeGPS
	default:
		flag = l2RangeGPS
	}
	if !isGPS {
		flag <<= 4
	}

	type satData struct {
		isCA  bool
		prn   int
		slip  int
		value float64
	}
	sats := make([]satData, 0, nSat)
	for i := 0; i < nSat; i++ {
		base := uint(48 * i)
		var s satData
		s.isCA = r.u(base+25, 1) == 0
		sid := int(r.u(base+27, 5))
		if sid == 0 {
			sid = 32
		}
		s.prn = sid
		if !isGPS {
			s.prn += glonassPRNOffset
		}
		if isPhase {
			s.slip = int(r.u(base+35, 5))
			s.value = -float64(r.s(base+40, 32)) / 256.0
		} else {
			s.value = float64(r.u(base+40, 32)) * 0.02
		}
		sats = append(sats, s)
	}
	if r.err != nil {
		return r.err
	}

	b.availability |= flag
	for _, s := range sats {
		sat := &b.Satellites[b.index(s.prn)]
		switch {
		case isPhase && isL1:
			sat.L1 = s.value
			sat.SlipL1 = s.slip
		case isPhase:
			sat.L2 = s.value
			sat.SlipL2 = s.slip
		case isL1:
			if s.isCA {
				sat.C1 = s.value
			}
			sat.P1 = s.value
		default:
			sat.P2 = s.value
		}
	}
	return nil
}

func (b *ObsBlock) ambiguity() float64 {
	if b.Options.AmbiguityCycles > 0 {
		return b.Options.AmbiguityCycles
	}
	return DefaultAmbiguityCycles
}

// ResolvedPhaseL1 returns the L1 phase of satellite i with the ambiguity
// resolved using the C1 range, or P1 if there is no C1.  It returns 0 if
// the block is not valid or there is no range.
func (b *ObsBlock) ResolvedPhaseL1(i int) float64 {
	if !b.Valid() || i < 0 || i >= len(b.Satellites) {
		return 0
	}
	sat := b.Satellites[i]
	return ResolvePhase(sat.L1, sat.rangeL1(), utils.WavelengthL1, b.ambiguity())
}

// ResolvedPhaseL2 returns the L2 phase of satellite i with the ambiguity
// resolved.  Like the L1 phase it's resolved against the L1 range.
func (b *ObsBlock) ResolvedPhaseL2(i int) float64 {
	if !b.Valid() || i < 0 || i >= len(b.Satellites) {
		return 0
	}
	sat := b.Satellites[i]
	return ResolvePhase(sat.L2, sat.rangeL1(), utils.WavelengthL2, b.ambiguity())
}

func (s *SatelliteData) rangeL1() float64 {
	if s.C1 != 0 {
		return s.C1
	}
	return s.P1
}

// ResolvePhase adds to a phase, known modulo ambig cycles, the multiple of
// ambig that brings it closest to the range in cycles.  It returns 0 if the
// range is 0.
func ResolvePhase(phase, rangeMetres, wavelength, ambig float64) float64 {
	if rangeMetres == 0 {
		return 0
	}
	n := math.Floor((rangeMetres/wavelength-phase)/ambig + 0.5)
	return phase + n*ambig
}

// ResolveEpoch converts seconds within the hour into a GPS week and seconds
// of week, taking the hour that brings it closest to the reference time.
func ResolveEpoch(hourSeconds float64, refWeek int, refSeconds float64) (int, float64) {
	week := refWeek
	seconds := hourSeconds +
		utils.SecondsInHour*math.Floor((refSeconds-hourSeconds)/utils.SecondsInHour+0.5)
	if seconds < 0 {
		week--
		seconds += utils.SecondsInWeek
	}
	if seconds >= utils.SecondsInWeek {
		week++
		seconds -= utils.SecondsInWeek
	}
	return week, seconds
}

// ResolveEpoch gives the GPS week and seconds of the block's epoch.
func (b *ObsBlock) ResolveEpoch(refWeek int, refSeconds float64) (int, float64) {
	return ResolveEpoch(b.Seconds, refWeek, refSeconds)
}

// Observations returns the contents of a valid block as normalised
// observations for the given GPS week and seconds.
func (b *ObsBlock) Observations(week int, seconds float64) []observation.Observation {
	if !b.Valid() {
		return nil
	}
	result := make([]observation.Observation, 0, len(b.Satellites))
	for i, sat := range b.Satellites {
		obs := observation.Observation{
			System:      'G',
			SatNum:      sat.PRN,
			GPSWeek:     week,
			GPSSeconds:  seconds,
			C1:          sat.C1,
			P1:          sat.P1,
			P2:          sat.P2,
			L1:          b.ResolvedPhaseL1(i),
			L2:          b.ResolvedPhaseL2(i),
			SlipCountL1: sat.SlipL1,
			SlipCountL2: sat.SlipL2,
		}
		if sat.PRN > glonassPRNOffset {
			obs.System = 'R'
			obs.SatNum = sat.PRN - glonassPRNOffset
		}
		result = append(result, obs)
	}
	return result
}
