package rtcm2

import (
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// checkType returns an error unless the packet is valid and of the
// expected type.
func checkType(p *Packet, want int) error {
	if !p.Valid() {
		return rtcmerr.New(rtcmerr.Parity, "invalid packet")
	}
	if p.MessageType() != want {
		return rtcmerr.New(rtcmerr.DataMismatch, "expected message type %d got %d", want, p.MessageType())
	}
	return nil
}

// Message3 holds the reference station's ECEF coordinates.
type Message3 struct {
	Valid   bool
	X, Y, Z float64
}

// Extract decodes a type 3 message.  On failure the message is left invalid.
func (m *Message3) Extract(p *Packet) error {
	m.Valid = false
	if err := checkType(p, utils.MessageType2ReferenceStation); err != nil {
		return err
	}

	r := fieldReader{p: p}
	x := r.s(0, 32)
	y := r.s(32, 32)
	z := r.s(64, 32)
	if r.err != nil {
		return r.err
	}

	m.X = float64(x) * 0.01
	m.Y = float64(y) * 0.01
	m.Z = float64(z) * 0.01
	m.Valid = true
	return nil
}

// Message22 holds the offsets of the antenna phase centres from the
// coordinates in message 3.  L1 offsets are sent in 1/256 cm units, L2 in
// 1/16 cm.
type Message22 struct {
	Valid bool
	// DL1 and DL2 are the L1 and L2 phase centre offsets in metres.
	DL1 [3]float64
	DL2 [3]float64
	// L2Set says whether the message carried L2 offsets.
	L2Set bool
	// Height is the antenna height, if HeightSet.
	Height    float64
	HeightSet bool
}

const (
	offsetScale   = 1.0 / 25600.0
	offsetScaleL2 = 1.0 / 1600.0
)

// Extract decodes a type 22 message.
func (m *Message22) Extract(p *Packet) error {
	m.Valid = false
	if err := checkType(p, utils.MessageType2AntennaOffset); err != nil {
		return err
	}

	r := fieldReader{p: p}
	for i := range m.DL1 {
		m.DL1[i] = float64(r.s(uint(8*i), 8)) * offsetScale
	}
	if r.err != nil {
		return r.err
	}

	m.HeightSet = false
	m.L2Set = false
	m.DL2 = [3]float64{}
	m.Height = 0

	if len(p.DW) >= 2 {
		noHeight := r.u(29, 1) == 1
		height := r.u(30, 18)
		if r.err != nil {
			return r.err
		}
		if !noHeight {
			m.Height = float64(height) * offsetScale
			m.HeightSet = true
		}
	}

	if len(p.DW) >= 3 {
		for i := range m.DL2 {
			m.DL2[i] = float64(r.s(uint(48+8*i), 8)) * offsetScaleL2
		}
		if r.err != nil {
			return r.err
		}
		m.L2Set = true
	}

	m.Valid = true
	return nil
}

// Message23 holds the antenna descriptor and optional serial number.
type Message23 struct {
	Valid      bool
	Descriptor string
	SetupID    uint
	Serial     string
}

// Extract decodes a type 23 message.
func (m *Message23) Extract(p *Packet) error {
	m.Valid = false
	if err := checkType(p, utils.MessageType2AntennaType); err != nil {
		return err
	}

	r := fieldReader{p: p}
	serialFollows := r.u(2, 1) == 1
	nad := uint(r.u(3, 5))
	descriptor := make([]byte, 0, nad)
	for i := uint(0); i < nad; i++ {
		descriptor = append(descriptor, byte(r.u(8+8*i, 8)))
	}

	var setupID uint
	serial := make([]byte, 0)
	if serialFollows {
		setupID = uint(r.u(8+8*nad, 8))
		nas := uint(r.u(19+8*nad, 5))
		for i := uint(0); i < nas; i++ {
			serial = append(serial, byte(r.u(24+8*nad+8*i, 8)))
		}
	}
	if r.err != nil {
		return r.err
	}

	m.Descriptor = string(descriptor)
	m.SetupID = setupID
	m.Serial = string(serial)
	m.Valid = true
	return nil
}

// Message24 holds the antenna reference point.
type Message24 struct {
	Valid     bool
	X, Y, Z   float64
	IsGlonass bool
	Height    float64
	HeightSet bool
}

// Extract decodes a type 24 message.
func (m *Message24) Extract(p *Packet) error {
	m.Valid = false
	if err := checkType(p, utils.MessageType2AntennaRefPoint); err != nil {
		return err
	}

	r := fieldReader{p: p}
	x := 64.0 * float64(r.s(0, 32))
	y := 64.0 * float64(r.s(40, 32))
	z := 64.0 * float64(r.s(80, 32))
	dx := float64(r.u(32, 6))
	dy := float64(r.u(72, 6))
	dz := float64(r.u(112, 6))
	isGlonass := r.u(118, 1) == 1
	heightSet := r.u(119, 1) == 1
	var height float64
	if heightSet {
		height = float64(r.u(120, 18)) * 0.0001
	}
	if r.err != nil {
		return r.err
	}

	m.X = 0.0001 * addFine(x, dx)
	m.Y = 0.0001 * addFine(y, dy)
	m.Z = 0.0001 * addFine(z, dz)
	m.IsGlonass = isGlonass
	m.HeightSet = heightSet
	m.Height = height
	m.Valid = true
	return nil
}

// addFine adds the fine part of a coordinate, taking its sign from the
// coarse part.
func addFine(coarse, fine float64) float64 {
	if coarse < 0 {
		return coarse - fine
	}
	return coarse + fine
}
