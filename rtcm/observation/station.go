package observation

import (
	"fmt"
	"log/slog"
)

// PositionType says which point on the antenna a position refers to.
type PositionType int

const (
	// ARP is the antenna reference point.
	ARP PositionType = iota
	// APC is the L1 antenna phase centre.
	APC
)

func (p PositionType) String() string {
	if p == APC {
		return "APC"
	}
	return "ARP"
}

// AntennaPosition is the ECEF position of a reference station's antenna.
type AntennaPosition struct {
	StationID uint         `json:"station_id"`
	Type      PositionType `json:"type"`
	X         float64      `json:"x"`
	Y         float64      `json:"y"`
	Z         float64      `json:"z"`
	// Height is the antenna height above the marker, if HeightSet.
	Height    float64    `json:"height"`
	HeightSet bool       `json:"height_set"`
	LogLevel  slog.Level `json:"-"`
}

// String returns a readable version of the position.
func (a *AntennaPosition) String() string {
	result := fmt.Sprintf("stationID %d, %s\n", a.StationID, a.Type)
	result += fmt.Sprintf("ECEF coords in metres (%.4f, %.4f, %.4f)\n", a.X, a.Y, a.Z)
	if a.HeightSet {
		result += fmt.Sprintf("antenna height %.4f\n", a.Height)
	}
	return result
}

// AntennaDescriptor names a reference station's antenna and receiver.
type AntennaDescriptor struct {
	StationID  uint   `json:"station_id"`
	Descriptor string `json:"descriptor"`
	SetupID    uint   `json:"setup_id"`
	Serial     string `json:"serial,omitempty"`
	// The receiver fields are only set by RTCM3 message type 1033.
	ReceiverType     string     `json:"receiver_type,omitempty"`
	ReceiverFirmware string     `json:"receiver_firmware,omitempty"`
	ReceiverSerial   string     `json:"receiver_serial,omitempty"`
	LogLevel         slog.Level `json:"-"`
}

// String returns a readable version of the descriptor.
func (a *AntennaDescriptor) String() string {
	result := fmt.Sprintf("stationID %d, antenna %q, setup %d", a.StationID, a.Descriptor, a.SetupID)
	if a.Serial != "" {
		result += fmt.Sprintf(", serial %q", a.Serial)
	}
	result += "\n"
	if a.ReceiverType != "" {
		result += fmt.Sprintf("receiver %q, firmware %q, serial %q\n",
			a.ReceiverType, a.ReceiverFirmware, a.ReceiverSerial)
	}
	return result
}
