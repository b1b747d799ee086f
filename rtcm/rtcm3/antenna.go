package rtcm3

import (
	"log/slog"

	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

const lenSetupID = 8

// getAntennaDescriptor parses message type 1007 (antenna descriptor), 1008
// (descriptor and serial number) or 1033 (receiver and antenna
// descriptors).
func getAntennaDescriptor(payload []byte, logLevel slog.Level) (*observation.AntennaDescriptor, error) {
	b := newBitReader(payload)
	messageType := int(b.uint(lenMessageType))
	b.messageType = messageType

	switch messageType {
	case utils.MessageType1007, utils.MessageType1008, utils.MessageType1033:
	default:
		return nil, rtcmerr.New(rtcmerr.Unknown, "expected an antenna descriptor got message type %d", messageType)
	}

	a := observation.AntennaDescriptor{LogLevel: logLevel}
	a.StationID = uint(b.uint(lenStationID))
	a.Descriptor = b.str()
	a.SetupID = uint(b.uint(lenSetupID))
	if messageType != utils.MessageType1007 {
		a.Serial = b.str()
	}
	if messageType == utils.MessageType1033 {
		a.ReceiverType = b.str()
		a.ReceiverFirmware = b.str()
		a.ReceiverSerial = b.str()
	}

	if err := b.err(); err != nil {
		return nil, err
	}
	return &a, nil
}
