package handler

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bsdroid/ntrip-sub004/clock"
	"github.com/bsdroid/ntrip-sub004/rtcm/ephemeris"
	"github.com/bsdroid/ntrip-sub004/rtcm/observation"
	"github.com/bsdroid/ntrip-sub004/rtcm/pushback"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcm2"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcm3"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcmerr"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// The handler package turns a stream of bytes from a GNSS reference station
// or a correction service into a stream of decoded records.
//
//     h := handler.New(handler.DefaultOptions(), clock.NewSystemClock(), logger, slog.LevelInfo)
//     go h.HandleMessages(chIn, chOut)
//
// The input may be RTCM version 2 (reference station observations and
// corrections, packed six bits to a byte with a parity check on each
// 30-bit word) or RTCM version 3 (framed messages with a CRC, including
// the SSR orbit, clock and code bias corrections).  The protocol can be
// fixed in the options or left as "auto", in which case the handler reads
// until it finds a complete RTCM3 frame or RTCM2 packet and then sticks
// with that protocol.
//
// Both decoders keep state between calls (a frame or packet split across
// two reads, an epoch of observations spread over several messages, SSR
// messages that come in sets) so the handler feeds them the input in
// whatever chunks arrive.  Each record that comes out is sent on the
// output channel as a Message.  Diagnostics from the decoders are sent as
// messages too, with the text in ErrorMessage.
//
// The observations, antenna positions and so on are normalised records,
// the same for both protocols.  The readable form of each is available via
// the message's String method, which gives more detail when the log level
// is Debug.

// Protocols.
const (
	ProtocolAuto  = "auto"
	ProtocolRTCM2 = "rtcm2"
	ProtocolRTCM3 = "rtcm3"
)

// ParseProtocol checks a protocol name.  An empty name means auto.
func ParseProtocol(name string) (string, error) {
	switch name {
	case "", ProtocolAuto:
		return ProtocolAuto, nil
	case ProtocolRTCM2, ProtocolRTCM3:
		return name, nil
	default:
		return "", errors.Errorf("unknown protocol %q - expected %s, %s or %s",
			name, ProtocolAuto, ProtocolRTCM2, ProtocolRTCM3)
	}
}

const (
	// DefaultChunkSize is the most bytes handed to a decoder at once.
	DefaultChunkSize = 1024
	// DefaultSniffLimit is the number of bytes the handler reads looking
	// for a recognisable message before it gives up on them.
	DefaultSniffLimit = 4096
)

// Options controls a Handler.
type Options struct {
	// Protocol is ProtocolAuto, ProtocolRTCM2 or ProtocolRTCM3.
	Protocol string
	RTCM2    rtcm2.Options
	RTCM3    rtcm3.Options
	// EphemerisDepth is the number of versions of each satellite's
	// ephemeris kept.
	EphemerisDepth int
	ChunkSize      int
	SniffLimit     int
}

// DefaultOptions returns the usual settings.
func DefaultOptions() Options {
	return Options{
		Protocol:       ProtocolAuto,
		RTCM2:          rtcm2.DefaultOptions(),
		RTCM3:          rtcm3.DefaultOptions(),
		EphemerisDepth: ephemeris.DefaultDepth,
		ChunkSize:      DefaultChunkSize,
		SniffLimit:     DefaultSniffLimit,
	}
}

// Handler is the object used to fetch and decode messages.
type Handler struct {
	options  Options
	clock    clock.Clock
	logger   *slog.Logger
	logLevel slog.Level

	// protocol is the protocol in use, ProtocolAuto until one is found.
	protocol string

	store *ephemeris.Store
	rtcm2 *rtcm2.Decoder
	rtcm3 *rtcm3.Decoder

	// counts holds the number of messages seen of each type.  It's read by
	// the statistics reporter, which runs in another goroutine.
	countsMutex sync.Mutex
	counts      map[int]int
}

// New creates a handler.  The clock gives the time against which the week
// numbers of the messages are resolved, so when replaying old data it
// should be set to a time near the recording.
func New(options Options, c clock.Clock, logger *slog.Logger, logLevel slog.Level) *Handler {
	if c == nil {
		c = clock.NewSystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if options.ChunkSize <= 0 {
		options.ChunkSize = DefaultChunkSize
	}
	if options.SniffLimit <= 0 {
		options.SniffLimit = DefaultSniffLimit
	}
	if options.Protocol == "" {
		options.Protocol = ProtocolAuto
	}

	store := ephemeris.NewStore(options.EphemerisDepth)
	h := Handler{
		options:  options,
		clock:    c,
		logger:   logger,
		logLevel: logLevel,
		protocol: options.Protocol,
		store:    store,
		rtcm2:    rtcm2.New(options.RTCM2, c, store, logger, logLevel),
		rtcm3:    rtcm3.New(options.RTCM3, c, store, logger, logLevel),
		counts:   make(map[int]int),
	}
	return &h
}

// Protocol returns the protocol in use, or ProtocolAuto if it's not yet
// known.
func (h *Handler) Protocol() string {
	return h.protocol
}

// Ephemerides returns the ephemeris store shared by the decoders.
func (h *Handler) Ephemerides() *ephemeris.Store {
	return h.store
}

// HandleMessages reads bytes from chIn, decodes them and writes the
// resulting messages to chOut.  When chIn is closed it flushes any
// records still being assembled and closes chOut.  The caller is
// responsible for creating both channels and for closing chIn.
func (h *Handler) HandleMessages(chIn chan byte, chOut chan Message) {
	pb := pushback.New(chIn)

	var sniffed []byte
	for {
		buf, err := pb.Read(h.options.ChunkSize)

		if len(buf) > 0 {
			if h.protocol == ProtocolAuto {
				sniffed = append(sniffed, buf...)
				if protocol, found := Sniff(sniffed); found {
					h.setProtocol(protocol)
					// Read the bytes again, this time through the decoder.
					pb.PushBackBytes(sniffed)
					sniffed = nil
				} else if len(sniffed) >= h.options.SniffLimit {
					chOut <- *NewNonRTCM(sniffed, "no RTCM messages found", h.logLevel)
					sniffed = nil
				}
			} else {
				for _, m := range h.Decode(buf) {
					chOut <- m
				}
			}
		}

		if err != nil && pb.Buffered() == 0 {
			if !errors.Is(err, pushback.ErrDone) {
				h.logger.Error("handler: reading input", "error", err)
			}
			if len(sniffed) > 0 {
				chOut <- *NewNonRTCM(sniffed, "no RTCM messages found", h.logLevel)
			}
			for _, m := range h.Flush() {
				chOut <- m
			}
			close(chOut)
			return
		}
	}
}

func (h *Handler) setProtocol(protocol string) {
	h.logger.Info("handler: protocol found", "protocol", protocol)
	h.protocol = protocol
}

// Sniff looks for a complete RTCM3 frame or RTCM2 packet in buf and returns
// the protocol it belongs to.
func Sniff(buf []byte) (string, bool) {
	// An RTCM3 frame has a CRC so it's checked first.  The start byte of a
	// frame can't appear in RTCM2 data, where every byte starts 01.
	rest := buf
	for len(rest) > 0 {
		_, used, err := rtcm3.GetFrame(rest)
		if err == nil {
			return ProtocolRTCM3, true
		}
		if rtcmerr.Is(err, rtcmerr.Underrun) || used == 0 {
			break
		}
		rest = rest[used:]
	}

	var word rtcm2.ThirtyBitWord
	rest = buf
	for len(rest) > 0 {
		_, used, err := rtcm2.GetPacket(rest, &word)
		if err == nil {
			return ProtocolRTCM2, true
		}
		if rtcmerr.Is(err, rtcmerr.Underrun) || used == 0 {
			break
		}
		rest = rest[used:]
	}

	return ProtocolAuto, false
}

// Decode passes buf to the decoder for the protocol in use and returns
// messages for the records and diagnostics that come out.  If the protocol
// is auto and not yet known, buf must contain a complete message.
func (h *Handler) Decode(buf []byte) []Message {
	if h.protocol == ProtocolAuto {
		protocol, found := Sniff(buf)
		if !found {
			return []Message{*NewNonRTCM(buf, "no RTCM messages found", h.logLevel)}
		}
		h.setProtocol(protocol)
	}

	var errs []string
	var types []int
	switch h.protocol {
	case ProtocolRTCM2:
		_, errs = h.rtcm2.Decode(buf)
		types = h.rtcm2.TypeList()
	default:
		_, errs = h.rtcm3.Decode(buf)
		types = h.rtcm3.TypeList()
	}
	h.count(types)

	messages := make([]Message, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, Message{
			Protocol:     h.protocol,
			Record:       RecordError,
			MessageType:  utils.NonRTCMMessage,
			Timestamp:    h.clock.Now(),
			ErrorMessage: e,
			LogLevel:     h.logLevel,
		})
	}
	return append(messages, h.take()...)
}

// Flush releases any records still being assembled, for example at the end
// of the input.
func (h *Handler) Flush() []Message {
	if h.protocol == ProtocolRTCM3 {
		h.rtcm3.Flush()
	}
	return h.take()
}

// take collects the records from the decoder for the protocol in use.
func (h *Handler) take() []Message {
	var messages []Message

	var observations []observation.Observation
	var positions []observation.AntennaPosition
	var descriptors []observation.AntennaDescriptor
	switch h.protocol {
	case ProtocolRTCM2:
		observations = h.rtcm2.TakeObservations()
		positions = h.rtcm2.TakeAntennaPositions()
		descriptors = h.rtcm2.TakeAntennaDescriptors()
	case ProtocolRTCM3:
		observations = h.rtcm3.TakeObservations()
		positions = h.rtcm3.TakeAntennaPositions()
		descriptors = h.rtcm3.TakeAntennaDescriptors()
	default:
		return nil
	}

	leap := h.options.RTCM3.LeapSeconds
	for i := range observations {
		o := observations[i]
		messages = append(messages, h.newMessage(RecordObservation, 0,
			utils.GPSTimeToUTC(o.GPSWeek, o.GPSSeconds, leap), &o))
	}
	for i := range positions {
		p := positions[i]
		messages = append(messages, h.newMessage(RecordAntennaPosition, 0, h.clock.Now(), &p))
	}
	for i := range descriptors {
		a := descriptors[i]
		messages = append(messages, h.newMessage(RecordAntennaDescriptor, 0, h.clock.Now(), &a))
	}

	if h.protocol != ProtocolRTCM3 {
		return messages
	}

	for _, e := range h.rtcm3.TakeEphemerides() {
		week, seconds := e.ReferenceTime()
		messageType := utils.MessageType1019
		if _, isGlonass := e.(*ephemeris.Glonass); isGlonass {
			messageType = utils.MessageType1020
		}
		messages = append(messages, h.newMessage(RecordEphemeris, messageType,
			utils.GPSTimeToUTC(week, seconds, leap), e))
	}
	for _, co := range h.rtcm3.TakeClockOrbits() {
		co := co
		messages = append(messages, h.newMessage(RecordClockOrbit, co.MessageType,
			h.ssrTime(co.GPSEpochTime, co.NumberOfGPSSat > 0), &co))
	}
	for _, b := range h.rtcm3.TakeBiases() {
		b := b
		messages = append(messages, h.newMessage(RecordBias, b.MessageType,
			h.ssrTime(b.GPSEpochTime, b.NumberOfGPSSat > 0), &b))
	}

	return messages
}

func (h *Handler) newMessage(record RecordType, messageType int, timestamp time.Time, readable interface{}) Message {
	return Message{
		Protocol:    h.protocol,
		Record:      record,
		MessageType: messageType,
		Timestamp:   timestamp,
		Readable:    readable,
		LogLevel:    h.logLevel,
	}
}

// ssrTime converts an SSR GPS epoch time (seconds of week) to UTC, taking
// the week from the clock.  Sets with only GLONASS satellites are stamped
// with the clock's time.
func (h *Handler) ssrTime(epochTime int, hasGPS bool) time.Time {
	if !hasGPS {
		return h.clock.Now()
	}
	leap := h.options.RTCM3.LeapSeconds
	week, seconds := clock.GPSTime(h.clock, leap)
	diff := float64(epochTime) - seconds
	switch {
	case diff > utils.SecondsInWeek/2:
		week--
	case diff < -utils.SecondsInWeek/2:
		week++
	}
	return utils.GPSTimeToUTC(week, float64(epochTime), leap)
}

func (h *Handler) count(types []int) {
	h.countsMutex.Lock()
	defer h.countsMutex.Unlock()
	for _, t := range types {
		h.counts[t]++
	}
}

// Counts returns the number of messages of each type seen so far.
func (h *Handler) Counts() map[int]int {
	h.countsMutex.Lock()
	defer h.countsMutex.Unlock()
	result := make(map[int]int, len(h.counts))
	for t, n := range h.counts {
		result[t] = n
	}
	return result
}

// CountsReport returns the message counts as readable text, in order of
// message type.
func (h *Handler) CountsReport() string {
	counts := h.Counts()
	types := make([]int, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Ints(types)

	report := ""
	for _, t := range types {
		report += fmt.Sprintf("%d %s: %d\n", t, utils.GetTitle(t), counts[t])
	}
	return report
}

// RecordType says what kind of record a Message carries.
type RecordType int

const (
	RecordNonRTCM RecordType = iota
	RecordError
	RecordObservation
	RecordAntennaPosition
	RecordAntennaDescriptor
	RecordEphemeris
	RecordClockOrbit
	RecordBias
)

var recordNames = map[RecordType]string{
	RecordNonRTCM:           "non-RTCM data",
	RecordError:             "error",
	RecordObservation:       "observation",
	RecordAntennaPosition:   "antenna position",
	RecordAntennaDescriptor: "antenna descriptor",
	RecordEphemeris:         "ephemeris",
	RecordClockOrbit:        "orbit and clock corrections",
	RecordBias:              "code biases",
}

func (r RecordType) String() string {
	if name, ok := recordNames[r]; ok {
		return name
	}
	return fmt.Sprintf("record type %d", int(r))
}

// Message carries one decoded record, a diagnostic or a stream of data
// that couldn't be recognised.
type Message struct {
	// Protocol is the protocol of the stream the record came from.
	Protocol string

	Record RecordType

	// MessageType is the RTCM message type for the records that map to one
	// (ephemerides and SSR corrections).  Observations, which may be
	// gathered from several messages, and antenna records have type 0.
	MessageType int

	// Timestamp is the time of the observation or correction epoch, or
	// the reference time of an ephemeris, in UTC.  Other records carry the
	// time they were decoded.
	Timestamp time.Time

	// ErrorMessage contains any error message from the decoder.
	ErrorMessage string

	// RawData is the input that couldn't be recognised, for a non-RTCM
	// message.
	RawData []byte

	// Readable is the decoded record: a pointer to an observation,
	// antenna position, antenna descriptor, ephemeris, orbit and clock
	// correction set or code bias set.
	Readable interface{}

	// LogLevel controls the data produced by String.
	LogLevel slog.Level
}

// NewNonRTCM creates a message carrying data that isn't RTCM.
func NewNonRTCM(rawData []byte, errorMessage string, logLevel slog.Level) *Message {
	data := make([]byte, len(rawData))
	copy(data, rawData)
	message := Message{
		Record:       RecordNonRTCM,
		MessageType:  utils.NonRTCMMessage,
		RawData:      data,
		ErrorMessage: errorMessage,
		LogLevel:     logLevel,
	}
	return &message
}

// String returns the message as readable text.
func (message *Message) String() string {
	display := message.Record.String()
	if message.MessageType > 0 {
		display += fmt.Sprintf(", message type %d, %s", message.MessageType, utils.GetTitle(message.MessageType))
	}
	display += "\n"

	if !message.Timestamp.IsZero() {
		display += message.Timestamp.UTC().Format(time.RFC3339Nano) + "\n"
	}

	if len(message.ErrorMessage) > 0 {
		display += message.ErrorMessage + "\n"
	}

	if message.Record == RecordNonRTCM {
		display += fmt.Sprintf("%d bytes\n", len(message.RawData))
		if message.LogLevel == slog.LevelDebug {
			display += hex.Dump(message.RawData)
		}
		return display
	}

	if s, ok := message.Readable.(fmt.Stringer); ok {
		display += s.String()
	}
	return display
}
