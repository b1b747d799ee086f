// Package rtcmerr defines the tagged errors returned by the RTCM decoders.
// Callers behave differently depending on the kind: a parity or CRC failure
// means resynchronise, an underrun means supply more bytes and try again, a
// range error is a programming fault and the mismatch kinds are per-message
// problems that don't stop the stream.
package rtcmerr

import (
	"github.com/pkg/errors"
)

// Kind classifies a decoder error.
type Kind int

const (
	Unknown Kind = iota
	Parity
	CRC
	Underrun
	Range
	TimeMismatch
	DataMismatch
	MissingEphemeris
)

var kindNames = map[Kind]string{
	Unknown:          "unknown",
	Parity:           "parity",
	CRC:              "crc",
	Underrun:         "underrun",
	Range:            "range",
	TimeMismatch:     "time mismatch",
	DataMismatch:     "data mismatch",
	MissingEphemeris: "missing ephemeris",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is an error tagged with its Kind.
type Error struct {
	Kind Kind
	err  error
}

// New creates a tagged error with a formatted message.  The message carries
// a stack trace from pkg/errors.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap tags an existing error, adding a message.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: errors.Wrap(err, message)}
}

func (e *Error) Error() string {
	return e.err.Error()
}

// Unwrap supports errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.err
}

// Cause supports pkg/errors.Cause.
func (e *Error) Cause() error {
	return errors.Cause(e.err)
}

// KindOf returns the kind of the first tagged error in err's chain, or
// Unknown.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return Unknown
}

// Is returns true if err is tagged with the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
