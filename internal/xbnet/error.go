package xbnet

import "fmt"

// Kind classifies the error conditions enumerated for the bridge.
// Fatal kinds (SerialIO, InitFailure, ConfigInvalid) should terminate the
// process; the rest are recovered locally by the caller.
type Kind int

const (
	// SerialIO covers a closed or errored serial port. Fatal.
	SerialIO Kind = iota
	// InitFailure covers a non-OK AT response or unexpected modem state
	// during initialization. Fatal.
	InitFailure
	// ChecksumMismatch covers a bad API frame checksum. Recovered: drop
	// and resynchronize.
	ChecksumMismatch
	// UnknownApiId covers an unrecognized API frame identifier. Recovered:
	// log and drop.
	UnknownApiId
	// OversizedUserFrame covers a user frame that cannot be represented
	// even after fragmentation. Recovered: drop and log.
	OversizedUserFrame
	// ReassemblyTimeout covers a reassembly buffer discarded after
	// eotwait elapsed with no further fragment. Recovered: silent drop,
	// debug log.
	ReassemblyTimeout
	// DestinationUnknown covers a tun/tap cache miss with no broadcast
	// override. Recovered: drop.
	DestinationUnknown
	// ConfigInvalid covers a configuration value outside its valid range.
	// Fatal at startup.
	ConfigInvalid
)

func (k Kind) String() string {
	switch k {
	case SerialIO:
		return "SerialIO"
	case InitFailure:
		return "InitFailure"
	case ChecksumMismatch:
		return "ChecksumMismatch"
	case UnknownApiId:
		return "UnknownApiId"
	case OversizedUserFrame:
		return "OversizedUserFrame"
	case ReassemblyTimeout:
		return "ReassemblyTimeout"
	case DestinationUnknown:
		return "DestinationUnknown"
	case ConfigInvalid:
		return "ConfigInvalid"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether an error of this kind should terminate the process.
func (k Kind) Fatal() bool {
	switch k {
	case SerialIO, InitFailure, ConfigInvalid:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with one of the Kind values above.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xbnet: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("xbnet: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs an Error of the given kind.
func NewError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}
