// Package xbeeapi implements the XBee API-mode wire protocol: framing,
// checksums, and the subset of API frame types the bridge uses.
//
// Wire format (spec.md §4.2): 0x7E | len_hi | len_lo | payload[len] | checksum,
// where checksum = 0xFF - (sum(payload) mod 256).
package xbeeapi

import "github.com/jgoerzen/xbnet/internal/xbnet"

// API frame identifiers, spec.md §4.2.
const (
	idATCommand         = 0x08
	idATCommandResponse = 0x88
	idTransmitRequest   = 0x10
	idTransmitStatus    = 0x8B
	idReceivePacket     = 0x90
)

const frameDelimiter = 0x7E

// ATCommand is a two-character AT command name, e.g. "DH", "MY".
type ATCommand [2]byte

func AT(name string) ATCommand {
	var c ATCommand
	copy(c[:], name)
	return c
}

func (c ATCommand) String() string { return string(c[:]) }

// CommandStatus is the status byte of an AT command response.
type CommandStatus byte

const (
	StatusOK               CommandStatus = 0
	StatusError            CommandStatus = 1
	StatusInvalidCommand   CommandStatus = 2
	StatusInvalidParameter CommandStatus = 3
)

// ATCommandFrame is an outbound AT command request.
type ATCommandFrame struct {
	FrameID byte
	Command ATCommand
	Param   []byte
}

// ATCommandResponseFrame is an inbound AT command response.
type ATCommandResponseFrame struct {
	FrameID byte
	Command ATCommand
	Status  CommandStatus
	Value   []byte
}

// TransmitRequestFrame is an outbound data transmission, spec.md §4.2.
type TransmitRequestFrame struct {
	FrameID         byte
	Dest            xbnet.Address
	Dest16          uint16 // conventionally 0xFFFE
	BroadcastRadius byte
	DisableAck      bool
	Data            []byte
}

// TransmitStatusFrame is an inbound delivery report.
type TransmitStatusFrame struct {
	FrameID        byte
	DeliveryStatus byte
}

// ReceivePacketFrame is an inbound data reception, spec.md §4.2.
type ReceivePacketFrame struct {
	Source   xbnet.Address
	Source16 uint16
	Options  byte
	Data     []byte
}

// Frame is the tagged union of inbound/outbound API frames this package
// understands. Exactly one concrete type below is held at a time.
type Frame interface {
	isFrame()
}

func (*ATCommandFrame) isFrame()         {}
func (*ATCommandResponseFrame) isFrame() {}
func (*TransmitRequestFrame) isFrame()   {}
func (*TransmitStatusFrame) isFrame()    {}
func (*ReceivePacketFrame) isFrame()     {}
