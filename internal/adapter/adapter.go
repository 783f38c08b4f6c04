// Package adapter defines the small capability shared by the three
// packet-mode adapters (pipe, tap, tun): producing outbound user frames
// and consuming reassembled inbound ones (spec.md §4.7, §9). No deep
// hierarchy is warranted, so it is modeled as one interface rather than a
// tagged variant.
package adapter

import "github.com/jgoerzen/xbnet/internal/xbnet"

// Adapter owns a packet source/sink (stdin/stdout, or a kernel tap/tun
// device) exclusively (spec.md §5).
type Adapter interface {
	// ReadUserFrame blocks until an outbound user frame is ready, returning
	// its resolved XBee destination and payload bytes. ok is false when the
	// frame should be dropped rather than transmitted (e.g. an unresolved
	// tun/tap destination with no broadcast override).
	ReadUserFrame() (dest xbnet.Address, payload []byte, ok bool, err error)

	// WriteUserFrame delivers one reassembled inbound user frame, from src,
	// to the adapter's sink.
	WriteUserFrame(src xbnet.Address, payload []byte) error

	// Close releases the adapter's device or file descriptors.
	Close() error
}
