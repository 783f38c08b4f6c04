// Package pipe implements the pipe packet-mode adapter: stdin/stdout as
// the user-frame source and sink (spec.md §4.7).
package pipe

import (
	"io"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Adapter reads chunks from an input reader (normally os.Stdin), each
// becoming one user frame addressed to a fixed destination, and writes
// every reassembled inbound frame to an output writer (normally
// os.Stdout).
type Adapter struct {
	in     io.Reader
	out    io.Writer
	dest   xbnet.Address
	chunk  []byte
	closer func() error
}

// New wraps in/out with a fixed destination and chunk size (normally
// maxPayload, so each read maps to one unfragmented transmit when
// possible).
func New(in io.Reader, out io.Writer, dest xbnet.Address, chunkSize int, closer func() error) *Adapter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Adapter{in: in, out: out, dest: dest, chunk: make([]byte, chunkSize), closer: closer}
}

// ReadUserFrame reads one chunk of stdin. Per spec.md §4.7, end-of-input
// is reported as io.EOF so the caller can drain the send side and exit.
func (a *Adapter) ReadUserFrame() (xbnet.Address, []byte, bool, error) {
	n, err := a.in.Read(a.chunk)
	if n > 0 {
		frame := append([]byte(nil), a.chunk[:n]...)
		return a.dest, frame, true, err // err may be non-nil (e.g. io.EOF) alongside the final chunk
	}
	return xbnet.Address{}, nil, false, err
}

// WriteUserFrame writes a reassembled frame to stdout, ignoring its
// source (pipe mode is unicast to a single configured destination).
func (a *Adapter) WriteUserFrame(_ xbnet.Address, payload []byte) error {
	_, err := a.out.Write(payload)
	return err
}

func (a *Adapter) Close() error {
	if a.closer != nil {
		return a.closer()
	}
	return nil
}
