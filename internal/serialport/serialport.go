// Package serialport owns the serial port file descriptor used to talk to
// the XBee module: it configures baud and exposes blocking byte-granular
// read/write (spec.md §4.1), translating teardown into a fatal xbnet.Error.
//
// The teacher's C-ported equivalent (serial_port_open/_write/_get1 in
// doismellburning-samoyed) drives the same github.com/pkg/term library
// through cgo; this is the pure-Go shape of the same three operations.
package serialport

import (
	"io"

	"github.com/pkg/term"
	"golang.org/x/sys/unix"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Port is an open, configured serial connection.
type Port struct {
	t *term.Term
}

// Open opens devicename at the given baud (8-N-1, no hardware flow control,
// spec.md §6). baud of 0 leaves the current speed alone.
func Open(devicename string, baud int) (*Port, error) {
	t, err := term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, xbnet.NewError(xbnet.SerialIO, "open "+devicename, err)
	}

	if baud != 0 {
		if err := t.SetSpeed(baud); err != nil {
			t.Close()
			return nil, xbnet.NewError(xbnet.SerialIO, "set baud", err)
		}
	}

	// pkg/term's RawMode already disables canonical/echo processing; pin
	// VMIN/VTIME explicitly so a read always blocks for at least one byte
	// rather than polling, matching the blocking-read contract in spec.md
	// §4.1 regardless of what the platform default happens to be.
	if err := setRawTimeouts(t); err != nil {
		t.Close()
		return nil, xbnet.NewError(xbnet.SerialIO, "configure termios", err)
	}

	return &Port{t: t}, nil
}

func setRawTimeouts(t *term.Term) error {
	fd := int(t.Fd())

	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, ioctlSetTermios, termios)
}

// Read performs a blocking read into p, returning a fatal xbnet.Error if the
// port has closed (spec.md §4.1: "Produces a fatal error if the port
// closes.").
func (p *Port) Read(buf []byte) (int, error) {
	n, err := p.t.Read(buf)
	if err != nil {
		if err == io.EOF {
			return n, xbnet.NewError(xbnet.SerialIO, "port closed", err)
		}
		return n, xbnet.NewError(xbnet.SerialIO, "read", err)
	}
	return n, nil
}

// Write performs a blocking write of data.
func (p *Port) Write(data []byte) (int, error) {
	n, err := p.t.Write(data)
	if err != nil {
		return n, xbnet.NewError(xbnet.SerialIO, "write", err)
	}
	return n, nil
}

// Close releases the underlying file descriptor.
func (p *Port) Close() error {
	return p.t.Close()
}
