// Package initscript drives the attached XBee module out of whatever mode
// it was left in, into API mode, then plays a configured list of AT
// commands and reads back the module's local address (spec.md §4.3).
package initscript

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jgoerzen/xbnet/internal/xbeeapi"
	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Config tunes the timing of the transparent-mode escape dance. The zero
// value is not usable; call DefaultConfig for the standard XBee guard
// interval.
type Config struct {
	GuardTime       time.Duration // pause before/after "+++"
	ResponseTimeout time.Duration // how long to wait for a raw "OK\r"

	// ResetLine, if non-nil, is pulsed low then high before anything else,
	// for carrier boards that expose the module's /RESET pin on a GPIO
	// header (SPEC_FULL.md's go-gpiocdev supplement).
	ResetLine ResetLine
}

// DefaultConfig returns the standard XBee "+++" guard interval (~1.1s) and
// a generous response timeout.
func DefaultConfig() Config {
	return Config{
		GuardTime:       1100 * time.Millisecond,
		ResponseTimeout: 1500 * time.Millisecond,
	}
}

// ResetLine pulses a hardware reset line. See internal/initscript/gpioreset.go.
type ResetLine interface {
	Pulse() error
	Close() error
}

// Result is everything the rest of the bridge needs once initialization
// succeeds.
type Result struct {
	Codec *xbeeapi.Codec
	Local xbnet.Address
}

// Run executes the full five-step procedure of spec.md §4.3 against rw
// (the raw serial connection) and returns a ready-to-use Codec plus the
// local address. Any failure is fatal (xbnet.Error{Kind: InitFailure} or
// SerialIO) and non-retrying.
func Run(rw io.ReadWriter, lines []string, cfg Config, requestTxReports bool, logger *log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	if cfg.ResetLine != nil {
		if err := cfg.ResetLine.Pulse(); err != nil {
			return nil, xbnet.NewError(xbnet.InitFailure, "pulse reset line", err)
		}
	}

	wasTransparent, err := detectTransparentMode(rw, cfg.GuardTime, cfg.ResponseTimeout)
	if err != nil {
		return nil, err
	}
	if wasTransparent {
		logger.Info("modem was in transparent mode, switching to API mode")
		for _, cmd := range []string{"ATAP1\r", "ATWR\r", "ATCN\r"} {
			if err := sendRawATExpectOK(rw, cmd, cfg.ResponseTimeout); err != nil {
				return nil, err
			}
		}
	} else {
		logger.Info("modem appears to already be in API mode")
	}

	codec := xbeeapi.New(rw, logger)

	for _, line := range lines {
		name, param, ok := parseLine(line)
		if !ok {
			continue // blank or comment line
		}
		if err := runATCommand(codec, name, param); err != nil {
			return nil, err
		}
		logger.Info("init script line applied", "command", name)
	}

	local, err := readLocalAddress(codec)
	if err != nil {
		return nil, err
	}
	logger.Info("local address", "address", local.String())

	if requestTxReports {
		logger.Info("transmit-status reports enabled")
	}

	return &Result{Codec: codec, Local: local}, nil
}

// parseLine splits an init-script line into its two-letter AT command
// name and an optional parameter, per spec.md §4.3 step 3 ("send AT<LINE>
// as an API AT command"). Blank lines and lines starting with "#" are
// skipped.
func parseLine(line string) (name string, param []byte, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", nil, false
	}
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "AT"), "at")
	if len(trimmed) < 2 {
		return "", nil, false
	}
	name = trimmed[:2]
	rest := strings.TrimSpace(trimmed[2:])
	if rest != "" {
		param = []byte(rest)
	}
	return name, param, true
}

func runATCommand(codec *xbeeapi.Codec, name string, param []byte) error {
	frameID, err := codec.SendATCommand(name, param)
	if err != nil {
		return err
	}
	resp, err := waitForATResponse(codec, frameID)
	if err != nil {
		return err
	}
	return xbeeapi.ValidateATResponse(name, resp)
}

// waitForATResponse reads frames until it sees the AT response matching
// frameID, ignoring any other traffic (e.g. a stray receive packet) that
// may arrive during bring-up.
func waitForATResponse(codec *xbeeapi.Codec, frameID byte) (*xbeeapi.ATCommandResponseFrame, error) {
	for {
		frame, err := codec.ReadFrame()
		if err != nil {
			return nil, err
		}
		if resp, ok := frame.(*xbeeapi.ATCommandResponseFrame); ok && resp.FrameID == frameID {
			return resp, nil
		}
	}
}

// readLocalAddress reads back the module's 64-bit address via ATSH/ATSL
// (spec.md §4.3 step 4).
func readLocalAddress(codec *xbeeapi.Codec) (xbnet.Address, error) {
	high, err := queryATUint32(codec, "SH")
	if err != nil {
		return xbnet.Address{}, err
	}
	low, err := queryATUint32(codec, "SL")
	if err != nil {
		return xbnet.Address{}, err
	}
	return xbnet.AddressFromUint64(uint64(high)<<32 | uint64(low)), nil
}

func queryATUint32(codec *xbeeapi.Codec, name string) (uint32, error) {
	frameID, err := codec.SendATCommand(name, nil)
	if err != nil {
		return 0, err
	}
	resp, err := waitForATResponse(codec, frameID)
	if err != nil {
		return 0, err
	}
	if err := xbeeapi.ValidateATResponse(name, resp); err != nil {
		return 0, err
	}
	var v uint32
	for _, b := range resp.Value {
		v = (v << 8) | uint32(b)
	}
	return v, nil
}

type rawReadResult struct {
	n   int
	err error
}

// detectTransparentMode performs the "+++" escape dance (spec.md §4.3 step
// 1) on the raw, unframed connection. It returns true if the modem
// answered "OK\r", meaning it was in transparent mode.
func detectTransparentMode(rw io.ReadWriter, guardTime, responseTimeout time.Duration) (bool, error) {
	time.Sleep(guardTime)
	if _, err := rw.Write([]byte("+++")); err != nil {
		return false, xbnet.NewError(xbnet.SerialIO, "write escape sequence", err)
	}
	time.Sleep(guardTime)

	buf := make([]byte, 32)
	result := make(chan rawReadResult, 1)
	go func() {
		n, err := rw.Read(buf)
		result <- rawReadResult{n: n, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return false, xbnet.NewError(xbnet.SerialIO, "read escape response", r.err)
		}
		return bytes.Contains(buf[:r.n], []byte("OK\r")), nil
	case <-time.After(responseTimeout):
		return false, nil
	}
}

// sendRawATExpectOK writes a textual AT command (transparent mode, not
// API-framed) and waits for "OK\r".
func sendRawATExpectOK(rw io.ReadWriter, cmd string, timeout time.Duration) error {
	if _, err := rw.Write([]byte(cmd)); err != nil {
		return xbnet.NewError(xbnet.SerialIO, fmt.Sprintf("write %q", cmd), err)
	}

	buf := make([]byte, 32)
	result := make(chan rawReadResult, 1)
	go func() {
		n, err := rw.Read(buf)
		result <- rawReadResult{n: n, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return xbnet.NewError(xbnet.SerialIO, fmt.Sprintf("read response to %q", cmd), r.err)
		}
		if !bytes.Contains(buf[:r.n], []byte("OK\r")) {
			return xbnet.NewError(xbnet.InitFailure, fmt.Sprintf("%q did not return OK", cmd), nil)
		}
		return nil
	case <-time.After(timeout):
		return xbnet.NewError(xbnet.InitFailure, fmt.Sprintf("%q timed out waiting for OK", cmd), nil)
	}
}
