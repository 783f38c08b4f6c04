//go:build linux

package initscript

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// gpioResetLine pulses a carrier board's reset-pin GPIO low then high
// before the initializer touches the serial port, mirroring the teacher's
// GPIO-keyed PTT line in xmit.go (there it keys a transmitter; here it
// resets a modem).
type gpioResetLine struct {
	line *gpiocdev.Line
	hold time.Duration
}

// NewGPIOResetLine parses a "chip:line" spec (e.g. "gpiochip0:17") and
// requests that line as an output, initially high (reset not asserted).
func NewGPIOResetLine(spec string, hold time.Duration) (ResetLine, error) {
	chip, offsetStr, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("initscript: reset line spec %q must be chip:line", spec)
	}
	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		return nil, fmt.Errorf("initscript: reset line spec %q: %w", spec, err)
	}

	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(1))
	if err != nil {
		return nil, fmt.Errorf("initscript: request reset line %q: %w", spec, err)
	}
	return &gpioResetLine{line: line, hold: hold}, nil
}

// Pulse drives the line low (asserting /RESET) for hold, then releases it.
func (g *gpioResetLine) Pulse() error {
	if err := g.line.SetValue(0); err != nil {
		return err
	}
	time.Sleep(g.hold)
	return g.line.SetValue(1)
}

func (g *gpioResetLine) Close() error {
	return g.line.Close()
}
