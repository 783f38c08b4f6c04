//go:build !linux

package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/jgoerzen/xbnet/internal/initscript"
	"github.com/jgoerzen/xbnet/internal/sched"
)

func runTap(result *initscript.Result, cfg sched.Config, rest []string, logger *log.Logger) error {
	return fmt.Errorf("xbnet: tap mode requires a Linux kernel tap device")
}

func runTun(result *initscript.Result, cfg sched.Config, rest []string, logger *log.Logger) error {
	return fmt.Errorf("xbnet: tun mode requires a Linux kernel tun device")
}

func newResetLine(spec string) (initscript.ResetLine, error) {
	return nil, fmt.Errorf("xbnet: GPIO reset lines are only supported on Linux")
}
