//go:build !linux

package main

import (
	"fmt"

	"github.com/charmbracelet/log"
)

func autoDetectPort(logger *log.Logger) (string, error) {
	return "", fmt.Errorf("xbnet: auto port detection requires udev and is only supported on Linux")
}
