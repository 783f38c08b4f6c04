//go:build linux

package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// knownUSBSerialDrivers lists the kernel drivers behind the common
// USB-serial chipsets XBee carrier boards use.
var knownUSBSerialDrivers = []string{"ftdi_sio", "cp210x", "ch341"}

// autoDetectPort enumerates tty-subsystem udev devices and returns the
// device node of the first one whose driver looks like a USB-serial
// adapter, supplementing the bare "serial port path" spec.md leaves
// external (SPEC_FULL.md's udev supplement).
func autoDetectPort(logger *log.Logger) (string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return "", fmt.Errorf("xbnet: enumerate tty devices: %w", err)
	}

	devices, err := e.Devices()
	if err != nil {
		return "", fmt.Errorf("xbnet: enumerate tty devices: %w", err)
	}

	var candidate string
	for _, d := range devices {
		driver := d.PropertyValue("ID_USB_DRIVER")
		node := d.Devnode()
		if node == "" {
			continue
		}
		if !isKnownUSBSerialDriver(driver) {
			if logger != nil {
				logger.Debug("skipping tty device", "node", node, "driver", driver)
			}
			continue
		}
		if candidate == "" {
			candidate = node
		} else if logger != nil {
			logger.Debug("additional candidate serial port ignored", "node", node)
		}
	}

	if candidate == "" {
		return "", fmt.Errorf("xbnet: no USB-serial device found for auto port selection")
	}
	return candidate, nil
}

func isKnownUSBSerialDriver(driver string) bool {
	for _, d := range knownUSBSerialDrivers {
		if d == driver {
			return true
		}
	}
	return false
}
