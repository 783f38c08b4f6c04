// Package xbnet holds the types shared across the bridge: the XBee address,
// the error kinds, and the bridge-wide configuration struct.
package xbnet

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is an XBee 64-bit device address. It is comparable and usable as a
// map key directly.
type Address [8]byte

// Broadcast is the distinguished XBee broadcast address.
var Broadcast = Address{0, 0, 0, 0, 0, 0, 0xFF, 0xFF}

// Coordinator is the well-known all-zero address of the network coordinator.
var Coordinator = Address{}

// Uint64 returns the address as a big-endian unsigned integer, as used in
// the wire encoding of transmit/receive API frames.
func (a Address) Uint64() uint64 {
	var v uint64
	for _, b := range a {
		v = (v << 8) | uint64(b)
	}
	return v
}

// AddressFromUint64 builds an Address from its big-endian integer form.
func AddressFromUint64(v uint64) Address {
	var a Address
	for i := 7; i >= 0; i-- {
		a[i] = byte(v)
		v >>= 8
	}
	return a
}

func (a Address) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

// IsBroadcast reports whether a is the well-known broadcast address.
func (a Address) IsBroadcast() bool {
	return a == Broadcast
}

// ParseAddress parses a 16-character hex string (the `--dest <hex64>` CLI
// form) into an Address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("xbnet: invalid address %q: %w", s, err)
	}
	if len(raw) != 8 {
		return Address{}, fmt.Errorf("xbnet: address %q must be 16 hex characters, got %d bytes", s, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}
