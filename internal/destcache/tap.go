// Package destcache implements the MAC/IP-to-XBee-address mapping caches
// that let the tap and tun adapters turn an upper-layer destination into a
// radio destination (spec.md §4.6).
package destcache

import (
	"sync"
	"time"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

type tapEntry struct {
	addr xbnet.Address
	seen time.Time
}

// TapCache maps Ethernet MACs to XBee addresses. Entries never expire on
// idleness; they only change when a new mapping for the same MAC arrives.
type TapCache struct {
	broadcastUnknown bool

	mu      sync.RWMutex
	entries map[MAC]tapEntry
}

// NewTapCache constructs an empty cache. broadcastUnknown mirrors the
// --broadcast-unknown flag: when true, an outbound lookup miss broadcasts
// instead of dropping.
func NewTapCache(broadcastUnknown bool) *TapCache {
	return &TapCache{
		broadcastUnknown: broadcastUnknown,
		entries:          make(map[MAC]tapEntry),
	}
}

// Learn records that mac was last seen arriving from src, at now.
func (c *TapCache) Learn(mac MAC, src xbnet.Address, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[mac] = tapEntry{addr: src, seen: now}
}

// Resolve chooses the XBee destination for an outbound frame whose
// destination MAC is dest. ok is false only when the frame should be
// silently dropped (unknown unicast destination, broadcastUnknown unset).
func (c *TapCache) Resolve(dest MAC) (addr xbnet.Address, broadcast bool, ok bool) {
	if dest.IsBroadcastOrMulticast() {
		return xbnet.Address{}, true, true
	}

	c.mu.RLock()
	e, found := c.entries[dest]
	c.mu.RUnlock()

	if found {
		return e.addr, false, true
	}
	if c.broadcastUnknown {
		return xbnet.Address{}, true, true
	}
	return xbnet.Address{}, false, false
}
