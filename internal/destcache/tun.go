package destcache

import (
	"sync"
	"time"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// IPKey is a fixed-size IP address usable as a map key: 4 bytes for IPv4,
// 16 for IPv6.
type IPKey [16]byte

func ipv4Key(b []byte) IPKey {
	var k IPKey
	copy(k[:4], b)
	return k
}

func ipv6Key(b []byte) IPKey {
	var k IPKey
	copy(k[:], b)
	return k
}

type tunEntry struct {
	addr xbnet.Address
	seen time.Time
}

// TunCache maps IPv4 and IPv6 destination addresses to XBee addresses,
// each expiring after maxAge of inactivity (spec.md §4.6).
type TunCache struct {
	maxAge               time.Duration
	broadcastEverything  bool
	disableIPv4          bool
	disableIPv6          bool

	mu   sync.RWMutex
	v4   map[IPKey]tunEntry
	v6   map[IPKey]tunEntry
}

// TunCacheConfig mirrors the tun subcommand's CLI flags.
type TunCacheConfig struct {
	MaxAge              time.Duration
	BroadcastEverything bool
	DisableIPv4         bool
	DisableIPv6         bool
}

func NewTunCache(cfg TunCacheConfig) *TunCache {
	return &TunCache{
		maxAge:              cfg.MaxAge,
		broadcastEverything: cfg.BroadcastEverything,
		disableIPv4:         cfg.DisableIPv4,
		disableIPv6:         cfg.DisableIPv6,
		v4:                  make(map[IPKey]tunEntry),
		v6:                  make(map[IPKey]tunEntry),
	}
}

// IPVersion inspects the leading nibble of an IP packet, per spec.md §4.7.
func IPVersion(packet []byte) (version int, ok bool) {
	if len(packet) == 0 {
		return 0, false
	}
	v := packet[0] >> 4
	if v != 4 && v != 6 {
		return 0, false
	}
	return int(v), true
}

// SourceAndDest extracts the source and destination addresses from an IPv4
// or IPv6 packet, per the byte ranges in spec.md §4.6.
func SourceAndDest(packet []byte) (version int, src, dst IPKey, ok bool) {
	version, ok = IPVersion(packet)
	if !ok {
		return 0, IPKey{}, IPKey{}, false
	}
	switch version {
	case 4:
		if len(packet) < 20 {
			return 0, IPKey{}, IPKey{}, false
		}
		return 4, ipv4Key(packet[12:16]), ipv4Key(packet[16:20]), true
	case 6:
		if len(packet) < 40 {
			return 0, IPKey{}, IPKey{}, false
		}
		return 6, ipv6Key(packet[8:24]), ipv6Key(packet[24:40]), true
	default:
		return 0, IPKey{}, IPKey{}, false
	}
}

// Learn records that, as of now, the IP address key was reached via src.
func (c *TunCache) Learn(version int, key IPKey, src xbnet.Address, now time.Time) {
	table := c.table(version)
	if table == nil {
		return
	}
	c.mu.Lock()
	table[key] = tunEntry{addr: src, seen: now}
	c.mu.Unlock()
}

// Resolve chooses the XBee destination for an outbound packet bound for
// the given IP version and destination key. ok is false when the packet's
// family is disabled and must be dropped.
func (c *TunCache) Resolve(version int, key IPKey, now time.Time) (addr xbnet.Address, broadcast bool, ok bool) {
	if c.Disabled(version) {
		return xbnet.Address{}, false, false
	}
	if c.broadcastEverything {
		return xbnet.Address{}, true, true
	}

	table := c.table(version)
	if table == nil {
		return xbnet.Address{}, false, false
	}

	c.mu.RLock()
	e, found := table[key]
	c.mu.RUnlock()

	if !found || (c.maxAge > 0 && now.Sub(e.seen) > c.maxAge) {
		return xbnet.Address{}, true, true
	}
	return e.addr, false, true
}

// Disabled reports whether the given IP version's family has been turned
// off via --disable-ipv4/--disable-ipv6, per spec.md §4.6 ("drop packets
// of the disabled family on both directions").
func (c *TunCache) Disabled(version int) bool {
	return (version == 4 && c.disableIPv4) || (version == 6 && c.disableIPv6)
}

func (c *TunCache) table(version int) map[IPKey]tunEntry {
	switch version {
	case 4:
		return c.v4
	case 6:
		return c.v6
	default:
		return nil
	}
}
