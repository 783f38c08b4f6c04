//go:build linux

// Package tun implements the tun packet-mode adapter: a kernel layer-3
// virtual device carrying IPv4/IPv6 packets (spec.md §4.7), with
// destination resolution via internal/destcache's IP caches.
package tun

import (
	"time"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"

	"github.com/jgoerzen/xbnet/internal/destcache"
	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Adapter owns a kernel tun device.
type Adapter struct {
	iface *water.Interface
	cache *destcache.TunCache
	local xbnet.Address
	mtu   int
	buf   []byte
}

// Config mirrors the tun subcommand's CLI flags.
type Config struct {
	IfaceName           string
	BroadcastEverything bool
	DisableIPv4         bool
	DisableIPv6         bool
	MaxIPCache          time.Duration
	MTU                 int
}

// New opens a tun device named per cfg.IfaceName and brings it up.
// Requires elevated privilege, per spec.md §4.7.
func New(local xbnet.Address, cfg Config) (*Adapter, string, error) {
	waterCfg := water.Config{DeviceType: water.TUN}
	waterCfg.Name = cfg.IfaceName

	iface, err := water.New(waterCfg)
	if err != nil {
		return nil, "", err
	}

	if link, err := netlink.LinkByName(iface.Name()); err == nil {
		_ = netlink.LinkSetUp(link)
	}

	mtu := cfg.MTU
	if mtu == 0 {
		mtu = 1500
	}

	cache := destcache.NewTunCache(destcache.TunCacheConfig{
		MaxAge:              cfg.MaxIPCache,
		BroadcastEverything: cfg.BroadcastEverything,
		DisableIPv4:         cfg.DisableIPv4,
		DisableIPv6:         cfg.DisableIPv6,
	})

	return &Adapter{
		iface: iface,
		cache: cache,
		local: local,
		mtu:   mtu,
		buf:   make([]byte, mtu+4),
	}, iface.Name(), nil
}

// ReadUserFrame reads one IP packet from the device and resolves its
// destination address to an XBee address.
func (a *Adapter) ReadUserFrame() (xbnet.Address, []byte, bool, error) {
	n, err := a.iface.Read(a.buf)
	if err != nil {
		return xbnet.Address{}, nil, false, err
	}
	packet := append([]byte(nil), a.buf[:n]...)

	version, _, dst, ok := destcache.SourceAndDest(packet)
	if !ok {
		return xbnet.Address{}, nil, false, nil
	}
	addr, broadcast, ok := a.cache.Resolve(version, dst, time.Now())
	if !ok {
		return xbnet.Address{}, nil, false, nil // disabled family
	}
	if broadcast {
		addr = xbnet.Broadcast
	}
	return addr, packet, true, nil
}

// WriteUserFrame learns src's mapping from the packet's source address,
// then writes the IP packet to the device. A packet of a disabled family
// is dropped rather than written, per spec.md §4.6 ("drop packets of the
// disabled family on both directions").
func (a *Adapter) WriteUserFrame(src xbnet.Address, payload []byte) error {
	if version, srcIP, _, ok := destcache.SourceAndDest(payload); ok {
		if a.cache.Disabled(version) {
			return nil
		}
		a.cache.Learn(version, srcIP, src, time.Now())
	}
	_, err := a.iface.Write(payload)
	return err
}

func (a *Adapter) Close() error {
	return a.iface.Close()
}
