//go:build linux

// Package tap implements the tap packet-mode adapter: a kernel layer-2
// virtual device carrying Ethernet frames (spec.md §4.7), with
// destination resolution via internal/destcache's MAC cache.
package tap

import (
	"time"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"

	"github.com/jgoerzen/xbnet/internal/destcache"
	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Adapter owns a kernel tap device.
type Adapter struct {
	iface *water.Interface
	cache *destcache.TapCache
	local xbnet.Address
	mtu   int
	buf   []byte
}

// Config mirrors the tap subcommand's CLI flags.
type Config struct {
	IfaceName        string // requested name, e.g. "xbnet%d"
	BroadcastUnknown bool
	MTU              int
}

// New opens a tap device named per cfg.IfaceName (the kernel assigns the
// concrete name), brings it up, and returns an Adapter. Requires elevated
// privilege, per spec.md §4.7.
func New(local xbnet.Address, cfg Config) (*Adapter, string, error) {
	waterCfg := water.Config{DeviceType: water.TAP}
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

	return &Adapter{
		iface: iface,
		cache: destcache.NewTapCache(cfg.BroadcastUnknown),
		local: local,
		mtu:   mtu,
		buf:   make([]byte, mtu+14),
	}, iface.Name(), nil
}

// ReadUserFrame reads one Ethernet frame from the device and resolves its
// destination MAC to an XBee address via the tap cache.
func (a *Adapter) ReadUserFrame() (xbnet.Address, []byte, bool, error) {
	n, err := a.iface.Read(a.buf)
	if err != nil {
		return xbnet.Address{}, nil, false, err
	}
	frame := append([]byte(nil), a.buf[:n]...)

	destMAC, ok := destcache.DestMAC(frame)
	if !ok {
		return xbnet.Address{}, nil, false, nil
	}
	addr, broadcast, ok := a.cache.Resolve(destMAC)
	if !ok {
		return xbnet.Address{}, nil, false, nil // drop: unknown unicast destination
	}
	if broadcast {
		addr = xbnet.Broadcast
	}
	return addr, frame, true, nil
}

// WriteUserFrame learns src's mapping from the frame's source MAC, then
// writes the Ethernet frame to the device.
func (a *Adapter) WriteUserFrame(src xbnet.Address, payload []byte) error {
	if mac, ok := destcache.SourceMAC(payload); ok {
		a.cache.Learn(mac, src, time.Now())
	}
	_, err := a.iface.Write(payload)
	return err
}

func (a *Adapter) Close() error {
	return a.iface.Close()
}
