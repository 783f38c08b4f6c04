//go:build linux

package main

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/jgoerzen/xbnet/internal/adapter/tap"
	"github.com/jgoerzen/xbnet/internal/adapter/tun"
	"github.com/jgoerzen/xbnet/internal/initscript"
	"github.com/jgoerzen/xbnet/internal/sched"
)

func runTap(result *initscript.Result, cfg sched.Config, rest []string, logger *log.Logger) error {
	fs := pflag.NewFlagSet("tap", pflag.ContinueOnError)
	ifaceName := fs.String("iface-name", "", "Requested tap interface name (kernel default if empty)")
	broadcastUnknown := fs.Bool("broadcast-unknown", false, "Broadcast frames whose destination MAC has not yet been learned")
	mtu := fs.Int("mtu", 1500, "Interface MTU")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	a, ifaceGot, err := tap.New(result.Local, tap.Config{
		IfaceName:        *ifaceName,
		BroadcastUnknown: *broadcastUnknown,
		MTU:              *mtu,
	})
	if err != nil {
		return err
	}
	logger.Info("tap interface up", "name", ifaceGot)

	return runAdapterLoop(result, cfg, a, logger)
}

func runTun(result *initscript.Result, cfg sched.Config, rest []string, logger *log.Logger) error {
	fs := pflag.NewFlagSet("tun", pflag.ContinueOnError)
	ifaceName := fs.String("iface-name", "", "Requested tun interface name (kernel default if empty)")
	broadcastEverything := fs.Bool("broadcast-everything", false, "Broadcast every outbound packet regardless of cache state")
	disableIPv4 := fs.Bool("disable-ipv4", false, "Drop IPv4 packets in both directions")
	disableIPv6 := fs.Bool("disable-ipv6", false, "Drop IPv6 packets in both directions")
	maxIPCache := fs.Duration("max-ip-cache", 0, "Expire learned IP-to-XBee mappings after this long (0 never expires)")
	mtu := fs.Int("mtu", 1500, "Interface MTU")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	a, ifaceGot, err := tun.New(result.Local, tun.Config{
		IfaceName:           *ifaceName,
		BroadcastEverything: *broadcastEverything,
		DisableIPv4:         *disableIPv4,
		DisableIPv6:         *disableIPv6,
		MaxIPCache:          *maxIPCache,
		MTU:                 *mtu,
	})
	if err != nil {
		return err
	}
	logger.Info("tun interface up", "name", ifaceGot)

	return runAdapterLoop(result, cfg, a, logger)
}

func newResetLine(spec string) (initscript.ResetLine, error) {
	return initscript.NewGPIOResetLine(spec, 200*time.Millisecond)
}
