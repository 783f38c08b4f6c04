// Command xbnet bridges a byte stream, or a kernel tap/tun device, across
// a pair of XBee radios in API mode (spec.md §1, §6). Usage:
//
//	xbnet [global flags] <port> <pipe|ping|pong|tap|tun> [subcommand flags]
//
// <port> is a serial device path, or "auto" to probe for a USB-serial
// adapter via udev (Linux only).
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/jgoerzen/xbnet/internal/adapter"
	"github.com/jgoerzen/xbnet/internal/adapter/pipe"
	"github.com/jgoerzen/xbnet/internal/initscript"
	"github.com/jgoerzen/xbnet/internal/pingpong"
	"github.com/jgoerzen/xbnet/internal/sched"
	"github.com/jgoerzen/xbnet/internal/serialport"
	"github.com/jgoerzen/xbnet/internal/xbnet"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	global := pflag.NewFlagSet("xbnet", pflag.ContinueOnError)
	global.Usage = func() { usage(global) }

	debug := global.Bool("debug", false, "Log at debug level")
	readQual := global.Bool("readqual", false, "Append radio signal-strength reports to pong replies")
	pack := global.Bool("pack", false, "Coalesce short writes into one fragmented frame rather than one-chunk-per-read")
	eotWait := global.Duration("eotwait", 1000*time.Millisecond, "How long to wait for a fragment's remaining pieces before discarding it")
	txWait := global.Duration("txwait", 120*time.Millisecond, "Minimum spacing between consecutive transmissions")
	txSlot := global.Duration("txslot", 0, "Offer the peer a transmit turn after this long of continuous local sending (0 disables txslot)")
	initFile := global.String("initfile", "", "Newline-separated (or --profile-scoped YAML) file of AT commands to run at startup")
	profileName := global.String("profile", "", "Profile name to select within --initfile, when that file is a YAML profile set")
	serialSpeed := global.Int("serial-speed", 9600, "Serial port speed")
	maxPacketSize := global.Int("maxpacketsize", 200, "Maximum XBee API payload size in bytes, including the fragmentation header")
	disableAcks := global.Bool("disable-xbee-acks", false, "Request unacknowledged XBee transmissions")
	requestTxReports := global.Bool("request-xbee-tx-reports", false, "Ask the XBee firmware for a transmit status frame per packet, and log it")
	resetGPIO := global.String("reset-gpio", "", "chip:line of a GPIO-driven hardware reset to pulse before initialization, e.g. gpiochip0:17")
	help := global.BoolP("help", "?", false, "Display this help text")

	if err := global.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *help {
		global.Usage()
		return nil
	}

	args := global.Args()
	if len(args) < 2 {
		global.Usage()
		return fmt.Errorf("xbnet: expected <port> <subcommand>")
	}
	portArg, subcommand, rest := args[0], args[1], args[2:]

	logger := log.New(os.Stderr)
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	cfg := xbnet.DefaultConfig()
	cfg.Port = portArg
	cfg.Debug = *debug
	cfg.ReadQual = *readQual
	cfg.Pack = *pack
	cfg.EotWait = *eotWait
	cfg.TxWait = *txWait
	cfg.TxSlot = *txSlot
	cfg.InitFile = *initFile
	cfg.SerialSpeed = *serialSpeed
	cfg.MaxPacketSize = *maxPacketSize
	cfg.DisableXBeeAcks = *disableAcks
	cfg.RequestXBeeTxReport = *requestTxReports
	cfg.ResetGPIOChip = *resetGPIO

	if err := cfg.Validate(); err != nil {
		return err
	}

	return dispatch(cfg, subcommand, rest, *profileName, logger)
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: xbnet [global flags] <port> <pipe|ping|pong|tap|tun> [subcommand flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Global flags:")
	fs.PrintDefaults()
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Subcommand flags (xbnet <port> <subcommand> --help for each):")
	fmt.Fprintln(os.Stderr, "  pipe --dest <hex64>")
	fmt.Fprintln(os.Stderr, "  ping --dest <hex64> [--interval <duration>]")
	fmt.Fprintln(os.Stderr, "  pong")
	fmt.Fprintln(os.Stderr, "  tap  [--iface-name NAME] [--broadcast-unknown]")
	fmt.Fprintln(os.Stderr, "  tun  [--iface-name NAME] [--broadcast-everything] [--disable-ipv4] [--disable-ipv6] [--max-ip-cache DURATION]")
}

func dispatch(cfg xbnet.Config, subcommand string, rest []string, profileName string, logger *log.Logger) error {
	port, err := resolvePort(cfg.Port, logger)
	if err != nil {
		return err
	}

	serial, err := serialport.Open(port, cfg.SerialSpeed)
	if err != nil {
		return err
	}
	defer serial.Close()

	lines, err := loadInitLines(cfg.InitFile, profileName)
	if err != nil {
		return err
	}

	initCfg := initscript.DefaultConfig()
	if cfg.ResetGPIOChip != "" {
		resetLine, err := newResetLine(cfg.ResetGPIOChip)
		if err != nil {
			return err
		}
		initCfg.ResetLine = resetLine
		defer resetLine.Close()
	}

	result, err := initscript.Run(serial, lines, initCfg, cfg.RequestXBeeTxReport, logger)
	if err != nil {
		return err
	}
	logger.Info("initialized", "local-address", result.Local.String())

	schedCfg := sched.Config{
		MaxPayload:       cfg.MaxPayload(),
		Pack:             cfg.Pack,
		TxWait:           cfg.TxWait,
		EotWait:          cfg.EotWait,
		TxSlot:           cfg.TxSlot,
		DisableAck:       cfg.DisableXBeeAcks,
		RequestTxReports: cfg.RequestXBeeTxReport,
	}

	switch subcommand {
	case "pipe":
		return runPipe(result, schedCfg, rest, logger)
	case "ping":
		return runPing(result, schedCfg, rest, logger)
	case "pong":
		return runPong(result, schedCfg, cfg.ReadQual, logger)
	case "tap":
		return runTap(result, schedCfg, rest, logger)
	case "tun":
		return runTun(result, schedCfg, rest, logger)
	default:
		return fmt.Errorf("xbnet: unknown subcommand %q", subcommand)
	}
}

func resolvePort(port string, logger *log.Logger) (string, error) {
	if port != "auto" {
		return port, nil
	}
	found, err := autoDetectPort(logger)
	if err != nil {
		return "", err
	}
	logger.Info("auto-detected serial port", "port", found)
	return found, nil
}

func loadInitLines(initFile, profileName string) ([]string, error) {
	if initFile == "" {
		return nil, nil
	}
	if profileName != "" {
		set, err := initscript.LoadProfiles(initFile)
		if err != nil {
			return nil, err
		}
		lines, ok := set.Find(profileName)
		if !ok {
			return nil, fmt.Errorf("xbnet: profile %q not found in %s", profileName, initFile)
		}
		return lines, nil
	}

	data, err := os.ReadFile(initFile)
	if err != nil {
		return nil, fmt.Errorf("xbnet: read init file: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// runAdapterLoop is the common pump shared by every subcommand: a
// goroutine feeds the scheduler's send queue from the adapter's outbound
// side, while the scheduler's Deliver callback writes inbound frames to
// the adapter. When the adapter's read side ends (EOF or a read error)
// stop is closed, and Run returns once the frames already queued have been
// sent; Run also returns early if the scheduler's read loop reports a fatal
// serial error.
func runAdapterLoop(result *initscript.Result, cfg sched.Config, a adapter.Adapter, logger *log.Logger) error {
	defer a.Close()

	s := sched.New(result.Codec, result.Local, cfg, func(src xbnet.Address, frame []byte) {
		if err := a.WriteUserFrame(src, frame); err != nil {
			logger.Warn("write to adapter failed", "error", err)
		}
	}, logger)

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		for {
			dest, payload, ok, err := a.ReadUserFrame()
			if ok {
				s.Enqueue(dest, payload)
			}
			if err != nil {
				if err != io.EOF {
					logger.Warn("adapter read failed", "error", err)
				}
				return
			}
		}
	}()

	return s.Run(stop)
}

func runPipe(result *initscript.Result, cfg sched.Config, rest []string, logger *log.Logger) error {
	fs := pflag.NewFlagSet("pipe", pflag.ContinueOnError)
	destHex := fs.String("dest", "", "Destination XBee address, 16 hex characters")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	dest, err := requireDest(*destHex)
	if err != nil {
		return err
	}
	a := pipe.New(os.Stdin, os.Stdout, dest, cfg.MaxPayload, nil)
	return runAdapterLoop(result, cfg, a, logger)
}

func runPing(result *initscript.Result, cfg sched.Config, rest []string, logger *log.Logger) error {
	fs := pflag.NewFlagSet("ping", pflag.ContinueOnError)
	destHex := fs.String("dest", "", "Destination XBee address, 16 hex characters")
	interval := fs.Duration("interval", 5*time.Second, "Interval between ping transmissions")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	dest, err := requireDest(*destHex)
	if err != nil {
		return err
	}

	s := sched.New(result.Codec, result.Local, cfg, func(src xbnet.Address, frame []byte) {
		logger.Info("reply", "from", src.String(), "payload", string(frame))
	}, logger)

	stop := make(chan struct{})
	go pingpong.Ping(s, dest, *interval, stop)
	defer close(stop)

	return s.Run(stop)
}

func runPong(result *initscript.Result, cfg sched.Config, readQual bool, logger *log.Logger) error {
	work := make(chan pingpong.Work, 16)
	stop := make(chan struct{})

	s := sched.New(result.Codec, result.Local, cfg, func(src xbnet.Address, frame []byte) {
		select {
		case work <- pingpong.Work{Src: src, Payload: frame}:
		default:
			logger.Warn("pong work queue full, dropping", "from", src.String())
		}
	}, logger)

	var quality pingpong.Quality
	if readQual {
		quality = s
	}
	go pingpong.RunPong(s, quality, work, stop)
	defer close(stop)

	return s.Run(stop)
}

func requireDest(hex string) (xbnet.Address, error) {
	if hex == "" {
		return xbnet.Address{}, fmt.Errorf("xbnet: --dest is required")
	}
	return xbnet.ParseAddress(hex)
}
