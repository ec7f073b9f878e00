// Command wificfg-device runs the Wi-Fi provisioning manager on a host with a
// simulated radio.
//
// On first boot, or when the stored network cannot be joined, the device
// opens its access point, answers every DNS query with the access point
// address and serves the setup page and configuration API. Storing
// credentials through POST /wifi/connect restarts the device, which then
// joins the network and serves the same API in application mode.
//
// Usage:
//
//	wificfg-device [flags]
//
// Examples:
//
//	# First boot with a fresh image and the built-in page
//	wificfg-device --storage /tmp/device.img --log-debug
//
//	# Config file plus overrides and the interactive console
//	wificfg-device --config device.yaml --http-addr :9080 -i
//
//	# Factory defaults for the settings and an event journal
//	wificfg-device --defaults defaults.jsonc --journal device.wlog
package main

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/leegang/WifiConfig/cmd/wificfg-device/console"
	"github.com/leegang/WifiConfig/pkg/discovery"
	"github.com/leegang/WifiConfig/pkg/log"
	"github.com/leegang/WifiConfig/pkg/param"
	"github.com/leegang/WifiConfig/pkg/persistence"
	"github.com/leegang/WifiConfig/pkg/radio"
)

// Version is the firmware version. Set at build time with -ldflags.
var Version = "1.0"

//go:embed assets
var embedded embed.FS

func main() {
	flags := append([]cli.Flag{}, deviceFlags...)
	flags = append(flags, LogJsonFlag, LogDebugFlag, LogUidFlag, LogServiceFlag)

	app := &cli.App{
		Name:   "wificfg-device",
		Usage:  "Wi-Fi provisioning device with a simulated radio",
		Flags:  flags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cCtx *cli.Context) error {
	cfg, err := LoadConfig(cCtx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cCtx.Context)
	defer cancel()

	d := &device{}

	var (
		con    *console.Console
		logOut io.Writer = os.Stderr
	)
	if cfg.Interactive {
		con, err = console.New(d)
		if err != nil {
			return err
		}
		logOut = con.Stderr()
	}
	logger := SetupLogger(cCtx, logOut)

	mcfg, err := cfg.ManagerConfig()
	if err != nil {
		return err
	}
	mcfg.Logger = logger
	if cfg.Assets != "" {
		mcfg.Assets = os.DirFS(cfg.Assets)
	} else {
		mcfg.Assets, err = fs.Sub(embedded, "assets")
		if err != nil {
			return err
		}
	}

	networks, err := cfg.SimulatedNetworks()
	if err != nil {
		return err
	}

	path, size := cfg.StoragePath(), cfg.SettingsSize()
	openStore := func() (*persistence.Store, error) {
		drv, err := persistence.OpenFile(path, persistence.RequiredSize(size))
		if err != nil {
			return nil, err
		}
		return persistence.New(drv, size)
	}

	var sink log.Logger = log.NewSlogAdapter(logger)
	if cfg.Journal != "" {
		fl, err := log.NewFileLogger(cfg.Journal)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer fl.Close()
		sink = log.NewMultiLogger(fl, sink)
	}

	d.cfg = mcfg
	d.radio = radio.NewSimulated(radio.SimulatedConfig{
		Networks: networks,
		Logger:   logger.With("component", "radio"),
	})
	d.openStore = openStore
	d.sink = sink
	d.logger = logger
	d.advertiser = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
		Interface: cfg.MDNSIface,
	})
	if cfg.Defaults != "" {
		d.defaults = func(r *param.Registry) error {
			return LoadDefaults(cfg.Defaults, r)
		}
	}

	logger.Info("Starting wificfg-device",
		"storage", path,
		"http", mcfg.HTTPAddr,
		"dns", mcfg.DNSAddr,
		"ap", mcfg.APName,
		"hostname", mcfg.Hostname())

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			logger.Info("Received signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if con != nil {
		go con.Run(ctx, cancel)
	}

	err = d.Run(ctx)
	logger.Info("Shutting down", "boots", d.Boots())
	return err
}
