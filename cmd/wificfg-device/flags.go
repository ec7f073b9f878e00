package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var (
	LogJsonFlag = &cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	}
	LogDebugFlag = &cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	}
	LogUidFlag = &cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	}
	LogServiceFlag = &cli.StringFlag{
		Name:  "log-service",
		Value: "wificfg-device",
		Usage: "add 'service' tag to logs",
	}
)

var deviceFlags = []cli.Flag{
	&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (.yaml, .yml or .toml)"},
	&cli.StringFlag{Name: "ap-name", Usage: "access point name"},
	&cli.StringFlag{Name: "ap-password", Usage: "access point passphrase (empty for an open network)"},
	&cli.DurationFlag{Name: "ap-timeout", Usage: "restart after this long in requested provisioning (0 disables)"},
	&cli.StringFlag{Name: "ap-address", Usage: "access point address and subnet, e.g. 192.168.4.1/24"},
	&cli.IntFlag{Name: "join-retries", Usage: "status polls before a join is abandoned"},
	&cli.DurationFlag{Name: "join-interval", Usage: "delay between join status polls"},
	&cli.StringFlag{Name: "http-addr", Usage: "configuration API listen address"},
	&cli.StringFlag{Name: "dns-addr", Usage: "captive DNS listen address"},
	&cli.StringFlag{Name: "name", Usage: "device name used for the station hostname"},
	&cli.StringFlag{Name: "version", Usage: "firmware version used for the station hostname"},
	&cli.StringFlag{Name: "storage", Usage: "persistent record image file"},
	&cli.IntFlag{Name: "settings-size", Usage: "bytes reserved for the settings blob"},
	&cli.StringFlag{Name: "assets", Usage: "directory served at / (default: built-in page)"},
	&cli.StringFlag{Name: "asset-path", Usage: "home page file inside the assets directory"},
	&cli.StringFlag{Name: "defaults", Usage: "JSONC settings document applied before the first boot"},
	&cli.StringFlag{Name: "journal", Usage: "event journal file"},
	&cli.StringFlag{Name: "mdns-iface", Usage: "interface for mDNS announcements (default: all)"},
	&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "start the interactive console"},
}

// LoggingOpts selects the slog handler.
type LoggingOpts struct {
	Debug   bool
	JSON    bool
	Service string
	Version string
}

// NewLogger creates a logger writing to w.
func NewLogger(w io.Writer, opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}

// SetupLogger builds the process logger from the log flags.
func SetupLogger(cCtx *cli.Context, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := NewLogger(w, &LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}
