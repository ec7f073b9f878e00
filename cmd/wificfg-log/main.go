// Command wificfg-log views and analyzes provisioning journal files.
//
// Journal files are written by wificfg-device when started with --journal.
//
// Usage:
//
//	wificfg-log <command> [flags] <file.wlog>
//
// Examples:
//
//	# View all events
//	wificfg-log view device.wlog
//
//	# View only HTTP requests handled while provisioning
//	wificfg-log view --category request --mode provisioning device.wlog
//
//	# Export to CSV
//	wificfg-log export --format csv device.wlog
//
//	# Keep one boot and save it to a new file
//	wificfg-log filter --boot-id 4f1c... -o boot.wlog device.wlog
//
//	# Show statistics
//	wificfg-log stats device.wlog
//
//	# List devices announced on the network with their current boot ID
//	wificfg-log discover --timeout 3s
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/leegang/WifiConfig/cmd/wificfg-log/commands"
	"github.com/leegang/WifiConfig/pkg/discovery"
)

var errPathRequired = errors.New("journal file path required")

var filterFlags = []cli.Flag{
	&cli.StringFlag{Name: "boot-id", Usage: "Filter by boot ID"},
	&cli.StringFlag{Name: "mode", Usage: "Filter by mode (provisioning, application)"},
	&cli.StringFlag{Name: "category", Usage: "Filter by category (state, request, storage, radio, error)"},
	&cli.StringFlag{Name: "time-start", Usage: "Filter by start time (RFC3339)"},
	&cli.StringFlag{Name: "time-end", Usage: "Filter by end time (RFC3339)"},
}

func filterOptions(cCtx *cli.Context) commands.FilterOptions {
	return commands.FilterOptions{
		BootID:    cCtx.String("boot-id"),
		Mode:      cCtx.String("mode"),
		Category:  cCtx.String("category"),
		TimeStart: cCtx.String("time-start"),
		TimeEnd:   cCtx.String("time-end"),
	}
}

func journalPath(cCtx *cli.Context) (string, error) {
	if cCtx.NArg() < 1 {
		return "", errPathRequired
	}
	return cCtx.Args().First(), nil
}

func main() {
	app := &cli.App{
		Name:      "wificfg-log",
		Usage:     "Provisioning journal analyzer",
		ArgsUsage: "<file.wlog>",
		Commands: []*cli.Command{
			{
				Name:      "view",
				Usage:     "View journal in human-readable format",
				ArgsUsage: "<file.wlog>",
				Flags:     filterFlags,
				Action: func(cCtx *cli.Context) error {
					path, err := journalPath(cCtx)
					if err != nil {
						return err
					}
					filter, err := filterOptions(cCtx).Build()
					if err != nil {
						return err
					}
					return commands.RunView(path, filter, cCtx.App.Writer)
				},
			},
			{
				Name:      "export",
				Usage:     "Export journal to JSON lines or CSV",
				ArgsUsage: "<file.wlog>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Value: "jsonl", Usage: "Output format (jsonl, csv)"},
					&cli.StringFlag{Name: "o", Usage: "Output file (default: stdout)"},
				},
				Action: func(cCtx *cli.Context) error {
					path, err := journalPath(cCtx)
					if err != nil {
						return err
					}
					w := cCtx.App.Writer
					if out := cCtx.String("o"); out != "" {
						f, err := os.Create(out)
						if err != nil {
							return fmt.Errorf("failed to create output file: %w", err)
						}
						defer f.Close()
						w = f
					}
					return commands.RunExport(path, cCtx.String("format"), w)
				},
			},
			{
				Name:      "filter",
				Usage:     "Filter journal and write matching events to a new file",
				ArgsUsage: "<file.wlog>",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "o", Usage: "Output file", Required: true},
				}, filterFlags...),
				Action: func(cCtx *cli.Context) error {
					path, err := journalPath(cCtx)
					if err != nil {
						return err
					}
					out := cCtx.String("o")
					n, err := commands.RunFilter(path, out, filterOptions(cCtx))
					if err != nil {
						return err
					}
					fmt.Fprintf(cCtx.App.Writer, "Filtered %d events to %s\n", n, out)
					return nil
				},
			},
			{
				Name:      "stats",
				Usage:     "Show statistics about the journal",
				ArgsUsage: "<file.wlog>",
				Action: func(cCtx *cli.Context) error {
					path, err := journalPath(cCtx)
					if err != nil {
						return err
					}
					return commands.RunStats(path, cCtx.App.Writer)
				},
			},
			{
				Name:  "discover",
				Usage: "List devices announced over mDNS",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "iface", Usage: "Network interface to browse on (default: all)"},
					&cli.DurationFlag{Name: "timeout", Value: discovery.BrowseTimeout, Usage: "How long to browse"},
				},
				Action: func(cCtx *cli.Context) error {
					browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{
						Interface: cCtx.String("iface"),
						Timeout:   cCtx.Duration("timeout"),
					})
					return commands.RunDiscover(cCtx.Context, browser, cCtx.App.Writer)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
