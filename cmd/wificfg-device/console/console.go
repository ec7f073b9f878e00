// Package console provides the interactive command-line interface of
// wificfg-device.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/leegang/WifiConfig/pkg/manager"
	"github.com/leegang/WifiConfig/pkg/param"
	"github.com/leegang/WifiConfig/pkg/persistence"
	"github.com/leegang/WifiConfig/pkg/radio"
)

// errNoBoot is reported while the device is between boots.
var errNoBoot = errors.New("device is restarting, try again")

const taskTimeout = 5 * time.Second

// Target is the running device.
type Target interface {
	// Current returns the manager of the running boot, or nil between boots.
	Current() *manager.Manager

	// Boots returns the number of completed boots.
	Boots() int64
}

// Console handles interactive mode for wificfg-device.
type Console struct {
	target Target
	rl     *readline.Instance
	out    io.Writer
}

// New creates a console reading from the terminal.
func New(target Target) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "device> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{target: target, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that coordinates with the readline input.
// Use this for log output to avoid interfering with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop. cancel is called when the user
// quits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(ctx, line); quit {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		err = c.cmdStatus(ctx)
	case "settings", "get":
		err = c.cmdSettings(ctx, args)
	case "schema":
		err = c.cmdSchema(ctx)
	case "set":
		err = c.cmdSet(ctx, args)
	case "scan":
		err = c.cmdScan(ctx)
	case "connect":
		err = c.cmdConnect(ctx, args)
	case "forget":
		err = c.cmdForget(ctx)
	case "provision", "prov":
		err = c.cmdProvision(ctx)
	case "erase":
		err = c.cmdErase(ctx)
	case "reboot":
		err = c.do(ctx, func(m *manager.Manager) error {
			m.RequestRestart("console reboot")
			return nil
		})
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

// do runs fn on the loop goroutine of the current boot.
func (c *Console) do(ctx context.Context, fn func(*manager.Manager) error) error {
	m := c.target.Current()
	if m == nil {
		return errNoBoot
	}
	ctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	var ferr error
	if err := m.Do(ctx, func() { ferr = fn(m) }); err != nil {
		return err
	}
	return ferr
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Device Commands:
  Status:
    status               - Show boot state, mode and stored network
    scan                 - Scan for networks

  Settings:
    settings [path]      - Show the settings document (or one parameter)
    schema               - Show the settings schema
    set <path> <value>   - Change a parameter, save and restart

  Network:
    connect <ssid> [pw]  - Store network credentials and restart
    forget               - Clear stored credentials and restart
    provision            - Enter provisioning mode

  Device:
    erase                - Invalidate the stored record and restart
    reboot               - Restart the device
    quit                 - Exit`)
}

func (c *Console) cmdStatus(ctx context.Context) error {
	return c.do(ctx, func(m *manager.Manager) error {
		fmt.Fprintf(c.out, "Boot:     %d\n", c.target.Boots())
		fmt.Fprintf(c.out, "State:    %s\n", m.State())
		fmt.Fprintf(c.out, "Mode:     %s\n", m.Mode())
		r := m.Radio()
		fmt.Fprintf(c.out, "Radio:    %s (%s)\n", r.Mode(), r.Status())

		if ssid := m.Credentials().NetworkID; ssid != "" {
			fmt.Fprintf(c.out, "Network:  %s\n", ssid)
		} else {
			fmt.Fprintln(c.out, "Network:  (none)")
		}
		if m.Mode() == manager.ModeApplication {
			fmt.Fprintf(c.out, "Address:  %s\n", r.LocalIP())
		}
		if srv := m.HTTPServer(); srv != nil && srv.Addr() != nil {
			fmt.Fprintf(c.out, "HTTP:     %s\n", srv.Addr())
		}
		if dns := m.DNS(); dns != nil && dns.Addr() != nil {
			fmt.Fprintf(c.out, "DNS:      %s\n", dns.Addr())
		}
		if t := m.Timeout(); t > 0 {
			fmt.Fprintf(c.out, "Timeout:  %s\n", t)
		}
		return nil
	})
}

func (c *Console) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(data))
	return nil
}

func (c *Console) cmdSettings(ctx context.Context, args []string) error {
	return c.do(ctx, func(m *manager.Manager) error {
		if len(args) == 0 {
			return c.printJSON(m.Registry().Document())
		}
		p := m.Registry().Lookup(args[0])
		if p == nil {
			return fmt.Errorf("no parameter %q", args[0])
		}
		if !p.Access().CanRead() {
			return fmt.Errorf("parameter %q is write-only", args[0])
		}
		fmt.Fprintf(c.out, "%s = %v\n", args[0], p.Value())
		return nil
	})
}

func (c *Console) cmdSchema(ctx context.Context) error {
	return c.do(ctx, func(m *manager.Manager) error {
		return c.printJSON(m.Registry().Schema())
	})
}

// parseValue converts console text to the value kind of p.
func parseValue(p *param.Parameter, s string) (any, error) {
	switch p.Kind() {
	case param.KindBool:
		return strconv.ParseBool(s)
	case param.KindInt:
		return strconv.ParseInt(s, 10, 64)
	case param.KindFloat:
		return strconv.ParseFloat(s, 64)
	default:
		return s, nil
	}
}

func (c *Console) cmdSet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: set <group.param> <value>")
	}
	path, text := args[0], strings.Join(args[1:], " ")

	return c.do(ctx, func(m *manager.Manager) error {
		p := m.Registry().Lookup(path)
		if p == nil {
			return fmt.Errorf("no parameter %q", path)
		}
		v, err := parseValue(p, text)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := p.Set(v); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := m.Save(); err != nil {
			return err
		}
		m.RequestRestart("settings changed")
		fmt.Fprintf(c.out, "Saved %s, restarting\n", path)
		return nil
	})
}

func (c *Console) cmdScan(ctx context.Context) error {
	err := c.do(ctx, func(m *manager.Manager) error {
		err := m.Radio().StartScan()
		if errors.Is(err, radio.ErrScanInProgress) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(taskTimeout)
	for time.Now().Before(deadline) {
		var (
			networks []radio.Network
			done     bool
		)
		if err := c.do(ctx, func(m *manager.Manager) error {
			networks, done = m.Radio().ScanResults()
			return nil
		}); err != nil {
			return err
		}
		if done {
			c.printNetworks(networks)
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errors.New("scan did not complete")
}

func (c *Console) printNetworks(networks []radio.Network) {
	if len(networks) == 0 {
		fmt.Fprintln(c.out, "No networks found")
		return
	}
	fmt.Fprintf(c.out, "%-32s %4s %8s %s\n", "SSID", "CH", "STRENGTH", "SECURITY")
	for _, n := range networks {
		security := "WPA2"
		if n.Open {
			security = "open"
		}
		fmt.Fprintf(c.out, "%-32s %4d %8d %s\n", n.SSID, n.Channel, n.Strength, security)
	}
}

func (c *Console) cmdConnect(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: connect <ssid> [password]")
	}
	creds := persistence.Credentials{NetworkID: args[0]}
	if len(args) > 1 {
		creds.Secret = strings.Join(args[1:], " ")
	}
	return c.do(ctx, func(m *manager.Manager) error {
		if err := m.SaveCredentials(creds); err != nil {
			return err
		}
		m.RequestRestart("credentials changed")
		fmt.Fprintf(c.out, "Stored network %q, restarting\n", creds.NetworkID)
		return nil
	})
}

func (c *Console) cmdForget(ctx context.Context) error {
	return c.do(ctx, func(m *manager.Manager) error {
		if err := m.SaveCredentials(persistence.Credentials{}); err != nil {
			return err
		}
		m.RequestRestart("credentials cleared")
		fmt.Fprintln(c.out, "Credentials cleared, restarting")
		return nil
	})
}

func (c *Console) cmdProvision(ctx context.Context) error {
	return c.do(ctx, func(m *manager.Manager) error {
		if err := m.EnterProvisioning(); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Provisioning mode active (timeout %s)\n", m.Timeout())
		return nil
	})
}

func (c *Console) cmdErase(ctx context.Context) error {
	return c.do(ctx, func(m *manager.Manager) error {
		if err := m.EraseSettings(); err != nil {
			return err
		}
		m.RequestRestart("settings erased")
		fmt.Fprintln(c.out, "Stored record erased, restarting")
		return nil
	})
}
