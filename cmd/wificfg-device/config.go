package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/leegang/WifiConfig/pkg/manager"
	"github.com/leegang/WifiConfig/pkg/param"
	"github.com/leegang/WifiConfig/pkg/radio"
)

var (
	ErrUnknownFormat = errors.New("unknown config file format")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Defaults for values that have no counterpart in manager.Config.
const (
	DefaultStoragePath  = "wificfg.img"
	DefaultSettingsSize = 512
	DefaultDeviceName   = "wificfg"

	// Unprivileged ports for host builds.
	DefaultHTTPAddr = ":8080"
	DefaultDNSAddr  = ":5353"
)

// NetworkConfig is a network visible to the simulated radio.
type NetworkConfig struct {
	SSID     string `yaml:"ssid" toml:"ssid"`
	Password string `yaml:"password,omitempty" toml:"password,omitempty"`
	Strength int    `yaml:"strength,omitempty" toml:"strength,omitempty"`
	Channel  int    `yaml:"channel,omitempty" toml:"channel,omitempty"`

	// Address is assigned to the station after joining.
	Address string `yaml:"address,omitempty" toml:"address,omitempty"`
}

// APConfig holds the access point settings.
type APConfig struct {
	Name     string `yaml:"name,omitempty" toml:"name,omitempty"`
	Password string `yaml:"password,omitempty" toml:"password,omitempty"`
	Timeout  string `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Address  string `yaml:"address,omitempty" toml:"address,omitempty"`
}

// JoinConfig holds the station join settings.
type JoinConfig struct {
	Retries  int    `yaml:"retries,omitempty" toml:"retries,omitempty"`
	Interval string `yaml:"interval,omitempty" toml:"interval,omitempty"`
}

// StorageConfig locates the persistent record image.
type StorageConfig struct {
	Path         string `yaml:"path,omitempty" toml:"path,omitempty"`
	SettingsSize int    `yaml:"settings_size,omitempty" toml:"settings_size,omitempty"`
}

// Config is the device configuration. It is decoded from a YAML or TOML file
// and then overridden by command-line flags.
type Config struct {
	AP   APConfig   `yaml:"ap" toml:"ap"`
	Join JoinConfig `yaml:"join" toml:"join"`

	Name    string `yaml:"name,omitempty" toml:"name,omitempty"`
	Version string `yaml:"version,omitempty" toml:"version,omitempty"`

	HTTPAddr string `yaml:"http_addr,omitempty" toml:"http_addr,omitempty"`
	DNSAddr  string `yaml:"dns_addr,omitempty" toml:"dns_addr,omitempty"`

	Storage StorageConfig `yaml:"storage" toml:"storage"`

	// Assets is a directory served at /. Empty selects the built-in page.
	Assets    string `yaml:"assets,omitempty" toml:"assets,omitempty"`
	AssetPath string `yaml:"asset_path,omitempty" toml:"asset_path,omitempty"`

	// Defaults is a JSONC settings document applied before the first boot.
	Defaults string `yaml:"defaults,omitempty" toml:"defaults,omitempty"`

	Journal     string `yaml:"journal,omitempty" toml:"journal,omitempty"`
	MDNSIface   string `yaml:"mdns_iface,omitempty" toml:"mdns_iface,omitempty"`
	Interactive bool   `yaml:"interactive,omitempty" toml:"interactive,omitempty"`

	Networks []NetworkConfig `yaml:"networks,omitempty" toml:"networks,omitempty"`
}

// LoadFile decodes a config file. The format follows the file extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadConfig reads the file named by --config, if any, and applies the flags
// that were set on the command line.
func LoadConfig(cCtx *cli.Context) (*Config, error) {
	cfg := &Config{}
	if path := cCtx.String("config"); path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.applyFlags(cCtx)
	return cfg, nil
}

func (c *Config) applyFlags(cCtx *cli.Context) {
	str := func(name string, dst *string) {
		if cCtx.IsSet(name) {
			*dst = cCtx.String(name)
		}
	}
	dur := func(name string, dst *string) {
		if cCtx.IsSet(name) {
			*dst = cCtx.Duration(name).String()
		}
	}
	num := func(name string, dst *int) {
		if cCtx.IsSet(name) {
			*dst = cCtx.Int(name)
		}
	}

	str("ap-name", &c.AP.Name)
	str("ap-password", &c.AP.Password)
	dur("ap-timeout", &c.AP.Timeout)
	str("ap-address", &c.AP.Address)
	num("join-retries", &c.Join.Retries)
	dur("join-interval", &c.Join.Interval)
	str("http-addr", &c.HTTPAddr)
	str("dns-addr", &c.DNSAddr)
	str("name", &c.Name)
	str("version", &c.Version)
	str("storage", &c.Storage.Path)
	num("settings-size", &c.Storage.SettingsSize)
	str("assets", &c.Assets)
	str("asset-path", &c.AssetPath)
	str("defaults", &c.Defaults)
	str("journal", &c.Journal)
	str("mdns-iface", &c.MDNSIface)
	if cCtx.IsSet("interactive") {
		c.Interactive = cCtx.Bool("interactive")
	}
}

// StoragePath returns the image path, falling back to the default.
func (c *Config) StoragePath() string {
	if c.Storage.Path == "" {
		return DefaultStoragePath
	}
	return c.Storage.Path
}

// SettingsSize returns the settings blob size, falling back to the default.
func (c *Config) SettingsSize() int {
	if c.Storage.SettingsSize <= 0 {
		return DefaultSettingsSize
	}
	return c.Storage.SettingsSize
}

// ManagerConfig converts the file values into a manager configuration.
// Assets and Logger are left to the caller.
func (c *Config) ManagerConfig() (manager.Config, error) {
	mc := manager.DefaultConfig()
	mc.HTTPAddr = DefaultHTTPAddr
	mc.DNSAddr = DefaultDNSAddr

	if c.AP.Name != "" {
		mc.APName = c.AP.Name
	}
	mc.APPassword = c.AP.Password
	if err := parseDuration(c.AP.Timeout, &mc.APTimeout); err != nil {
		return mc, fmt.Errorf("%w: ap timeout: %v", ErrInvalidConfig, err)
	}
	if c.AP.Address != "" {
		prefix, err := netip.ParsePrefix(c.AP.Address)
		if err != nil {
			return mc, fmt.Errorf("%w: ap address: %v", ErrInvalidConfig, err)
		}
		mc.APAddress = prefix
	}

	if c.Join.Retries > 0 {
		mc.JoinRetries = c.Join.Retries
	}
	if err := parseDuration(c.Join.Interval, &mc.JoinInterval); err != nil {
		return mc, fmt.Errorf("%w: join interval: %v", ErrInvalidConfig, err)
	}

	if c.HTTPAddr != "" {
		mc.HTTPAddr = c.HTTPAddr
	}
	if c.DNSAddr != "" {
		mc.DNSAddr = c.DNSAddr
	}
	if c.AssetPath != "" {
		mc.AssetPath = c.AssetPath
	}
	mc.DeviceName = c.Name
	if mc.DeviceName == "" {
		mc.DeviceName = DefaultDeviceName
	}
	mc.Version = c.Version
	if mc.Version == "" {
		mc.Version = Version
	}

	if err := mc.Validate(); err != nil {
		return mc, err
	}
	return mc, nil
}

func parseDuration(s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// SimulatedNetworks converts the configured networks for the simulated radio.
func (c *Config) SimulatedNetworks() ([]radio.SimulatedNetwork, error) {
	networks := make([]radio.SimulatedNetwork, 0, len(c.Networks))
	for i, n := range c.Networks {
		if n.SSID == "" {
			return nil, fmt.Errorf("%w: network %d has no ssid", ErrInvalidConfig, i)
		}
		sn := radio.SimulatedNetwork{
			Network: radio.Network{
				SSID:     n.SSID,
				Channel:  n.Channel,
				Strength: n.Strength,
				Open:     n.Password == "",
			},
			Secret: n.Password,
		}
		if n.Address != "" {
			addr, err := netip.ParseAddr(n.Address)
			if err != nil {
				return nil, fmt.Errorf("%w: network %q address: %v", ErrInvalidConfig, n.SSID, err)
			}
			sn.Addr = addr
		}
		networks = append(networks, sn)
	}
	return networks, nil
}

// LoadDefaults reads a JSONC settings document and applies it to registry.
// Fields that do not fit the registry are skipped and reported in the
// returned error; valid fields are still applied.
func LoadDefaults(path string, registry *param.Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading defaults %s: %w", path, err)
	}

	var doc map[string]any
	dec := json.NewDecoder(strings.NewReader(string(jsonc.ToJSON(data))))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("parsing defaults %s: %w", path, err)
	}
	return registry.FromDocument(doc)
}
