package manager

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/netip"
	"time"
)

// Manager errors.
var (
	ErrNotStarted     = errors.New("manager not started")
	ErrAlreadyStarted = errors.New("manager already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrWrongMode      = errors.New("operation not allowed in current mode")
)

// State is a step of the boot sequence.
type State uint8

const (
	// StateUninitialized - Setup has not run.
	StateUninitialized State = iota

	// StateReadingStore - loading the persisted record.
	StateReadingStore

	// StateJoiningNetwork - waiting for the radio to join the stored network.
	StateJoiningNetwork

	// StateProvisioning - serving the setup page from the device's own AP.
	StateProvisioning

	// StateApplication - joined and serving the application API.
	StateApplication
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateReadingStore:
		return "READING_STORE"
	case StateJoiningNetwork:
		return "JOINING_NETWORK"
	case StateProvisioning:
		return "PROVISIONING"
	case StateApplication:
		return "APPLICATION"
	default:
		return "UNKNOWN"
	}
}

// Mode is the operating mode once Setup completes.
type Mode uint8

const (
	// ModeNone - Setup has not completed.
	ModeNone Mode = iota

	// ModeProvisioning - the device is its own access point.
	ModeProvisioning

	// ModeApplication - the device has joined its configured network.
	ModeApplication
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeProvisioning:
		return "PROVISIONING"
	case ModeApplication:
		return "APPLICATION"
	default:
		return "NONE"
	}
}

// System restarts the device.
type System interface {
	// Restart reboots the device. It may return before the reboot happens.
	Restart(reason string)
}

// Clock is the time source of the manager. github.com/benbjohnson/clock
// satisfies it.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Defaults.
const (
	DefaultAPName       = "WifiConfig"
	DefaultJoinRetries  = 20
	DefaultJoinInterval = 500 * time.Millisecond
	DefaultAssetPath    = "index.html"
	DefaultHTTPAddr     = ":80"
	DefaultDNSAddr      = ":53"
	DefaultScanInterval = 5 * time.Second

	// MaxHostnameLen bounds the station hostname.
	MaxHostnameLen = 18

	// RestartState is the journal state recorded when a restart is handed
	// to System.
	RestartState = "RESTART"

	// maxBodySize bounds request bodies read by the handlers.
	maxBodySize = 16 << 10
)

// DefaultAPAddress is the access point address and subnet.
var DefaultAPAddress = netip.MustParsePrefix("192.168.1.1/24")

// Config configures a Manager.
type Config struct {
	// APName is the access point SSID in provisioning mode.
	APName string

	// APPassword secures the access point. Empty means an open AP.
	APPassword string

	// APTimeout restarts the device after this long in provisioning mode.
	// Zero disables the timeout. It only applies when provisioning is entered
	// with EnterProvisioning.
	APTimeout time.Duration

	// APAddress is the fixed access point address with its subnet.
	// Default: 192.168.1.1/24.
	APAddress netip.Prefix

	// JoinRetries is the number of status polls while joining. Default: 20.
	JoinRetries int

	// JoinInterval is the delay between status polls. Default: 500ms.
	JoinInterval time.Duration

	// Assets holds the home page.
	Assets fs.FS

	// AssetPath is the home page path within Assets. Default: "index.html".
	AssetPath string

	// DeviceName and Version form the station hostname "name-version".
	DeviceName string
	Version    string

	// HTTPAddr is the web server listen address. Default: ":80".
	HTTPAddr string

	// DNSAddr is the captive DNS listen address. Default: ":53".
	DNSAddr string

	// ScanInterval is the minimum time between radio scans. Default: 5s.
	ScanInterval time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the defaults filled in.
func DefaultConfig() Config {
	return Config{
		APName:       DefaultAPName,
		APAddress:    DefaultAPAddress,
		JoinRetries:  DefaultJoinRetries,
		JoinInterval: DefaultJoinInterval,
		AssetPath:    DefaultAssetPath,
		HTTPAddr:     DefaultHTTPAddr,
		DNSAddr:      DefaultDNSAddr,
		ScanInterval: DefaultScanInterval,
	}
}

// applyDefaults fills zero fields.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.APName == "" {
		c.APName = d.APName
	}
	if !c.APAddress.IsValid() {
		c.APAddress = d.APAddress
	}
	if c.JoinRetries == 0 {
		c.JoinRetries = d.JoinRetries
	}
	if c.JoinInterval == 0 {
		c.JoinInterval = d.JoinInterval
	}
	if c.AssetPath == "" {
		c.AssetPath = d.AssetPath
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = d.HTTPAddr
	}
	if c.DNSAddr == "" {
		c.DNSAddr = d.DNSAddr
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = d.ScanInterval
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.JoinRetries < 0 || c.JoinInterval < 0 || c.APTimeout < 0 {
		return ErrInvalidConfig
	}
	if c.APAddress.IsValid() && !c.APAddress.Addr().Is4() {
		return ErrInvalidConfig
	}
	// An access point password must be 8 to 63 characters or empty.
	if n := len(c.APPassword); n > 0 && (n < 8 || n > 63) {
		return ErrInvalidConfig
	}
	return nil
}

// Hostname returns the station hostname derived from the device name and
// version. Characters not allowed in a DNS label become '-'.
func (c *Config) Hostname() string {
	name := c.DeviceName
	if c.Version != "" {
		name += "-" + c.Version
	}
	b := []byte(name)
	for i, ch := range b {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-':
		default:
			b[i] = '-'
		}
	}
	if len(b) > MaxHostnameLen {
		b = b[:MaxHostnameLen]
	}
	return string(b)
}
