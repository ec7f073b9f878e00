package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD type the configuration API is announced under.
	ServiceType = "_http._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default HTTP port.
	DefaultPort = 80

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion = "ver"  // Firmware version
	TXTKeyMode    = "mode" // Operating mode: "app"
	TXTKeyPath    = "path" // Path of the configuration UI
	TXTKeyBootID  = "boot" // Boot identifier (optional)
)

// ModeApplication is the TXT mode value of a provisioned device.
const ModeApplication = "app"

// Timing constants.
const (
	// DefaultTTL is the record TTL used when none is configured.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout is the default duration of a browse.
	BrowseTimeout = 5 * time.Second
)

// Discovery errors.
var (
	ErrInvalidInstanceName = errors.New("invalid instance name")
	ErrMissingRequired     = errors.New("missing required field")
)

// DeviceInfo describes an announced device.
type DeviceInfo struct {
	// Instance is the DNS-SD instance name, normally the device hostname.
	Instance string

	// Port of the configuration API.
	Port uint16

	// Version is the firmware version.
	Version string

	// Mode is the operating mode TXT value.
	Mode string

	// Path of the configuration UI. Default: "/".
	Path string

	// BootID optionally identifies the current boot.
	BootID string
}

// DeviceService is a device found by browsing.
type DeviceService struct {
	DeviceInfo

	// Host is the advertised host name.
	Host string

	// Addresses are the advertised IP addresses.
	Addresses []string
}
