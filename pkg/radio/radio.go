// Package radio defines the wireless driver surface used by the provisioning
// subsystem and a simulated implementation for host builds.
package radio

import (
	"errors"
	"net/netip"
)

// Radio errors.
var (
	ErrNotConnected    = errors.New("station not connected")
	ErrScanInProgress  = errors.New("scan already in progress")
	ErrInvalidSSID     = errors.New("invalid ssid")
	ErrModeUnsupported = errors.New("operation not supported in current mode")
)

// Mode is the radio operating mode.
type Mode uint8

const (
	ModeOff Mode = iota
	ModeStation
	ModeAP
	ModeAPStation
)

// String returns the wire name used by the network status endpoint.
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeStation:
		return "sta"
	case ModeAP:
		return "ap"
	case ModeAPStation:
		return "ap_sta"
	default:
		return ""
	}
}

// Station reports whether the mode includes a station interface.
func (m Mode) Station() bool { return m == ModeStation || m == ModeAPStation }

// AP reports whether the mode includes a soft access point.
func (m Mode) AP() bool { return m == ModeAP || m == ModeAPStation }

// Status is the station link status.
type Status uint8

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusNoSSID
	StatusConnectFailed
	StatusDisconnected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusNoSSID:
		return "NO_SSID"
	case StatusConnectFailed:
		return "CONNECT_FAILED"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Network is one entry of a scan result.
type Network struct {
	SSID     string `json:"ssid"`
	Channel  int    `json:"channel"`
	Strength int    `json:"strength"`
	Open     bool   `json:"open"`
}

// Radio is the wireless driver.
//
// Implementations need not be safe for concurrent use; the provisioning loop
// is the only caller.
type Radio interface {
	// Mode returns the current operating mode.
	Mode() Mode

	// SetMode switches the operating mode.
	SetMode(m Mode) error

	// Begin starts joining a network. An empty secret joins an open network.
	// Progress is observed through Status.
	Begin(ssid, secret string) error

	// Status returns the station link status.
	Status() Status

	// Disconnect drops the station link.
	Disconnect() error

	// SoftAP starts an access point. An empty password creates an open AP.
	SoftAP(name, password string) error

	// SoftAPConfig assigns the access point address.
	SoftAPConfig(addr, gateway netip.Addr, subnet netip.Prefix) error

	// SoftAPDisconnect stops the access point.
	SoftAPDisconnect() error

	// SetHostname sets the station hostname.
	SetHostname(name string) error

	// LocalIP returns the active interface address.
	LocalIP() netip.Addr

	// StartScan discards previous results and starts an asynchronous scan.
	StartScan() error

	// ScanResults returns the last completed scan. done is false while a
	// scan is running or when none has been started.
	ScanResults() (networks []Network, done bool)
}
