package discovery

import (
	"context"
	"time"
)

// Advertiser announces the device on the local network.
type Advertiser interface {
	// Advertise starts (or restarts) announcing info.
	Advertise(ctx context.Context, info *DeviceInfo) error

	// Stop withdraws the announcement. Stopping when idle is a no-op.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       DefaultTTL,
	}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string

	// Timeout bounds Find. Default: BrowseTimeout.
	Timeout time.Duration
}
