package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/leegang/WifiConfig/pkg/discovery"
	"github.com/leegang/WifiConfig/pkg/log"
	"github.com/leegang/WifiConfig/pkg/manager"
	"github.com/leegang/WifiConfig/pkg/param"
	"github.com/leegang/WifiConfig/pkg/persistence"
	"github.com/leegang/WifiConfig/pkg/radio"
)

const defaultTick = 5 * time.Millisecond

// device runs successive boots of the provisioning manager until its context
// ends. A restart tears the current boot down and starts the next one with a
// fresh Manager and settings registry, re-reading the stored record.
type device struct {
	cfg        manager.Config
	radio      radio.Radio
	openStore  func() (*persistence.Store, error)
	defaults   func(*param.Registry) error
	sink       log.Logger
	advertiser discovery.Advertiser
	logger     *slog.Logger
	tick       time.Duration

	restart atomic.String
	current atomic.Pointer[manager.Manager]
	boots   atomic.Int64
}

// Restart implements manager.System.
func (d *device) Restart(reason string) {
	d.restart.Store(reason)
}

// Current returns the manager of the running boot, or nil between boots.
func (d *device) Current() *manager.Manager {
	return d.current.Load()
}

// Boots returns the number of completed Setup calls.
func (d *device) Boots() int64 {
	return d.boots.Load()
}

// Run boots the device and serves it until ctx is done.
func (d *device) Run(ctx context.Context) error {
	if d.tick <= 0 {
		d.tick = defaultTick
	}
	for {
		m, err := d.boot(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		reason := d.serve(ctx, m)
		d.current.Store(nil)
		if err := m.Close(); err != nil {
			d.logger.Warn("close manager", "error", err)
		}
		if reason == "" {
			return nil
		}
		d.logger.Info("soft restart", "reason", reason, "boots", d.boots.Load())
	}
}

func (d *device) boot(ctx context.Context) (*manager.Manager, error) {
	store, err := d.openStore()
	if err != nil {
		return nil, err
	}

	registry := newAppSettings().Registry()
	if d.defaults != nil {
		if err := d.defaults(registry); err != nil {
			d.logger.Warn("settings defaults", "error", err)
		}
	}

	m, err := manager.New(d.cfg, d.radio, store, registry, d)
	if err != nil {
		return nil, err
	}
	if d.advertiser != nil {
		m.SetAdvertiser(d.advertiser)
	}
	sink := d.sink
	if sink == nil {
		sink = log.NoopLogger{}
	}
	m.SetJournal(log.NewJournal(sink, log.NewBootID(), time.Now))

	if err := m.Setup(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	d.boots.Inc()
	d.current.Store(m)
	d.logger.Info("device ready",
		"state", m.State().String(),
		"mode", m.Mode().String(),
		"ssid", m.Credentials().NetworkID)
	return m, nil
}

// serve ticks m until a restart is requested or ctx ends. It returns the
// restart reason, or "" when ctx ended.
func (d *device) serve(ctx context.Context, m *manager.Manager) string {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()
	for {
		m.Loop()
		if reason := d.restart.Swap(""); reason != "" {
			return reason
		}
		select {
		case <-ctx.Done():
			return ""
		case <-ticker.C:
		}
	}
}
