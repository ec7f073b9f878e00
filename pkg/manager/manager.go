package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"

	"github.com/leegang/WifiConfig/pkg/captive"
	"github.com/leegang/WifiConfig/pkg/discovery"
	"github.com/leegang/WifiConfig/pkg/log"
	"github.com/leegang/WifiConfig/pkg/param"
	"github.com/leegang/WifiConfig/pkg/persistence"
	"github.com/leegang/WifiConfig/pkg/radio"
	"github.com/leegang/WifiConfig/pkg/web"
)

// taskQueueSize bounds functions waiting for the loop.
const taskQueueSize = 4

// Manager runs the provisioning state machine.
//
// Manager is not safe for concurrent use. Other goroutines reach it through Do.
type Manager struct {
	cfg Config

	radio    radio.Radio
	store    *persistence.Store
	registry *param.Registry
	system   System

	clock      Clock
	logger     *slog.Logger
	journal    *log.Journal
	advertiser discovery.Advertiser

	provisioningHooks []func(chi.Router)
	applicationHooks  []func(chi.Router)

	state State
	mode  Mode
	creds persistence.Credentials

	// Active for the current mode
	dns *captive.Responder
	web *web.Server

	// Provisioning session timeout currently in force and its start
	timeout     time.Duration
	provisioned time.Time

	lastScan      time.Time
	restartReason string

	tasks chan func()
}

// New creates a Manager in StateUninitialized.
func New(cfg Config, r radio.Radio, store *persistence.Store, registry *param.Registry, system System) (*Manager, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r == nil || store == nil || registry == nil || system == nil {
		return nil, fmt.Errorf("%w: radio, store, registry and system are required", ErrInvalidConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &Manager{
		cfg:      cfg,
		radio:    r,
		store:    store,
		registry: registry,
		system:   system,
		clock:    clock.New(),
		logger:   logger,
		tasks:    make(chan func(), taskQueueSize),
	}
	m.journal = log.NewJournal(nil, log.NewBootID(), m.now)
	return m, nil
}

func (m *Manager) now() time.Time { return m.clock.Now() }

// SetClock replaces the time source.
func (m *Manager) SetClock(c Clock) {
	m.clock = c
}

// SetJournal sets the event journal.
func (m *Manager) SetJournal(j *log.Journal) {
	m.journal = j
}

// SetAdvertiser sets the mDNS advertiser used in application mode.
func (m *Manager) SetAdvertiser(a discovery.Advertiser) {
	m.advertiser = a
}

// SetAPName sets the access point SSID.
func (m *Manager) SetAPName(name string) { m.cfg.APName = name }

// SetAPPassword sets the access point password.
func (m *Manager) SetAPPassword(password string) { m.cfg.APPassword = password }

// SetAPTimeout sets the provisioning session timeout.
func (m *Manager) SetAPTimeout(d time.Duration) { m.cfg.APTimeout = d }

// SetAPAddress sets the access point address and subnet. The address is
// also the gateway and the captive DNS answer.
func (m *Manager) SetAPAddress(p netip.Prefix) { m.cfg.APAddress = p }

// SetJoinRetries sets the number of status polls while joining.
func (m *Manager) SetJoinRetries(n int) { m.cfg.JoinRetries = n }

// SetJoinInterval sets the delay between status polls.
func (m *Manager) SetJoinInterval(d time.Duration) { m.cfg.JoinInterval = d }

// SetAssetPath sets the home page path.
func (m *Manager) SetAssetPath(path string) { m.cfg.AssetPath = path }

// SetDeviceName sets the display name and version used for the hostname.
func (m *Manager) SetDeviceName(name, version string) {
	m.cfg.DeviceName = name
	m.cfg.Version = version
}

// OnProvisioningServer registers fn to add routes to the provisioning web
// server before it starts.
func (m *Manager) OnProvisioningServer(fn func(chi.Router)) {
	m.provisioningHooks = append(m.provisioningHooks, fn)
}

// OnApplicationServer registers fn to add routes to the application web
// server before it starts.
func (m *Manager) OnApplicationServer(fn func(chi.Router)) {
	m.applicationHooks = append(m.applicationHooks, fn)
}

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Mode returns the operating mode.
func (m *Manager) Mode() Mode { return m.mode }

// Credentials returns the network credentials read at boot.
func (m *Manager) Credentials() persistence.Credentials { return m.creds }

// Timeout returns the provisioning timeout in force. Zero means none.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Registry returns the parameter registry.
func (m *Manager) Registry() *param.Registry { return m.registry }

// Radio returns the radio driver. It must only be used from the loop
// goroutine, for example inside Do.
func (m *Manager) Radio() radio.Radio { return m.radio }

// HTTPServer returns the web server of the current mode, or nil.
func (m *Manager) HTTPServer() *web.Server { return m.web }

// DNS returns the captive DNS responder, or nil outside provisioning mode.
func (m *Manager) DNS() *captive.Responder { return m.dns }

// Setup runs the boot sequence. It blocks while joining the stored network.
func (m *Manager) Setup(ctx context.Context) error {
	if m.state != StateUninitialized {
		return ErrAlreadyStarted
	}

	m.setState(StateReadingStore, "")
	firstRun, err := m.readStore()
	if err != nil {
		return err
	}

	m.setState(StateJoiningNetwork, "")
	if firstRun {
		// A fresh device waits in setup until someone configures it.
		return m.startProvisioning(0, "first run")
	}
	if m.creds.NetworkID == "" {
		return m.startProvisioning(m.cfg.APTimeout, "no stored network")
	}

	joined, err := m.join(ctx)
	if err != nil {
		return err
	}
	if !joined {
		return m.startProvisioning(m.cfg.APTimeout, "join failed")
	}
	return m.startApplication(ctx)
}

// readStore loads credentials and settings, initializing the record on a
// first run.
func (m *Manager) readStore() (firstRun bool, err error) {
	valid, err := m.store.ReadMarker()
	if err != nil {
		return false, fmt.Errorf("read marker: %w", err)
	}

	if !valid {
		m.logger.Info("no valid record, writing defaults")
		blob, err := m.registry.EncodeBlob(m.store.SettingsSize())
		if err != nil {
			return false, fmt.Errorf("encode default settings: %w", err)
		}
		if err := m.store.WriteMarkerAndDefaults(blob); err != nil {
			return false, fmt.Errorf("write defaults: %w", err)
		}
		m.journal.Storage(log.StorageOpInitDefaults, len(blob))
		// Commit failure leaves the device running on in-memory defaults.
		_ = m.commit()
		m.creds = persistence.Credentials{}
		return true, nil
	}

	creds, err := m.store.ReadCredentials()
	if err != nil {
		return false, fmt.Errorf("read credentials: %w", err)
	}
	m.creds = creds

	blob, err := m.store.ReadSettingsBlob()
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	if err := m.registry.DecodeBlob(blob); err != nil {
		m.logger.Warn("stored settings unreadable, using declared defaults", "error", err)
		m.journal.Error("decode settings", err)
	}
	return false, nil
}

// join starts joining the stored network and polls until connected or the
// retry budget is spent.
func (m *Manager) join(ctx context.Context) (bool, error) {
	id := m.creds.NetworkID
	m.logger.Info("joining network", "ssid", id, "retries", m.cfg.JoinRetries, "interval", m.cfg.JoinInterval)

	if err := m.radio.Begin(id, m.creds.Secret); err != nil {
		m.logger.Warn("join not started", "ssid", id, "error", err)
		m.journal.Error("join", err)
		return false, nil
	}

	status := radio.StatusIdle
	for attempt := 1; attempt <= m.cfg.JoinRetries; attempt++ {
		status = m.radio.Status()
		if status == radio.StatusConnected {
			m.journal.Radio(log.RadioEvent{Op: log.RadioOpJoin, SSID: id, Status: status.String(), Attempts: attempt})
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		m.clock.Sleep(m.cfg.JoinInterval)
	}

	m.logger.Warn("join failed", "ssid", id, "status", status.String())
	m.journal.Radio(log.RadioEvent{Op: log.RadioOpJoin, SSID: id, Status: status.String(), Attempts: m.cfg.JoinRetries})
	return false, nil
}

// startProvisioning brings up the access point, captive DNS and web server.
func (m *Manager) startProvisioning(timeout time.Duration, reason string) error {
	apAddr := m.cfg.APAddress.Addr()

	// Tear down whatever the radio was doing.
	if err := m.radio.Disconnect(); err != nil && !errors.Is(err, radio.ErrNotConnected) {
		m.logger.Debug("station disconnect", "error", err)
	}
	if err := m.radio.SoftAPDisconnect(); err != nil {
		m.logger.Debug("soft AP disconnect", "error", err)
	}
	if err := m.radio.SetMode(radio.ModeOff); err != nil {
		return fmt.Errorf("radio off: %w", err)
	}
	if err := m.radio.SetMode(radio.ModeAP); err != nil {
		return fmt.Errorf("radio AP mode: %w", err)
	}
	if err := m.radio.SoftAP(m.cfg.APName, m.cfg.APPassword); err != nil {
		return fmt.Errorf("start access point: %w", err)
	}
	if err := m.radio.SoftAPConfig(apAddr, apAddr, m.cfg.APAddress.Masked()); err != nil {
		return fmt.Errorf("configure access point: %w", err)
	}
	m.journal.Radio(log.RadioEvent{Op: log.RadioOpAccessPoint, SSID: m.cfg.APName})

	dns := captive.New(captive.Config{Logger: m.cfg.Logger})
	if err := dns.Start(m.cfg.DNSAddr, apAddr); err != nil {
		return fmt.Errorf("start captive DNS: %w", err)
	}
	m.dns = dns

	if err := m.startWeb(m.provisioningHooks); err != nil {
		_ = dns.Stop()
		m.dns = nil
		return err
	}

	m.timeout = timeout
	m.provisioned = m.clock.Now()
	m.mode = ModeProvisioning
	m.journal.SetMode(m.mode.String())
	m.setState(StateProvisioning, reason)
	m.logger.Info("provisioning mode", "ap", m.cfg.APName, "address", apAddr, "timeout", timeout)
	return nil
}

// startApplication serves the API on the joined network.
func (m *Manager) startApplication(ctx context.Context) error {
	if err := m.radio.SetMode(radio.ModeStation); err != nil {
		return fmt.Errorf("radio station mode: %w", err)
	}
	hostname := m.cfg.Hostname()
	if hostname != "" {
		if err := m.radio.SetHostname(hostname); err != nil {
			m.logger.Warn("set hostname", "hostname", hostname, "error", err)
		}
	}

	if err := m.startWeb(m.applicationHooks); err != nil {
		return err
	}

	m.timeout = 0
	m.mode = ModeApplication
	m.journal.SetMode(m.mode.String())
	m.setState(StateApplication, "joined "+m.creds.NetworkID)
	m.logger.Info("application mode", "ssid", m.creds.NetworkID, "ip", m.radio.LocalIP(), "hostname", hostname)

	if m.advertiser != nil && hostname != "" {
		info := &discovery.DeviceInfo{
			Instance: hostname,
			Port:     m.webPort(),
			Version:  m.cfg.Version,
			Mode:     discovery.ModeApplication,
			BootID:   m.journal.BootID(),
		}
		if err := m.advertiser.Advertise(ctx, info); err != nil {
			m.logger.Warn("mDNS announce failed", "error", err)
			m.journal.Error("announce", err)
		}
	}
	return nil
}

// startWeb creates the web server, registers routes and hooks and starts
// listening.
func (m *Manager) startWeb(hooks []func(chi.Router)) error {
	srv := web.New(web.Config{Addr: m.cfg.HTTPAddr, Logger: m.cfg.Logger})
	m.routes(srv.Router())
	for _, hook := range hooks {
		hook(srv.Router())
	}
	if err := srv.Begin(); err != nil {
		return fmt.Errorf("start web server: %w", err)
	}
	m.web = srv
	return nil
}

func (m *Manager) webPort() uint16 {
	if m.web == nil {
		return 0
	}
	if tcp, ok := m.web.Addr().(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return discovery.DefaultPort
}

// EnterProvisioning leaves application mode for provisioning mode with the
// configured session timeout.
func (m *Manager) EnterProvisioning() error {
	switch m.state {
	case StateUninitialized, StateReadingStore, StateJoiningNetwork:
		return ErrNotStarted
	case StateProvisioning:
		return nil
	}
	m.stopServices()
	return m.startProvisioning(m.cfg.APTimeout, "requested")
}

// Loop runs one tick of the running loop.
func (m *Manager) Loop() {
	if m.mode == ModeProvisioning && m.timeout > 0 && m.clock.Now().Sub(m.provisioned) > m.timeout {
		m.logger.Info("provisioning timeout elapsed", "timeout", m.timeout)
		m.timeout = 0
		m.requestRestart("provisioning timeout")
	}

	if m.restartReason == "" {
		if m.dns != nil {
			if err := m.dns.ProcessNextRequest(); err != nil && !errors.Is(err, captive.ErrNotStarted) {
				m.logger.Debug("captive DNS", "error", err)
			}
		}
		if m.web != nil {
			m.web.HandleClient()
		}
	}

	m.runTasks()

	if reason := m.restartReason; reason != "" {
		m.restartReason = ""
		m.journal.State(m.state.String(), RestartState, reason)
		m.system.Restart(reason)
	}
}

// Do runs fn on the loop goroutine during the next tick and waits for it.
func (m *Manager) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case m.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) runTasks() {
	for {
		select {
		case task := <-m.tasks:
			task()
		default:
			return
		}
	}
}

// RequestRestart asks System to restart the device at the end of the
// current tick.
func (m *Manager) RequestRestart(reason string) {
	m.requestRestart(reason)
}

func (m *Manager) requestRestart(reason string) {
	if m.restartReason == "" {
		m.restartReason = reason
	}
}

// RestartPending reports whether a restart will be requested at the end of
// the tick.
func (m *Manager) RestartPending() bool { return m.restartReason != "" }

// Save encodes the registry into the settings blob, writes it and commits.
func (m *Manager) Save() error {
	blob, err := m.registry.EncodeBlob(m.store.SettingsSize())
	if err != nil {
		m.journal.Error("encode settings", err)
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := m.store.WriteSettingsBlob(blob); err != nil {
		m.journal.Error("write settings", err)
		return fmt.Errorf("write settings: %w", err)
	}
	m.journal.Storage(log.StorageOpWriteSettings, len(blob))
	return m.commit()
}

// SaveCredentials writes credentials and commits. The caller decides whether
// to restart.
func (m *Manager) SaveCredentials(c persistence.Credentials) error {
	if err := m.store.WriteCredentials(c); err != nil {
		m.journal.Error("write credentials", err)
		return fmt.Errorf("write credentials: %w", err)
	}
	m.journal.Storage(log.StorageOpWriteCredentials, persistence.NetworkIDSize+persistence.SecretSize)
	return m.commit()
}

// EraseSettings invalidates the stored record and commits. The next boot
// writes defaults.
func (m *Manager) EraseSettings() error {
	if err := m.store.EraseMarker(); err != nil {
		m.journal.Error("erase", err)
		return fmt.Errorf("erase marker: %w", err)
	}
	m.journal.Storage(log.StorageOpErase, persistence.MarkerSize)
	return m.commit()
}

func (m *Manager) commit() error {
	if err := m.store.Commit(); err != nil {
		m.logger.Error("storage commit failed", "error", err)
		m.journal.Error("commit", err)
		return fmt.Errorf("commit: %w", err)
	}
	m.journal.Storage(log.StorageOpCommit, 0)
	return nil
}

func (m *Manager) setState(s State, reason string) {
	old := m.state
	m.state = s
	m.journal.State(old.String(), s.String(), reason)
	m.logger.Debug("state change", "from", old.String(), "to", s.String(), "reason", reason)
}

// stopServices stops the DNS responder, web server and announcement.
func (m *Manager) stopServices() {
	if m.dns != nil {
		_ = m.dns.Stop()
		m.dns = nil
	}
	if m.web != nil {
		_ = m.web.Close()
		m.web = nil
	}
	if m.advertiser != nil {
		_ = m.advertiser.Stop()
	}
}

// Close stops all services. The radio is left as is.
func (m *Manager) Close() error {
	m.stopServices()
	m.mode = ModeNone
	return nil
}
