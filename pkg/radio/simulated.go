package radio

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"slices"
	"sync"
)

// SimulatedNetwork is a network visible to the simulated radio.
type SimulatedNetwork struct {
	Network

	// Secret is the passphrase. Ignored when Open is set.
	Secret string

	// Addr is the station address assigned after joining.
	Addr netip.Addr
}

// SimulatedConfig configures a Simulated radio.
type SimulatedConfig struct {
	// Networks are the networks in range.
	Networks []SimulatedNetwork

	// JoinPolls is the number of Status calls that report CONNECTING before
	// a join settles. Default: 2.
	JoinPolls int

	// ScanPolls is the number of ScanResults calls that report a running scan.
	// Default: 1.
	ScanPolls int

	// Logger for radio events. Nil disables logging.
	Logger *slog.Logger
}

// Simulated is an in-process Radio for host builds and tests.
type Simulated struct {
	mu     sync.Mutex
	cfg    SimulatedConfig
	logger *slog.Logger

	mode     Mode
	hostname string

	status    Status
	joining   *SimulatedNetwork
	joinOK    bool
	pollsLeft int
	joined    *SimulatedNetwork

	apName string
	apAddr netip.Addr
	apUp   bool

	scanPollsLeft int
	scanRunning   bool
	scanDone      bool
	scanResults   []Network
}

// NewSimulated creates a simulated radio in ModeOff.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.JoinPolls <= 0 {
		cfg.JoinPolls = 2
	}
	if cfg.ScanPolls <= 0 {
		cfg.ScanPolls = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Simulated{cfg: cfg, logger: logger}
}

// SetNetworks replaces the networks in range.
func (s *Simulated) SetNetworks(networks []SimulatedNetwork) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Networks = slices.Clone(networks)
}

// Hostname returns the last hostname set.
func (s *Simulated) Hostname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostname
}

// APName returns the running access point name, or "" when none is up.
func (s *Simulated) APName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.apUp {
		return ""
	}
	return s.apName
}

// Mode returns the current operating mode.
func (s *Simulated) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the operating mode. Leaving a mode tears down its interfaces.
func (s *Simulated) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !m.Station() {
		s.dropStation()
	}
	if !m.AP() {
		s.apUp = false
	}
	s.mode = m
	s.logger.Debug("radio mode", "mode", m.String())
	return nil
}

// Begin starts joining ssid.
func (s *Simulated) Begin(ssid, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ssid == "" {
		return ErrInvalidSSID
	}
	if !s.mode.Station() {
		s.mode = ModeStation
		s.apUp = false
	}

	s.joined = nil
	s.joining = nil
	s.joinOK = false
	for i := range s.cfg.Networks {
		if s.cfg.Networks[i].SSID == ssid {
			n := s.cfg.Networks[i]
			s.joining = &n
			s.joinOK = n.Open || n.Secret == secret
			break
		}
	}
	s.status = StatusConnecting
	s.pollsLeft = s.cfg.JoinPolls
	s.logger.Debug("radio join", "ssid", ssid)
	return nil
}

// Status advances a pending join and returns the link status.
func (s *Simulated) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusConnecting {
		return s.status
	}
	if s.pollsLeft > 0 {
		s.pollsLeft--
		return s.status
	}

	switch {
	case s.joining == nil:
		s.status = StatusNoSSID
	case !s.joinOK:
		s.status = StatusConnectFailed
	default:
		s.status = StatusConnected
		s.joined = s.joining
	}
	s.joining = nil
	s.logger.Debug("radio join settled", "status", s.status.String())
	return s.status
}

// Disconnect drops the station link.
func (s *Simulated) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropStation()
	return nil
}

func (s *Simulated) dropStation() {
	if s.joined != nil || s.status == StatusConnecting {
		s.status = StatusDisconnected
	}
	s.joined = nil
	s.joining = nil
}

// SoftAP starts the access point. The radio must be in an AP mode.
func (s *Simulated) SoftAP(name, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mode.AP() {
		return fmt.Errorf("%w: soft AP in mode %s", ErrModeUnsupported, s.mode)
	}
	if name == "" {
		return ErrInvalidSSID
	}
	s.apName = name
	s.apUp = true
	s.logger.Debug("radio soft AP", "name", name, "open", password == "")
	return nil
}

// SoftAPConfig assigns the access point address.
func (s *Simulated) SoftAPConfig(addr, gateway netip.Addr, subnet netip.Prefix) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !subnet.Contains(addr) {
		return fmt.Errorf("address %s outside subnet %s", addr, subnet)
	}
	s.apAddr = addr
	return nil
}

// SoftAPDisconnect stops the access point.
func (s *Simulated) SoftAPDisconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apUp = false
	return nil
}

// SetHostname sets the station hostname.
func (s *Simulated) SetHostname(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hostname = name
	return nil
}

// LocalIP returns the station address when joined, else the AP address.
func (s *Simulated) LocalIP() netip.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.joined != nil {
		if s.joined.Addr.IsValid() {
			return s.joined.Addr
		}
		return netip.MustParseAddr("192.168.0.100")
	}
	if s.apUp {
		return s.apAddr
	}
	return netip.Addr{}
}

// StartScan starts a scan that completes after ScanPolls result checks.
func (s *Simulated) StartScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanRunning {
		return ErrScanInProgress
	}
	s.scanRunning = true
	s.scanDone = false
	s.scanResults = nil
	s.scanPollsLeft = s.cfg.ScanPolls
	return nil
}

// ScanResults returns the last completed scan.
func (s *Simulated) ScanResults() ([]Network, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanRunning {
		if s.scanPollsLeft > 0 {
			s.scanPollsLeft--
			return nil, false
		}
		s.scanRunning = false
		s.scanDone = true
		s.scanResults = make([]Network, 0, len(s.cfg.Networks))
		for _, n := range s.cfg.Networks {
			s.scanResults = append(s.scanResults, n.Network)
		}
	}
	if !s.scanDone {
		return nil, false
	}
	return slices.Clone(s.scanResults), true
}
