// Package captive implements the wildcard DNS responder that steers clients of
// the provisioning access point to the device.
//
// The responder is pumped cooperatively: ProcessNextRequest handles at most
// one datagram and returns promptly when none is waiting.
package captive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Responder errors.
var (
	ErrNotStarted     = errors.New("responder not started")
	ErrAlreadyStarted = errors.New("responder already started")
	ErrNotIPv4        = errors.New("answer address must be IPv4")
)

// Defaults.
const (
	DefaultTTL         = 60
	DefaultPollTimeout = time.Millisecond
)

// Config configures a Responder.
type Config struct {
	// TTL of answer records, in seconds. Default: 60.
	TTL uint32

	// PollTimeout bounds how long ProcessNextRequest waits for a datagram.
	// Default: 1ms.
	PollTimeout time.Duration

	// Logger for query logging. Nil disables logging.
	Logger *slog.Logger
}

// Responder answers every A query with a fixed address.
type Responder struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger

	conn net.PacketConn
	ip   netip.Addr
	buf  []byte
}

// New creates a stopped responder.
func New(cfg Config) *Responder {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Responder{
		cfg:    cfg,
		logger: logger,
		buf:    make([]byte, dns.MaxMsgSize),
	}
}

// Start listens on the UDP address addr (for example ":53") and answers
// queries with ip.
func (r *Responder) Start(addr string, ip netip.Addr) error {
	if !ip.Is4() {
		return fmt.Errorf("%w: %s", ErrNotIPv4, ip)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return ErrAlreadyStarted
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	r.conn = conn
	r.ip = ip
	r.logger.Info("captive DNS started", "addr", conn.LocalAddr().String(), "answer", ip.String())
	return nil
}

// Addr returns the bound address, or nil when stopped.
func (r *Responder) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Running reports whether the responder is listening.
func (r *Responder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// ProcessNextRequest reads and answers at most one query. It returns nil
// when no datagram arrived within the poll timeout. Malformed datagrams are
// dropped.
func (r *Responder) ProcessNextRequest() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return ErrNotStarted
	}
	if err := r.conn.SetReadDeadline(time.Now().Add(r.cfg.PollTimeout)); err != nil {
		return err
	}

	n, peer, err := r.conn.ReadFrom(r.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		return err
	}

	req := new(dns.Msg)
	if err := req.Unpack(r.buf[:n]); err != nil {
		r.logger.Debug("dropping malformed query", "peer", peer.String(), "error", err)
		return nil
	}

	resp := Answer(req, r.ip, r.cfg.TTL)
	out, err := resp.Pack()
	if err != nil {
		return fmt.Errorf("packing response: %w", err)
	}
	if _, err := r.conn.WriteTo(out, peer); err != nil {
		return err
	}

	if len(req.Question) > 0 {
		q := req.Question[0]
		r.logger.Debug("captive DNS answer", "peer", peer.String(), "name", q.Name, "type", dns.TypeToString[q.Qtype])
	}
	return nil
}

// Stop closes the listener. Stopping a stopped responder is a no-op.
func (r *Responder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.logger.Info("captive DNS stopped")
	return err
}

// Answer builds the reply to req: every IN A (or ANY) question is answered
// with ip, other question types get an empty NOERROR reply, and non-query
// opcodes are refused with NOTIMP.
func Answer(req *dns.Msg, ip netip.Addr, ttl uint32) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true

	if req.Opcode != dns.OpcodeQuery {
		resp.Rcode = dns.RcodeNotImplemented
		return resp
	}

	for _, q := range req.Question {
		if q.Qclass != dns.ClassINET && q.Qclass != dns.ClassANY {
			continue
		}
		if q.Qtype != dns.TypeA && q.Qtype != dns.TypeANY {
			continue
		}
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    ttl,
			},
			A: net.IP(ip.AsSlice()),
		})
	}
	return resp
}
