// Package web serves the configuration HTTP API from a cooperative loop.
//
// Connections are accepted by net/http as usual, but every request is queued
// and executed only when the owner calls HandleClient. Handlers therefore run
// on the loop goroutine, one at a time, and may touch loop-owned state
// without locking.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"
)

// Server errors.
var (
	ErrAlreadyStarted = errors.New("server already started")
)

// Defaults.
const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultQueueSize       = 8
	DefaultShutdownTimeout = 2 * time.Second
)

// Config configures a Server.
type Config struct {
	// Addr is the TCP listen address, for example ":80".
	Addr string

	// RequestTimeout bounds how long a request waits for the loop before it
	// is answered with 503. Default: 30s.
	RequestTimeout time.Duration

	// QueueSize is the number of requests that may wait for the loop.
	// Default: 8.
	QueueSize int

	// ShutdownTimeout bounds graceful shutdown in Close. Default: 2s.
	ShutdownTimeout time.Duration

	// Logger for server and access logging. Nil disables logging.
	Logger *slog.Logger
}

// job states.
const (
	jobPending int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	w     http.ResponseWriter
	r     *http.Request
	state atomic.Int32
	done  chan struct{}
}

// claim moves a pending job to running. Only one of claim and abandon wins.
func (j *job) claim() bool {
	return j.state.CompareAndSwap(jobPending, jobRunning)
}

func (j *job) abandon() bool {
	return j.state.CompareAndSwap(jobPending, jobAbandoned)
}

// Server is a cooperative HTTP server.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router chi.Router

	queue chan *job

	mu        sync.Mutex
	srv       *http.Server
	ln        net.Listener
	closing   chan struct{}
	running   atomic.Bool
	closeOnce sync.Once
}

// New creates a stopped server with an empty router.
func New(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  chi.NewRouter(),
		queue:   make(chan *job, cfg.QueueSize),
		closing: make(chan struct{}),
	}
	if cfg.Logger != nil {
		s.router.Use(s.httpLogger)
	}
	return s
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.logger, next)
}

// Router returns the router requests are dispatched to. Routes must be
// registered before Begin.
func (s *Server) Router() chi.Router {
	return s.router
}

// Begin starts accepting connections.
func (s *Server) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return ErrAlreadyStarted
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           http.HandlerFunc(s.enqueue),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running.Store(true)

	srv := s.srv
	go func() {
		s.logger.Info("HTTP server started", "listenAddress", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", "err", err)
		}
	}()
	return nil
}

// Addr returns the listen address, or nil before Begin.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Running reports whether the server accepts connections.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Handler returns the queueing handler, for serving through a listener owned
// by the caller.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.enqueue)
}

// HandleClient serves at most one queued request on the calling goroutine.
// It reports whether a request was served.
func (s *Server) HandleClient() bool {
	for {
		select {
		case j := <-s.queue:
			if !j.claim() {
				continue
			}
			s.router.ServeHTTP(j.w, j.r)
			close(j.done)
			return true
		default:
			return false
		}
	}
}

// Close stops accepting connections and fails waiting requests with 503.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.running.Store(false)

	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("Graceful HTTP server shutdown failed", "err", err)
		return srv.Close()
	}
	s.logger.Info("HTTP server gracefully stopped")
	return nil
}

// enqueue runs on the net/http goroutine and waits for the loop to serve r.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	j := &job{w: w, r: r, done: make(chan struct{})}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case s.queue <- j:
	case <-r.Context().Done():
		return
	case <-s.closing:
		http.Error(w, "server closing", http.StatusServiceUnavailable)
		return
	case <-timer.C:
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}

	select {
	case <-j.done:
		return
	case <-r.Context().Done():
	case <-s.closing:
	case <-timer.C:
	}

	if j.abandon() {
		if r.Context().Err() == nil {
			http.Error(w, "request timed out", http.StatusServiceUnavailable)
		}
		return
	}
	// The loop claimed the job first; the response writer stays valid until
	// it finishes.
	<-j.done
}
