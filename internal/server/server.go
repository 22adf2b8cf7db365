package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/portalloc"
	"github.com/muurk/rendercast/internal/registry"
)

// shutdownTimeout bounds how long Serve waits for handlers after its
// context is cancelled.
const shutdownTimeout = 10 * time.Second

// searchInterval is the minimum spacing of POST /search requests. Each
// search occupies the responder for its whole response window.
const searchInterval = 2 * time.Second

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int    // 0 picks an ephemeral port
	CertPath string // TLS is enabled when both CertPath and KeyPath are set
	KeyPath  string
}

// Source is what the server publishes: a device list and a stream of
// deliveries. *discovery.Session satisfies it.
type Source interface {
	Devices() []registry.Device
	Subscribe(fn func(registry.Device)) (cancel func())
	Update() error
}

// Server exposes discovered devices over HTTP and a WebSocket event stream.
type Server struct {
	config    Config
	allocator *portalloc.Allocator
	source    Source
	hub       *Hub
	tlsConfig *tls.Config
	searches  *rate.Limiter

	mu       sync.Mutex
	listener net.Listener
	port     int
}

// New creates a Server. The listener is not opened until Listen or Serve.
func New(config Config, allocator *portalloc.Allocator, source Source) (*Server, error) {
	if allocator == nil {
		allocator = portalloc.Default()
	}

	s := &Server{
		config:    config,
		allocator: allocator,
		source:    source,
		hub:       NewHub(),
		searches:  rate.NewLimiter(rate.Every(searchInterval), 1),
	}

	if config.CertPath != "" || config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConfig = tlsConfig
	}

	return s, nil
}

func (s *Server) String() string {
	return "event server"
}

// Hub returns the event hub fed by the source.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Port returns the bound port, or 0 before the first Listen.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Listen allocates a port and opens the listener. It is called by Serve
// when needed; calling it first lets the caller learn the port early.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	// A restarted server rebinds the port it was issued instead of asking
	// the allocator again, which would refuse it as locked.
	port := s.port
	if port == 0 {
		req := portalloc.Request{Host: s.config.Host}
		if s.config.Port != 0 {
			req.Ports = []int{s.config.Port}
		}
		var err error
		port, err = s.allocator.Allocate(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to allocate server port: %w", err)
		}
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(port))
	var (
		ln  net.Listener
		err error
	)
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	return nil
}

// Serve runs the server until ctx is cancelled, then shuts down gracefully.
// It returns nil on a clean shutdown, which makes it usable as a
// supervised service.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	cancel := s.source.Subscribe(func(d registry.Device) {
		s.hub.Broadcast(Event{Event: EventFound, Device: d})
	})
	defer cancel()

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpSrv.Serve(ln)
	}()

	logging.Info("Event server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.tlsConfig != nil),
	)

	select {
	case <-ctx.Done():
		logging.Info("Shutting down event server...")
		s.hub.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		}
		s.reset()
		return nil
	case err := <-errChan:
		s.hub.Close()
		s.reset()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) reset() {
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

// Handler returns the HTTP routes:
//
//	GET  /devices  delivered devices as JSON
//	GET  /events   WebSocket stream of found events
//	POST /search   trigger another discovery round
//	GET  /metrics  Prometheus metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.source.Devices()
	if devices == nil {
		devices = []registry.Device{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(devices); err != nil {
		logging.Error("Failed to write device list", zap.Error(err))
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, _ *http.Request) {
	if !s.searches.Allow() {
		w.Header().Set("Retry-After", strconv.Itoa(int(searchInterval/time.Second)))
		http.Error(w, "search already requested", http.StatusTooManyRequests)
		return
	}
	if err := s.source.Update(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Debug("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	s.hub.Serve(conn, s.source.Devices())
}
