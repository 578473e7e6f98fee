package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/dantescan/internal/discovery"
	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/metrics"
)

// Defaults for Config.
const (
	DefaultPumpInterval = 100 * time.Millisecond
	DefaultRefreshRate  = 0.2 // one refresh every five seconds
	DefaultRefreshBurst = 2
)

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int
	CertPath string // Serve HTTPS when both CertPath and KeyPath are set
	KeyPath  string

	// PumpInterval is the delay between provider event pumps
	PumpInterval time.Duration

	// RefreshRate and RefreshBurst limit POST /refresh across all clients
	RefreshRate  float64
	RefreshBurst int
}

// Source is the scanner the server drives. *dante.Context satisfies it.
type Source interface {
	Snapshot() *discovery.Snapshot
	DeviceInfo(index int) (discovery.Record, error)
	PumpEvents(ctx context.Context)
	RefreshScan(ctx context.Context) error
}

// refreshRequest asks the event loop for a rebuild.
type refreshRequest struct {
	done chan error
}

// Server serves the device table of one Source.
type Server struct {
	config    *Config
	source    Source
	metrics   *metrics.Collector
	logger    *zap.Logger
	tlsConfig *tls.Config
	hub       *Hub
	limiter   *rate.Limiter
	refreshCh chan refreshRequest

	mu         sync.Mutex
	httpServer *http.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a Server for source. collector may be nil, in which case
// /metrics is not served.
func New(config *Config, source Source, collector *metrics.Collector) (*Server, error) {
	if config.PumpInterval <= 0 {
		config.PumpInterval = DefaultPumpInterval
	}
	if config.RefreshRate <= 0 {
		config.RefreshRate = DefaultRefreshRate
	}
	if config.RefreshBurst <= 0 {
		config.RefreshBurst = DefaultRefreshBurst
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" && config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	logger := logging.Named("server")
	return &Server{
		config:    config,
		source:    source,
		metrics:   collector,
		logger:    logger,
		tlsConfig: tlsConfig,
		hub:       NewHub(logger),
		limiter:   rate.NewLimiter(rate.Limit(config.RefreshRate), config.RefreshBurst),
		refreshCh: make(chan refreshRequest),
	}, nil
}

// Start listens on the configured address and blocks until a shutdown
// signal or a listener error.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}

	logging.Info("Starting dantescan API server",
		zap.String("addr", listener.Addr().String()),
		zap.Any("tls", GetTLSInfo(s.tlsConfig)),
	)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(context.Background(), listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// Serve runs the event loop and serves HTTP on listener until Shutdown.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	loopCtx, cancel := context.WithCancel(ctx)
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(loopCtx)
	}()

	err := httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	cancel()
	return err
}

// loop is the only goroutine that drives the source. It pumps events,
// runs requested refreshes and broadcasts each new snapshot generation.
func (s *Server) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PumpInterval)
	defer ticker.Stop()

	last := s.source.Snapshot().Generation
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.refreshCh:
			req.done <- s.source.RefreshScan(ctx)
		case <-ticker.C:
			s.source.PumpEvents(ctx)
		}

		if snap := s.source.Snapshot(); snap.Generation != last {
			last = snap.Generation
			s.hub.Broadcast(snapshotMessage(snap))
		}
	}
}

// refresh asks the event loop for a rebuild and waits for it.
func (s *Server) refresh(ctx context.Context) error {
	req := refreshRequest{done: make(chan error, 1)}
	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.mu.Lock()
	httpServer, cancel := s.httpServer, s.cancel
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		// Hijacked WebSocket connections are not tracked by http.Server
		err = httpServer.Shutdown(ctx)
	}
	s.hub.CloseAll()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return err
}

// GetActiveConnections returns the number of connected WebSocket clients
func (s *Server) GetActiveConnections() int {
	return s.hub.ClientCount()
}
