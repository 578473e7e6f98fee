package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/provider"
)

const (
	// DefaultCategories are the device kinds a scan browses for
	DefaultCategories = provider.CategoryMediaDevice | provider.CategoryConmonDevice

	// DefaultMaxSockets is the socket capacity requested for a browse session
	DefaultMaxSockets = 32
)

// State is the lifecycle state of a Scanner.
type State int

const (
	StateInactive State = iota
	StateActive
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Scanner owns one browse session and rebuilds the device table whenever
// the provider reports a network change.
//
// Network-change notifications only record the latest device list and flag
// a pending rebuild; a burst of notifications collapses into a single
// rebuild, performed by whoever drains the flag (normally Driver.PumpEvents).
type Scanner struct {
	env     provider.Environment
	builder *Builder
	table   *Table
	logger  *zap.Logger

	// Categories, MaxSockets and Config are applied on Start
	Categories provider.Category
	MaxSockets int
	Config     provider.BrowseConfig

	// Observer, when set, is told about every published snapshot
	Observer Observer

	mu      sync.Mutex
	state   State
	session provider.BrowseSession
	latest  []provider.RawDevice
	pending chan struct{}
}

// NewScanner creates an inactive scanner that publishes into table.
func NewScanner(env provider.Environment, builder *Builder, table *Table, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = logging.Named("scanner")
	}
	return &Scanner{
		env:        env,
		builder:    builder,
		table:      table,
		logger:     logger,
		Categories: DefaultCategories,
		MaxSockets: DefaultMaxSockets,
		pending:    make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether a browse session is running.
func (s *Scanner) Active() bool {
	return s.State() == StateActive
}

// Start creates, configures and starts a browse session. Starting an active
// scanner is a successful no-op. On any provider failure the partially
// built session is deleted before the error is returned.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive {
		s.logger.Info("Device scan already active")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := s.env.NewBrowse(s.Categories)
	if err != nil {
		logging.LogProviderError("create browse session", err)
		return NewProviderError("failed to create browse session", err)
	}

	if err := session.SetMaxSockets(s.MaxSockets); err != nil {
		session.Delete()
		logging.LogProviderError("set max sockets", err)
		return NewProviderError("failed to set max sockets", err)
	}

	session.OnNetworkChanged(s.onNetworkChanged)

	if err := session.Start(s.Config); err != nil {
		session.Delete()
		logging.LogProviderError("start browse", err)
		return NewProviderError("failed to start browse", err)
	}

	s.session = session
	s.state = StateActive
	s.logger.Info("Background device scan started",
		zap.Int("max_sockets", s.MaxSockets),
		zap.Ints("interfaces", s.Config.InterfaceIndexes),
	)
	return nil
}

// Stop tears down the browse session and discards the device table.
// Stopping an inactive scanner is a successful no-op.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateInactive {
		return nil
	}

	err := s.session.Stop()
	s.session.Delete()
	s.session = nil
	s.state = StateInactive
	s.latest = nil
	select {
	case <-s.pending:
	default:
	}
	snap := s.table.Clear()
	if s.Observer != nil {
		s.Observer.Published(snap, 0)
	}

	s.logger.Info("Device scan stopped")
	if err != nil {
		return NewProviderError("failed to stop browse", err)
	}
	return nil
}

// onNetworkChanged is registered with the browse session. It never blocks.
func (s *Scanner) onNetworkChanged(devices []provider.RawDevice) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.latest = devices
	s.mu.Unlock()

	select {
	case s.pending <- struct{}{}:
		s.logger.Debug("Network changed, rebuild requested", zap.Int("devices", len(devices)))
	default:
		s.logger.Debug("Network changed, rebuild already pending", zap.Int("devices", len(devices)))
	}
}

// RebuildPending performs the rebuild requested by network-change
// notifications, if any. It reports whether a rebuild ran.
func (s *Scanner) RebuildPending(ctx context.Context) bool {
	select {
	case <-s.pending:
	default:
		return false
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return false
	}
	devices := s.latest
	s.mu.Unlock()

	s.Rebuild(ctx, devices)
	return true
}

// Refresh rebuilds from the session's current device list even when nothing
// changed. It is a no-op when the scanner is inactive.
func (s *Scanner) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	devices := s.session.Network()
	s.mu.Unlock()

	s.Rebuild(ctx, devices)
}

// Rebuild builds a snapshot from devices and publishes it in one step.
func (s *Scanner) Rebuild(ctx context.Context, devices []provider.RawDevice) *Snapshot {
	start := time.Now()
	snap := s.table.Publish(s.builder.Build(ctx, devices))
	elapsed := time.Since(start)
	logging.LogSnapshotPublished(snap.Generation, snap.Len(), elapsed)
	if s.Observer != nil {
		s.Observer.Published(snap, elapsed)
	}
	return snap
}
