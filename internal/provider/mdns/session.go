package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dantescan/internal/provider"
)

// session is a browse subscription across one or more services.
//
// A zeroconf resolver reports each instance once per Browse call and never
// reports removals, so the session browses in rounds. Every round starts a
// fresh resolver per service; a device not announced during a round is
// dropped when the round ends.
type session struct {
	env      *Environment
	services []string

	mu         sync.Mutex
	maxSockets int
	callback   provider.NetworkChangedFunc
	devices    map[string]provider.RawDevice
	addrs      map[string]net.IP
	seen       map[string]time.Time
	dirty      bool
	started    bool
	deleted    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// round is one pass of browsing every service of a session.
type round struct {
	start  time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSession(env *Environment, services []string) *session {
	return &session{
		env:      env,
		services: services,
		devices:  make(map[string]provider.RawDevice),
		addrs:    make(map[string]net.IP),
		seen:     make(map[string]time.Time),
	}
}

// SetMaxSockets bounds the number of devices the session tracks.
func (s *session) SetMaxSockets(n int) error {
	if n <= 0 {
		return provider.NewError("set max sockets", provider.CodeRange, fmt.Errorf("invalid socket count %d", n))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSockets = n
	return nil
}

// OnNetworkChanged implements provider.BrowseSession.
func (s *session) OnNetworkChanged(fn provider.NetworkChangedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
}

// Start begins browsing every service of the session.
func (s *session) Start(cfg provider.BrowseConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return provider.NewError("start browse", provider.CodeClosed, nil)
	}
	if s.started {
		return nil
	}

	ifaces, err := s.env.interfaces(cfg.InterfaceIndexes)
	if err != nil {
		return provider.NewError("start browse", provider.CodeNotFound, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	first, err := s.browse(ctx, ifaces)
	if err != nil {
		cancel()
		return provider.NewError("start browse", provider.CodeFailed, err)
	}

	s.cancel = cancel
	s.started = true
	s.wg.Add(1)
	go s.run(ctx, ifaces, first)

	s.env.logger.Debug("Browsing started",
		zap.Strings("services", s.services),
		zap.Int("interfaces", len(ifaces)),
		zap.Duration("round", s.env.BrowseRound),
	)
	return nil
}

// Stop ends browsing. The device list is kept until the session is deleted.
func (s *session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	return nil
}

// Delete stops the session and releases it. It is safe to call twice.
func (s *session) Delete() {
	_ = s.Stop()
	s.wg.Wait()

	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return
	}
	s.deleted = true
	s.callback = nil
	s.devices = make(map[string]provider.RawDevice)
	s.addrs = make(map[string]net.IP)
	s.seen = make(map[string]time.Time)
	s.mu.Unlock()

	s.env.remove(s)
}

// Network returns the devices currently visible, sorted by name.
func (s *session) Network() []provider.RawDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.networkLocked()
}

func (s *session) networkLocked() []provider.RawDevice {
	devices := make([]provider.RawDevice, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// browse starts one round under parent. On error the services started so
// far keep running until the returned round ends.
func (s *session) browse(parent context.Context, ifaces []net.Interface) (*round, error) {
	ctx, cancel := context.WithTimeout(parent, s.env.BrowseRound)
	r := &round{start: time.Now(), ctx: ctx, cancel: cancel}

	for _, service := range s.services {
		res, err := s.env.newResolver(ifaces)
		if err != nil {
			return r, err
		}
		entries := make(chan *zeroconf.ServiceEntry)
		if err := res.Browse(ctx, service, Domain, entries); err != nil {
			return r, fmt.Errorf("browse %s: %w", service, err)
		}
		r.wg.Add(1)
		s.wg.Add(1)
		go s.consume(r, service, entries)
	}
	return r, nil
}

// run chains browse rounds until ctx ends, expiring devices between them.
func (s *session) run(ctx context.Context, ifaces []net.Interface, r *round) {
	defer s.wg.Done()
	for {
		<-r.ctx.Done()
		r.wg.Wait()
		r.cancel()
		if ctx.Err() != nil {
			return
		}

		s.expire(r.start)

		next, err := s.browse(ctx, ifaces)
		if err != nil {
			s.env.logger.Warn("Browse round failed", zap.Error(err))
		}
		r = next
	}
}

// consume applies browse entries for one service until the round ends.
func (s *session) consume(r *round, service string, entries <-chan *zeroconf.ServiceEntry) {
	defer s.wg.Done()
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			s.apply(service, entry)
		}
	}
}

// apply records one browse entry and marks the device as seen.
func (s *session) apply(service string, entry *zeroconf.ServiceEntry) {
	dev, ok := deviceFromEntry(entry)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return
	}

	current, known := s.devices[dev.Name]
	if !known && s.maxSockets > 0 && len(s.devices) >= s.maxSockets {
		s.env.logger.Debug("Device ignored, session at capacity",
			zap.String("device", dev.Name),
			zap.Int("max_sockets", s.maxSockets),
		)
		return
	}

	s.seen[dev.Name] = time.Now()
	merged := mergeDevice(current, dev)
	if !known || !sameDevice(current, merged) {
		s.devices[dev.Name] = merged
		s.dirty = true
	}
	if ip := firstIPv4(entry); ip != nil && !ip.Equal(s.addrs[dev.Name]) {
		s.addrs[dev.Name] = ip
		s.dirty = true
	}
	s.env.logger.Debug("Browse entry",
		zap.String("service", service),
		zap.String("device", dev.Name),
	)
}

// expire drops the devices not seen since the given round start.
func (s *session) expire(since time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, seen := range s.seen {
		if !seen.Before(since) {
			continue
		}
		delete(s.devices, name)
		delete(s.addrs, name)
		delete(s.seen, name)
		s.dirty = true
		s.env.logger.Debug("Device expired", zap.String("device", name))
	}
}

// flush delivers the device list to the callback when it changed since the
// last delivery. It reports whether a delivery happened.
func (s *session) flush() bool {
	s.mu.Lock()
	if !s.dirty || !s.started || s.callback == nil {
		s.mu.Unlock()
		return false
	}
	s.dirty = false
	devices := s.networkLocked()
	cb := s.callback
	s.mu.Unlock()

	cb(devices)
	return true
}

// address returns the cached address of a device seen in the current or
// last completed round, or nil.
func (s *session) address(name string) net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs[name]
}
