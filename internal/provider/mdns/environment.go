package mdns

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/provider"
)

const (
	// ServiceARC is the routing control service, one instance per device
	ServiceARC = "_netaudio-arc._udp"

	// ServiceCMC is the control and monitoring service
	ServiceCMC = "_netaudio-cmc._udp"

	// ServiceChannel is the per-channel transmit service
	ServiceChannel = "_netaudio-chan._udp"

	// Domain is the mDNS domain
	Domain = "local."

	// DefaultLookupTimeout bounds a single instance lookup
	DefaultLookupTimeout = 5 * time.Second

	// DefaultChannelWait is how long channel announcements are collected
	// for the local device
	DefaultChannelWait = 2 * time.Second

	// DefaultBrowseRound is how long one browse round runs. A device that
	// does not answer during a round is dropped when the round ends.
	DefaultBrowseRound = 10 * time.Second
)

// browser is the subset of *zeroconf.Resolver used by this package.
type browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// newZeroconfResolver creates a resolver restricted to ifaces (all when empty).
// A zeroconf resolver shuts its sockets down once its query context ends,
// so one is created per query.
func newZeroconfResolver(ifaces []net.Interface) (browser, error) {
	opts := []zeroconf.ClientOption{zeroconf.SelectIPTraffic(zeroconf.IPv4)}
	if len(ifaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	r, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Environment is an mDNS backed provider.Environment.
type Environment struct {
	logger *zap.Logger

	// LookupTimeout bounds device and local-device lookups
	LookupTimeout time.Duration
	// ChannelWait is how long channel announcements are collected
	ChannelWait time.Duration
	// BrowseRound is the length of one browse round
	BrowseRound time.Duration

	newResolver      func(ifaces []net.Interface) (browser, error)
	interfaceByName  func(name string) (*net.Interface, error)
	interfaceByIndex func(index int) (*net.Interface, error)
	interfaceAddrs   func() ([]net.Addr, error)

	mu       sync.Mutex
	sessions []*session
	closed   bool
}

// New creates an environment using the host's multicast interfaces.
func New(logger *zap.Logger) *Environment {
	if logger == nil {
		logger = logging.Named("mdns")
	}
	return &Environment{
		logger:           logger,
		LookupTimeout:    DefaultLookupTimeout,
		ChannelWait:      DefaultChannelWait,
		BrowseRound:      DefaultBrowseRound,
		newResolver:      newZeroconfResolver,
		interfaceByName:  net.InterfaceByName,
		interfaceByIndex: net.InterfaceByIndex,
		interfaceAddrs:   net.InterfaceAddrs,
	}
}

// Open implements provider.Opener.
func Open(ctx context.Context) (provider.Environment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return New(nil), nil
}

// Runtime implements provider.Environment. The environment is its own runtime.
func (e *Environment) Runtime() provider.Runtime {
	return e
}

// ProcessEvents hands pending network changes to session callbacks. It
// returns a CodeDone error when no session had anything to report.
func (e *Environment) ProcessEvents() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return provider.NewError("process events", provider.CodeClosed, nil)
	}
	sessions := append([]*session(nil), e.sessions...)
	e.mu.Unlock()

	delivered := false
	for _, s := range sessions {
		if s.flush() {
			delivered = true
		}
	}
	if !delivered {
		return provider.NewError("process events", provider.CodeDone, nil)
	}
	return nil
}

// NewBrowse implements provider.Environment.
func (e *Environment) NewBrowse(categories provider.Category) (provider.BrowseSession, error) {
	services := servicesFor(categories)
	if len(services) == 0 {
		return nil, provider.NewError("new browse", provider.CodeUnsupported,
			fmt.Errorf("no service for categories %#x", uint32(categories)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, provider.NewError("new browse", provider.CodeClosed, nil)
	}
	s := newSession(e, services)
	e.sessions = append(e.sessions, s)
	return s, nil
}

// OpenDevice implements provider.Environment.
func (e *Environment) OpenDevice(name string) (provider.Connection, error) {
	if name == "" {
		return nil, provider.NewError("open device", provider.CodeNotFound, fmt.Errorf("empty device name"))
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, provider.NewError("open device", provider.CodeClosed, nil)
	}
	sessions := append([]*session(nil), e.sessions...)
	e.mu.Unlock()

	for _, s := range sessions {
		if ip := s.address(name); ip != nil {
			return resolvedConn(ip), nil
		}
	}

	r, err := e.newResolver(nil)
	if err != nil {
		return nil, provider.NewError("open device", provider.CodeFailed, err)
	}
	return lookupDevice(e, r, name), nil
}

// OpenLocal implements provider.Environment.
func (e *Environment) OpenLocal() (provider.LocalDevice, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, provider.NewError("open local", provider.CodeClosed, nil)
	}

	addrs, err := e.interfaceAddrs()
	if err != nil {
		return nil, provider.NewError("open local", provider.CodeFailed, err)
	}
	return lookupLocal(e, hostIPv4s(addrs)), nil
}

// InterfaceIndex implements provider.Environment.
func (e *Environment) InterfaceIndex(name string) (int, error) {
	iface, err := e.interfaceByName(name)
	if err != nil {
		return 0, provider.NewError("interface index", provider.CodeNotFound, err)
	}
	return iface.Index, nil
}

// Close stops every session. Later calls fail with CodeClosed.
func (e *Environment) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sessions := e.sessions
	e.sessions = nil
	e.mu.Unlock()

	for _, s := range sessions {
		s.Delete()
	}
	return nil
}

// remove forgets a deleted session.
func (e *Environment) remove(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cur := range e.sessions {
		if cur == s {
			e.sessions = append(e.sessions[:i], e.sessions[i+1:]...)
			return
		}
	}
}

// interfaces maps BrowseConfig indexes to interfaces.
func (e *Environment) interfaces(indexes []int) ([]net.Interface, error) {
	ifaces := make([]net.Interface, 0, len(indexes))
	for _, idx := range indexes {
		iface, err := e.interfaceByIndex(idx)
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", idx, err)
		}
		ifaces = append(ifaces, *iface)
	}
	return ifaces, nil
}

// servicesFor lists the DNS-SD services browsed for categories.
func servicesFor(categories provider.Category) []string {
	var services []string
	if categories&provider.CategoryMediaDevice != 0 {
		services = append(services, ServiceARC)
	}
	if categories&provider.CategoryConmonDevice != 0 {
		services = append(services, ServiceCMC)
	}
	return services
}

// hostIPv4s extracts the IPv4 addresses of this host.
func hostIPv4s(addrs []net.Addr) []net.IP {
	var ips []net.IP
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if v4 := ip.To4(); v4 != nil && !v4.IsLoopback() {
			ips = append(ips, v4)
		}
	}
	return ips
}
