// Package providertest provides a scriptable in-memory provider for tests.
//
// A Fake behaves like a provider whose runtime is driven by ProcessEvents:
// network changes queued with SetNetwork are only delivered to the browse
// session's callback from inside ProcessEvents, mirroring how a cooperative
// provider dispatches its callbacks.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/muurk/dantescan/internal/provider"
)

// Resolution scripts how a device connection resolves.
type Resolution struct {
	// ReadyAfter is the number of State polls that report StateResolving
	// before Final is reported. A negative value never leaves StateResolving.
	ReadyAfter int
	// Final is the state reported once ReadyAfter polls have elapsed.
	// Zero value (StateResolving) is promoted to StateResolved.
	Final provider.ConnState
	// Address is the host-order IPv4 address returned once ready.
	Address uint32
	// AddressErr makes Address fail even when ready.
	AddressErr error
	// OpenErr makes OpenDevice fail for this device.
	OpenErr error
}

// Local scripts the local device.
type Local struct {
	Name       string
	TxChannels []string
	RxChannels int
	// ActiveAfter is the number of State polls before StateActive.
	// Negative never becomes active.
	ActiveAfter int
	OpenErr     error
}

// Fake is an in-memory provider.Environment.
type Fake struct {
	mu sync.Mutex

	network     []provider.RawDevice
	pending     bool
	resolutions map[string]Resolution
	interfaces  map[string]int
	local       *Local

	// Failure injection for session setup.
	OpenEnvErr       error
	NewBrowseErr     error
	SetMaxSocketsErr error
	StartErr         error
	ProcessErr       error

	session *Session

	// Counters inspected by tests.
	SessionsCreated int
	SessionsDeleted int
	ProcessCalls    int
	Opened          map[string]int
	Closed          map[string]int
	Polls           map[string]int
	closed          bool
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		resolutions: make(map[string]Resolution),
		interfaces:  make(map[string]int),
		Opened:      make(map[string]int),
		Closed:      make(map[string]int),
		Polls:       make(map[string]int),
	}
}

// Open implements provider.Opener.
func (f *Fake) Open(ctx context.Context) (provider.Environment, error) {
	if f.OpenEnvErr != nil {
		return nil, f.OpenEnvErr
	}
	f.mu.Lock()
	f.closed = false
	f.mu.Unlock()
	return f, nil
}

// SetNetwork replaces the visible device list and queues a network-changed
// notification for the next ProcessEvents call.
func (f *Fake) SetNetwork(devices ...provider.RawDevice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.network = append([]provider.RawDevice(nil), devices...)
	f.pending = true
}

// SetResolution scripts the resolution of the named device.
func (f *Fake) SetResolution(name string, r Resolution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions[name] = r
}

// SetInterface registers an interface name for InterfaceIndex.
func (f *Fake) SetInterface(name string, index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interfaces[name] = index
}

// SetLocal scripts the local device.
func (f *Fake) SetLocal(l Local) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = &l
}

// ActiveSessions returns the number of sessions created and not yet deleted.
func (f *Fake) ActiveSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SessionsCreated - f.SessionsDeleted
}

// Session returns the most recently created session, or nil.
func (f *Fake) Session() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// OpenConnections returns the number of device connections not yet closed.
func (f *Fake) OpenConnections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for name, opened := range f.Opened {
		n += opened - f.Closed[name]
	}
	return n
}

// IsClosed reports whether Close was called on the environment.
func (f *Fake) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Runtime implements provider.Environment.
func (f *Fake) Runtime() provider.Runtime {
	return fakeRuntime{f}
}

// NewBrowse implements provider.Environment.
func (f *Fake) NewBrowse(categories provider.Category) (provider.BrowseSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewBrowseErr != nil {
		return nil, f.NewBrowseErr
	}
	f.SessionsCreated++
	f.session = &Session{fake: f, Categories: categories}
	return f.session, nil
}

// OpenDevice implements provider.Environment.
func (f *Fake) OpenDevice(name string) (provider.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resolutions[name]
	if !ok {
		r = Resolution{ReadyAfter: -1}
	}
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	f.Opened[name]++
	return &conn{fake: f, name: name, res: r}, nil
}

// OpenLocal implements provider.Environment.
func (f *Fake) OpenLocal() (provider.LocalDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.local == nil {
		return nil, provider.NewError("open local", provider.CodeNotFound, nil)
	}
	if f.local.OpenErr != nil {
		return nil, f.local.OpenErr
	}
	return &localConn{fake: f, local: *f.local}, nil
}

// InterfaceIndex implements provider.Environment.
func (f *Fake) InterfaceIndex(name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.interfaces[name]
	if !ok {
		return 0, provider.NewError("interface index", provider.CodeNotFound, fmt.Errorf("no interface %q", name))
	}
	return idx, nil
}

// Close implements provider.Environment.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeRuntime struct {
	f *Fake
}

// ProcessEvents delivers a queued network change to a started session.
func (r fakeRuntime) ProcessEvents() error {
	f := r.f
	f.mu.Lock()
	f.ProcessCalls++
	if f.ProcessErr != nil {
		err := f.ProcessErr
		f.mu.Unlock()
		return err
	}
	s := f.session
	if !f.pending || s == nil || !s.started || s.callback == nil {
		f.mu.Unlock()
		return provider.NewError("process events", provider.CodeDone, nil)
	}
	f.pending = false
	devices := append([]provider.RawDevice(nil), f.network...)
	cb := s.callback
	f.mu.Unlock()

	cb(devices)
	return nil
}

// Session is the fake browse session.
type Session struct {
	fake       *Fake
	Categories provider.Category
	MaxSockets int
	Config     provider.BrowseConfig
	callback   provider.NetworkChangedFunc
	started    bool
	deleted    bool
}

// SetMaxSockets implements provider.BrowseSession.
func (s *Session) SetMaxSockets(n int) error {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	if s.fake.SetMaxSocketsErr != nil {
		return s.fake.SetMaxSocketsErr
	}
	s.MaxSockets = n
	return nil
}

// OnNetworkChanged implements provider.BrowseSession.
func (s *Session) OnNetworkChanged(fn provider.NetworkChangedFunc) {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	s.callback = fn
}

// Start implements provider.BrowseSession.
func (s *Session) Start(cfg provider.BrowseConfig) error {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	if s.fake.StartErr != nil {
		return s.fake.StartErr
	}
	s.Config = cfg
	s.started = true
	return nil
}

// Stop implements provider.BrowseSession.
func (s *Session) Stop() error {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	s.started = false
	return nil
}

// Delete implements provider.BrowseSession.
func (s *Session) Delete() {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	if s.deleted {
		return
	}
	s.deleted = true
	s.callback = nil
	s.fake.SessionsDeleted++
}

// Network implements provider.BrowseSession.
func (s *Session) Network() []provider.RawDevice {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	return append([]provider.RawDevice(nil), s.fake.network...)
}

// Started reports whether the session is browsing.
func (s *Session) Started() bool {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	return s.started
}

type conn struct {
	fake   *Fake
	name   string
	res    Resolution
	polls  int
	closed bool
}

func (c *conn) State() provider.ConnState {
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	c.fake.Polls[c.name]++
	c.polls++
	if c.res.ReadyAfter < 0 || c.polls <= c.res.ReadyAfter {
		return provider.StateResolving
	}
	if c.res.Final == provider.StateResolving {
		return provider.StateResolved
	}
	return c.res.Final
}

func (c *conn) Address() (uint32, error) {
	if c.res.AddressErr != nil {
		return 0, c.res.AddressErr
	}
	return c.res.Address, nil
}

func (c *conn) Close() error {
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.fake.Closed[c.name]++
	}
	return nil
}

type localConn struct {
	fake  *Fake
	local Local
	polls int
}

func (l *localConn) State() provider.ConnState {
	l.polls++
	if l.local.ActiveAfter < 0 || l.polls <= l.local.ActiveAfter {
		return provider.StateResolving
	}
	return provider.StateActive
}

func (l *localConn) Address() (uint32, error) {
	return 0x7F000001, nil
}

func (l *localConn) Close() error { return nil }

func (l *localConn) Name() string { return l.local.Name }

func (l *localConn) TxChannels() int { return len(l.local.TxChannels) }

func (l *localConn) RxChannels() int { return l.local.RxChannels }

func (l *localConn) TxChannelName(index int) (string, error) {
	if index < 0 || index >= len(l.local.TxChannels) {
		return "", provider.NewError("tx channel name", provider.CodeRange, fmt.Errorf("index %d", index))
	}
	return l.local.TxChannels[index], nil
}
