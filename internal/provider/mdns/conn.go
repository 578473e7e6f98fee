package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dantescan/internal/provider"
)

// deviceConn is a connection whose address is resolved in the background.
type deviceConn struct {
	state  atomic.Int32
	addr   atomic.Uint32
	cancel context.CancelFunc
	done   chan struct{}
}

// resolvedConn returns a connection that is ready immediately.
func resolvedConn(ip net.IP) *deviceConn {
	c := &deviceConn{cancel: func() {}, done: make(chan struct{})}
	c.addr.Store(ipToUint32(ip))
	c.state.Store(int32(provider.StateResolved))
	close(c.done)
	return c
}

// lookupDevice starts a one-shot lookup of the device instance.
func lookupDevice(e *Environment, r browser, name string) *deviceConn {
	ctx, cancel := context.WithTimeout(context.Background(), e.LookupTimeout)
	c := &deviceConn{cancel: cancel, done: make(chan struct{})}
	c.state.Store(int32(provider.StateResolving))

	go func() {
		defer close(c.done)
		defer cancel()

		entries := make(chan *zeroconf.ServiceEntry)
		if err := r.Lookup(ctx, name, ServiceARC, Domain, entries); err != nil {
			e.logger.Debug("Device lookup failed", zap.String("device", name), zap.Error(err))
			c.state.Store(int32(provider.StateError))
			return
		}
		for {
			select {
			case <-ctx.Done():
				c.state.CompareAndSwap(int32(provider.StateResolving), int32(provider.StateError))
				return
			case entry, ok := <-entries:
				if !ok {
					c.state.CompareAndSwap(int32(provider.StateResolving), int32(provider.StateError))
					return
				}
				if ip := firstIPv4(entry); ip != nil {
					c.addr.Store(ipToUint32(ip))
					c.state.Store(int32(provider.StateResolved))
					return
				}
			}
		}
	}()
	return c
}

// State implements provider.Connection.
func (c *deviceConn) State() provider.ConnState {
	return provider.ConnState(c.state.Load())
}

// Address implements provider.Connection.
func (c *deviceConn) Address() (uint32, error) {
	if !c.State().Ready() {
		return 0, provider.NewError("address", provider.CodeNotReady, nil)
	}
	return c.addr.Load(), nil
}

// Close cancels any lookup still running and waits for it.
func (c *deviceConn) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// channel is one advertised transmit channel.
type channel struct {
	id   int
	name string
}

// localConn finds the device running on this host and its transmit
// channels.
type localConn struct {
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	name     string
	addr     uint32
	channels []channel
}

// lookupLocal browses for a device announcing one of hostIPs, then collects
// that device's channel announcements.
func lookupLocal(e *Environment, hostIPs []net.IP) *localConn {
	ctx, cancel := context.WithCancel(context.Background())
	l := &localConn{cancel: cancel, done: make(chan struct{})}
	l.state.Store(int32(provider.StateResolving))

	go func() {
		defer close(l.done)
		defer cancel()

		if err := l.findDevice(ctx, e, hostIPs); err != nil {
			e.logger.Debug("Local device not found", zap.Error(err))
			l.state.Store(int32(provider.StateError))
			return
		}
		if err := l.collectChannels(ctx, e); err != nil {
			e.logger.Debug("Channel browse failed", zap.Error(err))
		}
		if ctx.Err() == nil {
			l.state.Store(int32(provider.StateActive))
		}
	}()
	return l
}

func (l *localConn) findDevice(ctx context.Context, e *Environment, hostIPs []net.IP) error {
	if len(hostIPs) == 0 {
		return fmt.Errorf("no IPv4 address on this host")
	}
	ctx, cancel := context.WithTimeout(ctx, e.LookupTimeout)
	defer cancel()

	r, err := e.newResolver(nil)
	if err != nil {
		return err
	}
	entries := make(chan *zeroconf.ServiceEntry)
	if err := r.Browse(ctx, ServiceARC, Domain, entries); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no device announced for this host: %w", ctx.Err())
		case entry, ok := <-entries:
			if !ok {
				return fmt.Errorf("browse ended before a local device was announced")
			}
			ip := firstIPv4(entry)
			if ip == nil || entry.Instance == "" || !containsIP(hostIPs, ip) {
				continue
			}
			l.mu.Lock()
			l.name = entry.Instance
			l.addr = ipToUint32(ip)
			l.mu.Unlock()
			return nil
		}
	}
}

func (l *localConn) collectChannels(ctx context.Context, e *Environment) error {
	ctx, cancel := context.WithTimeout(ctx, e.ChannelWait)
	defer cancel()

	r, err := e.newResolver(nil)
	if err != nil {
		return err
	}
	entries := make(chan *zeroconf.ServiceEntry)
	if err := r.Browse(ctx, ServiceChannel, Domain, entries); err != nil {
		return err
	}

	l.mu.Lock()
	device := l.name
	l.mu.Unlock()

	seen := make(map[string]channel)
	for {
		select {
		case <-ctx.Done():
			l.setChannels(seen)
			return nil
		case entry, ok := <-entries:
			if !ok {
				l.setChannels(seen)
				return nil
			}
			name, owner, ok := splitChannelInstance(entry.Instance)
			if !ok || owner != device {
				continue
			}
			id, err := strconv.Atoi(parseTXT(entry.Text)[keyChannelID])
			if err != nil {
				id = 0
			}
			seen[name] = channel{id: id, name: name}
		}
	}
}

// setChannels stores channels ordered by id, then name.
func (l *localConn) setChannels(seen map[string]channel) {
	channels := make([]channel, 0, len(seen))
	for _, ch := range seen {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		if channels[i].id != channels[j].id {
			return channels[i].id < channels[j].id
		}
		return channels[i].name < channels[j].name
	})
	l.mu.Lock()
	l.channels = channels
	l.mu.Unlock()
}

// State implements provider.Connection.
func (l *localConn) State() provider.ConnState {
	return provider.ConnState(l.state.Load())
}

// Address implements provider.Connection.
func (l *localConn) Address() (uint32, error) {
	if !l.State().Ready() {
		return 0, provider.NewError("address", provider.CodeNotReady, nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr, nil
}

// Close implements provider.Connection.
func (l *localConn) Close() error {
	l.cancel()
	<-l.done
	return nil
}

// Name implements provider.LocalDevice.
func (l *localConn) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// TxChannels implements provider.LocalDevice.
func (l *localConn) TxChannels() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.channels)
}

// RxChannels always reports zero: receive channels are not announced over
// mDNS.
func (l *localConn) RxChannels() int {
	return 0
}

// TxChannelName implements provider.LocalDevice.
func (l *localConn) TxChannelName(index int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.channels) {
		return "", provider.NewError("tx channel name", provider.CodeRange,
			fmt.Errorf("index %d (available: %d)", index, len(l.channels)))
	}
	return l.channels[index].name, nil
}

func containsIP(ips []net.IP, ip net.IP) bool {
	for _, candidate := range ips {
		if candidate.Equal(ip) {
			return true
		}
	}
	return false
}
