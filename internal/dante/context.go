package dante

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dantescan/internal/discovery"
	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/provider"
)

const (
	// DefaultConnectTimeout bounds ConnectLocalDevice
	DefaultConnectTimeout = 5 * time.Second

	// DefaultConnectPollInterval is how often the local device state is checked
	DefaultConnectPollInterval = time.Second
)

// Context is an explicit scanner context: provider environment, local
// device and discovery engine. The zero value is not usable; call New.
type Context struct {
	opener provider.Opener
	logger *zap.Logger

	// ConnectTimeout and ConnectPollInterval bound ConnectLocalDevice
	ConnectTimeout      time.Duration
	ConnectPollInterval time.Duration

	// ResolveConcurrency is the number of devices resolved in parallel
	// during a rebuild. Values below 2 resolve sequentially.
	ResolveConcurrency int

	// PollInterval and PollAttempts override the resolver defaults when set
	PollInterval time.Duration
	PollAttempts int

	// Observer, when set before Init, receives resolution and publish events
	Observer discovery.Observer

	mu      sync.Mutex
	env     provider.Environment
	config  provider.BrowseConfig
	table   *discovery.Table
	scanner *discovery.Scanner
	driver  *discovery.Driver
	local   provider.LocalDevice

	errMu   sync.Mutex
	lastErr string
}

// New creates an uninitialised context that opens environments with opener.
func New(opener provider.Opener, logger *zap.Logger) *Context {
	if logger == nil {
		logger = logging.Named("dante")
	}
	return &Context{
		opener:              opener,
		logger:              logger,
		ConnectTimeout:      DefaultConnectTimeout,
		ConnectPollInterval: DefaultConnectPollInterval,
		ResolveConcurrency:  1,
	}
}

// Init opens the provider environment and prepares the scanner. When iface
// is not empty, browsing is restricted to that interface; an interface
// that cannot be resolved is logged and the provider defaults are used.
// Calling Init on an initialised context is a successful no-op.
func (c *Context) Init(ctx context.Context, iface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.env != nil {
		c.logger.Info("Already initialized")
		return nil
	}

	c.logger.Info("Initializing provider environment")
	env, err := c.opener(ctx)
	if err != nil {
		return c.fail(discovery.NewProviderError("failed to create provider environment", err))
	}

	var config provider.BrowseConfig
	if iface != "" {
		idx, err := env.InterfaceIndex(iface)
		if err != nil {
			c.logger.Warn("Failed to resolve interface, using default network settings",
				zap.String("interface", iface),
				zap.Error(err),
			)
		} else {
			config.InterfaceIndexes = []int{idx}
			c.logger.Info("Browsing restricted to interface",
				zap.String("interface", iface),
				zap.Int("index", idx),
			)
		}
	} else {
		c.logger.Info("Using default network interface")
	}

	resolver := discovery.NewResolver(env, nil)
	if c.PollInterval > 0 {
		resolver.Interval = c.PollInterval
	}
	if c.PollAttempts > 0 {
		resolver.Attempts = c.PollAttempts
	}
	resolver.Observer = c.Observer
	builder := discovery.NewBuilder(resolver, nil)
	builder.Concurrency = c.ResolveConcurrency

	c.env = env
	c.config = config
	c.table = discovery.NewTable()
	c.scanner = discovery.NewScanner(env, builder, c.table, nil)
	c.scanner.Config = config
	c.scanner.Observer = c.Observer
	c.driver = discovery.NewDriver(c.scanner, env.Runtime(), c.table, nil)

	c.logger.Info("Provider environment initialized")
	return nil
}

// Initialized reports whether Init succeeded and Cleanup has not run since.
func (c *Context) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.env != nil
}

// BrowseConfig returns the browse configuration chosen by Init.
func (c *Context) BrowseConfig() provider.BrowseConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Cleanup stops scanning, closes the local device and releases the
// environment. It is safe to call on an uninitialised context.
func (c *Context) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.env == nil {
		return
	}
	c.logger.Info("Cleaning up")

	if err := c.scanner.Stop(); err != nil {
		c.logger.Warn("Failed to stop scan during cleanup", zap.Error(err))
	}
	if c.local != nil {
		_ = c.local.Close()
		c.local = nil
	}
	if err := c.env.Close(); err != nil {
		c.logger.Warn("Failed to close provider environment", zap.Error(err))
	}

	c.env = nil
	c.config = provider.BrowseConfig{}
	c.table = nil
	c.scanner = nil
	c.driver = nil
	c.logger.Info("Cleanup completed")
}

// LastError returns the message of the most recent failure, or "".
func (c *Context) LastError() string {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// fail records err in the last-error slot and returns it.
func (c *Context) fail(err error) error {
	c.errMu.Lock()
	c.lastErr = err.Error()
	c.errMu.Unlock()
	c.logger.Debug("Call failed", zap.Error(err))
	return err
}

// ConnectLocalDevice opens the device running on this host and waits for it
// to become active, polling every ConnectPollInterval for at most
// ConnectTimeout.
func (c *Context) ConnectLocalDevice(ctx context.Context) error {
	c.mu.Lock()
	env := c.env
	if env == nil {
		c.mu.Unlock()
		return c.fail(discovery.NewNotInitializedError("not initialized"))
	}
	if c.connectedLocked() {
		c.mu.Unlock()
		return nil
	}
	if c.local != nil {
		_ = c.local.Close()
		c.local = nil
	}
	c.mu.Unlock()

	c.logger.Info("Connecting to local device")
	local, err := env.OpenLocal()
	if err != nil {
		return c.fail(discovery.NewProviderError("failed to connect to local device", err))
	}

	if err := c.awaitActive(ctx, local); err != nil {
		_ = local.Close()
		return c.fail(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.env != env {
		_ = local.Close()
		return c.fail(discovery.NewNotInitializedError("context cleaned up while connecting"))
	}
	c.local = local
	c.logger.Info("Local device connected", zap.String("device", local.Name()))
	return nil
}

// awaitActive polls local until it is active or ConnectTimeout expires.
func (c *Context) awaitActive(ctx context.Context, local provider.LocalDevice) error {
	deadline := time.Now().Add(c.ConnectTimeout)
	for {
		if local.State() == provider.StateActive {
			return nil
		}
		if !time.Now().Before(deadline) {
			return discovery.NewTimeoutError("device connection timeout")
		}
		if err := wait(ctx, c.ConnectPollInterval); err != nil {
			return &discovery.Error{
				Type:    discovery.ErrTypeTimeout,
				Message: "device connection cancelled",
				Err:     err,
			}
		}
	}
}

// IsDeviceConnected reports whether the local device is connected and active.
func (c *Context) IsDeviceConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *Context) connectedLocked() bool {
	return c.local != nil && c.local.State() == provider.StateActive
}

// DeviceName returns the local device name.
func (c *Context) DeviceName() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return "", c.fail(discovery.NewNotInitializedError("device not connected"))
	}
	name := c.local.Name()
	if name == "" {
		return "", c.fail(discovery.NewProviderError("failed to get device name",
			provider.NewError("device name", provider.CodeFailed, nil)))
	}
	return name, nil
}

// TxChannelCount returns the number of transmit channels of the local device.
func (c *Context) TxChannelCount() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return 0, c.fail(discovery.NewNotInitializedError("device not connected"))
	}
	return c.local.TxChannels(), nil
}

// RxChannelCount returns the number of receive channels of the local device.
func (c *Context) RxChannelCount() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return 0, c.fail(discovery.NewNotInitializedError("device not connected"))
	}
	return c.local.RxChannels(), nil
}

// TxChannelName returns the canonical name of transmit channel index.
func (c *Context) TxChannelName(index int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return "", c.fail(discovery.NewNotInitializedError("device not connected"))
	}
	if index < 0 || index >= c.local.TxChannels() {
		return "", c.fail(&discovery.Error{
			Type:    discovery.ErrTypeIndexOutOfRange,
			Message: fmt.Sprintf("invalid TX channel index: %d", index),
		})
	}
	name, err := c.local.TxChannelName(index)
	if err != nil {
		return "", c.fail(discovery.NewProviderError("failed to get TX channel name", err))
	}
	return name, nil
}

// engine returns the scanner and driver, or nil when uninitialised.
func (c *Context) engine() (*discovery.Scanner, *discovery.Driver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanner, c.driver
}

// StartScan starts background discovery. Starting an active scan succeeds
// without creating a second session.
func (c *Context) StartScan(ctx context.Context) error {
	scanner, _ := c.engine()
	if scanner == nil {
		return c.fail(discovery.NewNotInitializedError("not initialized"))
	}
	if err := scanner.Start(ctx); err != nil {
		return c.fail(err)
	}
	return nil
}

// StopScan stops background discovery and discards the device table.
// Stopping an inactive or uninitialised scan succeeds.
func (c *Context) StopScan() error {
	scanner, _ := c.engine()
	if scanner == nil {
		return nil
	}
	if err := scanner.Stop(); err != nil {
		return c.fail(err)
	}
	return nil
}

// ScanActive reports whether background discovery is running.
func (c *Context) ScanActive() bool {
	scanner, _ := c.engine()
	return scanner != nil && scanner.Active()
}

// PumpEvents gives the provider a bounded slice of time to process events
// and applies any device changes. It does nothing while no scan is active.
func (c *Context) PumpEvents(ctx context.Context) {
	if _, driver := c.engine(); driver != nil {
		driver.PumpEvents(ctx)
	}
}

// RefreshScan rebuilds the device table from the live session. It succeeds
// without doing anything when no scan is active.
func (c *Context) RefreshScan(ctx context.Context) error {
	_, driver := c.engine()
	if driver == nil {
		return c.fail(discovery.NewNotInitializedError("not initialized"))
	}
	if err := driver.Refresh(ctx); err != nil {
		return c.fail(err)
	}
	return nil
}

// DiscoveredCount returns the number of devices in the current table.
func (c *Context) DiscoveredCount() int {
	_, driver := c.engine()
	if driver == nil {
		return 0
	}
	return driver.Count()
}

// DeviceInfo returns a copy of the device record at index.
func (c *Context) DeviceInfo(index int) (discovery.Record, error) {
	_, driver := c.engine()
	if driver == nil {
		return discovery.Record{}, c.fail(discovery.NewNotInitializedError("not initialized"))
	}
	rec, err := driver.Record(index)
	if err != nil {
		return discovery.Record{}, c.fail(err)
	}
	return rec, nil
}

// Snapshot returns the current device table. It is empty, never nil, when
// the context is uninitialised.
func (c *Context) Snapshot() *discovery.Snapshot {
	_, driver := c.engine()
	if driver == nil {
		return discovery.NewTable().Load()
	}
	return driver.Snapshot()
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
