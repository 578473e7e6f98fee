package provider

import (
	"context"
	"errors"
	"fmt"
)

// Category selects the kinds of devices a browse session reports.
type Category uint32

const (
	// CategoryMediaDevice matches devices that source or sink audio
	CategoryMediaDevice Category = 1 << iota
	// CategoryConmonDevice matches devices reachable over the control and monitoring channel
	CategoryConmonDevice
)

// ConnState is the resolution state of a device connection.
type ConnState int

const (
	StateResolving ConnState = iota
	StateResolved
	StateActive
	StateError
)

// String returns a human-readable name for the state
func (s ConnState) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Ready reports whether the connection has an address that can be read.
func (s ConnState) Ready() bool {
	return s == StateResolved || s == StateActive
}

// Version is a router firmware version triple.
type Version struct {
	Major  uint8
	Minor  uint8
	Bugfix uint16
}

// String formats the version as major.minor.bugfix
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Bugfix)
}

// RawDevice is one device as reported by a browse session. Empty strings and
// a nil RouterVersion mean the provider did not supply the field.
type RawDevice struct {
	Name           string
	RouterInfo     string
	ManufacturerID string
	ModelID        string
	DefaultName    string
	RouterVersion  *Version
}

// BrowseConfig configures a browse session when it is started.
type BrowseConfig struct {
	// InterfaceIndexes restricts browsing to the given interfaces.
	// Empty means the provider picks its defaults.
	InterfaceIndexes []int
}

// NetworkChangedFunc is invoked by a browse session whenever the set of
// visible devices changes. It receives the full current device list.
type NetworkChangedFunc func(devices []RawDevice)

// Runtime is the provider's event processing primitive.
type Runtime interface {
	// ProcessEvents handles whatever events are pending and returns.
	// It may return an *Error with CodeDone when there was nothing to do.
	ProcessEvents() error
}

// BrowseSession is a provider-managed subscription to device presence.
type BrowseSession interface {
	SetMaxSockets(n int) error
	OnNetworkChanged(fn NetworkChangedFunc)
	Start(cfg BrowseConfig) error
	Stop() error
	Delete()
	// Network returns the devices currently visible to the session.
	Network() []RawDevice
}

// Connection is a transient control connection to a remote device.
type Connection interface {
	State() ConnState
	// Address returns the device IPv4 address as a host-order uint32.
	Address() (uint32, error)
	Close() error
}

// LocalDevice is a connection to the device running on this host.
type LocalDevice interface {
	Connection
	Name() string
	TxChannels() int
	RxChannels() int
	TxChannelName(index int) (string, error)
}

// Environment is an initialised provider instance.
type Environment interface {
	Runtime() Runtime
	NewBrowse(categories Category) (BrowseSession, error)
	OpenDevice(name string) (Connection, error)
	OpenLocal() (LocalDevice, error)
	// InterfaceIndex maps an interface name to the index used in BrowseConfig.
	InterfaceIndex(name string) (int, error)
	Close() error
}

// Opener creates a new Environment.
type Opener func(ctx context.Context) (Environment, error)

// Error codes reported by providers.
const (
	CodeDone        = 1
	CodeFailed      = -1
	CodeNotFound    = -2
	CodeUnsupported = -3
	CodeClosed      = -4
	CodeRange       = -5
	CodeNotReady    = -6
)

// Error is a failure reported by a provider.
type Error struct {
	Op   string
	Code int
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: provider code %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: provider code %d", e.Op, e.Code)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a provider error for op.
func NewError(op string, code int, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

// Code extracts the provider code from err. ok is false when err does not
// carry a provider error.
func Code(err error) (code int, ok bool) {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Code, true
	}
	return 0, false
}

// IsDone reports whether err is the "operation complete" sentinel.
func IsDone(err error) bool {
	code, ok := Code(err)
	return ok && code == CodeDone
}
