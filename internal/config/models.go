package config

import (
	"sort"
	"time"
)

// Registry represents the entire user configuration file.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by advertised device name
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents what is remembered about a single discovered device.
type Device struct {
	Nickname string    `yaml:"nickname,omitempty"`  // User-friendly name
	LastIP   string    `yaml:"last_ip,omitempty"`   // Last resolved IP address
	Model    string    `yaml:"model,omitempty"`     // Model as reported on the last scan
	Firmware string    `yaml:"firmware,omitempty"`  // Router firmware version
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last discovery time
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	Interface          string `yaml:"interface,omitempty"`   // Network interface to browse on
	ScanWait           int    `yaml:"scan_wait"`             // Seconds to pump events before a one-shot scan reads the table
	ResolveConcurrency int    `yaml:"resolve_concurrency"`   // Devices resolved in parallel per rebuild
	LogLevel           string `yaml:"log_level,omitempty"`   // debug, info, warn or error
	ListenAddr         string `yaml:"listen_addr,omitempty"` // Address for the serve command
}

// Preference defaults
const (
	DefaultScanWait           = 3
	DefaultResolveConcurrency = 1
	DefaultListenAddr         = "127.0.0.1:8390"
)

// NewPreferences returns preferences with default values.
func NewPreferences() *Preferences {
	return &Preferences{
		ScanWait:           DefaultScanWait,
		ResolveConcurrency: DefaultResolveConcurrency,
		ListenAddr:         DefaultListenAddr,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Devices:     make(map[string]*Device),
		Preferences: NewPreferences(),
	}
}

// GetDevice retrieves device metadata by name.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(name string) *Device {
	return r.Devices[name]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new empty entry.
func (r *Registry) EnsureDevice(name string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[name]; exists {
		return device
	}

	device := &Device{}
	r.Devices[name] = device
	return device
}

// Remember records a discovery of the named device. An unresolved address
// does not overwrite the last known one. It reports whether the device's
// address changed since it was last seen.
func (r *Registry) Remember(name, ip, model, firmware string) (moved bool) {
	device := r.EnsureDevice(name)
	device.LastSeen = time.Now()
	if model != "" {
		device.Model = model
	}
	if firmware != "" {
		device.Firmware = firmware
	}
	if ip == "" || ip == "0.0.0.0" {
		return false
	}
	moved = device.LastIP != "" && device.LastIP != ip
	device.LastIP = ip
	return moved
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(name, nickname string) {
	device := r.EnsureDevice(name)
	device.Nickname = nickname
}

// Nickname returns the nickname of a device, or "" when none is set.
func (r *Registry) Nickname(name string) string {
	if device := r.Devices[name]; device != nil {
		return device.Nickname
	}
	return ""
}

// Forget removes a device from the registry.
func (r *Registry) Forget(name string) bool {
	if _, ok := r.Devices[name]; !ok {
		return false
	}
	delete(r.Devices, name)
	return true
}

// DeviceNames returns the names of all remembered devices, sorted.
func (r *Registry) DeviceNames() []string {
	names := make([]string, 0, len(r.Devices))
	for name := range r.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stale returns the names of devices not seen within maxAge, sorted.
func (r *Registry) Stale(maxAge time.Duration, now time.Time) []string {
	var names []string
	for _, name := range r.DeviceNames() {
		if now.Sub(r.Devices[name].LastSeen) > maxAge {
			names = append(names, name)
		}
	}
	return names
}
