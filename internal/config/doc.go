// Package config provides user configuration management for dantescan.
//
// This package manages a YAML-based configuration file holding scan
// preferences and a registry of devices seen on previous scans, so that
// operators can attach nicknames to devices and notice when a device's
// address changes. The configuration follows OS-specific conventions for
// storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/dantescan/config.yaml or $HOME/.config/dantescan/config.yaml
//   - macOS: $HOME/.config/dantescan/config.yaml
//   - Windows: %LOCALAPPDATA%\dantescan\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Remember every device of a snapshot
//	for _, rec := range snapshot.Records() {
//	    registry.Remember(rec.Name, rec.IPAddress, rec.Model, rec.FirmwareVersion)
//	}
//	registry.SetDeviceNickname("amp-rack-1", "Stage left amps")
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
