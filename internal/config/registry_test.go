package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}

	if !strings.Contains(configDir, "dantescan") {
		t.Errorf("GetConfigDir() = %v, should contain 'dantescan'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux and other Unix systems")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != filepath.Join("/tmp/xdg-test", "dantescan") {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg-test/dantescan", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}
	if reg.Preferences == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}
	if reg.Preferences.ScanWait != DefaultScanWait {
		t.Errorf("ScanWait = %v, want %v", reg.Preferences.ScanWait, DefaultScanWait)
	}
	if reg.Preferences.ResolveConcurrency != 1 {
		t.Errorf("ResolveConcurrency = %v, want 1", reg.Preferences.ResolveConcurrency)
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	device1 := reg.EnsureDevice("amp-rack")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}

	device2 := reg.EnsureDevice("amp-rack")
	if device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same name")
	}

	device3 := reg.EnsureDevice("desk")
	if device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different name")
	}
}

func TestRegistryRemember(t *testing.T) {
	tests := []struct {
		name      string
		previous  string
		ip        string
		wantIP    string
		wantMoved bool
	}{
		{name: "first sighting", previous: "", ip: "10.0.0.5", wantIP: "10.0.0.5", wantMoved: false},
		{name: "same address", previous: "10.0.0.5", ip: "10.0.0.5", wantIP: "10.0.0.5", wantMoved: false},
		{name: "address changed", previous: "10.0.0.5", ip: "10.0.0.9", wantIP: "10.0.0.9", wantMoved: true},
		{name: "unresolved keeps last address", previous: "10.0.0.5", ip: "0.0.0.0", wantIP: "10.0.0.5", wantMoved: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			if tt.previous != "" {
				reg.EnsureDevice("amp").LastIP = tt.previous
			}

			before := time.Now()
			moved := reg.Remember("amp", tt.ip, "ULTIMOX4", "4.2.1")

			if moved != tt.wantMoved {
				t.Errorf("Remember() moved = %v, want %v", moved, tt.wantMoved)
			}
			device := reg.GetDevice("amp")
			if device.LastIP != tt.wantIP {
				t.Errorf("LastIP = %v, want %v", device.LastIP, tt.wantIP)
			}
			if device.Model != "ULTIMOX4" || device.Firmware != "4.2.1" {
				t.Errorf("Model/Firmware = %v/%v", device.Model, device.Firmware)
			}
			if device.LastSeen.Before(before) {
				t.Errorf("LastSeen = %v, should be after %v", device.LastSeen, before)
			}
		})
	}
}

func TestRegistryNicknames(t *testing.T) {
	reg := NewRegistry()

	if reg.Nickname("amp") != "" {
		t.Error("Nickname() of unknown device should be empty")
	}
	reg.SetDeviceNickname("amp", "Stage left")
	if reg.Nickname("amp") != "Stage left" {
		t.Errorf("Nickname() = %v, want Stage left", reg.Nickname("amp"))
	}

	if !reg.Forget("amp") {
		t.Error("Forget() = false for a known device")
	}
	if reg.Forget("amp") {
		t.Error("Forget() = true for an unknown device")
	}
}

func TestRegistryStale(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	reg.EnsureDevice("old").LastSeen = now.Add(-48 * time.Hour)
	reg.EnsureDevice("fresh").LastSeen = now.Add(-time.Minute)
	reg.EnsureDevice("ancient").LastSeen = now.Add(-720 * time.Hour)

	stale := reg.Stale(24*time.Hour, now)

	if len(stale) != 2 || stale[0] != "ancient" || stale[1] != "old" {
		t.Errorf("Stale() = %v, want [ancient old]", stale)
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.Remember("amp", "10.0.0.5", "ULTIMOX4", "4.2.1")
	reg.SetDeviceNickname("amp", "Stage left")
	reg.Preferences.Interface = "eth1"
	reg.Preferences.ResolveConcurrency = 4

	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after save")
	}

	loaded, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}

	device := loaded.GetDevice("amp")
	if device == nil {
		t.Fatal("device should survive a save/load cycle")
	}
	if device.Nickname != "Stage left" || device.LastIP != "10.0.0.5" || device.Model != "ULTIMOX4" {
		t.Errorf("loaded device = %+v", device)
	}
	if loaded.Preferences.Interface != "eth1" || loaded.Preferences.ResolveConcurrency != 4 {
		t.Errorf("loaded preferences = %+v", loaded.Preferences)
	}
}

func TestLoadRegistryFrom(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
		check   func(t *testing.T, reg *Registry)
	}{
		{
			name:    "invalid yaml",
			content: "version: [",
			wantErr: "failed to parse config file",
		},
		{
			name:    "unsupported version",
			content: "version: 2\n",
			wantErr: "unsupported config version",
		},
		{
			name:    "missing preferences get defaults",
			content: "version: 1\ndevices:\n  amp:\n",
			check: func(t *testing.T, reg *Registry) {
				if reg.Preferences.ScanWait != DefaultScanWait {
					t.Errorf("ScanWait = %v, want %v", reg.Preferences.ScanWait, DefaultScanWait)
				}
				if reg.GetDevice("amp") == nil {
					t.Error("empty device entry should load as a device")
				}
			},
		},
		{
			name:    "out of range preferences are normalized",
			content: "version: 1\npreferences:\n  scan_wait: -4\n  resolve_concurrency: 0\n",
			check: func(t *testing.T, reg *Registry) {
				if reg.Preferences.ScanWait != DefaultScanWait {
					t.Errorf("ScanWait = %v, want %v", reg.Preferences.ScanWait, DefaultScanWait)
				}
				if reg.Preferences.ResolveConcurrency != DefaultResolveConcurrency {
					t.Errorf("ResolveConcurrency = %v, want %v", reg.Preferences.ResolveConcurrency, DefaultResolveConcurrency)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			reg, err := LoadRegistryFrom(path)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("LoadRegistryFrom() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadRegistryFrom() error = %v", err)
			}
			tt.check(t, reg)
		})
	}
}

func TestLoadRegistryFrom_Missing(t *testing.T) {
	reg, err := LoadRegistryFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if reg.Version != 1 || len(reg.Devices) != 0 {
		t.Errorf("missing file should yield a default registry, got %+v", reg)
	}
}

func BenchmarkRemember(b *testing.B) {
	reg := NewRegistry()
	for i := 0; i < b.N; i++ {
		reg.Remember("amp", "10.0.0.5", "ULTIMOX4", "4.2.1")
	}
}
