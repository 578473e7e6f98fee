package mdns

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"

	"github.com/muurk/dantescan/internal/provider"
)

func TestParseTXT(t *testing.T) {
	txt := parseTXT([]string{
		`router_info="Dante Via"`,
		"MF=Audinate",
		"model=DAI2",
		"flag",
		"=orphan",
		"router_vers= 4.2.1 ",
	})

	want := map[string]string{
		"router_info": "Dante Via",
		"mf":          "Audinate",
		"model":       "DAI2",
		"flag":        "",
		"router_vers": "4.2.1",
	}
	if len(txt) != len(want) {
		t.Errorf("parseTXT() returned %d keys, want %d: %v", len(txt), len(want), txt)
	}
	for k, v := range want {
		if txt[k] != v {
			t.Errorf("parseTXT()[%q] = %q, want %q", k, txt[k], v)
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want *provider.Version
	}{
		{"4.2.11", &provider.Version{Major: 4, Minor: 2, Bugfix: 11}},
		{"1.0.65535", &provider.Version{Major: 1, Minor: 0, Bugfix: 65535}},
		{"", nil},
		{"4.2", nil},
		{"4.2.1.0", nil},
		{"256.0.0", nil},
		{"a.b.c", nil},
	}

	for _, tt := range tests {
		got := parseVersion(tt.in)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("parseVersion(%q) = %v, want nil", tt.in, got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("parseVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDeviceFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("amp-rack", ServiceARC, Domain)
	entry.Text = []string{"router_info=ULTIMOX4", "mf=focusrite", "model=rednet", "router_vers=4.0.2"}

	dev, ok := deviceFromEntry(entry)
	if !ok {
		t.Fatal("deviceFromEntry() ok = false, want true")
	}
	if dev.Name != "amp-rack" {
		t.Errorf("Name = %v, want amp-rack", dev.Name)
	}
	if dev.RouterInfo != "ULTIMOX4" || dev.ManufacturerID != "focusrite" || dev.ModelID != "rednet" {
		t.Errorf("metadata = %+v", dev)
	}
	if dev.RouterVersion == nil || dev.RouterVersion.String() != "4.0.2" {
		t.Errorf("RouterVersion = %v, want 4.0.2", dev.RouterVersion)
	}

	if _, ok := deviceFromEntry(zeroconf.NewServiceEntry("", ServiceARC, Domain)); ok {
		t.Error("entry without instance should be rejected")
	}
	if _, ok := deviceFromEntry(nil); ok {
		t.Error("nil entry should be rejected")
	}
}

func TestMergeDevice(t *testing.T) {
	current := provider.RawDevice{Name: "amp", RouterInfo: "ULTIMOX4"}
	update := provider.RawDevice{Name: "amp", ManufacturerID: "aa", ModelID: "bb"}

	got := mergeDevice(current, update)

	if got.RouterInfo != "ULTIMOX4" || got.ManufacturerID != "aa" || got.ModelID != "bb" {
		t.Errorf("mergeDevice() = %+v", got)
	}
}

func TestIPToUint32(t *testing.T) {
	if got := ipToUint32(net.ParseIP("10.0.0.5")); got != 0x0A000005 {
		t.Errorf("ipToUint32(10.0.0.5) = %#x, want 0x0a000005", got)
	}
	if got := ipToUint32(net.ParseIP("::1")); got != 0 {
		t.Errorf("ipToUint32(::1) = %#x, want 0", got)
	}
}

func TestSplitChannelInstance(t *testing.T) {
	tests := []struct {
		in          string
		wantChannel string
		wantDevice  string
		wantOK      bool
	}{
		{"Left@studio", "Left", "studio", true},
		{"a@b@studio", "a@b", "studio", true},
		{"studio", "", "", false},
		{"@studio", "", "", false},
		{"Left@", "", "", false},
	}

	for _, tt := range tests {
		ch, dev, ok := splitChannelInstance(tt.in)
		if ch != tt.wantChannel || dev != tt.wantDevice || ok != tt.wantOK {
			t.Errorf("splitChannelInstance(%q) = %q, %q, %v, want %q, %q, %v",
				tt.in, ch, dev, ok, tt.wantChannel, tt.wantDevice, tt.wantOK)
		}
	}
}
