package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/muurk/dantescan/internal/provider"
	"github.com/muurk/dantescan/internal/provider/providertest"
)

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name   string
		device provider.RawDevice
		want   string
	}{
		{
			name: "router info wins over everything",
			device: provider.RawDevice{
				RouterInfo:     "ULTIMOX4",
				ManufacturerID: "AABB",
				ModelID:        "CCDD",
				DefaultName:    "Foo",
			},
			want: "ULTIMOX4",
		},
		{
			name:   "manufacturer and model ids",
			device: provider.RawDevice{ManufacturerID: "AABB", ModelID: "CCDD", DefaultName: "Foo"},
			want:   "AABB-CCDD",
		},
		{
			name:   "manufacturer without model falls through",
			device: provider.RawDevice{ManufacturerID: "AABB", DefaultName: "Foo"},
			want:   "Foo",
		},
		{
			name:   "default name",
			device: provider.RawDevice{DefaultName: "Foo"},
			want:   "Foo",
		},
		{
			name:   "nothing known",
			device: provider.RawDevice{},
			want:   UnknownModel,
		},
		{
			name:   "blank router info is ignored",
			device: provider.RawDevice{RouterInfo: "  ", DefaultName: "Foo"},
			want:   "Foo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveModel(tt.device); got != tt.want {
				t.Errorf("ResolveModel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord(3, provider.RawDevice{
		Name:          "amp-rack",
		RouterInfo:    "ULTIMOX4",
		RouterVersion: &provider.Version{Major: 4, Minor: 2, Bugfix: 11},
	})

	if rec.ID != 3 {
		t.Errorf("ID = %d, want 3", rec.ID)
	}
	if rec.Name != "amp-rack" {
		t.Errorf("Name = %v, want amp-rack", rec.Name)
	}
	if rec.FirmwareVersion != "4.2.11" {
		t.Errorf("FirmwareVersion = %v, want 4.2.11", rec.FirmwareVersion)
	}
	if rec.ProductVersion != ProductVersionNA {
		t.Errorf("ProductVersion = %v, want %v", rec.ProductVersion, ProductVersionNA)
	}
	if rec.LinkSpeed != LinkSpeedUnknown {
		t.Errorf("LinkSpeed = %d, want %d", rec.LinkSpeed, LinkSpeedUnknown)
	}
	if rec.IPAddress != UnresolvedIP {
		t.Errorf("IPAddress = %v, want %v", rec.IPAddress, UnresolvedIP)
	}
	if !rec.Valid {
		t.Error("Valid = false, want true")
	}
}

func TestNewRecord_Fallbacks(t *testing.T) {
	rec := NewRecord(7, provider.RawDevice{})

	if rec.Name != "Unknown Device 7" {
		t.Errorf("Name = %v, want Unknown Device 7", rec.Name)
	}
	if rec.FirmwareVersion != UnknownVersion {
		t.Errorf("FirmwareVersion = %v, want %v", rec.FirmwareVersion, UnknownVersion)
	}
	if rec.Model != UnknownModel {
		t.Errorf("Model = %v, want %v", rec.Model, UnknownModel)
	}
}

func devices(n int) []provider.RawDevice {
	out := make([]provider.RawDevice, n)
	for i := range out {
		out[i] = provider.RawDevice{Name: fmt.Sprintf("dev-%02d", i)}
	}
	return out
}

func TestBuilder_Capacity(t *testing.T) {
	for _, n := range []int{0, 1, 31, 32, 33, 64} {
		t.Run(fmt.Sprintf("%d devices", n), func(t *testing.T) {
			fake := providertest.New()
			for _, d := range devices(n) {
				fake.SetResolution(d.Name, providertest.Resolution{Address: 1})
			}

			snap := NewBuilder(fastResolver(fake), nil).Build(context.Background(), devices(n))

			want := n
			if want > MaxDevices {
				want = MaxDevices
			}
			if snap.Len() != want {
				t.Errorf("Len() = %d, want %d", snap.Len(), want)
			}
			for i := 0; i < snap.Len(); i++ {
				rec, err := snap.At(i)
				if err != nil {
					t.Fatalf("At(%d) error = %v", i, err)
				}
				if rec.ID != i+1 {
					t.Errorf("record %d ID = %d, want %d", i, rec.ID, i+1)
				}
				if rec.Name != fmt.Sprintf("dev-%02d", i) {
					t.Errorf("record %d Name = %v, provider order not kept", i, rec.Name)
				}
			}
		})
	}
}

func TestBuilder_UnresolvedDeviceStaysInSnapshot(t *testing.T) {
	fake := providertest.New()
	fake.SetResolution("good", providertest.Resolution{ReadyAfter: 1, Address: 0x0A000005})
	fake.SetResolution("flaky", providertest.Resolution{OpenErr: provider.NewError("open", -1, nil)})
	fake.SetResolution("broken", providertest.Resolution{Final: provider.StateError})

	raw := []provider.RawDevice{{Name: "good"}, {Name: "flaky"}, {Name: "broken"}, {}}
	snap := NewBuilder(fastResolver(fake), nil).Build(context.Background(), raw)

	if snap.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", snap.Len())
	}
	wantIPs := []string{"10.0.0.5", UnresolvedIP, UnresolvedIP, UnresolvedIP}
	for i, want := range wantIPs {
		rec, _ := snap.At(i)
		if rec.IPAddress != want {
			t.Errorf("record %d IPAddress = %v, want %v", i, rec.IPAddress, want)
		}
		if !rec.Valid {
			t.Errorf("record %d should be valid", i)
		}
	}
	if fake.Opened[""] != 0 {
		t.Error("nameless device should not be opened with an empty name")
	}
	if fake.Opened["Unknown Device 4"] != 1 {
		t.Errorf("Opened[Unknown Device 4] = %d, want 1", fake.Opened["Unknown Device 4"])
	}
}

func TestBuilder_ConcurrentResolutionKeepsOrder(t *testing.T) {
	fake := providertest.New()
	raw := devices(6)
	for i, d := range raw {
		fake.SetResolution(d.Name, providertest.Resolution{ReadyAfter: 6 - i, Address: uint32(0x0A000000 + i)})
	}

	b := NewBuilder(fastResolver(fake), nil)
	b.Concurrency = 3
	snap := b.Build(context.Background(), raw)

	for i := range raw {
		rec, _ := snap.At(i)
		if want := FormatIPv4(uint32(0x0A000000 + i)); rec.IPAddress != want {
			t.Errorf("record %d IPAddress = %v, want %v", i, rec.IPAddress, want)
		}
	}
	if fake.OpenConnections() != 0 {
		t.Errorf("connections leaked: %d", fake.OpenConnections())
	}
}

func TestBuilder_ConcurrencyShortensWorstCase(t *testing.T) {
	fake := providertest.New()
	raw := devices(4)
	for _, d := range raw {
		fake.SetResolution(d.Name, providertest.Resolution{ReadyAfter: -1})
	}

	r := NewResolver(fake, nil)
	r.Interval = 5 * time.Millisecond
	b := NewBuilder(r, nil)
	b.Concurrency = 4

	start := time.Now()
	b.Build(context.Background(), raw)
	elapsed := time.Since(start)

	if elapsed > 3*r.Budget() {
		t.Errorf("concurrent build took %v, sequential worst case is %v", elapsed, 4*r.Budget())
	}
}
