package dante

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/muurk/dantescan/internal/discovery"
	"github.com/muurk/dantescan/internal/provider"
	"github.com/muurk/dantescan/internal/provider/providertest"
)

func newTestContext(t *testing.T) (*Context, *providertest.Fake) {
	t.Helper()
	fake := providertest.New()
	c := New(fake.Open, nil)
	c.ConnectTimeout = 50 * time.Millisecond
	c.ConnectPollInterval = time.Millisecond
	c.PollInterval = time.Millisecond
	return c, fake
}

func initContext(t *testing.T) (*Context, *providertest.Fake) {
	t.Helper()
	c, fake := newTestContext(t)
	if err := c.Init(context.Background(), ""); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(c.Cleanup)
	return c, fake
}

func TestContext_CallsBeforeInit(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()

	if err := c.StartScan(ctx); !errors.Is(err, discovery.ErrNotInitialized) {
		t.Errorf("StartScan() error = %v, want ErrNotInitialized", err)
	}
	if err := c.RefreshScan(ctx); !errors.Is(err, discovery.ErrNotInitialized) {
		t.Errorf("RefreshScan() error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.DeviceInfo(0); !errors.Is(err, discovery.ErrNotInitialized) {
		t.Errorf("DeviceInfo() error = %v, want ErrNotInitialized", err)
	}
	if err := c.ConnectLocalDevice(ctx); !errors.Is(err, discovery.ErrNotInitialized) {
		t.Errorf("ConnectLocalDevice() error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.DeviceName(); !errors.Is(err, discovery.ErrNotInitialized) {
		t.Errorf("DeviceName() error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.TxChannelCount(); !errors.Is(err, discovery.ErrNotInitialized) {
		t.Errorf("TxChannelCount() error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.RxChannelCount(); !errors.Is(err, discovery.ErrNotInitialized) {
		t.Errorf("RxChannelCount() error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.TxChannelName(0); !errors.Is(err, discovery.ErrNotInitialized) {
		t.Errorf("TxChannelName() error = %v, want ErrNotInitialized", err)
	}

	if err := c.StopScan(); err != nil {
		t.Errorf("StopScan() error = %v, want nil", err)
	}
	c.PumpEvents(ctx)
	if c.DiscoveredCount() != 0 {
		t.Errorf("DiscoveredCount() = %d, want 0", c.DiscoveredCount())
	}
	if c.Snapshot().Len() != 0 {
		t.Errorf("Snapshot().Len() = %d, want 0", c.Snapshot().Len())
	}
	if c.IsDeviceConnected() {
		t.Error("IsDeviceConnected() = true, want false")
	}
	c.Cleanup()
}

func TestContext_InitFailure(t *testing.T) {
	c, fake := newTestContext(t)
	fake.OpenEnvErr = provider.NewError("open", -11, nil)

	err := c.Init(context.Background(), "")

	if !errors.Is(err, discovery.ErrProvider) {
		t.Fatalf("Init() error = %v, want ErrProvider", err)
	}
	if c.Initialized() {
		t.Error("Initialized() = true after failed Init")
	}
	if !strings.Contains(c.LastError(), "code -11") {
		t.Errorf("LastError() = %q, should carry the provider code", c.LastError())
	}
}

func TestContext_InitInterface(t *testing.T) {
	tests := []struct {
		name  string
		iface string
		want  []int
	}{
		{name: "default interfaces", iface: "", want: nil},
		{name: "known interface", iface: "eth1", want: []int{3}},
		{name: "unknown interface falls back", iface: "wlan7", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestContext(t)
			fake.SetInterface("eth1", 3)

			if err := c.Init(context.Background(), tt.iface); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			defer c.Cleanup()

			got := c.BrowseConfig().InterfaceIndexes
			if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
				t.Errorf("InterfaceIndexes = %v, want %v", got, tt.want)
			}

			if err := c.StartScan(context.Background()); err != nil {
				t.Fatalf("StartScan() error = %v", err)
			}
			if s := fake.Session(); len(s.Config.InterfaceIndexes) != len(tt.want) {
				t.Errorf("session interfaces = %v, want %v", s.Config.InterfaceIndexes, tt.want)
			}
		})
	}
}

func TestContext_InitTwiceIsNoop(t *testing.T) {
	c, fake := initContext(t)

	if err := c.Init(context.Background(), ""); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if fake.IsClosed() {
		t.Error("second Init should not replace the environment")
	}
}

func TestContext_Cleanup(t *testing.T) {
	c, fake := newTestContext(t)
	ctx := context.Background()
	fake.SetLocal(providertest.Local{Name: "studio"})
	fake.SetNetwork(provider.RawDevice{Name: "amp"})
	_ = c.Init(ctx, "")
	_ = c.ConnectLocalDevice(ctx)
	_ = c.StartScan(ctx)
	_ = c.RefreshScan(ctx)

	c.Cleanup()

	if c.Initialized() {
		t.Error("Initialized() = true after Cleanup")
	}
	if !fake.IsClosed() {
		t.Error("environment was not closed")
	}
	if fake.ActiveSessions() != 0 {
		t.Errorf("active sessions = %d, want 0", fake.ActiveSessions())
	}
	if c.IsDeviceConnected() {
		t.Error("IsDeviceConnected() = true after Cleanup")
	}
	if c.DiscoveredCount() != 0 {
		t.Errorf("DiscoveredCount() = %d, want 0", c.DiscoveredCount())
	}

	c.Cleanup()

	if err := c.Init(ctx, ""); err != nil {
		t.Fatalf("Init() after Cleanup error = %v", err)
	}
	c.Cleanup()
}

func TestContext_ConnectLocalDevice(t *testing.T) {
	c, fake := initContext(t)
	fake.SetLocal(providertest.Local{
		Name:        "studio",
		TxChannels:  []string{"Left", "Right"},
		RxChannels:  8,
		ActiveAfter: 3,
	})

	if err := c.ConnectLocalDevice(context.Background()); err != nil {
		t.Fatalf("ConnectLocalDevice() error = %v", err)
	}
	if !c.IsDeviceConnected() {
		t.Fatal("IsDeviceConnected() = false, want true")
	}

	if name, err := c.DeviceName(); err != nil || name != "studio" {
		t.Errorf("DeviceName() = %q, %v, want studio", name, err)
	}
	if n, err := c.TxChannelCount(); err != nil || n != 2 {
		t.Errorf("TxChannelCount() = %d, %v, want 2", n, err)
	}
	if n, err := c.RxChannelCount(); err != nil || n != 8 {
		t.Errorf("RxChannelCount() = %d, %v, want 8", n, err)
	}
	for i, want := range []string{"Left", "Right"} {
		if got, err := c.TxChannelName(i); err != nil || got != want {
			t.Errorf("TxChannelName(%d) = %q, %v, want %q", i, got, err, want)
		}
	}
	for _, i := range []int{-1, 2} {
		if _, err := c.TxChannelName(i); !errors.Is(err, discovery.ErrIndexOutOfRange) {
			t.Errorf("TxChannelName(%d) error = %v, want ErrIndexOutOfRange", i, err)
		}
	}
	if !strings.Contains(c.LastError(), "invalid TX channel index: 2") {
		t.Errorf("LastError() = %q", c.LastError())
	}

	if err := c.ConnectLocalDevice(context.Background()); err != nil {
		t.Errorf("second ConnectLocalDevice() error = %v", err)
	}
}

func TestContext_ConnectLocalDeviceFailures(t *testing.T) {
	tests := []struct {
		name    string
		local   *providertest.Local
		wantErr error
		wantMsg string
	}{
		{
			name:    "no local device",
			wantErr: discovery.ErrProvider,
			wantMsg: "failed to connect to local device",
		},
		{
			name:    "never becomes active",
			local:   &providertest.Local{Name: "studio", ActiveAfter: -1},
			wantErr: discovery.ErrTimeout,
			wantMsg: "device connection timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := initContext(t)
			if tt.local != nil {
				fake.SetLocal(*tt.local)
			}

			start := time.Now()
			err := c.ConnectLocalDevice(context.Background())

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ConnectLocalDevice() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(c.LastError(), tt.wantMsg) {
				t.Errorf("LastError() = %q, want it to contain %q", c.LastError(), tt.wantMsg)
			}
			if c.IsDeviceConnected() {
				t.Error("IsDeviceConnected() = true after failure")
			}
			if elapsed := time.Since(start); elapsed > 20*c.ConnectTimeout {
				t.Errorf("ConnectLocalDevice() took %v", elapsed)
			}
		})
	}
}

func TestContext_ConnectLocalDeviceCancelled(t *testing.T) {
	c, fake := initContext(t)
	c.ConnectTimeout = time.Minute
	c.ConnectPollInterval = 10 * time.Millisecond
	fake.SetLocal(providertest.Local{Name: "studio", ActiveAfter: -1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.ConnectLocalDevice(ctx)

	if !errors.Is(err, discovery.ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ConnectLocalDevice() error = %v, want timeout wrapping deadline", err)
	}
}

func TestContext_ScanLifecycle(t *testing.T) {
	c, fake := initContext(t)
	ctx := context.Background()
	fake.SetResolution("amp", providertest.Resolution{ReadyAfter: 1, Address: 0x0A000005})
	fake.SetResolution("desk", providertest.Resolution{Address: 0x0A000006})

	if err := c.StartScan(ctx); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	if err := c.StartScan(ctx); err != nil {
		t.Fatalf("second StartScan() error = %v", err)
	}
	if fake.ActiveSessions() != 1 {
		t.Errorf("active sessions = %d, want 1", fake.ActiveSessions())
	}
	if !c.ScanActive() {
		t.Error("ScanActive() = false, want true")
	}

	fake.SetNetwork(
		provider.RawDevice{Name: "amp", RouterInfo: "ULTIMOX4"},
		provider.RawDevice{Name: "desk"},
	)
	c.PumpEvents(ctx)

	if c.DiscoveredCount() != 2 {
		t.Fatalf("DiscoveredCount() = %d, want 2", c.DiscoveredCount())
	}
	rec, err := c.DeviceInfo(0)
	if err != nil {
		t.Fatalf("DeviceInfo(0) error = %v", err)
	}
	if rec.Name != "amp" || rec.Model != "ULTIMOX4" || rec.IPAddress != "10.0.0.5" {
		t.Errorf("DeviceInfo(0) = %+v", rec)
	}
	if _, err := c.DeviceInfo(2); !errors.Is(err, discovery.ErrIndexOutOfRange) {
		t.Errorf("DeviceInfo(2) error = %v, want ErrIndexOutOfRange", err)
	}
	if !strings.Contains(c.LastError(), "invalid device index: 2") {
		t.Errorf("LastError() = %q", c.LastError())
	}

	if err := c.StopScan(); err != nil {
		t.Fatalf("StopScan() error = %v", err)
	}
	if err := c.StopScan(); err != nil {
		t.Fatalf("second StopScan() error = %v", err)
	}
	if c.DiscoveredCount() != 0 {
		t.Errorf("DiscoveredCount() after stop = %d, want 0", c.DiscoveredCount())
	}
	if err := c.RefreshScan(ctx); err != nil {
		t.Errorf("RefreshScan() while stopped error = %v", err)
	}
}

func TestContext_StartScanFailure(t *testing.T) {
	c, fake := initContext(t)
	fake.StartErr = provider.NewError("start", -8, nil)

	err := c.StartScan(context.Background())

	if !errors.Is(err, discovery.ErrProvider) {
		t.Fatalf("StartScan() error = %v, want ErrProvider", err)
	}
	if fake.ActiveSessions() != 0 {
		t.Errorf("orphaned sessions = %d", fake.ActiveSessions())
	}
	if !strings.Contains(c.LastError(), "failed to start browse") {
		t.Errorf("LastError() = %q", c.LastError())
	}
}

func TestContext_LastErrorIsOverwritten(t *testing.T) {
	c, _ := initContext(t)

	if c.LastError() != "" {
		t.Errorf("LastError() = %q, want empty", c.LastError())
	}
	_, _ = c.DeviceInfo(5)
	first := c.LastError()
	_, _ = c.DeviceName()
	second := c.LastError()

	if first == "" || second == "" || first == second {
		t.Errorf("LastError() did not track the latest failure: %q then %q", first, second)
	}
	if !strings.Contains(second, "device not connected") {
		t.Errorf("LastError() = %q, want device not connected", second)
	}
}

// Three devices: two resolve quickly, one never does.
func TestContext_RefreshScenario(t *testing.T) {
	c, fake := newTestContext(t)
	c.PollInterval = 5 * time.Millisecond
	ctx := context.Background()
	if err := c.Init(ctx, ""); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer c.Cleanup()

	fake.SetResolution("a", providertest.Resolution{ReadyAfter: 2, Address: 0x0A000005})
	fake.SetResolution("b", providertest.Resolution{ReadyAfter: 4, Address: 0x0A000006})
	fake.SetResolution("c", providertest.Resolution{ReadyAfter: -1})
	fake.SetNetwork(provider.RawDevice{Name: "a"}, provider.RawDevice{Name: "b"}, provider.RawDevice{Name: "c"})
	_ = c.StartScan(ctx)

	if err := c.RefreshScan(ctx); err != nil {
		t.Fatalf("RefreshScan() error = %v", err)
	}

	if c.DiscoveredCount() != 3 {
		t.Fatalf("DiscoveredCount() = %d, want 3", c.DiscoveredCount())
	}
	for i, want := range []string{"10.0.0.5", "10.0.0.6", discovery.UnresolvedIP} {
		rec, _ := c.DeviceInfo(i)
		if rec.IPAddress != want {
			t.Errorf("DeviceInfo(%d).IPAddress = %v, want %v", i, rec.IPAddress, want)
		}
	}
}
