package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/dantescan/internal/provider"
	"github.com/muurk/dantescan/internal/provider/providertest"
)

func TestDriver_PumpInactiveIsNoop(t *testing.T) {
	e := newTestEngine(t)

	e.driver.PumpEvents(context.Background())

	if e.fake.ProcessCalls != 0 {
		t.Errorf("ProcessEvents calls = %d, want 0", e.fake.ProcessCalls)
	}
}

func TestDriver_PumpDeliversNetworkChanges(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	for _, d := range devices(3) {
		e.fake.SetResolution(d.Name, providertest.Resolution{Address: 1})
	}
	_ = e.scanner.Start(ctx)
	e.fake.SetNetwork(devices(3)...)

	e.driver.PumpEvents(ctx)

	if e.fake.ProcessCalls != DefaultPumpIterations {
		t.Errorf("ProcessEvents calls = %d, want %d", e.fake.ProcessCalls, DefaultPumpIterations)
	}
	if e.driver.Count() != 3 {
		t.Errorf("Count() = %d, want 3", e.driver.Count())
	}
}

func TestDriver_PumpIgnoresProviderErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_ = e.scanner.Start(ctx)
	e.fake.ProcessErr = provider.NewError("process", -3, nil)

	e.driver.PumpEvents(ctx)

	if e.fake.ProcessCalls != DefaultPumpIterations {
		t.Errorf("ProcessEvents calls = %d, want %d", e.fake.ProcessCalls, DefaultPumpIterations)
	}
}

func TestDriver_PumpIsBounded(t *testing.T) {
	e := newTestEngine(t)
	e.driver.Interval = 10 * time.Millisecond
	_ = e.scanner.Start(context.Background())

	start := time.Now()
	e.driver.PumpEvents(context.Background())
	elapsed := time.Since(start)

	want := time.Duration(e.driver.Iterations) * e.driver.Interval
	if elapsed < want || elapsed > 4*want {
		t.Errorf("PumpEvents took %v, want about %v", elapsed, want)
	}
}

func TestDriver_RecordBounds(t *testing.T) {
	for _, n := range []int{0, 2, 32, 40} {
		e := newTestEngine(t)
		ctx := context.Background()
		for _, d := range devices(n) {
			e.fake.SetResolution(d.Name, providertest.Resolution{Address: 1})
		}
		e.fake.SetNetwork(devices(n)...)
		_ = e.scanner.Start(ctx)
		_ = e.driver.Refresh(ctx)

		count := e.driver.Count()
		want := n
		if want > MaxDevices {
			want = MaxDevices
		}
		if count != want {
			t.Errorf("%d devices: Count() = %d, want %d", n, count, want)
		}
		for i := 0; i < count; i++ {
			if _, err := e.driver.Record(i); err != nil {
				t.Errorf("%d devices: Record(%d) error = %v", n, i, err)
			}
		}
		for _, i := range []int{-1, count, count + 1, MaxDevices + 1} {
			if _, err := e.driver.Record(i); !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("%d devices: Record(%d) error = %v, want ErrIndexOutOfRange", n, i, err)
			}
		}
	}
}

func TestDriver_RefreshInactiveIsNoop(t *testing.T) {
	e := newTestEngine(t)
	e.fake.SetNetwork(devices(2)...)

	if err := e.driver.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if e.driver.Count() != 0 {
		t.Errorf("Count() = %d, want 0", e.driver.Count())
	}
	if e.table.Load().Generation != 0 {
		t.Error("no snapshot should be published while inactive")
	}
}

func TestDriver_RefreshRebuildsEvenWithoutChange(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.fake.SetNetwork(devices(1)...)
	_ = e.scanner.Start(ctx)

	_ = e.driver.Refresh(ctx)
	_ = e.driver.Refresh(ctx)

	if e.table.Load().Generation != 2 {
		t.Errorf("Generation = %d, want 2", e.table.Load().Generation)
	}
}

func TestDriver_ReadersNeverSeePartialSnapshot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	for _, d := range devices(MaxDevices) {
		e.fake.SetResolution(d.Name, providertest.Resolution{ReadyAfter: 1, Address: 1})
	}
	_ = e.scanner.Start(ctx)

	var stop atomic.Bool
	var violations atomic.Int64
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				snap := e.driver.Snapshot()
				for i := 0; i < snap.Len(); i++ {
					if _, err := snap.At(i); err != nil {
						violations.Add(1)
					}
				}
			}
		}()
	}

	for _, n := range []int{5, 32, 0, 17, 3} {
		e.fake.SetNetwork(devices(n)...)
		_ = e.driver.Refresh(ctx)
	}
	stop.Store(true)
	wg.Wait()

	if violations.Load() != 0 {
		t.Errorf("readers saw %d invalid records below count", violations.Load())
	}
}

// Three devices: two resolve quickly, one never does. The refresh keeps all
// three and its latency is dominated by the unresolved one.
func TestDriver_RefreshScenario(t *testing.T) {
	fake := providertest.New()
	table := NewTable()
	resolver := NewResolver(fake, nil)
	resolver.Interval = 10 * time.Millisecond
	scanner := NewScanner(fake, NewBuilder(resolver, nil), table, nil)
	driver := NewDriver(scanner, fake.Runtime(), table, nil)
	ctx := context.Background()

	fake.SetResolution("a", providertest.Resolution{ReadyAfter: 2, Address: 0x0A000005})
	fake.SetResolution("b", providertest.Resolution{ReadyAfter: 5, Address: 0x0A000006})
	fake.SetResolution("c", providertest.Resolution{ReadyAfter: -1})
	fake.SetNetwork(
		provider.RawDevice{Name: "a"},
		provider.RawDevice{Name: "b"},
		provider.RawDevice{Name: "c"},
	)

	if err := scanner.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	start := time.Now()
	if err := driver.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	elapsed := time.Since(start)

	if driver.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", driver.Count())
	}
	want := []string{"10.0.0.5", "10.0.0.6", UnresolvedIP}
	for i, ip := range want {
		rec, err := driver.Record(i)
		if err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
		if rec.IPAddress != ip {
			t.Errorf("Record(%d).IPAddress = %v, want %v", i, rec.IPAddress, ip)
		}
	}

	budget := resolver.Budget()
	if elapsed < budget-resolver.Interval {
		t.Errorf("refresh took %v, want at least %v", elapsed, budget-resolver.Interval)
	}
	if elapsed > budget+20*resolver.Interval {
		t.Errorf("refresh took %v, want about %v", elapsed, budget)
	}
}
