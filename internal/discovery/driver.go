package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/provider"
)

const (
	// DefaultPumpIterations is the number of event-processing passes per pump
	DefaultPumpIterations = 5

	// DefaultPumpInterval is the pause after each pass (about 500ms per pump)
	DefaultPumpInterval = 100 * time.Millisecond
)

// Driver is the cooperative facade a host application calls from its own
// loop. It decides when the provider processes events and when pending
// rebuilds run, and serves cheap reads of the current snapshot.
type Driver struct {
	scanner *Scanner
	runtime provider.Runtime
	table   *Table
	logger  *zap.Logger

	// Iterations and Interval bound the time spent in PumpEvents
	Iterations int
	Interval   time.Duration
}

// NewDriver creates a driver for scanner.
func NewDriver(scanner *Scanner, runtime provider.Runtime, table *Table, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = logging.Named("driver")
	}
	return &Driver{
		scanner:    scanner,
		runtime:    runtime,
		table:      table,
		logger:     logger,
		Iterations: DefaultPumpIterations,
		Interval:   DefaultPumpInterval,
	}
}

// PumpEvents lets the provider process events for a bounded time and runs
// any rebuild requested meanwhile. Provider error codes are logged and
// otherwise ignored. It does nothing while the scanner is inactive.
func (d *Driver) PumpEvents(ctx context.Context) {
	if !d.scanner.Active() {
		return
	}

	for i := 0; i < d.Iterations; i++ {
		if err := d.runtime.ProcessEvents(); err != nil && !provider.IsDone(err) {
			d.logger.Debug("Ignoring provider event error", zap.Error(err))
		}
		d.scanner.RebuildPending(ctx)

		if err := sleepCtx(ctx, d.Interval); err != nil {
			return
		}
	}
}

// Count returns the number of records in the current snapshot without
// triggering a rebuild.
func (d *Driver) Count() int {
	return d.table.Count()
}

// Record returns a copy of the record at index.
func (d *Driver) Record(index int) (Record, error) {
	return d.table.Get(index)
}

// Snapshot returns the current snapshot.
func (d *Driver) Snapshot() *Snapshot {
	return d.table.Load()
}

// Refresh synchronously rebuilds the snapshot from the live session. It is
// a successful no-op when no session is active.
func (d *Driver) Refresh(ctx context.Context) error {
	d.scanner.Refresh(ctx)
	return nil
}
