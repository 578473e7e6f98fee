package discovery

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable, fully built table of discovered devices.
// Readers must not modify it; rebuilds publish a new Snapshot instead.
type Snapshot struct {
	records    []Record
	Generation uint64
	BuiltAt    time.Time
}

// emptySnapshot is visible before the first rebuild and after a stop.
var emptySnapshot = &Snapshot{}

// newSnapshot takes ownership of records, truncating to MaxDevices.
func newSnapshot(records []Record) *Snapshot {
	if len(records) > MaxDevices {
		records = records[:MaxDevices]
	}
	return &Snapshot{records: records, BuiltAt: time.Now()}
}

// Len returns the number of valid records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// At returns a copy of the record at index.
func (s *Snapshot) At(index int) (Record, error) {
	if index < 0 || index >= s.Len() {
		return Record{}, NewIndexError(index, s.Len())
	}
	r := s.records[index]
	if !r.Valid {
		return Record{}, &Error{Type: ErrTypeInvalidRecord, Message: "device record is not valid"}
	}
	return r, nil
}

// Records returns a copy of every record in order.
func (s *Snapshot) Records() []Record {
	if s == nil {
		return nil
	}
	return append([]Record(nil), s.records...)
}

// Table holds the currently published snapshot. A single writer publishes
// whole snapshots; any number of readers load them concurrently.
type Table struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
}

// NewTable returns a table holding an empty snapshot.
func NewTable() *Table {
	t := &Table{}
	t.current.Store(emptySnapshot)
	return t
}

// Load returns the current snapshot. It is never nil.
func (t *Table) Load() *Snapshot {
	if s := t.current.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// Publish replaces the current snapshot with s, stamping its generation.
func (t *Table) Publish(s *Snapshot) *Snapshot {
	s.Generation = t.generation.Add(1)
	t.current.Store(s)
	return s
}

// Clear publishes an empty snapshot and returns it.
func (t *Table) Clear() *Snapshot {
	return t.Publish(&Snapshot{BuiltAt: time.Now()})
}

// Count returns the number of records in the current snapshot.
func (t *Table) Count() int {
	return t.Load().Len()
}

// Get returns a copy of the record at index in the current snapshot.
func (t *Table) Get(index int) (Record, error) {
	return t.Load().At(index)
}
