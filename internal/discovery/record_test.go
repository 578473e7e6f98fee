package discovery

import (
	"errors"
	"testing"
)

func TestFormatIPv4(t *testing.T) {
	tests := []struct {
		host uint32
		want string
	}{
		{0x0A000005, "10.0.0.5"},
		{0xC0A80410, "192.168.4.16"},
		{0xA9FE0102, "169.254.1.2"},
		{0, "0.0.0.0"},
		{0xFFFFFFFF, "255.255.255.255"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatIPv4(tt.host); got != tt.want {
				t.Errorf("FormatIPv4(%#x) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestRecord_String(t *testing.T) {
	r := Record{ID: 2, Name: "stagebox-1", Model: "ULTIMOX4", IPAddress: "10.0.0.5", FirmwareVersion: "4.2.1"}

	expected := "Device 2 stagebox-1 (ULTIMOX4) at 10.0.0.5, firmware 4.2.1"
	if r.String() != expected {
		t.Errorf("Record.String() = %v, want %v", r.String(), expected)
	}
}

func TestRecord_Resolved(t *testing.T) {
	if (Record{IPAddress: UnresolvedIP}).Resolved() {
		t.Error("sentinel address should not count as resolved")
	}
	if !(Record{IPAddress: "10.0.0.6"}).Resolved() {
		t.Error("real address should count as resolved")
	}
}

func TestTable_EmptyByDefault(t *testing.T) {
	table := NewTable()

	if table.Count() != 0 {
		t.Errorf("Count() = %d, want 0", table.Count())
	}
	if _, err := table.Get(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Get(0) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestTable_PublishStampsGeneration(t *testing.T) {
	table := NewTable()

	first := table.Publish(newSnapshot([]Record{{ID: 1, Valid: true}}))
	second := table.Publish(newSnapshot(nil))

	if first.Generation != 1 || second.Generation != 2 {
		t.Errorf("generations = %d, %d, want 1, 2", first.Generation, second.Generation)
	}
	if table.Load() != second {
		t.Error("Load() should return the last published snapshot")
	}
}

func TestSnapshot_At(t *testing.T) {
	snap := newSnapshot([]Record{
		{ID: 1, Name: "a", Valid: true},
		{ID: 2, Name: "b", Valid: false},
	})

	if _, err := snap.At(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("At(-1) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := snap.At(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("At(2) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := snap.At(1); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("At(1) error = %v, want ErrInvalidRecord", err)
	}

	rec, err := snap.At(0)
	if err != nil {
		t.Fatalf("At(0) error = %v", err)
	}
	rec.Name = "mutated"
	again, _ := snap.At(0)
	if again.Name != "a" {
		t.Errorf("At() must return a copy, snapshot now has %q", again.Name)
	}
}

func TestSnapshot_Truncates(t *testing.T) {
	records := make([]Record, MaxDevices+5)
	snap := newSnapshot(records)
	if snap.Len() != MaxDevices {
		t.Errorf("Len() = %d, want %d", snap.Len(), MaxDevices)
	}
}

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		et   ErrorType
		want string
	}{
		{ErrTypeNotInitialized, "Not Initialized"},
		{ErrTypeProvider, "Provider Error"},
		{ErrTypeTimeout, "Timeout"},
		{ErrTypeIndexOutOfRange, "Index Out Of Range"},
		{ErrTypeInvalidRecord, "Invalid Record"},
		{ErrTypeAlreadyRunning, "Already Running"},
		{ErrorType(99), "ErrorType(99)"},
	}

	for _, tt := range tests {
		if got := tt.et.String(); got != tt.want {
			t.Errorf("ErrorType(%d).String() = %v, want %v", int(tt.et), got, tt.want)
		}
	}
}
