package log

import (
	"testing"
)

func TestEventLogAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	l, err := NewEventLog(dir)
	if err != nil {
		t.Fatalf("NewEventLog failed: %v", err)
	}

	if err := l.Append(Event{Event: EventSessionStarted, Messages: 3}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := l.Append(Event{Event: EventPlanProposed, Steps: 2}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Event != EventSessionStarted || events[0].Messages != 3 {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Event != EventPlanProposed || events[1].Steps != 2 {
		t.Errorf("events[1] = %+v", events[1])
	}
	if events[0].Time.IsZero() {
		t.Error("zero Time must be stamped on append")
	}
}

func TestEventLogMissingFile(t *testing.T) {
	l, err := NewEventLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewEventLog failed: %v", err)
	}
	events, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len = %d, want 0", len(events))
	}
}
