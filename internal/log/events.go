// This file appends JSON session events to events.jsonl.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventSessionStarted    = "session_started"
	EventSessionCleared    = "session_cleared"
	EventSessionLoaded     = "session_loaded"
	EventMessageSent       = "message_sent"
	EventPlanProposed      = "plan_proposed"
	EventPlanExecuting     = "plan_executing"
	EventPlanStepCompleted = "plan_step_completed"
	EventPlanCompleted     = "plan_completed"
	EventPlanCancelled     = "plan_cancelled"
	EventPlanFailed        = "plan_failed"
	EventSavePointCreated  = "savepoint_created"
	EventSavePointRestored = "savepoint_restored"
	EventContextTrimmed    = "context_trimmed"
	EventMigrationComplete = "migration_complete"
	EventIntegrityWarning  = "integrity_warning"
)

// Event represents a single structured event written to the event log.
type Event struct {
	Time        time.Time `json:"time"`
	Event       string    `json:"event"`
	Mode        string    `json:"mode,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	SavePointID string    `json:"savepoint_id,omitempty"`
	Step        int       `json:"step,omitempty"`
	Steps       int       `json:"steps,omitempty"`
	Messages    int       `json:"messages,omitempty"`
	Kept        int       `json:"kept,omitempty"`
	Tokens      int       `json:"tokens,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// EventLog writes append-only JSONL events to .bosun/events.jsonl.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog creates an EventLog inside dir's .bosun directory, creating the
// directory if needed. An existing log file is never truncated.
func NewEventLog(dir string) (*EventLog, error) {
	stateDir := filepath.Join(dir, dotDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", dotDir, err)
	}
	return &EventLog{path: filepath.Join(stateDir, "events.jsonl")}, nil
}

// Append writes a single Event as one JSON line. A zero Time is set to
// time.Now().UTC(). Thread-safe via mutex.
func (l *EventLog) Append(event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// ReadAll reads and parses all events. A missing file yields an empty slice,
// not an error.
func (l *EventLog) ReadAll() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse event line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}
