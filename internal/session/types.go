// Package session holds the single source of truth for session-scoped state:
// messages, operating mode, the pending plan, and save points. All mutation
// goes through the Store's named operations.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// OperatingMode is the top-level shell mode.
type OperatingMode string

const (
	ModeChat         OperatingMode = "chat"
	ModeImageCreator OperatingMode = "image-creator"
	ModeWorkspace    OperatingMode = "workspace"
)

// Valid reports whether m is a known operating mode.
func (m OperatingMode) Valid() bool {
	switch m {
	case ModeChat, ModeImageCreator, ModeWorkspace:
		return true
	}
	return false
}

// WorkspaceMode is the sub-mode within the workspace operating mode.
type WorkspaceMode string

const (
	WorkspaceAsk  WorkspaceMode = "ask"
	WorkspacePlan WorkspaceMode = "plan"
	WorkspaceAct  WorkspaceMode = "act"
)

// Valid reports whether w is a known workspace sub-mode.
func (w WorkspaceMode) Valid() bool {
	switch w {
	case WorkspaceAsk, WorkspacePlan, WorkspaceAct:
		return true
	}
	return false
}

// Message is an immutable record of one conversation turn. IDs are assigned
// by the caller and must be unique within a session; the store deduplicates
// on ingestion, first occurrence wins.
type Message struct {
	ID            string        `json:"id"`
	Role          Role          `json:"role"`
	Content       string        `json:"content"`
	Timestamp     time.Time     `json:"timestamp"`
	WorkspaceMode WorkspaceMode `json:"workspace_mode,omitempty"`
	IsVoice       bool          `json:"is_voice,omitempty"`
	ImageRef      string        `json:"image_ref,omitempty"`
}

// messageJSON mirrors Message with a raw timestamp so UnmarshalJSON can accept
// both RFC 3339 strings and legacy epoch-millisecond numbers.
type messageJSON struct {
	ID            string          `json:"id"`
	Role          Role            `json:"role"`
	Content       string          `json:"content"`
	Timestamp     json.RawMessage `json:"timestamp"`
	WorkspaceMode WorkspaceMode   `json:"workspace_mode,omitempty"`
	IsVoice       bool            `json:"is_voice,omitempty"`
	ImageRef      string          `json:"image_ref,omitempty"`
}

// UnmarshalJSON rehydrates a message, accepting timestamps either as RFC 3339
// strings or as epoch milliseconds written by older snapshots.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("message %q: %w", raw.ID, err)
	}
	*m = Message{
		ID:            raw.ID,
		Role:          raw.Role,
		Content:       raw.Content,
		Timestamp:     ts,
		WorkspaceMode: raw.WorkspaceMode,
		IsVoice:       raw.IsVoice,
		ImageRef:      raw.ImageRef,
	}
	return nil
}

// parseTimestamp accepts an RFC 3339 string or an epoch-millisecond number.
// A missing timestamp yields the zero time, not an error.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
		return t, nil
	}
	var millis int64
	if err := json.Unmarshal(raw, &millis); err != nil {
		return time.Time{}, fmt.Errorf("timestamp is neither RFC 3339 nor epoch millis: %s", raw)
	}
	return time.UnixMilli(millis).UTC(), nil
}

// StepStatus tracks the execution state of a single plan step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// PlanStep is one unit of work within a pending plan.
type PlanStep struct {
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// PendingPlan is a proposed, not-yet-fully-executed unit of work. StartIndex
// is the resumable cursor: steps before it have already been executed.
type PendingPlan struct {
	Query      string     `json:"query"`
	Steps      []PlanStep `json:"steps"`
	StartIndex int        `json:"start_index"`
}

// Remaining returns the number of steps not yet executed.
func (p *PendingPlan) Remaining() int {
	if p == nil || p.StartIndex >= len(p.Steps) {
		return 0
	}
	return len(p.Steps) - p.StartIndex
}

// Attachment is a file attached to the session; its content counts against
// the context budget's files category.
type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// SessionSnapshot is the restorable payload of a save point. Nil fields were
// not captured and are left untouched on restore.
type SessionSnapshot struct {
	Messages      []Message      `json:"messages,omitempty"`
	Mode          *OperatingMode `json:"mode,omitempty"`
	WorkspaceMode *WorkspaceMode `json:"workspace_mode,omitempty"`
	PendingPlan   *PendingPlan   `json:"pending_plan,omitempty"`
	SidebarOpen   *bool          `json:"sidebar_open,omitempty"`
}

// SavePoint is an immutable checkpoint of session state. The save-point list
// is append-only; restoring never removes an entry.
type SavePoint struct {
	ID            string           `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	ContextUsed   int              `json:"context_used"`
	MessagesCount int              `json:"messages_count"`
	Description   string           `json:"description"`
	Data          *SessionSnapshot `json:"data,omitempty"`
}
