package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bosun-sh/bosun/internal/capability"
)

// ErrMissingID is returned when a message without an ID reaches the store.
// This indicates a broken invariant upstream and is not absorbed internally.
var ErrMissingID = errors.New("message has no id")

// Persistence keys. Writes are last-write-wins per key.
const (
	keyState      = "session/state"
	keySavePoints = "session/savepoints"
)

// persistedState is the JSON shape written under keyState.
type persistedState struct {
	Messages      []Message     `json:"messages"`
	Mode          OperatingMode `json:"mode"`
	WorkspaceMode WorkspaceMode `json:"workspace_mode"`
	PendingPlan   *PendingPlan  `json:"pending_plan,omitempty"`
	CurrentQuery  string        `json:"current_query,omitempty"`
	SidebarOpen   bool          `json:"sidebar_open,omitempty"`
	Attachments   []Attachment  `json:"attachments,omitempty"`
}

// Store is the session state container. It is created at session start with
// an explicit lifecycle, never held as ambient global state. Every mutation
// goes through a named operation, which is what makes the deduplication and
// persist-on-write invariants enforceable.
type Store struct {
	mu sync.Mutex

	messages      []Message
	seen          map[string]bool
	mode          OperatingMode
	workspaceMode WorkspaceMode
	pendingPlan   *PendingPlan
	awaiting      bool
	currentQuery  string
	processing    bool
	sidebarOpen   bool
	savePoints    []SavePoint
	attachments   []Attachment

	kv     capability.KeyValue
	logger *zap.Logger

	nextSubID int
	subs      map[int]func()
}

// NewStore creates an empty store backed by the given key-value capability.
// kv may be nil, in which case state is held in memory only.
func NewStore(kv capability.KeyValue, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		seen:          make(map[string]bool),
		mode:          ModeChat,
		workspaceMode: WorkspaceAsk,
		kv:            kv,
		logger:        logger,
		subs:          make(map[int]func()),
	}
}

// Subscribe registers fn to run after every committed mutation. The returned
// function removes the subscription; calling it more than once is a no-op.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// AppendMessage appends msg preserving insertion order. A message whose ID is
// already present is silently skipped; a message without an ID is rejected
// with ErrMissingID.
func (s *Store) AppendMessage(msg Message) error {
	if msg.ID == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	if s.seen[msg.ID] {
		s.mu.Unlock()
		return nil
	}
	s.messages = append(s.messages, msg)
	s.seen[msg.ID] = true
	s.mu.Unlock()

	s.committed()
	return nil
}

// ReplaceMessages replaces the message list, deduplicating by ID with the
// first occurrence winning. Used for deduplication passes and session loads.
func (s *Store) ReplaceMessages(list []Message) error {
	deduped := make([]Message, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, msg := range list {
		if msg.ID == "" {
			return ErrMissingID
		}
		if seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		deduped = append(deduped, msg)
	}

	s.mu.Lock()
	s.messages = deduped
	s.seen = seen
	s.mu.Unlock()

	s.committed()
	return nil
}

// SetPendingPlan replaces the pending plan; nil clears it.
func (s *Store) SetPendingPlan(plan *PendingPlan) {
	s.mu.Lock()
	s.pendingPlan = plan
	s.mu.Unlock()
	s.committed()
}

// SetAwaitingConfirmation sets the awaiting-confirmation flag.
func (s *Store) SetAwaitingConfirmation(v bool) {
	s.mu.Lock()
	s.awaiting = v
	s.mu.Unlock()
	s.committed()
}

// SetCurrentQuery records the query currently being processed.
func (s *Store) SetCurrentQuery(q string) {
	s.mu.Lock()
	s.currentQuery = q
	s.mu.Unlock()
	s.committed()
}

// SetMode sets the top-level operating mode. Unknown values are kept as-is;
// mode transitions are policy owned by the shell controller.
func (s *Store) SetMode(m OperatingMode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
	s.committed()
}

// SetWorkspaceMode sets the workspace sub-mode.
func (s *Store) SetWorkspaceMode(w WorkspaceMode) {
	s.mu.Lock()
	s.workspaceMode = w
	s.mu.Unlock()
	s.committed()
}

// SetProcessing sets the processing-in-progress flag.
func (s *Store) SetProcessing(v bool) {
	s.mu.Lock()
	s.processing = v
	s.mu.Unlock()
	s.committed()
}

// BeginProcessing atomically sets the processing flag, returning false when a
// request is already in flight. Admission control must go through this, not a
// Processing check followed by SetProcessing: two callers racing the pair
// could both see false and both proceed.
func (s *Store) BeginProcessing() bool {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return false
	}
	s.processing = true
	s.mu.Unlock()
	s.committed()
	return true
}

// SetSidebarOpen sets the sidebar view flag.
func (s *Store) SetSidebarOpen(v bool) {
	s.mu.Lock()
	s.sidebarOpen = v
	s.mu.Unlock()
	s.committed()
}

// AddAttachment attaches a file to the session.
func (s *Store) AddAttachment(a Attachment) {
	s.mu.Lock()
	s.attachments = append(s.attachments, a)
	s.mu.Unlock()
	s.committed()
}

// ClearAttachments removes all attachments.
func (s *Store) ClearAttachments() {
	s.mu.Lock()
	s.attachments = nil
	s.mu.Unlock()
	s.committed()
}

// AppendSavePoint appends sp to the save-point list. The list is never
// reordered or truncated here; retention is an external concern.
func (s *Store) AppendSavePoint(sp SavePoint) {
	s.mu.Lock()
	s.savePoints = append(s.savePoints, sp)
	s.mu.Unlock()
	s.committed()
}

// Messages returns a copy of the message list in insertion order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SavePoints returns a copy of the save-point list in append order.
func (s *Store) SavePoints() []SavePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SavePoint, len(s.savePoints))
	copy(out, s.savePoints)
	return out
}

// LatestSavePoint returns the most recent save point, or false if none exist.
func (s *Store) LatestSavePoint() (SavePoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.savePoints) == 0 {
		return SavePoint{}, false
	}
	return s.savePoints[len(s.savePoints)-1], true
}

// Attachments returns a copy of the session's file attachments.
func (s *Store) Attachments() []Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attachment, len(s.attachments))
	copy(out, s.attachments)
	return out
}

// Mode returns the current operating mode.
func (s *Store) Mode() OperatingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// WorkspaceMode returns the current workspace sub-mode.
func (s *Store) WorkspaceMode() WorkspaceMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspaceMode
}

// PendingPlan returns the pending plan, or nil.
func (s *Store) PendingPlan() *PendingPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingPlan
}

// AwaitingConfirmation reports the awaiting-confirmation flag.
func (s *Store) AwaitingConfirmation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

// CurrentQuery returns the query currently being processed.
func (s *Store) CurrentQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentQuery
}

// Processing reports whether a request is in flight.
func (s *Store) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// SidebarOpen reports the sidebar view flag.
func (s *Store) SidebarOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sidebarOpen
}

// Snapshot captures the restorable session state.
func (s *Store) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)

	mode := s.mode
	wm := s.workspaceMode
	sidebar := s.sidebarOpen

	var plan *PendingPlan
	if s.pendingPlan != nil {
		cp := *s.pendingPlan
		cp.Steps = make([]PlanStep, len(s.pendingPlan.Steps))
		copy(cp.Steps, s.pendingPlan.Steps)
		plan = &cp
	}

	return SessionSnapshot{
		Messages:      msgs,
		Mode:          &mode,
		WorkspaceMode: &wm,
		PendingPlan:   plan,
		SidebarOpen:   &sidebar,
	}
}

// LoadPersisted rehydrates store state from the key-value capability. Absent
// keys are not an error; malformed persisted state is.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	if raw, ok, err := s.kv.Get(ctx, keyState); err != nil {
		return fmt.Errorf("reading persisted state: %w", err)
	} else if ok {
		var st persistedState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return fmt.Errorf("parsing persisted state: %w", err)
		}
		s.mu.Lock()
		s.messages = st.Messages
		s.seen = make(map[string]bool, len(st.Messages))
		for _, m := range st.Messages {
			s.seen[m.ID] = true
		}
		if st.Mode.Valid() {
			s.mode = st.Mode
		}
		if st.WorkspaceMode.Valid() {
			s.workspaceMode = st.WorkspaceMode
		}
		s.pendingPlan = st.PendingPlan
		s.currentQuery = st.CurrentQuery
		s.sidebarOpen = st.SidebarOpen
		s.attachments = st.Attachments
		s.mu.Unlock()
	}

	if raw, ok, err := s.kv.Get(ctx, keySavePoints); err != nil {
		return fmt.Errorf("reading save points: %w", err)
	} else if ok {
		var sps []SavePoint
		if err := json.Unmarshal([]byte(raw), &sps); err != nil {
			return fmt.Errorf("parsing save points: %w", err)
		}
		s.mu.Lock()
		s.savePoints = sps
		s.mu.Unlock()
	}

	return nil
}

// committed runs after every mutation: persist best-effort, then notify
// subscribers. Persistence failures are logged, never propagated; the
// in-memory state remains authoritative.
func (s *Store) committed() {
	s.persist()
	s.notify()
}

func (s *Store) persist() {
	if s.kv == nil {
		return
	}

	s.mu.Lock()
	st := persistedState{
		Messages:      s.messages,
		Mode:          s.mode,
		WorkspaceMode: s.workspaceMode,
		PendingPlan:   s.pendingPlan,
		CurrentQuery:  s.currentQuery,
		SidebarOpen:   s.sidebarOpen,
		Attachments:   s.attachments,
	}
	sps := s.savePoints
	s.mu.Unlock()

	ctx := context.Background()

	if data, err := json.Marshal(st); err != nil {
		s.logger.Warn("marshal session state", zap.Error(err))
	} else if err := s.kv.Set(ctx, keyState, string(data)); err != nil {
		s.logger.Warn("persist session state", zap.Error(err))
	}

	if data, err := json.Marshal(sps); err != nil {
		s.logger.Warn("marshal save points", zap.Error(err))
	} else if err := s.kv.Set(ctx, keySavePoints, string(data)); err != nil {
		s.logger.Warn("persist save points", zap.Error(err))
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
