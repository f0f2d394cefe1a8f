// Package savepoint snapshots and restores session state. Save points are
// append-only; restoring never removes an entry, so the user can move between
// checkpoints freely.
package savepoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bosun-sh/bosun/internal/budget"
	"github.com/bosun-sh/bosun/internal/session"
)

// ErrCorrupt marks a save point whose present fields are structurally
// invalid. It propagates to the caller; a broken snapshot is an upstream
// defect, not something to repair silently.
var ErrCorrupt = errors.New("corrupt save point")

// Manager creates and restores save points against a session store.
type Manager struct {
	store        *session.Store
	budget       *budget.Manager
	systemPrompt string
	logger       *zap.Logger
}

// NewManager creates a Manager. systemPrompt is counted into ContextUsed so a
// save point records the same usage the budget manager would report.
func NewManager(store *session.Store, b *budget.Manager, systemPrompt string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:        store,
		budget:       b,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// Create snapshots the current session state, appends the save point to the
// store's list, and returns it.
func (m *Manager) Create(description string) session.SavePoint {
	snap := m.store.Snapshot()
	bd := m.budget.Breakdown(snap.Messages, m.systemPrompt, m.store.Attachments())

	sp := session.SavePoint{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		ContextUsed:   bd.Total,
		MessagesCount: len(snap.Messages),
		Description:   description,
		Data:          &snap,
	}
	m.store.AppendSavePoint(sp)
	m.logger.Info("save point created",
		zap.String("id", sp.ID),
		zap.Int("messages", sp.MessagesCount),
		zap.Int("context_used", sp.ContextUsed))
	return sp
}

// Restore applies sp to the store. It returns (false, nil) when sp carries no
// snapshot data — a recoverable, reportable condition. Fields present in the
// snapshot overwrite store state; absent fields are left untouched.
// Structural corruption of a present field propagates as an error wrapping
// ErrCorrupt. Every present field is validated before any is applied, so a
// corrupt snapshot never leaves the store half-restored.
func (m *Manager) Restore(sp session.SavePoint) (bool, error) {
	if sp.Data == nil {
		m.logger.Warn("save point has no data", zap.String("id", sp.ID))
		return false, nil
	}
	data := sp.Data

	if err := validateSnapshot(data); err != nil {
		return false, fmt.Errorf("%w %s: %v", ErrCorrupt, sp.ID, err)
	}

	if data.Messages != nil {
		if err := m.store.ReplaceMessages(data.Messages); err != nil {
			return false, fmt.Errorf("%w %s: messages: %v", ErrCorrupt, sp.ID, err)
		}
	}
	if data.Mode != nil {
		m.store.SetMode(*data.Mode)
	}
	if data.WorkspaceMode != nil {
		m.store.SetWorkspaceMode(*data.WorkspaceMode)
	}
	if data.PendingPlan != nil {
		p := *data.PendingPlan
		p.Steps = append([]session.PlanStep(nil), data.PendingPlan.Steps...)
		m.store.SetPendingPlan(&p)
	}
	if data.SidebarOpen != nil {
		m.store.SetSidebarOpen(*data.SidebarOpen)
	}

	m.logger.Info("save point restored", zap.String("id", sp.ID))
	return true, nil
}

// validateSnapshot checks every present field of data for structural
// soundness without touching the store.
func validateSnapshot(data *session.SessionSnapshot) error {
	for _, msg := range data.Messages {
		if msg.ID == "" {
			return fmt.Errorf("messages: %w", session.ErrMissingID)
		}
	}
	if data.Mode != nil && !data.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", *data.Mode)
	}
	if data.WorkspaceMode != nil && !data.WorkspaceMode.Valid() {
		return fmt.Errorf("unknown workspace mode %q", *data.WorkspaceMode)
	}
	if p := data.PendingPlan; p != nil {
		if p.StartIndex < 0 || p.StartIndex > len(p.Steps) {
			return fmt.Errorf("plan cursor %d out of range", p.StartIndex)
		}
	}
	return nil
}
