// Package shell implements the top-level coordinator of the assistant shell.
// The Controller is the only component external callers (the UI layer)
// invoke; it sequences the session store, plan engine, context budget, and
// save-point manager, and encodes session-level policy.
package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bosun-sh/bosun/internal/budget"
	"github.com/bosun-sh/bosun/internal/capability"
	"github.com/bosun-sh/bosun/internal/log"
	"github.com/bosun-sh/bosun/internal/plan"
	"github.com/bosun-sh/bosun/internal/savepoint"
	"github.com/bosun-sh/bosun/internal/session"
	"github.com/bosun-sh/bosun/internal/store"
	"github.com/bosun-sh/bosun/prompts"
)

// ErrBusy is returned when SendMessage is called while another request is in
// flight. The cancel commands ("cancel", "stop", "abort") are exempt: they
// abort the in-flight work instead.
var ErrBusy = errors.New("a request is already being processed")

// ErrNoPlan is returned when act mode is entered without a pending plan.
var ErrNoPlan = errors.New("no pending plan to execute")

// Notification is a transient, user-visible message for reported-nonfatal
// conditions: persistence trouble, migration findings, integrity warnings.
type Notification struct {
	Level string // "info" or "warn"
	Text  string
}

// Notifier receives notifications. A nil notifier drops them.
type Notifier func(Notification)

// Options wires a Controller. Store, Engine, Budget, and SavePoints are
// required; the capabilities may be nil and the matching features degrade.
type Options struct {
	Store      *session.Store
	Engine     *plan.Engine
	Budget     *budget.Manager
	SavePoints *savepoint.Manager

	Generator capability.TextGenerator
	ImageGen  capability.ImageGenerator
	Voice     capability.Voice
	Migrator  capability.Migrator
	KV        capability.KeyValue

	Timeout time.Duration
	Logger  *zap.Logger
	Events  *log.EventLog
	Notify  Notifier
}

// Controller is the shell's session coordinator.
type Controller struct {
	store  *session.Store
	engine *plan.Engine
	budget *budget.Manager
	saves  *savepoint.Manager

	gen      capability.TextGenerator
	imageGen capability.ImageGenerator
	voice    capability.Voice
	migrator capability.Migrator
	kv       capability.KeyValue

	timeout time.Duration
	logger  *zap.Logger
	events  *log.EventLog
	notify  Notifier
}

// NewController creates a Controller from opts.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = plan.DefaultTimeout
	}
	return &Controller{
		store:    opts.Store,
		engine:   opts.Engine,
		budget:   opts.Budget,
		saves:    opts.SavePoints,
		gen:      opts.Generator,
		imageGen: opts.ImageGen,
		voice:    opts.Voice,
		migrator: opts.Migrator,
		kv:       opts.KV,
		timeout:  timeout,
		logger:   logger,
		events:   opts.Events,
		notify:   opts.Notify,
	}
}

// SetNotifier replaces the notification sink. Intended for wiring a UI that
// is constructed after the controller; call before Startup.
func (c *Controller) SetNotifier(fn Notifier) {
	c.notify = fn
}

// Store exposes the session store for read-only UI consumption
// (subscription, message listing). Mutation stays behind the controller.
func (c *Controller) Store() *session.Store {
	return c.store
}

// Engine exposes the plan engine state for UI display.
func (c *Controller) Engine() *plan.Engine {
	return c.engine
}

// SendMessage routes one user input according to mode. The processing flag
// is held for exactly the duration of this call and released on every exit
// path. While a request is in flight, further sends are rejected with
// ErrBusy, except cancel commands, which abort the in-flight work without
// appending a duplicate user message.
func (c *Controller) SendMessage(ctx context.Context, text string, mode session.OperatingMode, isVoice bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Deduplication invariant pass before anything else.
	if err := c.store.ReplaceMessages(c.store.Messages()); err != nil {
		return err
	}

	if !c.store.BeginProcessing() {
		if isCancelCommand(text) {
			c.engine.Cancel()
			c.appendEvent(log.Event{Event: log.EventPlanCancelled, Reason: "user"})
			return nil
		}
		return ErrBusy
	}
	defer c.store.SetProcessing(false)

	c.store.SetCurrentQuery(text)
	if mode.Valid() && mode != c.store.Mode() {
		c.store.SetMode(mode)
	}

	switch {
	case mode == session.ModeImageCreator:
		return c.handleImage(ctx, text, isVoice)
	case mode == session.ModeWorkspace && c.store.WorkspaceMode() == session.WorkspacePlan:
		return c.handlePlan(ctx, text, isVoice)
	case mode == session.ModeWorkspace && c.store.WorkspaceMode() == session.WorkspaceAct:
		return c.handleAct(ctx, text, isVoice)
	default:
		return c.handleChat(ctx, text, isVoice)
	}
}

// handleChat drives a plain conversational exchange, consulting the budget
// manager before sending history downstream.
func (c *Controller) handleChat(ctx context.Context, text string, isVoice bool) error {
	if err := c.appendUser(text, isVoice); err != nil {
		return err
	}

	history := c.trimmedHistory()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, _, err := c.collect(reqCtx, text, history)
	if err != nil {
		return fmt.Errorf("chat generation: %w", err)
	}

	if err := c.appendAssistant(reply, ""); err != nil {
		return err
	}
	c.speak(reply, isVoice)
	return nil
}

// handleImage delegates entirely to the image-generation collaborator and
// relays its message/image output into the store.
func (c *Controller) handleImage(ctx context.Context, text string, isVoice bool) error {
	if c.imageGen == nil {
		return errors.New("image generation is not configured")
	}

	if err := c.appendUser(text, isVoice); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.imageGen.Generate(reqCtx, text)
	if err != nil {
		return fmt.Errorf("image generation: %w", err)
	}

	var sb strings.Builder
	var imageRef string
	for {
		select {
		case <-reqCtx.Done():
			return reqCtx.Err()
		case chunk, ok := <-stream:
			if !ok {
				if err := c.appendAssistant(sb.String(), imageRef); err != nil {
					return err
				}
				c.speak(sb.String(), isVoice)
				return nil
			}
			sb.WriteString(chunk.TextDelta)
			if chunk.ImageRef != "" {
				imageRef = chunk.ImageRef
			}
		}
	}
}

// handlePlan asks the engine to decompose text into a plan and holds it for
// confirmation. Plan failures surface inline in the conversation and are
// rethrown to the caller.
func (c *Controller) handlePlan(ctx context.Context, text string, isVoice bool) error {
	if err := c.appendUser(text, isVoice); err != nil {
		return err
	}

	p, err := c.engine.Plan(ctx, text)
	if err != nil {
		c.appendEvent(log.Event{Event: log.EventPlanFailed, Error: err.Error()})
		if appendErr := c.appendAssistant("Planning failed: "+err.Error(), ""); appendErr != nil {
			c.logger.Warn("append plan failure message", zap.Error(appendErr))
		}
		return err
	}

	c.store.SetPendingPlan(p)
	c.store.SetAwaitingConfirmation(true)
	c.appendEvent(log.Event{Event: log.EventPlanProposed, Steps: len(p.Steps)})

	if err := c.appendAssistant(formatPlan(p), ""); err != nil {
		return err
	}
	return nil
}

// handleAct executes the pending plan from its cursor. A save point is
// created before execution so the pre-execution state is restorable.
// Cancellation leaves the plan resumable and reports success to the caller.
func (c *Controller) handleAct(ctx context.Context, text string, isVoice bool) error {
	p := c.store.PendingPlan()
	if p == nil {
		return ErrNoPlan
	}

	if err := c.appendUser(text, isVoice); err != nil {
		return err
	}

	sp := c.saves.Create("before executing plan")
	c.appendEvent(log.Event{Event: log.EventSavePointCreated, SavePointID: sp.ID})
	c.store.SetAwaitingConfirmation(false)
	c.appendEvent(log.Event{Event: log.EventPlanExecuting, Steps: len(p.Steps), Step: p.StartIndex})

	// Work on a copy; the store's plan is only replaced through its named
	// operation as steps commit.
	cp := clonePlan(p)
	onStep := func(i int, step session.PlanStep) {
		c.store.SetPendingPlan(clonePlan(cp))
		if step.Status == session.StepDone {
			c.appendEvent(log.Event{Event: log.EventPlanStepCompleted, Step: i + 1, Steps: len(cp.Steps)})
		}
	}

	err := c.engine.Act(ctx, cp, cp.StartIndex, onStep)
	if err != nil {
		c.store.SetPendingPlan(clonePlan(cp))
		c.appendEvent(log.Event{Event: log.EventPlanFailed, Step: cp.StartIndex, Error: err.Error()})
		if appendErr := c.appendAssistant("Plan execution failed: "+err.Error(), ""); appendErr != nil {
			c.logger.Warn("append act failure message", zap.Error(appendErr))
		}
		return err
	}

	if c.engine.State() == plan.StateDone {
		c.store.SetPendingPlan(nil)
		c.appendEvent(log.Event{Event: log.EventPlanCompleted, Steps: len(cp.Steps)})
		summary := fmt.Sprintf("Plan complete: %d steps executed.", len(cp.Steps))
		if err := c.appendAssistant(summary, ""); err != nil {
			return err
		}
		c.speak(summary, isVoice)
		return nil
	}

	// Cancelled mid-flight: keep the plan with its cursor for resume.
	c.store.SetPendingPlan(clonePlan(cp))
	c.appendEvent(log.Event{Event: log.EventPlanCancelled, Step: cp.StartIndex})
	return nil
}

// CancelActive aborts the in-flight plan or act, if any.
func (c *Controller) CancelActive() {
	c.engine.Cancel()
	c.appendEvent(log.Event{Event: log.EventPlanCancelled, Reason: "user"})
}

// CreateSavePoint snapshots the current session under the given description.
func (c *Controller) CreateSavePoint(description string) session.SavePoint {
	sp := c.saves.Create(description)
	c.appendEvent(log.Event{Event: log.EventSavePointCreated, SavePointID: sp.ID})
	return sp
}

// RestoreSavePoint applies sp to the session. A save point without data is
// reported and skipped; structural corruption propagates.
func (c *Controller) RestoreSavePoint(sp session.SavePoint) (bool, error) {
	restored, err := c.saves.Restore(sp)
	if err != nil {
		return false, err
	}
	if !restored {
		c.post("warn", fmt.Sprintf("save point %s has no restorable data", sp.ID))
		return false, nil
	}
	c.appendEvent(log.Event{Event: log.EventSavePointRestored, SavePointID: sp.ID})
	return true, nil
}

// NewSession discards the current session state. Nothing is snapshotted: a
// new session is an explicit fresh start. Any in-flight image session is
// handed to the image-history collaborator first.
func (c *Controller) NewSession(ctx context.Context) error {
	c.engine.Cancel()

	if c.imageGen != nil {
		if err := c.imageGen.Archive(ctx); err != nil {
			c.logger.Warn("archive image session", zap.Error(err))
			c.post("warn", "could not archive image session: "+err.Error())
		}
	}

	if err := c.store.ReplaceMessages(nil); err != nil {
		return err
	}
	c.store.SetPendingPlan(nil)
	c.store.SetAwaitingConfirmation(false)
	c.store.SetCurrentQuery("")
	c.store.SetProcessing(false)
	c.store.SetWorkspaceMode(session.WorkspaceAsk)

	c.appendEvent(log.Event{Event: log.EventSessionCleared})
	return nil
}

// LoadSession replaces the message list and infers which top-level mode to
// activate from message content. The inference is a best-effort heuristic,
// kept for compatibility with sessions saved before modes were recorded
// structurally; it is not extended beyond these two signals.
func (c *Controller) LoadSession(messages []session.Message) error {
	if err := c.store.ReplaceMessages(messages); err != nil {
		return err
	}
	c.store.SetProcessing(false)
	c.store.SetAwaitingConfirmation(false)

	mode, wm := inferMode(c.store.Messages())
	c.store.SetMode(mode)
	c.store.SetWorkspaceMode(wm)

	c.appendEvent(log.Event{Event: log.EventSessionLoaded, Mode: string(mode), Messages: len(messages)})
	return nil
}

// Startup runs the once-per-session initialization sequence: load persisted
// state, migrate, check model-record integrity, deduplicate, then
// auto-restore the most recent save point. Failures along the way are
// reported, never silently swallowed, and never block startup.
func (c *Controller) Startup(ctx context.Context) {
	// Migration runs before the load so freshly relocated data is picked up
	// in the same session.
	if c.migrator != nil {
		report, err := c.migrator.Migrate(ctx)
		if err != nil {
			c.logger.Warn("data migration", zap.Error(err))
			c.post("warn", "data migration failed: "+err.Error())
		} else {
			for _, item := range report.CleanedItems {
				c.post("info", "migrated legacy data: "+item)
			}
			for _, e := range report.Errors {
				c.post("warn", "migration: "+e)
			}
		}
		c.appendEvent(log.Event{Event: log.EventMigrationComplete})
	}

	if err := c.store.LoadPersisted(ctx); err != nil {
		c.logger.Warn("load persisted session", zap.Error(err))
		c.post("warn", "persisted session could not be loaded: "+err.Error())
	}

	if c.kv != nil {
		findings, err := store.ValidateModelRecords(ctx, c.kv)
		if err != nil {
			c.logger.Warn("model record integrity check", zap.Error(err))
			c.post("warn", "integrity check failed: "+err.Error())
		}
		for _, finding := range findings {
			c.post("warn", "integrity: "+finding)
			c.appendEvent(log.Event{Event: log.EventIntegrityWarning, Reason: finding})
		}
	}

	if err := c.store.ReplaceMessages(c.store.Messages()); err != nil {
		c.logger.Warn("startup deduplication", zap.Error(err))
	}

	if sp, ok := c.store.LatestSavePoint(); ok {
		restored, err := c.saves.Restore(sp)
		switch {
		case err != nil:
			c.logger.Warn("auto-restore save point", zap.String("id", sp.ID), zap.Error(err))
			c.post("warn", "could not restore last save point: "+err.Error())
		case restored:
			c.appendEvent(log.Event{Event: log.EventSavePointRestored, SavePointID: sp.ID})
		default:
			c.post("warn", "last save point has no restorable data")
		}
	}

	c.appendEvent(log.Event{Event: log.EventSessionStarted, Messages: len(c.store.Messages())})
}

// ContextStatus reports the current budget breakdown and limit status for
// display. Recomputed on every call, never cached.
func (c *Controller) ContextStatus() (budget.Breakdown, budget.LimitStatus) {
	bd := c.budget.Breakdown(c.store.Messages(), prompts.ChatSystemPrompt, c.store.Attachments())
	return bd, c.budget.CheckLimit(bd.Total)
}

// trimmedHistory returns the message history to send downstream, pruned to
// the budget, formatted one line per turn.
func (c *Controller) trimmedHistory() []string {
	msgs := c.store.Messages()
	kept := c.budget.Trim(msgs)
	if len(kept) < len(msgs) {
		c.appendEvent(log.Event{Event: log.EventContextTrimmed, Messages: len(msgs), Kept: len(kept)})
	}

	history := make([]string, 0, len(kept)+1)
	history = append(history, prompts.ChatSystemPrompt)
	for _, m := range kept {
		history = append(history, string(m.Role)+": "+m.Content)
	}
	return history
}

// collect runs one generation request and concatenates its streamed text,
// also surfacing any image reference.
func (c *Controller) collect(ctx context.Context, prompt string, history []string) (string, string, error) {
	stream, err := c.gen.Ask(ctx, prompt, history)
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	var imageRef string
	for {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return sb.String(), imageRef, nil
			}
			sb.WriteString(chunk.TextDelta)
			if chunk.ImageRef != "" {
				imageRef = chunk.ImageRef
			}
		}
	}
}

func (c *Controller) appendUser(text string, isVoice bool) error {
	msg := session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
		IsVoice:   isVoice,
	}
	if c.store.Mode() == session.ModeWorkspace {
		msg.WorkspaceMode = c.store.WorkspaceMode()
	}
	if err := c.store.AppendMessage(msg); err != nil {
		return err
	}
	c.appendEvent(log.Event{Event: log.EventMessageSent, MessageID: msg.ID, Mode: string(c.store.Mode())})
	return nil
}

func (c *Controller) appendAssistant(text, imageRef string) error {
	msg := session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
		ImageRef:  imageRef,
	}
	if c.store.Mode() == session.ModeWorkspace {
		msg.WorkspaceMode = c.store.WorkspaceMode()
	}
	return c.store.AppendMessage(msg)
}

// speak forwards reply to the voice capability for voice-originated
// exchanges. The core never blocks on voice completion.
func (c *Controller) speak(reply string, isVoice bool) {
	if !isVoice || c.voice == nil || reply == "" {
		return
	}
	go func() {
		if err := c.voice.Speak(context.Background(), reply); err != nil {
			c.logger.Warn("speak reply", zap.Error(err))
		}
	}()
}

func (c *Controller) post(level, text string) {
	if c.notify != nil {
		c.notify(Notification{Level: level, Text: text})
	}
}

func (c *Controller) appendEvent(event log.Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Append(event); err != nil {
		c.logger.Warn("append event", zap.String("event", event.Event), zap.Error(err))
	}
}

func isCancelCommand(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cancel", "stop", "abort":
		return true
	}
	return false
}

// inferMode guesses the operating mode for a loaded session from its
// messages: an assistant message carrying an image result selects
// image-creator; otherwise the first message with a non-ask workspace
// sub-mode selects workspace with that sub-mode; otherwise chat.
func inferMode(messages []session.Message) (session.OperatingMode, session.WorkspaceMode) {
	for _, m := range messages {
		if m.Role == session.RoleAssistant && (m.ImageRef != "" || strings.Contains(m.Content, "![image](")) {
			return session.ModeImageCreator, session.WorkspaceAsk
		}
	}
	for _, m := range messages {
		if m.WorkspaceMode.Valid() && m.WorkspaceMode != session.WorkspaceAsk {
			return session.ModeWorkspace, m.WorkspaceMode
		}
	}
	return session.ModeChat, session.WorkspaceAsk
}

func clonePlan(p *session.PendingPlan) *session.PendingPlan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Steps = append([]session.PlanStep(nil), p.Steps...)
	return &cp
}

func formatPlan(p *session.PendingPlan) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Proposed plan (%d steps):\n", len(p.Steps)))
	for i, step := range p.Steps {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, step.Description))
	}
	sb.WriteString("Switch to act mode to execute, or rephrase to re-plan.")
	return sb.String()
}
