package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bosun-sh/bosun/internal/plan"
	"github.com/bosun-sh/bosun/internal/session"
	"github.com/bosun-sh/bosun/internal/shell"
)

// storeChangedMsg signals that the session store committed a mutation.
type storeChangedMsg struct{}

// sendDoneMsg carries the result of an asynchronous SendMessage call.
type sendDoneMsg struct{ err error }

// notifyMsg carries a controller notification into the update loop.
type notifyMsg shell.Notification

// Model is the main TUI model for the assistant shell.
type Model struct {
	ctrl *shell.Controller

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	notice      string
	noticeStyle lipgloss.Style

	// changes carries store-commit signals; notes carries controller
	// notifications. Both are drained by long-running tea.Cmds.
	changes chan struct{}
	notes   chan shell.Notification
}

// New creates the shell TUI bound to ctrl. The controller's store
// subscription and notifier are wired here; the returned model owns them for
// the life of the program.
func New(ctrl *shell.Controller) *Model {
	input := textarea.New()
	input.Placeholder = "Type a message (tab: mode, shift+tab: sub-mode, esc: cancel)"
	input.ShowLineNumbers = false
	input.SetHeight(3)
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor))

	m := &Model{
		ctrl:    ctrl,
		input:   input,
		spinner: sp,
		changes: make(chan struct{}, 1),
		notes:   make(chan shell.Notification, 16),
	}

	ctrl.Store().Subscribe(func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})

	return m
}

// Notify is the controller notifier; it forwards notifications into the
// update loop without blocking callers.
func (m *Model) Notify(n shell.Notification) {
	select {
	case m.notes <- n:
	default:
	}
}

// Init starts the spinner and the store/notification listeners.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForChange(), m.waitForNote(), textarea.Blink)
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return storeChangedMsg{}
	}
}

func (m *Model) waitForNote() tea.Cmd {
	return func() tea.Msg {
		return notifyMsg(<-m.notes)
	}
}

// Update handles all TUI messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshTranscript()
		m.ready = true

	case tea.KeyMsg:
		switch msg.String() {
		case KeyCtrlC:
			return m, tea.Quit
		case KeyEsc:
			m.ctrl.CancelActive()
			m.setNotice("cancelled", DimStyle)
			return m, nil
		case KeyTab:
			m.cycleMode()
			return m, nil
		case "shift+tab":
			m.cycleWorkspaceMode()
			return m, nil
		case "ctrl+s":
			sp := m.ctrl.CreateSavePoint("manual save point")
			m.setNotice("save point "+shortID(sp.ID)+" created", DimStyle)
			return m, nil
		case "ctrl+r":
			return m, m.restoreLatest()
		case "ctrl+n":
			return m, m.newSession()
		case "ctrl+b":
			st := m.ctrl.Store()
			st.SetSidebarOpen(!st.SidebarOpen())
			return m, nil
		case KeyEnter:
			if text := strings.TrimSpace(m.input.Value()); text != "" {
				m.input.Reset()
				return m, m.send(text)
			}
			return m, nil
		}

	case storeChangedMsg:
		m.refreshTranscript()
		cmds = append(cmds, m.waitForChange())

	case notifyMsg:
		style := DimStyle
		if msg.Level == "warn" {
			style = WarningStyle
		}
		m.setNotice(msg.Text, style)
		cmds = append(cmds, m.waitForNote())

	case sendDoneMsg:
		if msg.err != nil {
			switch {
			case errors.Is(msg.err, shell.ErrBusy):
				m.setNotice("still working; type cancel to abort", WarningStyle)
			case errors.Is(msg.err, shell.ErrNoPlan):
				m.setNotice("no pending plan; switch to plan mode first", WarningStyle)
			default:
				m.setNotice(msg.err.Error(), ErrorStyle)
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// send dispatches text to the controller off the update loop.
func (m *Model) send(text string) tea.Cmd {
	mode := m.ctrl.Store().Mode()
	return func() tea.Msg {
		return sendDoneMsg{err: m.ctrl.SendMessage(context.Background(), text, mode, false)}
	}
}

func (m *Model) newSession() tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.ctrl.NewSession(context.Background())}
	}
}

func (m *Model) restoreLatest() tea.Cmd {
	return func() tea.Msg {
		sp, ok := m.ctrl.Store().LatestSavePoint()
		if !ok {
			return notifyMsg{Level: "warn", Text: "no save points yet"}
		}
		if _, err := m.ctrl.RestoreSavePoint(sp); err != nil {
			return sendDoneMsg{err: err}
		}
		return notifyMsg{Level: "info", Text: "restored save point " + shortID(sp.ID)}
	}
}

func (m *Model) cycleMode() {
	st := m.ctrl.Store()
	switch st.Mode() {
	case session.ModeChat:
		st.SetMode(session.ModeImageCreator)
	case session.ModeImageCreator:
		st.SetMode(session.ModeWorkspace)
	default:
		st.SetMode(session.ModeChat)
	}
}

func (m *Model) cycleWorkspaceMode() {
	st := m.ctrl.Store()
	if st.Mode() != session.ModeWorkspace {
		return
	}
	switch st.WorkspaceMode() {
	case session.WorkspaceAsk:
		st.SetWorkspaceMode(session.WorkspacePlan)
	case session.WorkspacePlan:
		st.SetWorkspaceMode(session.WorkspaceAct)
	default:
		st.SetWorkspaceMode(session.WorkspaceAsk)
	}
}

func (m *Model) layout() {
	headerHeight := 1
	statusHeight := 2
	inputHeight := m.input.Height() + 1
	m.viewport = viewport.New(m.width, max(1, m.height-headerHeight-statusHeight-inputHeight))
	m.input.SetWidth(m.width - 2)
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) setNotice(text string, style lipgloss.Style) {
	m.notice = text
	m.noticeStyle = style
}

// View renders the header tabs, transcript, status bar, and input area.
func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m *Model) renderTabs() string {
	mode := m.ctrl.Store().Mode()
	tab := func(label string, active bool) string {
		if active {
			return ActiveTabStyle.Render(label)
		}
		return InactiveTabStyle.Render(label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		tab("Chat", mode == session.ModeChat),
		tab("Image", mode == session.ModeImageCreator),
		tab("Workspace", mode == session.ModeWorkspace),
	)
}

func (m *Model) renderTranscript() string {
	st := m.ctrl.Store()
	msgs := st.Messages()

	var b strings.Builder
	for _, msg := range msgs {
		prefix := UserStyle.Render("you")
		if msg.Role == session.RoleAssistant {
			prefix = AssistantStyle.Render("bosun")
		}
		b.WriteString(prefix)
		if msg.IsVoice {
			b.WriteString(DimStyle.Render(" (voice)"))
		}
		b.WriteString(": ")
		b.WriteString(msg.Content)
		if msg.ImageRef != "" {
			b.WriteString("\n" + DimStyle.Render("image: "+msg.ImageRef))
		}
		b.WriteString("\n\n")
	}

	if p := st.PendingPlan(); p != nil && st.SidebarOpen() {
		b.WriteString(m.renderPlan(p))
	}
	return b.String()
}

func (m *Model) renderPlan(p *session.PendingPlan) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Plan") + "\n")
	for i, step := range p.Steps {
		icon := StepPending
		switch step.Status {
		case session.StepDone:
			icon = StepDone
		case session.StepRunning:
			icon = StepRunning
		case session.StepFailed:
			icon = StepFailed
		}
		b.WriteString(fmt.Sprintf(" %s %d. %s\n", icon, i+1, step.Description))
	}
	return b.String()
}

func (m *Model) renderStatus() string {
	st := m.ctrl.Store()
	bd, limit := m.ctrl.ContextStatus()

	parts := []string{string(st.Mode())}
	if st.Mode() == session.ModeWorkspace {
		parts = append(parts, string(st.WorkspaceMode()))
	}
	if state := m.ctrl.Engine().State(); state != plan.StateIdle {
		parts = append(parts, string(state))
	}

	usage := fmt.Sprintf("context %.0f%% (%d tokens)", limit.Percentage, bd.Total)
	if limit.IsNearLimit {
		usage = WarningStyle.Render(usage)
	}
	parts = append(parts, usage)

	if st.Processing() {
		parts = append(parts, m.spinner.View()+"working")
	}
	if st.AwaitingConfirmation() {
		parts = append(parts, "plan ready: switch to act mode to execute")
	}

	line := StatusBarStyle.Width(m.width).Render(strings.Join(parts, "  |  "))
	notice := ""
	if m.notice != "" {
		notice = m.noticeStyle.Render(m.notice)
	}
	return line + "\n" + notice
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
