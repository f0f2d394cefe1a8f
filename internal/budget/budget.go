// Package budget computes context-window token usage and prunes message
// history to respect a hard ceiling. It is never the source of truth for
// message content; every result is recomputed from the state it is handed.
package budget

import (
	"sort"
	"strings"

	"github.com/bosun-sh/bosun/internal/capability"
	"github.com/bosun-sh/bosun/internal/session"
)

// Defaults for the budget manager. The ceiling is the hard token limit for
// history sent to a text generator; NearLimitThreshold is the fraction of the
// ceiling at which usage is flagged as near the limit.
const (
	DefaultCeiling       = 8000
	NearLimitThreshold   = 0.8
	DefaultKeepRatio     = 0.7
	DefaultMinKeep       = 5
	defaultCharsPerToken = 4
)

// Breakdown partitions token usage by category. It is derived state,
// recomputed on demand and never stored.
type Breakdown struct {
	Messages   int
	System     int
	Files      int
	Total      int
	Percentage float64
}

// LimitStatus reports usage against the ceiling.
type LimitStatus struct {
	Percentage  float64
	IsNearLimit bool
}

// Manager answers "how much of the budget is used" and "what should be
// dropped". All methods are pure functions of their inputs.
type Manager struct {
	counter   capability.TokenCounter
	ceiling   int
	threshold float64
	keepRatio float64
	minKeep   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithCeiling overrides the default token ceiling.
func WithCeiling(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.ceiling = n
		}
	}
}

// WithNearLimitThreshold overrides the near-limit fraction (0..1].
func WithNearLimitThreshold(f float64) Option {
	return func(m *Manager) {
		if f > 0 && f <= 1 {
			m.threshold = f
		}
	}
}

// WithKeepRatio overrides the fraction of messages kept by Trim (0..1].
func WithKeepRatio(f float64) Option {
	return func(m *Manager) {
		if f > 0 && f <= 1 {
			m.keepRatio = f
		}
	}
}

// WithMinKeep overrides the minimum number of messages Trim retains.
func WithMinKeep(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.minKeep = n
		}
	}
}

// WithCounter injects the token-counting capability.
func WithCounter(c capability.TokenCounter) Option {
	return func(m *Manager) {
		if c != nil {
			m.counter = c
		}
	}
}

// New creates a Manager with the default estimator and ceiling, then applies
// any options.
func New(opts ...Option) *Manager {
	m := &Manager{
		counter:   EstimateTokens,
		ceiling:   DefaultCeiling,
		threshold: NearLimitThreshold,
		keepRatio: DefaultKeepRatio,
		minKeep:   DefaultMinKeep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ceiling returns the configured token ceiling.
func (m *Manager) Ceiling() int {
	return m.ceiling
}

// EstimateTokens is the default token counter: roughly four characters per
// token, counted over runes. The real counting algorithm is injectable; this
// calibration only has to be stable, not exact.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	for range s {
		n++
	}
	return n / defaultCharsPerToken
}

// Breakdown computes token usage for messages, system instructions, and file
// attachments against the ceiling.
func (m *Manager) Breakdown(messages []session.Message, systemPrompt string, attachments []session.Attachment) Breakdown {
	b := Breakdown{System: m.counter(systemPrompt)}
	for _, msg := range messages {
		b.Messages += m.counter(msg.Content)
	}
	for _, a := range attachments {
		b.Files += m.counter(a.Content)
	}
	b.Total = b.Messages + b.System + b.Files
	b.Percentage = float64(b.Total) / float64(m.ceiling) * 100
	return b
}

// CheckLimit reports usage of total tokens against the ceiling. IsNearLimit
// is true once usage reaches the near-limit threshold.
func (m *Manager) CheckLimit(total int) LimitStatus {
	pct := float64(total) / float64(m.ceiling) * 100
	return LimitStatus{
		Percentage:  pct,
		IsNearLimit: float64(total) >= float64(m.ceiling)*m.threshold,
	}
}

// messagesTotal sums message content tokens.
func (m *Manager) messagesTotal(messages []session.Message) int {
	total := 0
	for _, msg := range messages {
		total += m.counter(msg.Content)
	}
	return total
}

// Trim prunes messages to fit the ceiling. It is a no-op when five or fewer
// messages are present or usage is already under the ceiling. Otherwise it
// keeps the top max(5, floor(0.7*N)) messages by priority score and returns
// the kept subset re-sorted into chronological order: display and replay
// ordering is always chronological regardless of selection order.
// Deterministic for identical input.
func (m *Manager) Trim(messages []session.Message) []session.Message {
	n := len(messages)
	if n <= m.minKeep {
		return messages
	}
	if m.messagesTotal(messages) <= m.ceiling {
		return messages
	}

	keep := int(float64(n) * m.keepRatio)
	if keep < m.minKeep {
		keep = m.minKeep
	}

	type scored struct {
		msg   session.Message
		index int
		score float64
	}
	ranked := make([]scored, n)
	for i, msg := range messages {
		ranked[i] = scored{msg: msg, index: i, score: scoreMessage(msg, i, n)}
	}

	// Stable sort keeps original order as the tie-break.
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})
	kept := ranked[:keep]

	sort.SliceStable(kept, func(a, b int) bool {
		ta, tb := kept[a].msg.Timestamp, kept[b].msg.Timestamp
		if ta.Equal(tb) {
			return kept[a].index < kept[b].index
		}
		return ta.Before(tb)
	})

	out := make([]session.Message, keep)
	for i, s := range kept {
		out[i] = s.msg
	}
	return out
}

// Role, sub-mode, and content-signal weights for trim scoring.
const (
	weightUser      = 10.0
	weightAssistant = 5.0
	weightAct       = 6.0
	weightPlan      = 4.0
	weightAsk       = 1.0
	weightRecency   = 10.0
)

// contentSignals are keyword bonuses for messages that mark task completion,
// todos, plans, errors, or explicit importance.
var contentSignals = []struct {
	keyword string
	bonus   float64
}{
	{"important", 5},
	{"error", 4},
	{"failed", 4},
	{"completed", 4},
	{"done", 3},
	{"todo", 3},
	{"plan", 3},
}

// scoreMessage combines role weight, workspace sub-mode weight, a linear
// recency term by original position, and content-signal bonuses.
func scoreMessage(msg session.Message, index, total int) float64 {
	var score float64

	switch msg.Role {
	case session.RoleUser:
		score += weightUser
	case session.RoleAssistant:
		score += weightAssistant
	}

	switch msg.WorkspaceMode {
	case session.WorkspaceAct:
		score += weightAct
	case session.WorkspacePlan:
		score += weightPlan
	case session.WorkspaceAsk:
		score += weightAsk
	}

	if total > 1 {
		score += weightRecency * float64(index) / float64(total-1)
	}

	content := strings.ToLower(msg.Content)
	for _, sig := range contentSignals {
		if strings.Contains(content, sig.keyword) {
			score += sig.bonus
		}
	}

	return score
}
