package budget

import (
	"strings"
	"testing"
	"time"

	"github.com/bosun-sh/bosun/internal/session"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcdefgh", 2},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestCheckLimit(t *testing.T) {
	m := New() // ceiling 8000, threshold 0.8

	status := m.CheckLimit(6500)
	if status.Percentage != 81.25 {
		t.Errorf("Percentage = %v, want 81.25", status.Percentage)
	}
	if !status.IsNearLimit {
		t.Error("6500/8000 should be near the limit")
	}

	status = m.CheckLimit(6399)
	if status.IsNearLimit {
		t.Error("6399/8000 should not be near the limit")
	}

	// Threshold boundary is inclusive.
	status = m.CheckLimit(6400)
	if !status.IsNearLimit {
		t.Error("6400/8000 should be near the limit")
	}
}

func TestBreakdownCategories(t *testing.T) {
	m := New()
	msgs := []session.Message{
		{ID: "a", Role: session.RoleUser, Content: strings.Repeat("x", 40)},
		{ID: "b", Role: session.RoleAssistant, Content: strings.Repeat("y", 40)},
	}
	attachments := []session.Attachment{{Name: "notes.txt", Content: strings.Repeat("z", 80)}}

	bd := m.Breakdown(msgs, strings.Repeat("s", 20), attachments)
	if bd.Messages != 20 {
		t.Errorf("Messages = %d, want 20", bd.Messages)
	}
	if bd.System != 5 {
		t.Errorf("System = %d, want 5", bd.System)
	}
	if bd.Files != 20 {
		t.Errorf("Files = %d, want 20", bd.Files)
	}
	if bd.Total != 45 {
		t.Errorf("Total = %d, want 45", bd.Total)
	}
}

func trimFixture(n int) []session.Message {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	msgs := make([]session.Message, n)
	for i := range msgs {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		msgs[i] = session.Message{
			ID:        string(rune('a' + i)),
			Role:      role,
			Content:   strings.Repeat("w", 100),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func TestTrimNoOpUnderMinimum(t *testing.T) {
	m := New(WithCeiling(1))
	msgs := trimFixture(5)
	if got := m.Trim(msgs); len(got) != 5 {
		t.Errorf("len = %d, want 5 (never trims at or below minimum)", len(got))
	}
}

func TestTrimNoOpUnderCeiling(t *testing.T) {
	m := New()
	msgs := trimFixture(10)
	if got := m.Trim(msgs); len(got) != 10 {
		t.Errorf("len = %d, want 10 (under ceiling)", len(got))
	}
}

func TestTrimKeepsRatioChronological(t *testing.T) {
	m := New(WithCeiling(10))
	msgs := trimFixture(10)

	got := m.Trim(msgs)
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7 (floor of 0.7*10)", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatal("kept messages must be in chronological order")
		}
	}
}

func TestTrimLowerBound(t *testing.T) {
	m := New(WithCeiling(10))
	msgs := trimFixture(6) // floor(0.7*6)=4, clamped up to 5
	if got := m.Trim(msgs); len(got) != 5 {
		t.Errorf("len = %d, want 5 (lower bound)", len(got))
	}
}

func TestTrimDeterministic(t *testing.T) {
	m := New(WithCeiling(10))
	msgs := trimFixture(12)

	a := m.Trim(msgs)
	b := m.Trim(msgs)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("result differs at %d: %q vs %q", i, a[i].ID, b[i].ID)
		}
	}
}

func TestTrimPrefersSignalMessages(t *testing.T) {
	m := New(WithCeiling(10))
	msgs := trimFixture(12)
	// An early assistant message would normally be dropped first; the
	// keyword bonuses keep it.
	msgs[1].Content = "important: the build failed with an error. " + msgs[1].Content

	got := m.Trim(msgs)
	found := false
	for _, msg := range got {
		if msg.ID == msgs[1].ID {
			found = true
		}
	}
	if !found {
		t.Error("message flagged important should survive trimming")
	}
}

func TestScoreMessageWeights(t *testing.T) {
	user := session.Message{Role: session.RoleUser, Content: "hi"}
	assistant := session.Message{Role: session.RoleAssistant, Content: "hi"}
	if scoreMessage(user, 0, 10) <= scoreMessage(assistant, 0, 10) {
		t.Error("user messages must outscore assistant messages at equal position")
	}

	act := session.Message{Role: session.RoleUser, WorkspaceMode: session.WorkspaceAct, Content: "x"}
	ask := session.Message{Role: session.RoleUser, WorkspaceMode: session.WorkspaceAsk, Content: "x"}
	if scoreMessage(act, 0, 10) <= scoreMessage(ask, 0, 10) {
		t.Error("act messages must outscore ask messages at equal position")
	}

	early := session.Message{Role: session.RoleUser, Content: "x"}
	late := early
	if scoreMessage(late, 9, 10) <= scoreMessage(early, 0, 10) {
		t.Error("recency must raise the score")
	}
}
