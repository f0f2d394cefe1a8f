package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bosun-sh/bosun/internal/store"
)

func msg(id, content string) Message {
	return Message{ID: id, Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

func TestAppendMessageDeduplicates(t *testing.T) {
	s := NewStore(nil, nil)

	if err := s.AppendMessage(msg("a", "first")); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := s.AppendMessage(msg("a", "second")); err != nil {
		t.Fatalf("duplicate AppendMessage should be silent, got: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(msgs))
	}
	if msgs[0].Content != "first" {
		t.Errorf("Content = %q, want %q (first occurrence wins)", msgs[0].Content, "first")
	}
}

func TestAppendMessageMissingID(t *testing.T) {
	s := NewStore(nil, nil)
	err := s.AppendMessage(Message{Role: RoleUser, Content: "no id"})
	if err != ErrMissingID {
		t.Errorf("err = %v, want ErrMissingID", err)
	}
	if len(s.Messages()) != 0 {
		t.Error("message without ID must not be stored")
	}
}

func TestReplaceMessagesFirstWins(t *testing.T) {
	s := NewStore(nil, nil)

	list := []Message{
		msg("a", "hello"),
		msg("b", "world"),
		msg("a", "shadowed"),
		msg("c", "tail"),
	}
	if err := s.ReplaceMessages(list); err != nil {
		t.Fatalf("ReplaceMessages failed: %v", err)
	}

	got := s.Messages()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	wantOrder := []string{"a", "b", "c"}
	wantContent := []string{"hello", "world", "tail"}
	for i := range got {
		if got[i].ID != wantOrder[i] {
			t.Errorf("order[%d] = %q, want %q", i, got[i].ID, wantOrder[i])
		}
		if got[i].Content != wantContent[i] {
			t.Errorf("content[%d] = %q, want %q", i, got[i].Content, wantContent[i])
		}
	}
}

func TestReplaceMessagesIdempotent(t *testing.T) {
	s := NewStore(nil, nil)
	list := []Message{msg("a", "x"), msg("b", "y")}
	if err := s.ReplaceMessages(list); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	// Running the deduplication pass over an already-clean list must not
	// change anything.
	if err := s.ReplaceMessages(s.Messages()); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if len(s.Messages()) != 2 {
		t.Errorf("len = %d, want 2", len(s.Messages()))
	}
}

func TestSavePointsAppendOnly(t *testing.T) {
	s := NewStore(nil, nil)
	s.AppendSavePoint(SavePoint{ID: "sp1"})
	s.AppendSavePoint(SavePoint{ID: "sp2"})

	sps := s.SavePoints()
	if len(sps) != 2 {
		t.Fatalf("len = %d, want 2", len(sps))
	}
	if sps[0].ID != "sp1" || sps[1].ID != "sp2" {
		t.Errorf("order = %q,%q, want sp1,sp2", sps[0].ID, sps[1].ID)
	}

	latest, ok := s.LatestSavePoint()
	if !ok || latest.ID != "sp2" {
		t.Errorf("LatestSavePoint = %q,%v, want sp2,true", latest.ID, ok)
	}
}

func TestSubscribeNotifiesAndUnsubscribes(t *testing.T) {
	s := NewStore(nil, nil)

	calls := 0
	unsub := s.Subscribe(func() { calls++ })

	if err := s.AppendMessage(msg("a", "x")); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	unsub()
	unsub() // second call is a no-op

	s.SetProcessing(true)
	if calls != 1 {
		t.Errorf("calls after unsubscribe = %d, want 1", calls)
	}
}

func TestBeginProcessingCompareAndSet(t *testing.T) {
	s := NewStore(nil, nil)

	if !s.BeginProcessing() {
		t.Fatal("first BeginProcessing must succeed")
	}
	if s.BeginProcessing() {
		t.Error("second BeginProcessing must fail while in flight")
	}

	s.SetProcessing(false)
	if !s.BeginProcessing() {
		t.Error("BeginProcessing must succeed again after release")
	}
}

func TestBeginProcessingSingleWinner(t *testing.T) {
	s := NewStore(nil, nil)

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- s.BeginProcessing()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	if won != 1 {
		t.Errorf("winners = %d, want exactly 1", won)
	}
}

func TestPersistenceFailureDoesNotBlock(t *testing.T) {
	kv := store.NewMemory()
	kv.FailWrites(true)
	s := NewStore(kv, nil)

	if err := s.AppendMessage(msg("a", "kept in memory")); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if len(s.Messages()) != 1 {
		t.Error("in-memory state must remain authoritative when persistence fails")
	}
}

func TestLoadPersistedRoundTrip(t *testing.T) {
	kv := store.NewMemory()

	s1 := NewStore(kv, nil)
	if err := s1.AppendMessage(msg("a", "persist me")); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	s1.SetMode(ModeWorkspace)
	s1.SetWorkspaceMode(WorkspacePlan)
	s1.AppendSavePoint(SavePoint{ID: "sp1", Description: "checkpoint"})

	s2 := NewStore(kv, nil)
	if err := s2.LoadPersisted(context.Background()); err != nil {
		t.Fatalf("LoadPersisted failed: %v", err)
	}

	if len(s2.Messages()) != 1 || s2.Messages()[0].Content != "persist me" {
		t.Errorf("Messages = %v, want one persisted message", s2.Messages())
	}
	if s2.Mode() != ModeWorkspace {
		t.Errorf("Mode = %q, want workspace", s2.Mode())
	}
	if s2.WorkspaceMode() != WorkspacePlan {
		t.Errorf("WorkspaceMode = %q, want plan", s2.WorkspaceMode())
	}
	if sps := s2.SavePoints(); len(sps) != 1 || sps[0].ID != "sp1" {
		t.Errorf("SavePoints = %v, want sp1", sps)
	}
}

func TestLoadPersistedAbsentKeys(t *testing.T) {
	s := NewStore(store.NewMemory(), nil)
	if err := s.LoadPersisted(context.Background()); err != nil {
		t.Errorf("absent keys must not error, got: %v", err)
	}
}

func TestLoadPersistedMalformed(t *testing.T) {
	kv := store.NewMemory()
	if err := kv.Set(context.Background(), "session/state", "{not json"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s := NewStore(kv, nil)
	if err := s.LoadPersisted(context.Background()); err == nil {
		t.Error("malformed persisted state must error")
	}
}

func TestSnapshotDeepCopiesPlan(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetPendingPlan(&PendingPlan{
		Query: "q",
		Steps: []PlanStep{{Description: "a", Status: StepPending}},
	})

	snap := s.Snapshot()
	snap.PendingPlan.Steps[0].Status = StepDone

	if s.PendingPlan().Steps[0].Status != StepPending {
		t.Error("mutating a snapshot must not reach store state")
	}
}
