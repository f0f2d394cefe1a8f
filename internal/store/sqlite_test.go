package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.Get(ctx, "missing"); err != nil || ok {
		t.Errorf("Get(missing) = %v,%v, want false,nil", ok, err)
	}

	if err := db.Set(ctx, "session/state", `{"messages":[]}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok, err := db.Get(ctx, "session/state")
	if err != nil || !ok {
		t.Fatalf("Get = %v,%v", ok, err)
	}
	if value != `{"messages":[]}` {
		t.Errorf("value = %q", value)
	}
}

func TestSQLiteLastWriteWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, "k", "first"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := db.Set(ctx, "k", "second"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	value, _, err := db.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "second" {
		t.Errorf("value = %q, want second", value)
	}
}

func TestSQLiteDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := db.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := db.Get(ctx, "k"); ok {
		t.Error("deleted key must be absent")
	}
	if err := db.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting an absent key must be a no-op, got: %v", err)
	}
}

func TestSQLiteListPrefix(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, k := range []string{"model/b", "model/a", "session/state"} {
		if err := db.Set(ctx, k, "v"); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	keys, err := db.List(ctx, "model/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "model/a" || keys[1] != "model/b" {
		t.Errorf("keys = %v, want [model/a model/b]", keys)
	}
}
