package store

import (
	"context"
	"testing"
)

func TestMigrateRenamesLegacyKeys(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()
	if err := kv.Set(ctx, "chat/history", `{"messages":[]}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	report, err := NewMigrator(kv, nil).Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if !report.Success {
		t.Errorf("report = %+v, want success", report)
	}
	if len(report.CleanedItems) != 1 || report.CleanedItems[0] != "chat/history" {
		t.Errorf("CleanedItems = %v", report.CleanedItems)
	}

	if _, ok, _ := kv.Get(ctx, "chat/history"); ok {
		t.Error("legacy key must be deleted")
	}
	value, ok, _ := kv.Get(ctx, "session/state")
	if !ok || value != `{"messages":[]}` {
		t.Errorf("session/state = %q,%v", value, ok)
	}
}

func TestMigrateNeverClobbersNewKey(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()
	if err := kv.Set(ctx, "chat/history", "old"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set(ctx, "session/state", "current"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := NewMigrator(kv, nil).Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	value, _, _ := kv.Get(ctx, "session/state")
	if value != "current" {
		t.Errorf("session/state = %q, existing data must win", value)
	}
}

func TestMigrateNothingToDo(t *testing.T) {
	report, err := NewMigrator(NewMemory(), nil).Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if !report.Success || len(report.CleanedItems) != 0 {
		t.Errorf("report = %+v, want clean success", report)
	}
}

func TestValidateModelRecords(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()
	if err := kv.Set(ctx, "model/good", `{"provider":"anthropic","name":"opus"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set(ctx, "model/broken", "{nope"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set(ctx, "model/unnamed", `{"provider":"anthropic"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	findings, err := ValidateModelRecords(ctx, kv)
	if err != nil {
		t.Fatalf("ValidateModelRecords failed: %v", err)
	}
	if len(findings) != 2 {
		t.Errorf("findings = %v, want 2 (broken and unnamed)", findings)
	}
}
