package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/bosun-sh/bosun/internal/capability"
)

// legacyKeyRenames maps keys written by pre-1.0 releases to their current
// locations. Migration copies the value and removes the legacy key.
var legacyKeyRenames = map[string]string{
	"chat/history":     "session/state",
	"chat/checkpoints": "session/savepoints",
}

// deleter is implemented by backends that support key removal. Migration
// leaves legacy keys in place on backends that do not.
type deleter interface {
	Delete(ctx context.Context, key string) error
}

// Migrator moves legacy persisted data to the current key layout. It runs
// once at startup; partial failure is reported, never fatal.
type Migrator struct {
	kv     capability.KeyValue
	logger *zap.Logger
}

// NewMigrator creates a Migrator over the given key-value store.
func NewMigrator(kv capability.KeyValue, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{kv: kv, logger: logger}
}

// Migrate renames legacy keys to the current layout. Each cleaned item and
// each per-key failure is recorded in the report; Success is true only when
// no errors occurred.
func (m *Migrator) Migrate(ctx context.Context) (capability.MigrationReport, error) {
	report := capability.MigrationReport{Success: true}

	for oldKey, newKey := range legacyKeyRenames {
		value, ok, err := m.kv.Get(ctx, oldKey)
		if err != nil {
			report.Success = false
			report.Errors = append(report.Errors, fmt.Sprintf("read %s: %v", oldKey, err))
			continue
		}
		if !ok {
			continue
		}

		// Never clobber data already written under the new key.
		if _, exists, err := m.kv.Get(ctx, newKey); err != nil {
			report.Success = false
			report.Errors = append(report.Errors, fmt.Sprintf("read %s: %v", newKey, err))
			continue
		} else if !exists {
			if err := m.kv.Set(ctx, newKey, value); err != nil {
				report.Success = false
				report.Errors = append(report.Errors, fmt.Sprintf("write %s: %v", newKey, err))
				continue
			}
		}

		if d, canDelete := m.kv.(deleter); canDelete {
			if err := d.Delete(ctx, oldKey); err != nil {
				report.Success = false
				report.Errors = append(report.Errors, fmt.Sprintf("delete %s: %v", oldKey, err))
				continue
			}
		}

		report.CleanedItems = append(report.CleanedItems, oldKey)
		m.logger.Info("migrated legacy key",
			zap.String("from", oldKey), zap.String("to", newKey))
	}

	return report, nil
}

// ModelRecord is a persisted model selection. Records live under the model/
// key prefix.
type ModelRecord struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

// ValidateModelRecords checks that every persisted model-selection record is
// parseable. It returns one finding per broken record; findings are surfaced
// as warnings and never block startup.
func ValidateModelRecords(ctx context.Context, kv capability.KeyValue) ([]string, error) {
	keys, err := kv.List(ctx, "model/")
	if err != nil {
		return nil, fmt.Errorf("listing model records: %w", err)
	}

	var findings []string
	for _, key := range keys {
		raw, ok, err := kv.Get(ctx, key)
		if err != nil {
			findings = append(findings, fmt.Sprintf("%s: read failed: %v", key, err))
			continue
		}
		if !ok {
			continue
		}
		var rec ModelRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			findings = append(findings, fmt.Sprintf("%s: unparseable record: %v", key, err))
			continue
		}
		if rec.Name == "" {
			findings = append(findings, fmt.Sprintf("%s: record has no model name", key))
		}
	}
	return findings, nil
}
