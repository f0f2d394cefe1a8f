// Package log provides the structured zap logger and the append-only JSONL
// session event log, both written under the .bosun directory.
package log

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// dotDir is the per-project state directory.
const dotDir = ".bosun"

// NewLogger creates a zap logger writing JSON lines to .bosun/bosun.log
// inside dir. Debug enables debug level and development stack traces.
func NewLogger(dir string, debug bool) (*zap.Logger, error) {
	stateDir := filepath.Join(dir, dotDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", dotDir, err)
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{filepath.Join(stateDir, "bosun.log")}
	cfg.ErrorOutputPaths = cfg.OutputPaths
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
