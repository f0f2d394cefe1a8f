package cli

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/bosun-sh/bosun/internal/budget"
	"github.com/bosun-sh/bosun/internal/capability"
	"github.com/bosun-sh/bosun/internal/config"
	"github.com/bosun-sh/bosun/internal/generate"
	"github.com/bosun-sh/bosun/internal/log"
	"github.com/bosun-sh/bosun/internal/plan"
	"github.com/bosun-sh/bosun/internal/savepoint"
	"github.com/bosun-sh/bosun/internal/session"
	"github.com/bosun-sh/bosun/internal/shell"
	"github.com/bosun-sh/bosun/internal/store"
	"github.com/bosun-sh/bosun/internal/voice"
	"github.com/bosun-sh/bosun/prompts"
)

// app bundles the wired components a command needs, plus the resources it
// must release.
type app struct {
	cfg    *config.Config
	ctrl   *shell.Controller
	logger *zap.Logger
	db     *store.SQLite
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// buildApp wires the full shell stack for projectRoot: config, logger, event
// log, SQLite persistence, session store, budget, engine, save points, and
// the controller. notify receives user-facing warnings; nil drops them.
func buildApp(projectRoot string, notify shell.Notifier) (*app, error) {
	cfg, err := config.ReadConfig(projectRoot)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	logger, err := log.NewLogger(projectRoot, debug)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	events, err := log.NewEventLog(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("creating event log: %w", err)
	}

	dbPath := filepath.Join(projectRoot, ".bosun", cfg.Storage.Database)
	db, err := store.NewSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sessionStore := session.NewStore(db, logger)
	budgetMgr := budget.New(
		budget.WithCeiling(cfg.Context.Ceiling),
		budget.WithNearLimitThreshold(cfg.Context.NearLimitThreshold),
		budget.WithKeepRatio(cfg.Context.KeepRatio),
		budget.WithMinKeep(cfg.Context.MinKeep),
	)
	gen := generate.NewClaude(cfg.Model)
	engine := plan.NewEngine(gen, cfg.RequestTimeout(), logger)
	saves := savepoint.NewManager(sessionStore, budgetMgr, prompts.ChatSystemPrompt, logger)

	var speaker capability.Voice
	if cfg.Voice.Enabled {
		sp, err := voice.NewSpeaker(logger)
		if err != nil {
			logger.Warn("voice disabled", zap.Error(err))
		} else {
			speaker = sp
		}
	}

	ctrl := shell.NewController(shell.Options{
		Store:      sessionStore,
		Engine:     engine,
		Budget:     budgetMgr,
		SavePoints: saves,
		Generator:  gen,
		Voice:      speaker,
		Migrator:   store.NewMigrator(db, logger),
		KV:         db,
		Timeout:    cfg.RequestTimeout(),
		Logger:     logger,
		Events:     events,
		Notify:     notify,
	})

	return &app{cfg: cfg, ctrl: ctrl, logger: logger, db: db}, nil
}
