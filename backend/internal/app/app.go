package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/adapter"
	"bizgraph-bot/backend/internal/agent"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/internal/ledger"
	"bizgraph-bot/backend/internal/memory"
	"bizgraph-bot/backend/internal/scheduler"
	"bizgraph-bot/backend/internal/tools"
	"bizgraph-bot/backend/pkg/config"
	"bizgraph-bot/backend/pkg/logger"
)

// Application holds every long-lived component shared by the binaries
type Application struct {
	Config       *config.Config
	Profile      *config.Profile
	Driver       neo4j.DriverWithContext
	Graph        *graph.Repository
	Ledger       *ledger.Ledger
	Store        memory.Store
	Sessions     *memory.Sessions
	LLM          *adapter.LLMAdapter
	Executor     *tools.Executor
	Orchestrator *agent.Orchestrator

	logger *zap.Logger
}

// InitLogger initializes the global logger from config
func InitLogger(cfg *config.Config) error {
	var opts []logger.FileOptions
	if cfg.Log.File != "" {
		opts = append(opts, logger.FileOptions{
			Filename:   cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
	}
	return logger.Init(cfg.Env, opts...)
}

// New connects to Neo4j, the optional ledger and the session store, and builds the agent.
// Callers must Close the returned application.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.Get()

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load business profile: %w", err)
	}

	a := &Application{Config: cfg, Profile: profile, logger: log}

	driver, err := graph.Connect(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
	if err != nil {
		return nil, err
	}
	a.Driver = driver
	a.Graph = graph.NewRepository(driver, cfg.Neo4j.Database)

	if err := a.Graph.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to ensure graph schema: %w", err)
	}

	if cfg.LedgerEnabled() {
		if err := ledger.Migrate(cfg.Ledger.DSN); err != nil {
			log.Warn("Ledger migrations failed, continuing without ledger", zap.Error(err))
		} else if l, err := ledger.Open(ctx, cfg.Ledger.DSN); err != nil {
			log.Warn("Ledger unavailable, continuing without it", zap.Error(err))
		} else {
			a.Ledger = l
		}
	}

	if strings.TrimSpace(cfg.Memory.Path) == "" {
		a.Store = memory.NewInMemoryStore()
		log.Info("Session memory kept in process")
	} else {
		store, err := memory.NewBoltStore(cfg.Memory.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = store
		log.Info("Session memory opened", zap.String("path", cfg.Memory.Path))
	}
	a.Sessions = memory.NewSessions(a.Store, cfg.Memory.HistoryLimit, cfg.Memory.ContextTurns)

	a.LLM = adapter.NewLLMAdapter(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout,
		adapter.WithTemperature(cfg.LLM.Temperature))

	a.Executor = tools.NewExecutor(a.Graph, a.LLM, profile, cfg.AllowGraphWrites)
	if a.Ledger != nil {
		a.Executor.SetLedger(a.Ledger)
	}

	orch, err := agent.NewOrchestrator(a.LLM, a.Executor, a.Sessions, profile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}
	orch.SetConversationLog(a.Graph)
	a.Orchestrator = orch

	log.Info("Application initialized",
		zap.String("business", profile.BusinessName),
		zap.String("model", cfg.LLM.Model),
		zap.Bool("ledger", a.Ledger != nil),
		zap.Bool("graph_writes", cfg.AllowGraphWrites),
	)
	return a, nil
}

// NewScheduler builds session maintenance from the memory settings
func (a *Application) NewScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(a.Sessions, scheduler.Options{
		Schedule:    a.Config.Memory.PruneSchedule,
		Retention:   time.Duration(a.Config.Memory.RetentionDays) * 24 * time.Hour,
		MaxSessions: a.Config.Memory.MaxSessions,
		Location:    a.Profile.Location(),
	})
}

// Close releases every connection the application opened
func (a *Application) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.logger.Warn("Failed to close session store", zap.Error(err))
		}
	}
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			a.logger.Warn("Failed to close ledger", zap.Error(err))
		}
	}
	if a.Driver != nil {
		if err := a.Driver.Close(context.Background()); err != nil {
			a.logger.Warn("Failed to close Neo4j driver", zap.Error(err))
		}
	}
}
