// Package app assembles the triage service from configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/kontify-triage/internal/assistant"
	"github.com/xaenox/kontify-triage/internal/classifier"
	"github.com/xaenox/kontify-triage/internal/leads"
	"github.com/xaenox/kontify-triage/internal/llm"
	"github.com/xaenox/kontify-triage/internal/scheduler"
	"github.com/xaenox/kontify-triage/internal/session"
	"github.com/xaenox/kontify-triage/internal/storage"
	"github.com/xaenox/kontify-triage/internal/triage"
	"github.com/xaenox/kontify-triage/pkg/config"
)

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     storage.Storage
	Leads     *leads.Service
	Sessions  *session.Manager
	Scheduler *scheduler.Scheduler
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := OpenStorage(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		OpenAI: llm.OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			JSONMode:    true,
		},
		YandexOAuthToken: cfg.LLM.YandexOAuthToken,
		YandexFolderID:   cfg.LLM.YandexFolderID,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if cfg.LLM.APIKey == "" && cfg.LLM.YandexOAuthToken == "" {
		logger.Warn("No LLM credential configured, every answer will be the fallback message")
	}

	funnel := leads.NewService(store, logger.Named("leads"))
	generator := assistant.NewGenerator(client, logger.Named("assistant"),
		assistant.WithTimeout(cfg.LLM.Timeout),
		assistant.WithJurisdiction(cfg.LLM.Jurisdiction))

	sessions := session.NewManager(session.Deps{
		Store:      store,
		Generator:  generator,
		Classifier: classifier.NewKeywordClassifier(),
		Summaries:  triage.NewBuilder(),
		Funnel:     funnel,
		Logger:     logger.Named("session"),
	}, session.Config{
		MaxQuestions:        cfg.Session.MaxQuestions,
		ContactRequestDelay: cfg.Session.ContactRequestDelay,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Leads:     funnel,
		Sessions:  sessions,
		Scheduler: scheduler.New(sessions, cfg.Scheduler.SweepSpec, cfg.Session.IdleTTL, logger.Named("scheduler")),
	}, nil
}

// OpenStorage returns the backend named by cfg.Driver.
func OpenStorage(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	case config.DriverPostgres:
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
		store, err := storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		logger.Info("Using SQLite storage", zap.String("path", cfg.SQLitePath))
		store, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	case config.DriverRedis:
		logger.Info("Using Redis storage", zap.Duration("ttl", cfg.RedisTTL))
		store, err := storage.NewRedisStorage(ctx, cfg.RedisURL, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Start launches background work.
func (a *App) Start() error {
	return a.Scheduler.Start()
}

// Close stops background work, tears every session down and closes the
// store.
func (a *App) Close() {
	a.Scheduler.Stop()
	a.Sessions.CloseAll()
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close storage", zap.Error(err))
	}
}
