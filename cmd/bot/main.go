package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk/deskbot/internal/bot"
	"github.com/opsdesk/deskbot/internal/catalog"
	"github.com/opsdesk/deskbot/internal/dialogue"
	"github.com/opsdesk/deskbot/internal/health"
	"github.com/opsdesk/deskbot/internal/nlu"
	"github.com/opsdesk/deskbot/internal/servicenow"
	"github.com/opsdesk/deskbot/internal/session"
	"github.com/opsdesk/deskbot/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize session store
	var store session.Store
	switch cfg.Session.Backend {
	case "redis":
		logger.Info("Using Redis session store", zap.String("addr", cfg.Redis.Addr))
		store = session.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	case "postgres":
		logger.Info("Using PostgreSQL session store")
		store, err = session.NewPostgresStore(session.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize session store", zap.Error(err))
		}
	default:
		logger.Info("Using in-memory session store")
		store = session.NewMemoryStore()
	}
	defer store.Close()

	// Initialize classifier
	var classifier nlu.Classifier
	if cfg.Classifier.Provider == "gpt" {
		classifier = nlu.NewGPTClassifier(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			logger,
		)
	} else {
		classifier = nlu.NewRuleClassifier()
	}

	// Initialize ticketing backend gateway and action catalog
	gateway := servicenow.NewClient(
		cfg.ServiceNow.Instance,
		cfg.ServiceNow.Username,
		cfg.ServiceNow.Password,
		cfg.ServiceNow.Timeout,
		logger,
	)
	actions := catalog.New(gateway)

	// Initialize dialogue engine
	engine := dialogue.NewEngine(store, classifier, actions, dialogue.Config{
		ConfidenceThreshold: cfg.Classifier.MinConfidence,
		MaxTurns:            cfg.Dialogue.MaxTurns,
		SessionTTL:          cfg.Session.TTL,
		ClassifyTimeout:     cfg.Dialogue.ClassifyTimeout,
		BackendTimeout:      cfg.Dialogue.BackendTimeout,
	}, logger)

	// Start health endpoint
	healthSrv := health.NewServer(cfg.Health.Addr, logger)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Health server shutdown failed", zap.Error(err))
		}
	}()

	// Initialize and start the bot
	b, err := bot.New(cfg.Slack.BotToken, cfg.Slack.AppToken, engine, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	if err := b.Start(context.Background()); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
