package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xaenox/kontify-triage/internal/app"
	"github.com/xaenox/kontify-triage/internal/bot"
	"github.com/xaenox/kontify-triage/pkg/config"
	"github.com/xaenox/kontify-triage/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer log.Sync()

	if cfg.Telegram.Token == "" {
		log.Fatal("TELEGRAM_TOKEN is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	b, err := bot.New(cfg.Telegram.Token, cfg.Telegram.Debug, cfg.Telegram.Timeout, a.Sessions, log.Named("bot"))
	if err != nil {
		log.Fatal("Failed to create bot", zap.Error(err))
	}

	if err := b.Start(ctx); err != nil {
		log.Error("Bot error", zap.Error(err))
	}
	log.Info("Bot stopped")
}
