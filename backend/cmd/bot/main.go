package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bizgraph-bot/backend/internal/app"
	"bizgraph-bot/backend/internal/telegram"
	"bizgraph-bot/backend/pkg/config"
	"bizgraph-bot/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := app.InitLogger(cfg); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Telegram bot...", zap.String("env", cfg.Env), zap.String("run_mode", cfg.Telegram.RunMode))

	if cfg.Telegram.Token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	sched, err := application.NewScheduler()
	if err != nil {
		log.Fatal("Failed to initialize scheduler", zap.Error(err))
	}

	bot := telegram.New(cfg.Telegram, application.Orchestrator, application.Graph, application.Profile)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})

	log.Info("Bot is running. Press CTRL-C to exit.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Bot stopped with error", zap.Error(err))
		return
	}

	log.Info("Shutting down bot...")
}
