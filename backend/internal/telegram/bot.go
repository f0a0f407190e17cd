package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"bizgraph-bot/backend/pkg/config"
	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

var botCommands = []tele.Command{
	{Text: "start", Description: "Introduction"},
	{Text: "help", Description: "What I understand"},
	{Text: "products", Description: "List the product catalog"},
	{Text: "export", Description: "Download transactions as CSV"},
	{Text: "reset", Description: "Forget our conversation"},
}

// Bot owns the Telegram connection and the worker pool behind it
type Bot struct {
	cfg      config.TelegramConfig
	handlers *Handlers
	logger   *zap.Logger
}

// New creates a bot; handlers must not be nil
func New(cfg config.TelegramConfig, convo Conversation, catalog Catalog, profile *config.Profile) *Bot {
	return &Bot{
		cfg:      cfg,
		handlers: NewHandlers(convo, catalog, profile, nil),
		logger:   logger.Get(),
	}
}

// Run connects to Telegram and serves updates until ctx is done
func (b *Bot) Run(ctx context.Context) error {
	if strings.TrimSpace(b.cfg.Token) == "" {
		return apperrors.NewConfigMissingRequired("TELEGRAM_BOT_TOKEN")
	}

	pool, err := ants.NewPool(b.cfg.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			b.logger.Error("Panic in message worker", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	b.handlers.pool = pool
	b.handlers.SetBaseContext(ctx)

	poller := BuildPoller(b.cfg)
	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       b.cfg.Token,
		Poller:      poller,
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			b.logger.Error("Telegram handler error", zap.Error(err))
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	switch p := poller.(type) {
	case *tele.Webhook:
		b.logger.Info("Telegram webhook mode",
			zap.String("listen", p.Listen),
			zap.String("public_url", p.Endpoint.PublicURL),
			zap.Duration("duration", time.Since(start)),
		)
	default:
		b.logger.Info("Telegram polling mode",
			zap.Duration("timeout", b.cfg.LongPollTimeout),
			zap.Duration("duration", time.Since(start)),
		)
		if err := bot.RemoveWebhook(); err != nil {
			b.logger.Warn("Failed to delete webhook", zap.Error(err))
		}
	}

	b.register(bot)

	if err := bot.SetCommands(botCommands); err != nil {
		b.logger.Warn("Failed to set bot commands", zap.Error(err))
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()
	b.logger.Info("Telegram bot started", zap.String("username", bot.Me.Username), zap.Int("workers", b.cfg.Workers))

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
	case <-runDone:
		runErr = errors.New("telegram: poller stopped unexpectedly")
	}

	b.logger.Info("Telegram bot stopped", zap.Int("running_workers", pool.Running()))
	return runErr
}

func (b *Bot) register(bot *tele.Bot) {
	h := b.handlers
	bot.Use(RecoverMiddleware)
	bot.Use(LoggingMiddleware)
	bot.Use(AllowlistMiddleware(b.cfg.AllowedUserIDs, h.OnRejected))
	bot.Use(RateLimitMiddleware(b.cfg.RateLimitInterval, h.OnRateLimited))

	bot.Handle("/start", h.OnStart)
	bot.Handle("/help", h.OnHelp)
	bot.Handle("/products", h.OnProducts)
	bot.Handle("/export", h.OnExport)
	bot.Handle("/reset", h.OnReset)
	bot.Handle(tele.OnText, h.OnText)
}
