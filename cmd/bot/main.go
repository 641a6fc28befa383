package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/broker"
	"github.com/Guizzs26/go-sync-bridge/internal/config"
	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/notify"
	"github.com/Guizzs26/go-sync-bridge/internal/remote"
	"github.com/Guizzs26/go-sync-bridge/internal/service"
	"github.com/Guizzs26/go-sync-bridge/internal/telegram"
	"github.com/Guizzs26/go-sync-bridge/pkg/infra"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger, closeLog := infra.SetupLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.ValidateBot(); err != nil {
		logger.Error("CRITICAL: invalid bot configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("CRITICAL: shared store unavailable", "error", err)
		return 1
	}
	defer store.Close()

	// The bot may start before the desktop ever ran
	if err := store.Migrate(ctx); err != nil {
		logger.Error("CRITICAL: schema migration failed", "error", err)
		return 1
	}

	var api *tgbotapi.BotAPI
	if cfg.BotToken != "" {
		api, err = tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			logger.Error("CRITICAL: telegram login failed", "error", err)
			return 1
		}
		logger.Info("Authorized on telegram", "bot", api.Self.UserName)
	}

	notifier, closer := newNotifier(cfg, api, logger)
	defer closer.Close()

	outbound := service.NewOutboundDrain(store, notifier, cfg.BatchSize, logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, "bot", store.Ping, logger)

	logger.Info("Bot sync service started",
		"pid", os.Getpid(),
		"transport", notifier.Name(),
		"dialect", store.Dialect().Name,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outbound.Run(ctx, cfg.OutboundPollInterval)
	}()
	if api != nil {
		commands := telegram.NewCommands(remote.NewRequester(store, cfg.PairingCodeLength, logger), logger)
		bot := telegram.NewBot(api, commands, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Run(ctx)
		}()
	} else {
		logger.Warn("BOT_TOKEN not set, chat commands disabled")
	}
	wg.Wait()

	logger.Info("Shutdown complete")
	return 0
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newNotifier(cfg *config.Config, api *tgbotapi.BotAPI, logger *slog.Logger) (notify.Notifier, io.Closer) {
	switch cfg.NotifyTransport {
	case config.TransportAMQP:
		n := broker.NewNotifier(
			broker.DialRabbitMQ(cfg.RabbitMQURL, cfg.NotifyExchange, logger),
			infra.NewBackoff(1*time.Second, 60*time.Second, 2.0),
			logger,
		)
		return n, n
	case config.TransportLog:
		return notify.NewLogNotifier(logger), nopCloser{}
	default:
		return telegram.NewNotifier(api, logger), nopCloser{}
	}
}
