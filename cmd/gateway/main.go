// Command gateway delivers notifications published on the amqp transport to
// Telegram, so the bot process never has to reach the chat network itself.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/broker"
	"github.com/Guizzs26/go-sync-bridge/internal/config"
	"github.com/Guizzs26/go-sync-bridge/internal/telegram"
	"github.com/Guizzs26/go-sync-bridge/pkg/infra"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
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

	if err := cfg.ValidateGateway(); err != nil {
		logger.Error("CRITICAL: invalid gateway configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Error("CRITICAL: telegram login failed", "error", err)
		return 1
	}
	target := telegram.NewNotifier(api, logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, "gateway", nil, logger)

	logger.Info("Gateway initializing", "pid", os.Getpid(), "queue", cfg.NotifyQueue)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown complete")
			return 0
		default:
		}

		consumer, err := broker.NewNotificationConsumer(cfg.RabbitMQURL, cfg.NotifyExchange, cfg.NotifyQueue, target, logger)
		if err != nil {
			metrics.HealthStatus.Set(0)
			wait := connBackoff.Next()
			logger.Error("RabbitMQ connection failed, retrying", "wait_duration", wait, "error", err)
			infra.Sleep(ctx, wait)
			continue
		}

		connBackoff.Reset()
		metrics.HealthStatus.Set(1)

		if err := consumer.Listen(ctx); err != nil {
			metrics.TransportReconnections.Inc()
			logger.Error("Consumer connection lost", "error", err)
		}
		consumer.Close()
	}
}
