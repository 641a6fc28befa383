package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Guizzs26/go-sync-bridge/internal/config"
	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/Guizzs26/go-sync-bridge/internal/service"
	"github.com/Guizzs26/go-sync-bridge/pkg/infra"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger, closeLog := infra.SetupLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("CRITICAL: shared store unavailable", "error", err)
		return 1
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("CRITICAL: schema migration failed", "error", err)
		return 1
	}

	created, err := processor.EnsureSecret(ctx, store.Session())
	if err != nil {
		logger.Error("CRITICAL: envelope secret provisioning failed", "error", err)
		return 1
	}
	if created {
		logger.Info("Envelope secret generated")
	}

	inbound := service.NewInboundDrain(store, processor.NewInboundHandler(logger), cfg.BatchSize, logger)
	inbound.OnDrafts(func(count int) {
		logger.Info("New drafts available for review", "count", count)
	})
	reminders := service.NewReminderScanner(store, cfg.ReminderLookaheadDays, logger)
	janitor := service.NewJanitor(store, cfg.DeadLetterRetention, logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, "desktop", store.Ping, logger)

	janitorDone := make(chan struct{})
	go janitor.Run(ctx, cfg.MaintenanceInterval, janitorDone)

	logger.Info("Desktop sync service started",
		"pid", os.Getpid(),
		"dialect", store.Dialect().Name,
		"batch_size", cfg.BatchSize,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		inbound.Run(ctx, cfg.InboundPollInterval)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		reminders.Run(ctx, cfg.ReminderInterval)
	}()
	wg.Wait()

	<-janitorDone
	logger.Info("Shutdown complete")
	return 0
}
