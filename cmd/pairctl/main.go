// Command pairctl is the operator console of the desktop side: pairing,
// draft review and subscription bookkeeping against the shared store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Guizzs26/go-sync-bridge/internal/config"
	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/pairing"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/Guizzs26/go-sync-bridge/internal/service"
	"github.com/Guizzs26/go-sync-bridge/pkg/infra"
)

const usage = `usage: pairctl <command> [flags]

commands:
  status                      show the pairing state
  code                        issue a new pairing code
  unlink                      forget the bound chat
  drafts [-all]               list drafts awaiting review
  approve -id N [-name S] [-cost F] [-period P] [-date D]
  reject -id N
  subs                        list subscriptions
  sub-add -name S -cost F [-period P] [-date D]
  pay -id N [-amount F]
  sub-delete -id N
  dead-letters [-limit N]`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one console command and returns the process exit code, so
// the deferred cleanups finish before main exits.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg := config.Load()
	cfg.LogLevel = "WARN"
	logger, closeLog := infra.SetupLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if _, err := processor.EnsureSecret(ctx, store.Session()); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	app := &console{
		pairing: pairing.NewManager(store, cfg.PairingCodeLength, logger),
		review:  service.NewReviewService(store, logger),
		out:     stdout,
	}

	if err := app.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, usage)
			return 2
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}
