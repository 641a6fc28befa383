package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/pkg/infra"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
)

// Store runs units of work atomically against the shared store
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, sess *db.Session) error) error
}

// MaxBatchMemoryThresholdMB is the batch size above which a warning is logged
const MaxBatchMemoryThresholdMB = 20

// RunLoop calls cycle every interval until ctx is done. Failed cycles back off
// with jitter instead of waiting the regular interval.
//
// A cycle that already started runs on a context detached from cancellation,
// so a stop signal never interrupts a transaction; the loop exits afterwards.
func RunLoop(ctx context.Context, name string, interval time.Duration, cycle func(ctx context.Context) error, logger *slog.Logger) {
	backoff := infra.NewBackoff(interval, max(interval*12, time.Minute), 2.0)
	l := logger.With("loop", name)

	l.Info("Loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			l.Info("Loop stopped")
			return
		default:
		}

		if err := cycle(context.WithoutCancel(ctx)); err != nil {
			metrics.HealthStatus.Set(0)
			wait := backoff.Next()
			l.Error("Cycle failed", "retry_in", wait, "attempt", backoff.Attempts(), "error", err)

			if !infra.Sleep(ctx, wait) {
				l.Info("Loop stopped")
				return
			}
			continue
		}

		metrics.HealthStatus.Set(1)
		backoff.Reset()

		if !infra.Sleep(ctx, interval) {
			l.Info("Loop stopped")
			return
		}
	}
}
