package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
)

// Janitor prunes old dead letters and refreshes the backlog gauges
type Janitor struct {
	store     Store
	retention time.Duration
	logger    *slog.Logger
}

func NewJanitor(s Store, retention time.Duration, l *slog.Logger) *Janitor {
	return &Janitor{store: s, retention: retention, logger: l}
}

// Run performs a pass on every tick until ctx is done. done is closed on exit.
func (j *Janitor) Run(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("Janitor: maintenance scheduled", "interval", interval)

	for {
		select {
		case <-ticker.C:
			if err := j.RunOnce(context.WithoutCancel(ctx)); err != nil {
				j.logger.Error("Janitor: maintenance failure", "error", err)
			}
		case <-ctx.Done():
			j.logger.Info("Janitor: stopping maintenance goroutine")
			return
		}
	}
}

// RunOnce performs a single maintenance pass
func (j *Janitor) RunOnce(ctx context.Context) error {
	var (
		pruned  int64
		backlog = map[models.Direction]int{}
		letters int
	)

	err := j.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		var err error
		if j.retention > 0 {
			if pruned, err = sess.PruneDeadLetters(ctx, time.Now().Add(-j.retention)); err != nil {
				return err
			}
		}
		for _, dir := range []models.Direction{models.ToDesktop, models.ToRemote} {
			if backlog[dir], err = sess.CountQueue(ctx, dir); err != nil {
				return err
			}
		}
		letters, err = sess.CountDeadLetters(ctx)
		return err
	})
	if err != nil {
		return err
	}

	for dir, n := range backlog {
		metrics.QueueBacklog.WithLabelValues(string(dir)).Set(float64(n))
	}
	metrics.DeadLetters.Set(float64(letters))

	if pruned > 0 {
		j.logger.Warn("Janitor: pruned expired dead letters", "count", pruned)
	}
	j.logger.Info("Janitor: structural health check",
		"backlog_to_desktop", backlog[models.ToDesktop],
		"backlog_to_remote", backlog[models.ToRemote],
		"dead_letters", letters,
	)
	return nil
}
