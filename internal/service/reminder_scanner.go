package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/pairing"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
)

// ReminderScanner enqueues payment_reminder envelopes for subscriptions
// due within the look-ahead window
type ReminderScanner struct {
	store         Store
	lookaheadDays int
	now           func() time.Time
	logger        *slog.Logger
}

func NewReminderScanner(s Store, lookaheadDays int, l *slog.Logger) *ReminderScanner {
	return &ReminderScanner{
		store:         s,
		lookaheadDays: lookaheadDays,
		now:           time.Now,
		logger:        l,
	}
}

// Run scans immediately and then on every interval until ctx is done
func (r *ReminderScanner) Run(ctx context.Context, interval time.Duration) {
	RunLoop(ctx, "reminder_scanner", interval, func(ctx context.Context) error {
		_, err := r.Scan(ctx)
		return err
	}, r.logger)
}

// Scan runs once and returns the number of reminders enqueued. Enqueueing a
// reminder and setting its flag commit together, so a subscription is
// reminded at most once per due date.
func (r *ReminderScanner) Scan(ctx context.Context) (int, error) {
	var queued []string

	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		queued = queued[:0]

		snap, err := pairing.Load(ctx, sess)
		if err != nil {
			return err
		}
		if snap.State() != pairing.Paired {
			r.logger.Debug("System not paired, skipping reminder scan")
			return nil
		}

		today := models.Day(r.now())
		due, err := sess.ListDueForReminder(ctx, today, today.AddDate(0, 0, r.lookaheadDays))
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		sealer, err := processor.LoadSealer(ctx, sess)
		if err != nil {
			return fmt.Errorf("cannot seal reminders: %w", err)
		}

		for _, sub := range due {
			env := models.NewFeedback(models.EventPaymentReminder, snap.Bound, map[string]any{
				"name":         sub.Name,
				"cost_uah":     sub.CostUAH,
				"next_payment": sub.NextPayment.Format(models.ReminderDateLayout),
			})
			if _, err := processor.SendWith(ctx, sess, sealer, models.ToRemote, env); err != nil {
				return fmt.Errorf("failed to enqueue reminder for %d: %w", sub.ID, err)
			}
			if err := sess.MarkReminderSent(ctx, sub.ID); err != nil {
				return err
			}
			queued = append(queued, sub.Name)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(queued) > 0 {
		metrics.RemindersQueued.Add(float64(len(queued)))
		r.logger.Info("Payment reminders queued", "count", len(queued), "subscriptions", queued)
	}
	return len(queued), nil
}
