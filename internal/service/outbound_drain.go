package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/crypto"
	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/notify"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
)

// OutboundDrain consumes ToRemote messages on the bot side and renders them
// through a notifier.
//
// Messages are removed in the same transaction that reads them, and delivery
// happens after commit: a notification that fails to send is lost, never
// redelivered from the queue.
type OutboundDrain struct {
	store     Store
	notifier  notify.Notifier
	batchSize int
	logger    *slog.Logger
}

func NewOutboundDrain(s Store, n notify.Notifier, batchSize int, l *slog.Logger) *OutboundDrain {
	return &OutboundDrain{
		store:     s,
		notifier:  n,
		batchSize: batchSize,
		logger:    l,
	}
}

func (d *OutboundDrain) Run(ctx context.Context, interval time.Duration) {
	RunLoop(ctx, "outbound_drain", interval, func(ctx context.Context) error {
		_, err := d.ProcessNextBatch(ctx)
		return err
	}, d.logger)
}

// ProcessNextBatch consumes one batch and returns the report of what was
// consumed. Delivery failures are logged and counted but not returned.
func (d *OutboundDrain) ProcessNextBatch(ctx context.Context) (BatchReport, error) {
	start := time.Now()
	var (
		report  BatchReport
		pending []notify.Notification
	)

	err := d.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		report = BatchReport{Outcomes: map[string]int{}}
		pending = pending[:0]

		batch, err := sess.FetchBatch(ctx, models.ToRemote, d.batchSize)
		if err != nil {
			return fmt.Errorf("fetch failure: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		report.Messages = len(batch)
		warnHeavyBatch(d.logger, batch)

		sealer, sealerErr := processor.LoadSealer(ctx, sess)
		if sealerErr != nil && !errors.Is(sealerErr, models.ErrSecretMissing) && !errors.Is(sealerErr, crypto.ErrInvalidSecret) {
			return sealerErr
		}

		for _, msg := range batch {
			n, reason := d.decode(sealer, sealerErr, msg)
			switch {
			case reason != "":
				if err := sess.MoveToDeadLetter(ctx, msg, reason); err != nil {
					return err
				}
				report.Outcomes[processor.OutcomeDeadLetter]++
			case n == nil:
				if err := sess.Remove(ctx, msg.ID); err != nil {
					return err
				}
				report.Outcomes["skipped"]++
			default:
				if err := sess.Remove(ctx, msg.ID); err != nil {
					return err
				}
				pending = append(pending, *n)
			}
		}
		return nil
	})
	if err != nil {
		return BatchReport{}, err
	}
	if report.Messages == 0 {
		return report, nil
	}

	for _, n := range pending {
		l := d.logger.With("event", n.Event, "chat_id", n.To)
		if err := d.notifier.Notify(ctx, n); err != nil {
			l.Error("Failed to deliver notification", "transport", d.notifier.Name(), "error", err)
			metrics.Notifications.WithLabelValues(d.notifier.Name(), "failed").Inc()
			report.Outcomes["delivery_failed"]++
			continue
		}
		l.Debug("Notification delivered", "transport", d.notifier.Name())
		metrics.Notifications.WithLabelValues(d.notifier.Name(), "sent").Inc()
		report.Outcomes["delivered"]++
	}

	dir := string(models.ToRemote)
	metrics.BatchSize.WithLabelValues(dir).Observe(float64(report.Messages))
	metrics.BatchDuration.WithLabelValues(dir).Observe(time.Since(start).Seconds())
	for outcome, c := range report.Outcomes {
		metrics.MessagesProcessed.WithLabelValues(dir, outcome).Add(float64(c))
	}

	d.logger.Info("Batch cycle telemetry",
		"direction", dir,
		"count", report.Messages,
		"delivered", report.Outcomes["delivered"],
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// decode returns the notification for msg, or a dead-letter reason.
// A nil notification without reason means there is nobody to notify.
func (d *OutboundDrain) decode(sealer *crypto.Sealer, sealerErr error, msg models.QueueMessage) (*notify.Notification, string) {
	l := d.logger.With("message_id", msg.ID, "direction", msg.Direction)

	if sealerErr != nil {
		l.Error("Security: cannot read message, envelope secret unavailable", "error", sealerErr)
		if errors.Is(sealerErr, models.ErrSecretMissing) {
			return nil, models.ReasonSecretMissing
		}
		return nil, models.ReasonDecryptFailed
	}

	var env models.Envelope
	if err := sealer.Open(msg.Payload, &env); err != nil {
		l.Error("Failed to decrypt or parse payload", "error", err)
		return nil, models.ReasonDecryptFailed
	}

	n, err := notify.Render(env)
	switch {
	case errors.Is(err, notify.ErrUnknownEvent):
		l.Warn("Unknown event, dropping message", "event", env.Kind())
		return nil, models.ReasonUnknownEvent
	case errors.Is(err, notify.ErrNoRecipient):
		l.Info("Event has no recipient, nothing to deliver", "event", env.Kind())
		return nil, ""
	case err != nil:
		return nil, models.ReasonMalformedPayload
	}
	return &n, ""
}
