package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/pairing"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
)

// BatchReport summarizes one committed drain cycle
type BatchReport struct {
	Messages int
	Outcomes map[string]int
	Drafts   []models.Draft
	Pairings []pairing.Outcome
}

// InboundDrain consumes ToDesktop messages on the desktop side
type InboundDrain struct {
	store     Store
	handler   *processor.InboundHandler
	batchSize int
	onDrafts  func(count int)
	logger    *slog.Logger
}

func NewInboundDrain(s Store, h *processor.InboundHandler, batchSize int, l *slog.Logger) *InboundDrain {
	return &InboundDrain{
		store:     s,
		handler:   h,
		batchSize: batchSize,
		logger:    l,
	}
}

// OnDrafts registers the "new data available" signal. fn runs once per
// committed batch that created at least one draft, never per message.
func (d *InboundDrain) OnDrafts(fn func(count int)) {
	d.onDrafts = fn
}

// Run polls until ctx is done
func (d *InboundDrain) Run(ctx context.Context, interval time.Duration) {
	RunLoop(ctx, "inbound_drain", interval, func(ctx context.Context) error {
		_, err := d.ProcessNextBatch(ctx)
		return err
	}, d.logger)
}

// ProcessNextBatch drains one bounded batch in a single transaction.
//
// Messages are handled in order, each seeing the effects of the previous
// ones, so a pairing earlier in the batch authorizes later submissions.
// Each message runs in its own savepoint. Lock contention and binding races
// roll the whole batch back for a retry; any other store failure undoes only
// that message's writes and moves it to the dead letters, so one message the
// store refuses cannot hold up the queue.
func (d *InboundDrain) ProcessNextBatch(ctx context.Context) (BatchReport, error) {
	start := time.Now()
	var report BatchReport

	err := d.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		report = BatchReport{Outcomes: map[string]int{}}

		batch, err := sess.FetchBatch(ctx, models.ToDesktop, d.batchSize)
		if err != nil {
			return fmt.Errorf("fetch failure: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		report.Messages = len(batch)
		warnHeavyBatch(d.logger, batch)

		for _, msg := range batch {
			res, err := d.handle(ctx, sess, msg)
			if err != nil {
				return fmt.Errorf("message %s: %w", msg.ID, err)
			}
			report.Outcomes[res.Outcome]++
			if res.Draft != nil {
				report.Drafts = append(report.Drafts, *res.Draft)
			}
			if res.Outcome == processor.OutcomePairing {
				report.Pairings = append(report.Pairings, res.Pairing)
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

	dir := string(models.ToDesktop)
	metrics.BatchSize.WithLabelValues(dir).Observe(float64(report.Messages))
	metrics.BatchDuration.WithLabelValues(dir).Observe(time.Since(start).Seconds())
	for outcome, n := range report.Outcomes {
		metrics.MessagesProcessed.WithLabelValues(dir, outcome).Add(float64(n))
	}
	metrics.DraftsCreated.Add(float64(len(report.Drafts)))
	for _, p := range report.Pairings {
		metrics.PairingAttempts.WithLabelValues(p.String()).Inc()
	}

	d.logger.Info("Batch cycle telemetry",
		"direction", dir,
		"count", report.Messages,
		"drafts", len(report.Drafts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if len(report.Drafts) > 0 && d.onDrafts != nil {
		d.onDrafts(len(report.Drafts))
	}
	return report, nil
}

func (d *InboundDrain) handle(ctx context.Context, sess *db.Session, msg models.QueueMessage) (processor.Result, error) {
	var res processor.Result
	err := sess.Savepoint(ctx, "inbound_message", func() error {
		var err error
		res, err = d.handler.Handle(ctx, sess, msg)
		return err
	})
	if err == nil {
		return res, nil
	}
	if db.IsContention(err) || errors.Is(err, models.ErrBoundElsewhere) || errors.Is(err, db.ErrNoTransaction) {
		return processor.Result{}, err
	}

	d.logger.Error("Store rejected message, moving it to dead letters", "message_id", msg.ID, "error", err)
	if dlErr := sess.MoveToDeadLetter(ctx, msg, models.ReasonStoreRejected); dlErr != nil {
		return processor.Result{}, errors.Join(err, dlErr)
	}
	return processor.Result{Outcome: processor.OutcomeDeadLetter}, nil
}

func warnHeavyBatch(logger *slog.Logger, batch []models.QueueMessage) {
	var batchBytes int
	for _, m := range batch {
		batchBytes += m.EstimateBytes()
	}
	if batchMB := batchBytes / (1024 * 1024); batchMB > MaxBatchMemoryThresholdMB {
		logger.Warn("Heavy batch detected: memory pressure risk",
			"size_mb", batchMB,
			"threshold_mb", MaxBatchMemoryThresholdMB,
			"count", len(batch),
		)
	}
}
