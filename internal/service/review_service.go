package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/pairing"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/Guizzs26/go-sync-bridge/pkg/textnorm"
)

// ReviewService is the desktop operator side: reviewing drafts and managing
// subscriptions. Every state change and the feedback it produces commit in
// one transaction.
type ReviewService struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewReviewService(s Store, l *slog.Logger) *ReviewService {
	return &ReviewService{store: s, now: time.Now, logger: l}
}

func (r *ReviewService) ListDrafts(ctx context.Context, status models.DraftStatus) ([]models.Draft, error) {
	var drafts []models.Draft
	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		var err error
		drafts, err = sess.ListDrafts(ctx, status)
		return err
	})
	return drafts, err
}

// ApproveDraft turns a draft into a subscription and tells the origin identity.
//
// Empty input fields fall back to the draft: the cleaned label becomes the
// name, and the amount is used as cost when the draft is already in UAH.
// Without a due date the first payment is one period from today.
func (r *ReviewService) ApproveDraft(ctx context.Context, draftID int64, in models.SubscriptionInput) (models.Subscription, models.Identity, error) {
	var (
		sub    models.Subscription
		origin models.Identity
	)

	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		draft, err := sess.GetDraft(ctx, draftID)
		if err != nil {
			return err
		}
		if draft.Status == models.DraftProcessed {
			return models.ErrDraftProcessed
		}

		in, err := r.completeInput(draft, in)
		if err != nil {
			return err
		}

		if sub, err = sess.CreateSubscription(ctx, in); err != nil {
			return err
		}
		if err := sess.MarkDraftProcessed(ctx, draft.ID); err != nil {
			return err
		}

		origin = draft.ChatID
		if origin == "" {
			return nil
		}
		_, err = processor.Send(ctx, sess, models.ToRemote, models.NewFeedback(models.EventSubscriptionApproved, origin, map[string]any{
			"draft_id":       draft.ID,
			"original_draft": draft.RawName,
			"new_name":       sub.Name,
			"cost_uah":       sub.CostUAH,
		}))
		return err
	})
	if err != nil {
		return models.Subscription{}, "", err
	}

	r.logger.Info("Draft approved", "draft_id", draftID, "subscription_id", sub.ID, "chat_id", origin)
	return sub, origin, nil
}

func (r *ReviewService) completeInput(draft models.Draft, in models.SubscriptionInput) (models.SubscriptionInput, error) {
	in.Name = textnorm.Label(in.Name)
	if in.Name == "" {
		in.Name = textnorm.CleanLabel(draft.RawName)
	}

	if in.CostUAH == 0 {
		if draft.Currency != models.DefaultDraftCurrency {
			return in, fmt.Errorf("%w: cost in UAH required for a %s draft", models.ErrInvalidPayload, draft.Currency)
		}
		in.CostUAH = draft.Amount
	}
	if in.CostUAH < 0 {
		return in, fmt.Errorf("%w: negative cost", models.ErrInvalidPayload)
	}

	if in.Period == "" {
		in.Period = models.PeriodMonth
	}
	if in.NextPayment.IsZero() {
		in.NextPayment = in.Period.Advance(models.Day(r.now()))
	}
	return in, nil
}

// RejectDraft marks the draft processed and notifies its origin
func (r *ReviewService) RejectDraft(ctx context.Context, draftID int64) (models.Identity, error) {
	var origin models.Identity

	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		draft, err := sess.GetDraft(ctx, draftID)
		if err != nil {
			return err
		}
		if err := sess.MarkDraftProcessed(ctx, draft.ID); err != nil {
			return err
		}

		origin = draft.ChatID
		if origin == "" {
			return nil
		}
		_, err = processor.Send(ctx, sess, models.ToRemote, models.NewFeedback(models.EventDraftRejected, origin, map[string]any{
			"draft_id": draft.ID,
		}))
		return err
	})
	if err != nil {
		return "", err
	}

	r.logger.Info("Draft rejected", "draft_id", draftID, "chat_id", origin)
	return origin, nil
}

func (r *ReviewService) CreateSubscription(ctx context.Context, in models.SubscriptionInput) (models.Subscription, error) {
	in.Name = textnorm.Label(in.Name)
	if in.Name == "" {
		return models.Subscription{}, fmt.Errorf("%w: name required", models.ErrInvalidPayload)
	}
	if in.CostUAH < 0 {
		return models.Subscription{}, fmt.Errorf("%w: negative cost", models.ErrInvalidPayload)
	}
	if in.NextPayment.IsZero() {
		in.NextPayment = in.Period.Advance(models.Day(r.now()))
	}

	var sub models.Subscription
	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		var err error
		sub, err = sess.CreateSubscription(ctx, in)
		return err
	})
	return sub, err
}

func (r *ReviewService) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		var err error
		subs, err = sess.ListSubscriptions(ctx)
		return err
	})
	return subs, err
}

// RecordPayment archives a payment and moves the due date one period ahead,
// which re-arms the reminder. A zero amount records the subscription cost.
func (r *ReviewService) RecordPayment(ctx context.Context, subID int64, amount float64) (models.Subscription, error) {
	var sub models.Subscription
	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		if amount == 0 {
			current, err := sess.GetSubscription(ctx, subID)
			if err != nil {
				return err
			}
			amount = current.CostUAH
		}
		var err error
		sub, err = sess.RecordPayment(ctx, subID, amount, r.now())
		return err
	})
	if err != nil {
		return models.Subscription{}, err
	}

	r.logger.Info("Payment recorded", "subscription_id", subID, "next_payment", sub.NextPayment.Format(models.DateLayout))
	return sub, nil
}

// DeleteSubscription removes a subscription and tells the bound identity, if any
func (r *ReviewService) DeleteSubscription(ctx context.Context, subID int64) (models.Subscription, error) {
	var sub models.Subscription
	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		var err error
		if sub, err = sess.GetSubscription(ctx, subID); err != nil {
			return err
		}
		if err := sess.DeleteSubscription(ctx, subID); err != nil {
			return err
		}

		snap, err := pairing.Load(ctx, sess)
		if err != nil {
			return err
		}
		if snap.State() != pairing.Paired {
			return nil
		}
		_, err = processor.Send(ctx, sess, models.ToRemote, models.NewFeedback(models.EventSubscriptionDeleted, snap.Bound, map[string]any{
			"name": sub.Name,
		}))
		return err
	})
	if err != nil {
		return models.Subscription{}, err
	}

	r.logger.Info("Subscription deleted", "subscription_id", subID, "name", sub.Name)
	return sub, nil
}

// DeadLetters lists the most recent poison messages for inspection
func (r *ReviewService) DeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	var out []models.DeadLetter
	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		var err error
		out, err = sess.ListDeadLetters(ctx, limit)
		return err
	})
	return out, err
}

// ParseDate accepts both the storage and the display date layouts
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{models.DateLayout, models.ReminderDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", models.ErrInvalidPayload, s)
}
