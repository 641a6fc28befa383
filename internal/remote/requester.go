// Package remote produces ToDesktop envelopes on behalf of the chat front end
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/pairing"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
)

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, sess *db.Session) error) error
}

// Access is how the bound identity relates to a given chat
type Access int

const (
	AccessUnpaired Access = iota
	AccessConnected
	AccessRestricted
)

// Requester checks the pairing state the way the bot shows it to users and
// enqueues requests for the desktop. The checks here are advisory: the
// desktop re-authorizes every message it drains.
type Requester struct {
	store      Store
	codeLength int
	logger     *slog.Logger
}

func NewRequester(s Store, codeLength int, l *slog.Logger) *Requester {
	return &Requester{store: s, codeLength: codeLength, logger: l}
}

// Greeting reports whether chatID is the bound identity, nobody is bound,
// or someone else is
func (r *Requester) Greeting(ctx context.Context, chatID models.Identity) (Access, error) {
	var access Access
	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		snap, err := pairing.Load(ctx, sess)
		if err != nil {
			return err
		}
		access = accessFor(snap, chatID)
		return nil
	})
	return access, err
}

func accessFor(snap pairing.Snapshot, chatID models.Identity) Access {
	switch {
	case snap.State() != pairing.Paired:
		return AccessUnpaired
	case snap.Bound == chatID:
		return AccessConnected
	default:
		return AccessRestricted
	}
}

// RequestPairing enqueues a pairing_request for the desktop to resolve
func (r *Requester) RequestPairing(ctx context.Context, chatID models.Identity, code string) error {
	if err := pairing.ValidateCode(code, r.codeLength); err != nil {
		return err
	}

	err := r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		snap, err := pairing.Load(ctx, sess)
		if err != nil {
			return err
		}
		switch accessFor(snap, chatID) {
		case AccessConnected:
			return models.ErrAlreadyPaired
		case AccessRestricted:
			return models.ErrBoundElsewhere
		}

		_, err = processor.Send(ctx, sess, models.ToDesktop, models.NewPairingRequest(code, chatID))
		return err
	})
	if err != nil {
		return err
	}

	r.logger.Info("Pairing request queued", "chat_id", chatID)
	return nil
}

// SubmitDraft enqueues a draft_submission from the bound identity
func (r *Requester) SubmitDraft(ctx context.Context, chatID models.Identity, name string, amount float64, currency string) (models.DraftInput, error) {
	if math.IsNaN(amount) || amount <= 0 {
		return models.DraftInput{}, fmt.Errorf("%w: amount must be positive", models.ErrInvalidPayload)
	}
	in, err := models.DraftInput{RawName: name, Amount: amount, Currency: currency, ChatID: chatID}.Normalize()
	if err != nil {
		return models.DraftInput{}, err
	}

	err = r.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		snap, err := pairing.Load(ctx, sess)
		if err != nil {
			return err
		}
		switch accessFor(snap, chatID) {
		case AccessUnpaired:
			return models.ErrNotPaired
		case AccessRestricted:
			return models.ErrUnauthorizedSender
		}

		_, err = processor.Send(ctx, sess, models.ToDesktop, models.NewDraftSubmission(chatID, in.RawName, in.Amount, in.Currency))
		return err
	})
	if err != nil {
		return models.DraftInput{}, err
	}

	r.logger.Info("Draft submission queued", "chat_id", chatID, "currency", in.Currency)
	return in, nil
}
