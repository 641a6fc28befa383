package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-sync-bridge/internal/crypto"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/pairing"
)

// Outcome labels, also used as metric label values
const (
	OutcomeDraft        = "draft"
	OutcomePairing      = "pairing"
	OutcomeNotPaired    = "not_paired"
	OutcomeUnauthorized = "unauthorized"
	OutcomeDeadLetter   = "dead_letter"
)

// InboundSession is what the handler needs from a transactional store session
type InboundSession interface {
	pairing.Settings
	Sink
	Remove(ctx context.Context, id string) error
	MoveToDeadLetter(ctx context.Context, msg models.QueueMessage, reason string) error
	CreateDraft(ctx context.Context, in models.DraftInput) (models.Draft, error)
}

// Result describes what happened to one message
type Result struct {
	Outcome string
	Draft   *models.Draft
	Pairing pairing.Outcome
}

// InboundHandler turns one ToDesktop message into its effects: a pairing
// transition, a quarantined draft, feedback envelopes, or a dead letter.
// Every effect is written through the caller's session, so it commits or
// rolls back together with the removal of the message.
type InboundHandler struct {
	logger *slog.Logger
}

func NewInboundHandler(logger *slog.Logger) *InboundHandler {
	return &InboundHandler{logger: logger}
}

// Handle processes a single message. A returned error means the store failed
// and the surrounding transaction must roll back; poison messages are not errors.
func (h *InboundHandler) Handle(ctx context.Context, sess InboundSession, msg models.QueueMessage) (Result, error) {
	l := h.logger.With("message_id", msg.ID, "direction", msg.Direction)

	sealer, err := LoadSealer(ctx, sess)
	switch {
	case errors.Is(err, models.ErrSecretMissing):
		l.Error("Security: envelope secret missing, message cannot be read")
		return h.deadLetter(ctx, sess, msg, models.ReasonSecretMissing)
	case errors.Is(err, crypto.ErrInvalidSecret):
		l.Error("Security: stored envelope secret is corrupt")
		return h.deadLetter(ctx, sess, msg, models.ReasonDecryptFailed)
	case err != nil:
		return Result{}, err
	}

	var env models.Envelope
	if err := sealer.Open(msg.Payload, &env); err != nil {
		l.Warn("Security: failed to decrypt payload, dropping message", "error", err)
		return h.deadLetter(ctx, sess, msg, models.ReasonDecryptFailed)
	}

	l = l.With("event", env.Kind())

	switch env.Kind() {
	case models.EventPairingRequest:
		return h.handlePairing(ctx, sess, sealer, msg, env, l)
	case models.EventDraftSubmission:
		return h.handleDraft(ctx, sess, sealer, msg, env, l)
	default:
		l.Warn("Unknown event, dropping message")
		return h.deadLetter(ctx, sess, msg, models.ReasonUnknownEvent)
	}
}

func (h *InboundHandler) handlePairing(ctx context.Context, sess InboundSession, sealer *crypto.Sealer, msg models.QueueMessage, env models.Envelope, l *slog.Logger) (Result, error) {
	requester := env.Origin()
	if requester == "" {
		l.Warn("Pairing request without identity")
		return h.deadLetter(ctx, sess, msg, models.ReasonMalformedPayload)
	}

	outcome, err := pairing.Resolve(ctx, sess, requester, env.Code)
	if err != nil {
		return Result{}, fmt.Errorf("pairing resolution failed: %w", err)
	}

	if event := outcome.Feedback(); event != "" {
		if _, err := SendWith(ctx, sess, sealer, models.ToRemote, models.NewFeedback(event, requester, nil)); err != nil {
			return Result{}, fmt.Errorf("failed to enqueue %s: %w", event, err)
		}
	}

	if err := sess.Remove(ctx, msg.ID); err != nil {
		return Result{}, err
	}

	switch outcome {
	case pairing.OutcomeMatched:
		l.Info("Pairing succeeded", "chat_id", requester)
	case pairing.OutcomeBoundElsewhere:
		l.Warn("Security: pairing request while bound to another identity", "chat_id", requester)
	default:
		l.Info("Pairing request rejected", "outcome", outcome, "chat_id", requester, "error", outcome.Err())
	}
	return Result{Outcome: OutcomePairing, Pairing: outcome}, nil
}

func (h *InboundHandler) handleDraft(ctx context.Context, sess InboundSession, sealer *crypto.Sealer, msg models.QueueMessage, env models.Envelope, l *slog.Logger) (Result, error) {
	in := env.DraftInput()
	if in.ChatID == "" {
		l.Warn("Submission without identity")
		return h.deadLetter(ctx, sess, msg, models.ReasonMalformedPayload)
	}

	snap, err := pairing.Load(ctx, sess)
	if err != nil {
		return Result{}, err
	}

	if snap.State() != pairing.Paired {
		l.Warn("Security: system not paired, ignoring submission", "chat_id", in.ChatID)
		if _, err := SendWith(ctx, sess, sealer, models.ToRemote, models.NewFeedback(models.EventErrorNotPaired, in.ChatID, nil)); err != nil {
			return Result{}, fmt.Errorf("failed to enqueue %s: %w", models.EventErrorNotPaired, err)
		}
		if err := sess.Remove(ctx, msg.ID); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeNotPaired}, nil
	}

	if snap.Bound != in.ChatID {
		l.Warn("Security: ignored submission from unauthorized identity", "chat_id", in.ChatID)
		if err := sess.Remove(ctx, msg.ID); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeUnauthorized}, nil
	}

	normalized, err := in.Normalize()
	if err != nil {
		l.Warn("Submission rejected", "error", err)
		return h.deadLetter(ctx, sess, msg, models.ReasonMalformedPayload)
	}

	draft, err := sess.CreateDraft(ctx, normalized)
	if err != nil {
		return Result{}, err
	}

	feedback := models.NewFeedback(models.EventDraftReceived, draft.ChatID, map[string]any{
		"draft_id": draft.ID,
		"name":     draft.RawName,
	})
	if _, err := SendWith(ctx, sess, sealer, models.ToRemote, feedback); err != nil {
		return Result{}, fmt.Errorf("failed to enqueue %s: %w", models.EventDraftReceived, err)
	}

	if err := sess.Remove(ctx, msg.ID); err != nil {
		return Result{}, err
	}

	l.Info("Draft quarantined", "draft_id", draft.ID)
	return Result{Outcome: OutcomeDraft, Draft: &draft}, nil
}

func (h *InboundHandler) deadLetter(ctx context.Context, sess InboundSession, msg models.QueueMessage, reason string) (Result, error) {
	if err := sess.MoveToDeadLetter(ctx, msg, reason); err != nil {
		return Result{}, fmt.Errorf("failed to dead-letter %s: %w", msg.ID, err)
	}
	return Result{Outcome: OutcomeDeadLetter}, nil
}
