// Package notify renders ToRemote events into user-visible messages and
// hands them to a delivery transport.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
)

var (
	// ErrUnknownEvent is returned for events that have no template
	ErrUnknownEvent = errors.New("no template for event")
	// ErrNoRecipient means the envelope carries no routing identity
	ErrNoRecipient = errors.New("notification has no recipient")
	// ErrUndeliverable marks transport rejections that will not clear up on retry
	ErrUndeliverable = errors.New("notification rejected by transport")
)

// Permanent reports whether retrying the delivery can never succeed
func Permanent(err error) bool {
	return errors.Is(err, ErrNoRecipient) ||
		errors.Is(err, ErrUnknownEvent) ||
		errors.Is(err, ErrUndeliverable)
}

// Notification is a rendered message addressed to one remote identity
type Notification struct {
	Event string          `json:"event"`
	To    models.Identity `json:"chat_id"`
	Text  string          `json:"text"`
	Data  map[string]any  `json:"data,omitempty"`
}

// Notifier delivers notifications to the remote user
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Render maps an envelope to its notification. Text is HTML formatted;
// every value taken from the envelope is escaped.
func Render(env models.Envelope) (Notification, error) {
	n := Notification{Event: env.Kind(), To: env.Origin(), Data: env.Data}

	v := func(key string) string { return html.EscapeString(env.DataString(key)) }

	switch n.Event {
	case models.EventPairingSuccess:
		n.Text = "✅ <b>Connected!</b>\nYou can now submit subscriptions with /add."
	case models.EventPairingFailed:
		n.Text = "❌ <b>Pairing failed.</b>\nCheck the code and try again."
	case models.EventAlreadyPaired:
		n.Text = "✅ You are already connected. Use /add."
	case models.EventErrorNotPaired:
		n.Text = "⛔️ <b>Your request was rejected.</b>\nUse <code>/pair CODE</code> to connect to the desktop first."
	case models.EventDraftReceived:
		n.Text = fmt.Sprintf("📥 Request received: <b>%s</b>\nAssigned ID: <b>%s</b>", v("name"), v("draft_id"))
	case models.EventSubscriptionApproved:
		n.Text = fmt.Sprintf("✅ Your request <b>%s</b> was approved!\nAdded as: <b>%s</b> (%s UAH)",
			v("original_draft"), v("new_name"), v("cost_uah"))
	case models.EventDraftRejected:
		n.Text = fmt.Sprintf("❌ Your request (ID: %s) was rejected.", v("draft_id"))
	case models.EventPaymentReminder:
		n.Text = fmt.Sprintf("🗓️ <b>Payment reminder</b>\n\nA payment is due soon for: <b>%s</b>\n<b>Amount:</b> %s UAH\n<b>Due date:</b> %s",
			v("name"), v("cost_uah"), v("next_payment"))
	case models.EventSubscriptionDeleted:
		n.Text = fmt.Sprintf("🗑 Subscription <b>%s</b> was removed on the desktop.", v("name"))
	default:
		return Notification{}, fmt.Errorf("%w: %q", ErrUnknownEvent, n.Event)
	}

	if n.To == "" {
		return n, ErrNoRecipient
	}
	return n, nil
}

// LogNotifier only writes notifications to the log
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("Notification",
		"event", n.Event,
		"chat_id", n.To,
		"text", strings.ReplaceAll(n.Text, "\n", " "),
	)
	return nil
}
