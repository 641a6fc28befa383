// Package telegram is the chat front end of the bot process: it delivers
// rendered notifications and turns user commands into queued requests.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/notify"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI used for outgoing messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	api    Sender
	logger *slog.Logger
}

func NewNotifier(api Sender, logger *slog.Logger) *Notifier {
	return &Notifier{api: api, logger: logger}
}

func (n *Notifier) Name() string { return "telegram" }

// Notify sends the notification text as an HTML message to its chat
func (n *Notifier) Notify(ctx context.Context, msg notify.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, err := ChatID(msg.To)
	if err != nil {
		return err
	}

	if _, err := n.api.Send(htmlMessage(chatID, msg.Text)); err != nil {
		if rejected(err) {
			return fmt.Errorf("%w: telegram refused %s: %w", notify.ErrUndeliverable, msg.Event, err)
		}
		return fmt.Errorf("telegram send failed for %s: %w", msg.Event, err)
	}

	n.logger.Debug("Notification sent", "event", msg.Event, "chat_id", chatID)
	return nil
}

// ChatID converts a routing identity to a Telegram chat id
func ChatID(id models.Identity) (int64, error) {
	chatID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a telegram chat id", notify.ErrNoRecipient, id)
	}
	return chatID, nil
}

// rejected is true for Bot API answers that repeat on every retry: a bad
// request (unknown chat, broken markup) or a bot blocked by the user
func rejected(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 400 || apiErr.Code == 403
}

func htmlMessage(chatID int64, text string) tgbotapi.MessageConfig {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableWebPagePreview = true
	return m
}
