package telegram

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot long-polls Telegram for commands and answers them
type Bot struct {
	api      *tgbotapi.BotAPI
	commands *Commands
	logger   *slog.Logger
}

func NewBot(api *tgbotapi.BotAPI, commands *Commands, logger *slog.Logger) *Bot {
	return &Bot{api: api, commands: commands, logger: logger}
}

// Run consumes updates until ctx is cancelled
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram command loop started", "bot", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegram command loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() || msg.Chat == nil {
		return
	}

	var firstName string
	if msg.From != nil {
		firstName = msg.From.FirstName
	}

	chatID := models.Identity(strconv.FormatInt(msg.Chat.ID, 10))
	reply := b.commands.Reply(ctx, chatID, firstName, msg.Command(), msg.CommandArguments())
	if reply == "" {
		return
	}

	if _, err := b.api.Send(htmlMessage(msg.Chat.ID, reply)); err != nil {
		b.logger.Error("Failed to answer command", "command", msg.Command(), "chat_id", msg.Chat.ID, "error", err)
	}
}
