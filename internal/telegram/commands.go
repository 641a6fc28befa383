package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/remote"
)

// Requester queues requests for the desktop. *remote.Requester satisfies it.
type Requester interface {
	Greeting(ctx context.Context, chatID models.Identity) (remote.Access, error)
	RequestPairing(ctx context.Context, chatID models.Identity, code string) error
	SubmitDraft(ctx context.Context, chatID models.Identity, name string, amount float64, currency string) (models.DraftInput, error)
}

const (
	usagePair = "Usage: /pair CODE\nThe code is shown in the desktop app."
	usageAdd  = "Usage: /add NAME AMOUNT [CURRENCY]\nExample: /add Netflix 9.99 USD"
	replyBusy = "Something went wrong on our side. Please try again later."
)

// Commands maps chat commands to replies
type Commands struct {
	req    Requester
	logger *slog.Logger
}

func NewCommands(req Requester, logger *slog.Logger) *Commands {
	return &Commands{req: req, logger: logger}
}

// Reply handles one command and returns the HTML text to answer with.
// An empty reply means the command is ignored.
func (c *Commands) Reply(ctx context.Context, chatID models.Identity, firstName, command, args string) string {
	switch command {
	case "start", "help":
		return c.start(ctx, chatID, firstName)
	case "pair":
		return c.pair(ctx, chatID, strings.TrimSpace(args))
	case "add":
		return c.add(ctx, chatID, args)
	default:
		return ""
	}
}

func (c *Commands) start(ctx context.Context, chatID models.Identity, firstName string) string {
	access, err := c.req.Greeting(ctx, chatID)
	if err != nil {
		c.logger.Error("Greeting failed", "chat_id", chatID, "error", err)
		return replyBusy
	}

	name := html.EscapeString(firstName)
	if name == "" {
		name = "there"
	}

	switch access {
	case remote.AccessConnected:
		return fmt.Sprintf("Hi, %s! This chat is connected to your desktop.\n\n%s", name, usageAdd)
	case remote.AccessRestricted:
		return "This bot is already linked to another account."
	default:
		return fmt.Sprintf("Hi, %s! Open the desktop app, generate a pairing code and send it here.\n\n%s", name, usagePair)
	}
}

func (c *Commands) pair(ctx context.Context, chatID models.Identity, code string) string {
	if code == "" {
		return usagePair
	}

	err := c.req.RequestPairing(ctx, chatID, code)
	switch {
	case err == nil:
		return "Code sent. Waiting for the desktop to confirm..."
	case errors.Is(err, models.ErrInvalidPayload):
		return "That does not look like a pairing code.\n\n" + usagePair
	case errors.Is(err, models.ErrAlreadyPaired):
		return "This chat is already connected."
	case errors.Is(err, models.ErrBoundElsewhere):
		return "This bot is already linked to another account."
	default:
		c.logger.Error("Pairing request failed", "chat_id", chatID, "error", err)
		return replyBusy
	}
}

func (c *Commands) add(ctx context.Context, chatID models.Identity, args string) string {
	name, amount, currency, ok := ParseAdd(args)
	if !ok {
		return usageAdd
	}

	in, err := c.req.SubmitDraft(ctx, chatID, name, amount, currency)
	switch {
	case err == nil:
		return fmt.Sprintf("Sent <b>%s</b> (%s %s) for review.",
			html.EscapeString(in.RawName), strconv.FormatFloat(in.Amount, 'f', -1, 64), in.Currency)
	case errors.Is(err, models.ErrNotPaired):
		return "Connect this chat to the desktop first.\n\n" + usagePair
	case errors.Is(err, models.ErrUnauthorizedSender):
		return "This bot is already linked to another account."
	case errors.Is(err, models.ErrInvalidPayload):
		return "Check the amount and currency.\n\n" + usageAdd
	default:
		c.logger.Error("Draft submission failed", "chat_id", chatID, "error", err)
		return replyBusy
	}
}

// ParseAdd splits "/add" arguments into name, amount and optional currency.
// The name may contain spaces; the amount accepts a decimal comma.
func ParseAdd(args string) (name string, amount float64, currency string, ok bool) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", 0, "", false
	}

	last := len(fields) - 1
	if a, err := parseAmount(fields[last]); err == nil {
		return strings.Join(fields[:last], " "), a, "", true
	}
	if len(fields) < 3 {
		return "", 0, "", false
	}
	a, err := parseAmount(fields[last-1])
	if err != nil {
		return "", 0, "", false
	}
	return strings.Join(fields[:last-1], " "), a, fields[last], true
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}
