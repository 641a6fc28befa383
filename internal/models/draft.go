package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Guizzs26/go-sync-bridge/pkg/textnorm"
	"golang.org/x/text/currency"
)

type DraftStatus string

const (
	DraftNew       DraftStatus = "new"
	DraftProcessed DraftStatus = "processed"
)

// Draft is a quarantined submission awaiting operator review
type Draft struct {
	ID        int64       `db:"id"`
	RawName   string      `db:"raw_name"`
	Amount    float64     `db:"amount"`
	Currency  string      `db:"currency"`
	ChatID    Identity    `db:"chat_id"`
	Status    DraftStatus `db:"status"`
	CreatedAt time.Time   `db:"created_at"`
}

const (
	DefaultDraftName     = "Unknown"
	DefaultDraftCurrency = "UAH"
	MaxDraftNameLength   = 255
)

// DraftInput is the submission payload before it becomes a Draft
type DraftInput struct {
	RawName  string
	Amount   float64
	Currency string
	ChatID   Identity
}

// Normalize applies defaults and validates the submission.
// An unknown currency or a negative/non-finite amount is an invalid payload.
func (in DraftInput) Normalize() (DraftInput, error) {
	out := in

	out.RawName = textnorm.Label(in.RawName)
	if out.RawName == "" {
		out.RawName = DefaultDraftName
	}
	if r := []rune(out.RawName); len(r) > MaxDraftNameLength {
		out.RawName = string(r[:MaxDraftNameLength])
	}

	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount < 0 {
		return DraftInput{}, fmt.Errorf("%w: amount %v", ErrInvalidPayload, in.Amount)
	}

	code := strings.ToUpper(strings.TrimSpace(in.Currency))
	if code == "" {
		code = DefaultDraftCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return DraftInput{}, fmt.Errorf("%w: currency %q", ErrInvalidPayload, in.Currency)
	}
	out.Currency = unit.String()

	return out, nil
}
