package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is how calendar dates are persisted
const DateLayout = "2006-01-02"

// ReminderDateLayout is how due dates are shown to the remote user
const ReminderDateLayout = "02.01.2006"

type Period string

const (
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodMonth, PeriodQuarter, PeriodYear:
		return p, nil
	case "":
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("%w: period %q", ErrInvalidPayload, s)
	}
}

// Advance moves a due date forward by one billing period
func (p Period) Advance(t time.Time) time.Time {
	switch p {
	case PeriodQuarter:
		return t.AddDate(0, 3, 0)
	case PeriodYear:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

type SubscriptionState string

const (
	SubscriptionActive SubscriptionState = "active"
	SubscriptionPaused SubscriptionState = "paused"
)

// Subscription is a recurring payment tracked on the desktop
type Subscription struct {
	ID           int64             `db:"id"`
	Name         string            `db:"name"`
	CostUAH      float64           `db:"cost_uah"`
	Period       Period            `db:"period"`
	LastPayment  *time.Time        `db:"last_payment"`
	NextPayment  time.Time         `db:"next_payment"`
	State        SubscriptionState `db:"state"`
	ReminderSent bool              `db:"reminder_sent"`
	CreatedAt    time.Time         `db:"created_at"`
}

// SubscriptionInput is what an operator supplies when creating or approving
type SubscriptionInput struct {
	Name        string
	CostUAH     float64
	Period      Period
	NextPayment time.Time
}

// PaymentRecord is an entry of the payment history archive
type PaymentRecord struct {
	ID             int64     `db:"id"`
	SubscriptionID int64     `db:"sub_id"`
	Amount         float64   `db:"final_sum"`
	PaidAt         time.Time `db:"pay_date"`
}

// Day keeps the calendar date of t and returns it as UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
