package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
)

const subscriptionColumns = `id, name, cost_uah, period, last_payment, next_payment, state, reminder_sent, created_at`

func (s *Session) CreateSubscription(ctx context.Context, in models.SubscriptionInput) (models.Subscription, error) {
	period := in.Period
	if period == "" {
		period = models.PeriodMonth
	}
	sub := models.Subscription{
		Name:        in.Name,
		CostUAH:     in.CostUAH,
		Period:      period,
		NextPayment: models.Day(in.NextPayment),
		State:       models.SubscriptionActive,
		CreatedAt:   time.UnixMilli(time.Now().UnixMilli()),
	}

	err := s.queryRow(ctx, `
		INSERT INTO subscriptions (name, cost_uah, period, next_payment, state, reminder_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, sub.Name, sub.CostUAH, string(sub.Period), sub.NextPayment.Format(models.DateLayout),
		string(sub.State), false, sub.CreatedAt.UnixMilli()).Scan(&sub.ID)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

func (s *Session) GetSubscription(ctx context.Context, id int64) (models.Subscription, error) {
	row := s.queryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, models.ErrNotFound
	}
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to get subscription %d: %w", id, err)
	}
	return sub, nil
}

// ListSubscriptions returns every subscription ordered by its next due date
func (s *Session) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	return s.listSubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY next_payment ASC, id ASC`)
}

// ListDueForReminder returns active subscriptions not yet reminded whose due
// date falls within [from, to]. Dates are stored as YYYY-MM-DD text, so the
// lexical comparison is also chronological.
func (s *Session) ListDueForReminder(ctx context.Context, from, to time.Time) ([]models.Subscription, error) {
	return s.listSubscriptions(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE state = ? AND reminder_sent = ? AND next_payment >= ? AND next_payment <= ?
		ORDER BY next_payment ASC, id ASC`,
		string(models.SubscriptionActive), false,
		from.Format(models.DateLayout), to.Format(models.DateLayout))
}

// MarkReminderSent sets the reminder flag so the scanner does not repeat itself
func (s *Session) MarkReminderSent(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `UPDATE subscriptions SET reminder_sent = ? WHERE id = ?`, true, id)
	if err != nil {
		return fmt.Errorf("failed to flag subscription %d: %w", id, err)
	}
	return expectOne(res, id)
}

// RecordPayment archives a payment, advances the due date by one period and
// clears the reminder flag
func (s *Session) RecordPayment(ctx context.Context, id int64, amount float64, paidAt time.Time) (models.Subscription, error) {
	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return models.Subscription{}, err
	}

	_, err = s.exec(ctx, `INSERT INTO payment_history (sub_id, final_sum, pay_date) VALUES (?, ?, ?)`,
		id, amount, paidAt.UnixMilli())
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to archive payment for %d: %w", id, err)
	}

	last := models.Day(paidAt)
	sub.LastPayment = &last
	sub.NextPayment = sub.Period.Advance(sub.NextPayment)
	sub.ReminderSent = false

	res, err := s.exec(ctx, `
		UPDATE subscriptions SET last_payment = ?, next_payment = ?, reminder_sent = ?
		WHERE id = ?
	`, last.Format(models.DateLayout), sub.NextPayment.Format(models.DateLayout), false, id)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to advance subscription %d: %w", id, err)
	}
	if err := expectOne(res, id); err != nil {
		return models.Subscription{}, err
	}
	return sub, nil
}

func (s *Session) ListPayments(ctx context.Context, subID int64) ([]models.PaymentRecord, error) {
	rows, err := s.query(ctx, `
		SELECT id, sub_id, final_sum, pay_date FROM payment_history
		WHERE sub_id = ? ORDER BY pay_date ASC, id ASC
	`, subID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentRecord
	for rows.Next() {
		var (
			p      models.PaymentRecord
			paidMs int64
		)
		if err := rows.Scan(&p.ID, &p.SubscriptionID, &p.Amount, &paidMs); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.PaidAt = time.UnixMilli(paidMs)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteSubscription removes the subscription together with its history
func (s *Session) DeleteSubscription(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, `DELETE FROM payment_history WHERE sub_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete history of %d: %w", id, err)
	}
	res, err := s.exec(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription %d: %w", id, err)
	}
	return expectOne(res, id)
}

func (s *Session) listSubscriptions(ctx context.Context, query string, args ...any) ([]models.Subscription, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscription(r rowScanner) (models.Subscription, error) {
	var (
		sub       models.Subscription
		period    string
		last      sql.NullString
		next      string
		state     string
		createdMs int64
	)
	err := r.Scan(&sub.ID, &sub.Name, &sub.CostUAH, &period, &last, &next, &state, &sub.ReminderSent, &createdMs)
	if err != nil {
		return models.Subscription{}, err
	}

	sub.Period = models.Period(period)
	sub.State = models.SubscriptionState(state)
	sub.CreatedAt = time.UnixMilli(createdMs)

	if sub.NextPayment, err = time.Parse(models.DateLayout, next); err != nil {
		return models.Subscription{}, fmt.Errorf("bad next_payment %q: %w", next, err)
	}
	if last.Valid && last.String != "" {
		t, err := time.Parse(models.DateLayout, last.String)
		if err != nil {
			return models.Subscription{}, fmt.Errorf("bad last_payment %q: %w", last.String, err)
		}
		sub.LastPayment = &t
	}
	return sub, nil
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm update of %d: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
