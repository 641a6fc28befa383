package service

import (
	"context"
	"testing"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScanner(h *harness, now time.Time) *ReminderScanner {
	s := NewReminderScanner(h.store, 3, h.logger)
	s.now = func() time.Time { return now }
	return s
}

func TestReminder_OneShotPerDueDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	h.set(models.SettingBoundChat, "U1")

	sub, err := h.store.Session().CreateSubscription(ctx, models.SubscriptionInput{
		Name: "Netflix", CostUAH: 199, NextPayment: now.AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	scanner := newScanner(h, now)

	n, err := scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := h.pending(models.ToRemote)
	require.Len(t, out, 1)
	assert.Equal(t, models.EventPaymentReminder, out[0].Event)
	assert.Equal(t, models.Identity("U1"), out[0].Origin())
	assert.Equal(t, "Netflix", out[0].Data["name"])
	assert.Equal(t, float64(199), out[0].Data["cost_uah"])
	assert.Equal(t, "20.10.2026", out[0].Data["next_payment"])

	stored, err := h.store.Session().GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReminderSent)

	n, err = scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, h.count(models.ToRemote))
}

func TestReminder_PaymentRearms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	h.set(models.SettingBoundChat, "U1")

	sub, err := h.store.Session().CreateSubscription(ctx, models.SubscriptionInput{
		Name: "Netflix", CostUAH: 199, NextPayment: now.AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	n, err := newScanner(h, now).Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	paid, err := h.store.Session().RecordPayment(ctx, sub.ID, 199, now)
	require.NoError(t, err)
	assert.False(t, paid.ReminderSent)

	// a month later the next due date is inside the window again
	n, err = newScanner(h, paid.NextPayment.AddDate(0, 0, -2)).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReminder_WindowAndState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	h.set(models.SettingBoundChat, "U1")

	for _, in := range []models.SubscriptionInput{
		{Name: "Today", CostUAH: 1, NextPayment: now},
		{Name: "Edge", CostUAH: 1, NextPayment: now.AddDate(0, 0, 3)},
		{Name: "TooFar", CostUAH: 1, NextPayment: now.AddDate(0, 0, 4)},
		{Name: "Overdue", CostUAH: 1, NextPayment: now.AddDate(0, 0, -1)},
	} {
		_, err := h.store.Session().CreateSubscription(ctx, in)
		require.NoError(t, err)
	}

	n, err := newScanner(h, now).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var names []string
	for _, env := range h.pending(models.ToRemote) {
		names = append(names, env.DataString("name"))
	}
	assert.ElementsMatch(t, []string{"Today", "Edge"}, names)
}

func TestReminder_SkipsWhenUnpaired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	sub, err := h.store.Session().CreateSubscription(ctx, models.SubscriptionInput{Name: "Netflix", CostUAH: 1, NextPayment: now.AddDate(0, 0, 1)})
	require.NoError(t, err)

	n, err := newScanner(h, now).Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, h.count(models.ToRemote))

	stored, err := h.store.Session().GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, stored.ReminderSent)
}

func TestReminder_SecretMissingRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	h.set(models.SettingBoundChat, "U1")

	sub, err := h.store.Session().CreateSubscription(ctx, models.SubscriptionInput{Name: "Netflix", CostUAH: 1, NextPayment: now})
	require.NoError(t, err)
	_, err = h.store.Session().DeleteSetting(ctx, models.SettingSecret)
	require.NoError(t, err)

	_, err = newScanner(h, now).Scan(ctx)
	assert.ErrorIs(t, err, models.ErrSecretMissing)

	stored, err := h.store.Session().GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, stored.ReminderSent)
	assert.Zero(t, h.count(models.ToRemote))
}
