package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Guizzs26/go-sync-bridge/internal/notify"
	"github.com/Guizzs26/go-sync-bridge/internal/telegram"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

type targetNotifier struct {
	got []notify.Notification
	err error
}

func (t *targetNotifier) Name() string { return "target" }

func (t *targetNotifier) Notify(_ context.Context, n notify.Notification) error {
	if t.err != nil {
		return t.err
	}
	t.got = append(t.got, n)
	return nil
}

func newTestConsumer(target notify.Notifier) *NotificationConsumer {
	return &NotificationConsumer{
		target: target,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestConsumer_DeliversAndAcks(t *testing.T) {
	target := &targetNotifier{}
	acks := &ackRecorder{}

	newTestConsumer(target).handle(context.Background(), amqp.Delivery{
		Acknowledger: acks,
		Body:         []byte(`{"event":"pairing_success","chat_id":"42","text":"ok"}`),
	})

	require.Len(t, target.got, 1)
	assert.Equal(t, "42", string(target.got[0].To))
	assert.Equal(t, 1, acks.acks)
	assert.Zero(t, acks.nacks)
}

func TestConsumer_DropsMalformed(t *testing.T) {
	for _, body := range []string{"not json", `{"event":"pairing_success","text":"no recipient"}`} {
		acks := &ackRecorder{}
		newTestConsumer(&targetNotifier{}).handle(context.Background(), amqp.Delivery{Acknowledger: acks, Body: []byte(body)})

		assert.Equal(t, 1, acks.nacks, body)
		assert.False(t, acks.requeue, body)
	}
}

func TestConsumer_RequeuesOnDeliveryFailure(t *testing.T) {
	acks := &ackRecorder{}
	c := newTestConsumer(&targetNotifier{err: errors.New("telegram down")})

	c.handle(context.Background(), amqp.Delivery{
		Acknowledger: acks,
		Body:         []byte(`{"event":"draft_rejected","chat_id":"42","text":"x"}`),
	})

	assert.Equal(t, 1, acks.nacks)
	assert.True(t, acks.requeue)
	assert.Zero(t, acks.acks)
}

type countingSender struct {
	sends int
	err   error
}

func (s *countingSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.sends++
	return tgbotapi.Message{}, s.err
}

func TestConsumer_DropsUndeliverable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("non numeric chat id", func(t *testing.T) {
		sender := &countingSender{}
		acks := &ackRecorder{}
		newTestConsumer(telegram.NewNotifier(sender, logger)).handle(context.Background(), amqp.Delivery{
			Acknowledger: acks,
			Body:         []byte(`{"event":"pairing_success","chat_id":"U1","text":"ok"}`),
		})

		assert.Zero(t, sender.sends)
		assert.Equal(t, 1, acks.nacks)
		assert.False(t, acks.requeue)
	})

	t.Run("chat not found", func(t *testing.T) {
		sender := &countingSender{err: &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}}
		acks := &ackRecorder{}
		newTestConsumer(telegram.NewNotifier(sender, logger)).handle(context.Background(), amqp.Delivery{
			Acknowledger: acks,
			Body:         []byte(`{"event":"pairing_success","chat_id":"42","text":"ok"}`),
		})

		assert.Equal(t, 1, sender.sends)
		assert.Equal(t, 1, acks.nacks)
		assert.False(t, acks.requeue)
	})

	t.Run("rate limited is retried", func(t *testing.T) {
		sender := &countingSender{err: &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}}
		acks := &ackRecorder{}
		newTestConsumer(telegram.NewNotifier(sender, logger)).handle(context.Background(), amqp.Delivery{
			Acknowledger: acks,
			Body:         []byte(`{"event":"pairing_success","chat_id":"42","text":"ok"}`),
		})

		assert.Equal(t, 1, acks.nacks)
		assert.True(t, acks.requeue)
	})
}

func TestRabbitMQClient_CloseMarksLinkDown(t *testing.T) {
	client := &RabbitMQClient{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cancel: func() {},
	}
	client.healthy.Store(true)
	metrics.BrokerUp.Set(1)

	require.NoError(t, client.Close())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.BrokerUp))
	require.NoError(t, client.Close())
}
