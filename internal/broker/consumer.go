package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/notify"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// NotificationConsumer is the gateway end of the amqp transport: it reads
// notifications published by the bot and hands them to the chat transport
type NotificationConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	target   notify.Notifier
	retry    time.Duration
	logger   *slog.Logger
}

func NewNotificationConsumer(url, exchange, queue string, target notify.Notifier, logger *slog.Logger) (*NotificationConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Prefetch 1 keeps delivery to the chat in publish order
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &NotificationConsumer{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		queue:    queue,
		target:   target,
		retry:    5 * time.Second,
		logger:   logger,
	}, nil
}

// Listen binds the queue to every notify.* key and consumes until ctx is
// done or the channel closes
func (c *NotificationConsumer) Listen(ctx context.Context) error {
	if err := c.channel.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := c.channel.QueueDeclare(c.queue, true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, "notify.#", c.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Gateway is online and waiting for notifications", "queue", q.Name, "transport", c.target.Name())

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *NotificationConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var n notify.Notification
	if err := json.Unmarshal(d.Body, &n); err != nil || n.To == "" {
		c.logger.Error("Dropping malformed notification", "routing_key", d.RoutingKey, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.target.Notify(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues(c.target.Name(), "failed").Inc()
		if notify.Permanent(err) {
			c.logger.Error("Dropping undeliverable notification", "event", n.Event, "chat_id", n.To, "error", err)
			_ = d.Nack(false, false)
			return
		}
		c.logger.Error("Delivery failed, requeueing", "event", n.Event, "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(c.retry):
		}
		_ = d.Nack(false, true)
		return
	}

	metrics.Notifications.WithLabelValues(c.target.Name(), "sent").Inc()
	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to Ack notification", "event", n.Event, "error", err)
	}
}

// Close terminates RabbitMQ resources
func (c *NotificationConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.channel.Close()
	c.conn.Close()
}
