package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/notify"
	"github.com/Guizzs26/go-sync-bridge/pkg/infra"
	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
)

// Publisher is the part of RabbitMQClient the notifier uses
type Publisher interface {
	Publish(ctx context.Context, n notify.Notification) error
	IsHealthy() bool
	Close() error
}

// Dialer opens a new publisher link
type Dialer func() (Publisher, error)

// Notifier implements notify.Notifier over AMQP. A broken link is replaced
// on the next notification; while the broker is down notifications fail fast
// and the dial is spaced out by a jittered backoff.
type Notifier struct {
	dial    Dialer
	backoff *infra.Backoff
	logger  *slog.Logger

	mu      sync.Mutex
	client  Publisher
	retryAt time.Time
	now     func() time.Time
}

func NewNotifier(dial Dialer, backoff *infra.Backoff, logger *slog.Logger) *Notifier {
	return &Notifier{dial: dial, backoff: backoff, logger: logger, now: time.Now}
}

// DialRabbitMQ is the production Dialer
func DialRabbitMQ(url, exchange string, logger *slog.Logger) Dialer {
	return func() (Publisher, error) {
		return NewRabbitMQClient(url, exchange, logger)
	}
}

func (n *Notifier) Name() string { return "amqp" }

func (n *Notifier) Notify(ctx context.Context, note notify.Notification) error {
	client, err := n.link()
	if err != nil {
		return err
	}
	return client.Publish(ctx, note)
}

func (n *Notifier) link() (Publisher, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client != nil && n.client.IsHealthy() {
		return n.client, nil
	}
	if n.now().Before(n.retryAt) {
		return nil, fmt.Errorf("broker link down, next attempt at %s", n.retryAt.Format(time.TimeOnly))
	}

	if n.client != nil {
		_ = n.client.Close()
		n.client = nil
	}

	metrics.TransportReconnections.Inc()
	client, err := n.dial()
	if err != nil {
		wait := n.backoff.Next()
		n.retryAt = n.now().Add(wait)
		n.logger.Error("RabbitMQ link failure, retrying later", "wait", wait, "error", err)
		return nil, fmt.Errorf("broker unavailable: %w", err)
	}

	n.logger.Info("RabbitMQ link established")
	n.backoff.Reset()
	n.retryAt = time.Time{}
	n.client = client
	return client, nil
}

// Close releases the current link
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client == nil {
		return nil
	}
	err := n.client.Close()
	n.client = nil
	return err
}
