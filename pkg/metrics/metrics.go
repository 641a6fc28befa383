package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed tracks the throughput of both drains
	// Labels: direction (to_desktop/to_remote) and outcome (draft, pairing, dropped, dead_letter, delivered...)
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_messages_processed_total",
		Help: "Total number of queue messages consumed by the drains",
	}, []string{"direction", "outcome"})

	// BatchDuration measures how long one drain cycle holds its transaction
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_batch_duration_seconds",
		Help:    "Duration of batch processing in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"direction"})

	// BatchSize tracks the number of messages actually captured in each batch
	BatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_batch_size",
		Help:    "Number of messages processed per batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	}, []string{"direction"})

	// QueueBacklog is refreshed by the janitor. A growing to_remote backlog means the bot is down
	QueueBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_queue_backlog",
		Help: "Current number of pending messages per direction",
	}, []string{"direction"})

	// DeadLetters tracks poison messages kept for forensics
	DeadLetters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_dead_letters",
		Help: "Current number of rows in the dead_letters table",
	})

	DraftsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_drafts_created_total",
		Help: "Total number of drafts quarantined from remote submissions",
	})

	PairingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_pairing_attempts_total",
		Help: "Pairing requests by outcome",
	}, []string{"outcome"})

	RemindersQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_reminders_queued_total",
		Help: "Total number of payment reminders enqueued",
	})

	// Notifications counts rendered events handed to the remote transport
	// status: sent, failed, skipped
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_notifications_total",
		Help: "Notifications dispatched by the outbound drain",
	}, []string{"transport", "status"})

	// LockRetries tracks how many times a transaction was retried due to store contention
	LockRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_lock_retries_total",
		Help: "Number of transaction retries triggered by store locks",
	})

	// TransportReconnections counts reconnects of the AMQP notifier
	TransportReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_transport_reconnections_total",
		Help: "Total number of notification transport reconnection attempts",
	})

	// BrokerUp is 1 while the RabbitMQ connection and channel are open
	BrokerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_broker_up",
		Help: "RabbitMQ link status (1 for connected, 0 for closed)",
	})

	// HealthStatus provides a binary 0/1 signal for the process health
	// 1 = Healthy, 0 = Unhealthy (the last cycle could not reach the store)
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_healthy",
		Help: "Current health status of the process (1 for healthy, 0 for unhealthy)",
	})
)
