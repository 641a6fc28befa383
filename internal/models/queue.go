package models

import "time"

// Direction partitions the shared queue into the two logical channels
type Direction string

const (
	ToDesktop Direction = "to_desktop"
	ToRemote  Direction = "to_remote"
)

func (d Direction) Valid() bool {
	return d == ToDesktop || d == ToRemote
}

// QueueMessage represents a row in the sync_queue table
// Payload is an encrypted envelope token and is opaque to the queue itself
type QueueMessage struct {
	ID        string    `db:"id"`
	Direction Direction `db:"direction"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// EstimateBytes gives a rough in-memory footprint used for batch telemetry
func (m QueueMessage) EstimateBytes() int {
	return len(m.ID) + len(m.Direction) + len(m.Payload) + 24
}

// Dead-letter reasons recorded when a poison message leaves the queue
const (
	ReasonDecryptFailed    = "decrypt_failed"
	ReasonMalformedPayload = "malformed_payload"
	ReasonSecretMissing    = "secret_missing"
	ReasonUnknownEvent     = "unknown_event"
	ReasonStoreRejected    = "store_rejected"
)

// DeadLetter keeps a poison message for forensics after it was removed from the queue
type DeadLetter struct {
	ID        int64     `db:"id"`
	MessageID string    `db:"message_id"`
	Direction Direction `db:"direction"`
	Payload   string    `db:"payload"`
	Reason    string    `db:"reason"`
	QueuedAt  time.Time `db:"queued_at"`
	FailedAt  time.Time `db:"failed_at"`
}
