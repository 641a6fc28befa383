package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/google/uuid"
)

// Enqueue appends an encrypted payload to the queue and returns its id.
// Ids are UUIDv7, so lexical order follows insertion order.
func (s *Session) Enqueue(ctx context.Context, dir models.Direction, payload string) (string, error) {
	if !dir.Valid() {
		return "", fmt.Errorf("invalid direction %q", dir)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}

	_, err = s.exec(ctx, `
		INSERT INTO sync_queue (id, direction, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), string(dir), payload, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}
	return id.String(), nil
}

// FetchBatch returns at most limit messages for one direction, oldest first.
// On Postgres the rows stay locked until the surrounding transaction ends.
func (s *Session) FetchBatch(ctx context.Context, dir models.Direction, limit int) ([]models.QueueMessage, error) {
	rows, err := s.query(ctx, `
		SELECT id, direction, payload, created_at
		FROM sync_queue
		WHERE direction = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`+s.dialect.batchLock,
		string(dir), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch queue batch: %w", err)
	}
	defer rows.Close()

	var batch []models.QueueMessage
	for rows.Next() {
		var (
			m         models.QueueMessage
			direction string
			createdMs int64
		)
		if err := rows.Scan(&m.ID, &direction, &m.Payload, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		m.Direction = models.Direction(direction)
		m.CreatedAt = time.UnixMilli(createdMs)
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}
	return batch, nil
}

// Remove deletes a consumed message. ErrNotFound means another consumer
// already removed it.
func (s *Session) Remove(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm removal of %s: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountQueue returns the number of pending messages for one direction
func (s *Session) CountQueue(ctx context.Context, dir models.Direction) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM sync_queue WHERE direction = ?`, string(dir)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}
