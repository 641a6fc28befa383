package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
)

// MoveToDeadLetter removes a poison message from the queue and keeps a copy
// with the failure reason. Both writes share the session's transaction.
func (s *Session) MoveToDeadLetter(ctx context.Context, msg models.QueueMessage, reason string) error {
	if err := s.Remove(ctx, msg.ID); err != nil {
		return err
	}

	_, err := s.exec(ctx, `
		INSERT INTO dead_letters (message_id, direction, payload, reason, queued_at, failed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, string(msg.Direction), msg.Payload, reason, msg.CreatedAt.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store dead letter %s: %w", msg.ID, err)
	}
	return nil
}

// ListDeadLetters returns the most recent dead letters first
func (s *Session) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	rows, err := s.query(ctx, `
		SELECT id, message_id, direction, payload, reason, queued_at, failed_at
		FROM dead_letters
		ORDER BY failed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var (
			d                  models.DeadLetter
			direction          string
			queuedMs, failedMs int64
		)
		if err := rows.Scan(&d.ID, &d.MessageID, &direction, &d.Payload, &d.Reason, &queuedMs, &failedMs); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		d.Direction = models.Direction(direction)
		d.QueuedAt = time.UnixMilli(queuedMs)
		d.FailedAt = time.UnixMilli(failedMs)
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneDeadLetters deletes dead letters that failed before cutoff
func (s *Session) PruneDeadLetters(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM dead_letters WHERE failed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune dead letters: %w", err)
	}
	return res.RowsAffected()
}

func (s *Session) CountDeadLetters(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}
