package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
)

const draftColumns = `id, raw_name, amount, currency, chat_id, status, created_at`

// CreateDraft quarantines a normalized submission with status "new"
func (s *Session) CreateDraft(ctx context.Context, in models.DraftInput) (models.Draft, error) {
	d := models.Draft{
		RawName:   in.RawName,
		Amount:    in.Amount,
		Currency:  in.Currency,
		ChatID:    in.ChatID,
		Status:    models.DraftNew,
		CreatedAt: time.UnixMilli(time.Now().UnixMilli()),
	}

	err := s.queryRow(ctx, `
		INSERT INTO drafts (raw_name, amount, currency, chat_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, d.RawName, d.Amount, d.Currency, string(d.ChatID), string(d.Status), d.CreatedAt.UnixMilli()).Scan(&d.ID)
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to create draft: %w", err)
	}
	return d, nil
}

func (s *Session) GetDraft(ctx context.Context, id int64) (models.Draft, error) {
	row := s.queryRow(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Draft{}, models.ErrNotFound
	}
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to get draft %d: %w", id, err)
	}
	return d, nil
}

// ListDrafts returns drafts with the given status, oldest first.
// An empty status lists every draft.
func (s *Session) ListDrafts(ctx context.Context, status models.DraftStatus) ([]models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var out []models.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Session) CountDrafts(ctx context.Context, status models.DraftStatus) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM drafts WHERE status = ?`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count drafts: %w", err)
	}
	return n, nil
}

// MarkDraftProcessed flips a draft from new to processed exactly once
func (s *Session) MarkDraftProcessed(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `UPDATE drafts SET status = ? WHERE id = ? AND status = ?`,
		string(models.DraftProcessed), id, string(models.DraftNew))
	if err != nil {
		return fmt.Errorf("failed to mark draft %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm draft %d update: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetDraft(ctx, id); err != nil {
		return err
	}
	return models.ErrDraftProcessed
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(r rowScanner) (models.Draft, error) {
	var (
		d         models.Draft
		chatID    string
		status    string
		createdMs int64
	)
	if err := r.Scan(&d.ID, &d.RawName, &d.Amount, &d.Currency, &chatID, &status, &createdMs); err != nil {
		return models.Draft{}, err
	}
	d.ChatID = models.Identity(chatID)
	d.Status = models.DraftStatus(status)
	d.CreatedAt = time.UnixMilli(createdMs)
	return d, nil
}
