package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting reads a key of the settings store. ok is false when it is absent.
func (s *Session) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.queryRow(ctx, `SELECT setting_value FROM system_settings WHERE setting_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting[%s]: %w", key, err)
	}
	return value, true, nil
}

// SetSetting inserts or overwrites a key
func (s *Session) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, `
		INSERT INTO system_settings (setting_key, setting_value) VALUES (?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting[%s]: %w", key, err)
	}
	return nil
}

// SetSettingIfAbsent writes the key only when it does not exist yet.
// It reports whether this call created it.
func (s *Session) SetSettingIfAbsent(ctx context.Context, key, value string) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO system_settings (setting_key, setting_value) VALUES (?, ?)
		ON CONFLICT (setting_key) DO NOTHING
	`, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to init setting[%s]: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm setting[%s]: %w", key, err)
	}
	return n == 1, nil
}

// DeleteSetting removes a key and reports whether it existed
func (s *Session) DeleteSetting(ctx context.Context, key string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM system_settings WHERE setting_key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete setting[%s]: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm delete of setting[%s]: %w", key, err)
	}
	return n > 0, nil
}

// DeleteSettingIfEquals removes the key only when it holds value. This is the
// match-and-clear primitive: two concurrent callers cannot both succeed.
func (s *Session) DeleteSettingIfEquals(ctx context.Context, key, value string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM system_settings WHERE setting_key = ? AND setting_value = ?`, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-delete setting[%s]: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm compare-and-delete of setting[%s]: %w", key, err)
	}
	return n == 1, nil
}
