package processor

import (
	"context"
	"fmt"

	"github.com/Guizzs26/go-sync-bridge/internal/crypto"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
)

// SecretReader exposes the envelope secret of the settings store
type SecretReader interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Sink is the part of a store session that envelopes are written through
type Sink interface {
	SecretReader
	Enqueue(ctx context.Context, dir models.Direction, payload string) (string, error)
}

// LoadSealer builds a sealer from the secret currently stored. It is read on
// every call so that no process caches the secret across cycles.
func LoadSealer(ctx context.Context, s SecretReader) (*crypto.Sealer, error) {
	secret, ok, err := s.GetSetting(ctx, models.SettingSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to read envelope secret: %w", err)
	}
	if !ok || secret == "" {
		return nil, models.ErrSecretMissing
	}
	return crypto.NewSealer(secret)
}

// Send encrypts env and appends it to the queue in the given direction.
// Nothing is enqueued when the secret is missing: plaintext never hits the queue.
func Send(ctx context.Context, s Sink, dir models.Direction, env models.Envelope) (string, error) {
	sealer, err := LoadSealer(ctx, s)
	if err != nil {
		return "", err
	}
	return SendWith(ctx, s, sealer, dir, env)
}

// SendWith is Send with an already loaded sealer, for batches of envelopes
func SendWith(ctx context.Context, s Sink, sealer *crypto.Sealer, dir models.Direction, env models.Envelope) (string, error) {
	token, err := sealer.Seal(env)
	if err != nil {
		return "", err
	}
	id, err := s.Enqueue(ctx, dir, token)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Provisioner can create the envelope secret exactly once
type Provisioner interface {
	SetSettingIfAbsent(ctx context.Context, key, value string) (bool, error)
}

// EnsureSecret stores a fresh secret unless one exists. Concurrent first
// runs converge on the same value: only one insert wins.
func EnsureSecret(ctx context.Context, s Provisioner) (bool, error) {
	secret, err := crypto.GenerateSecret()
	if err != nil {
		return false, err
	}
	created, err := s.SetSettingIfAbsent(ctx, models.SettingSecret, secret)
	if err != nil {
		return false, fmt.Errorf("failed to provision envelope secret: %w", err)
	}
	return created, nil
}
