package processor

import (
	"context"
	"testing"

	"github.com/Guizzs26/go-sync-bridge/internal/crypto"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSettings struct {
	values map[string]string
	queue  []string
}

func newMemSettings() *memSettings {
	return &memSettings{values: map[string]string{}}
}

func (m *memSettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSettings) SetSettingIfAbsent(_ context.Context, key, value string) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

func (m *memSettings) Enqueue(_ context.Context, _ models.Direction, payload string) (string, error) {
	m.queue = append(m.queue, payload)
	return "id", nil
}

func TestEnsureSecret_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := newMemSettings()

	created, err := EnsureSecret(ctx, s)
	require.NoError(t, err)
	assert.True(t, created)
	first := s.values[models.SettingSecret]

	created, err = EnsureSecret(ctx, s)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, s.values[models.SettingSecret])

	_, err = crypto.NewSealer(first)
	assert.NoError(t, err)
}

func TestSend_RequiresSecret(t *testing.T) {
	ctx := context.Background()
	s := newMemSettings()

	_, err := Send(ctx, s, models.ToRemote, models.NewEvent(models.EventPairingSuccess, nil))
	assert.ErrorIs(t, err, models.ErrSecretMissing)
	assert.Empty(t, s.queue)

	_, err = EnsureSecret(ctx, s)
	require.NoError(t, err)

	env := models.NewFeedback(models.EventPairingSuccess, "U1", nil)
	_, err = Send(ctx, s, models.ToRemote, env)
	require.NoError(t, err)
	require.Len(t, s.queue, 1)

	got, err := crypto.DecryptEnvelope(s.values[models.SettingSecret], s.queue[0])
	require.NoError(t, err)
	assert.Equal(t, models.EventPairingSuccess, got.Kind())
	assert.Equal(t, models.Identity("U1"), got.Origin())
}
