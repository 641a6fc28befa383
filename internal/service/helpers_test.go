package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Guizzs26/go-sync-bridge/internal/crypto"
	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/notify"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	store  *db.Store
	secret string
	logger *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := db.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "bridge.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	secret, err := crypto.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, store.Session().SetSetting(ctx, models.SettingSecret, secret))

	return &harness{t: t, store: store, secret: secret, logger: logger}
}

func (h *harness) set(key, value string) {
	h.t.Helper()
	require.NoError(h.t, h.store.Session().SetSetting(context.Background(), key, value))
}

func (h *harness) setting(key string) (string, bool) {
	h.t.Helper()
	v, ok, err := h.store.Session().GetSetting(context.Background(), key)
	require.NoError(h.t, err)
	return v, ok
}

// push encrypts env and enqueues it as if the remote side sent it
func (h *harness) push(dir models.Direction, env models.Envelope) string {
	h.t.Helper()
	token, err := crypto.EncryptEnvelope(h.secret, env)
	require.NoError(h.t, err)
	id, err := h.store.Session().Enqueue(context.Background(), dir, token)
	require.NoError(h.t, err)
	return id
}

func (h *harness) pushRaw(dir models.Direction, payload string) {
	h.t.Helper()
	_, err := h.store.Session().Enqueue(context.Background(), dir, payload)
	require.NoError(h.t, err)
}

// pending decrypts every queued message of a direction without consuming it
func (h *harness) pending(dir models.Direction) []models.Envelope {
	h.t.Helper()
	batch, err := h.store.Session().FetchBatch(context.Background(), dir, 1000)
	require.NoError(h.t, err)

	out := make([]models.Envelope, 0, len(batch))
	for _, m := range batch {
		env, err := crypto.DecryptEnvelope(h.secret, m.Payload)
		require.NoError(h.t, err)
		out = append(out, env)
	}
	return out
}

func (h *harness) count(dir models.Direction) int {
	h.t.Helper()
	n, err := h.store.Session().CountQueue(context.Background(), dir)
	require.NoError(h.t, err)
	return n
}

func (h *harness) drafts() []models.Draft {
	h.t.Helper()
	d, err := h.store.Session().ListDrafts(context.Background(), "")
	require.NoError(h.t, err)
	return d
}

func (h *harness) deadLetters() []models.DeadLetter {
	h.t.Helper()
	d, err := h.store.Session().ListDeadLetters(context.Background(), 100)
	require.NoError(h.t, err)
	return d
}

func (h *harness) inbound() *InboundDrain {
	return NewInboundDrain(h.store, processor.NewInboundHandler(h.logger), 5, h.logger)
}

func (h *harness) drainInbound() BatchReport {
	h.t.Helper()
	report, err := h.inbound().ProcessNextBatch(context.Background())
	require.NoError(h.t, err)
	return report
}

// recordingNotifier is a hand-written fake transport
type recordingNotifier struct {
	sent []notify.Notification
	fail error
}

func (r *recordingNotifier) Name() string { return "fake" }

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, n)
	return nil
}
