package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/pairing"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/Guizzs26/go-sync-bridge/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsole(t *testing.T) (*console, *db.Store, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := db.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "console.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	_, err = processor.EnsureSecret(ctx, store.Session())
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &console{
		pairing: pairing.NewManager(store, 6, logger),
		review:  service.NewReviewService(store, logger),
		out:     out,
	}, store, out
}

func TestConsole_PairingCommands(t *testing.T) {
	ctx := context.Background()
	c, store, out := newConsole(t)

	require.NoError(t, c.run(ctx, "status", nil))
	assert.Contains(t, out.String(), "not paired")

	out.Reset()
	require.NoError(t, c.run(ctx, "code", nil))
	assert.Contains(t, out.String(), "pairing code:")

	require.NoError(t, store.Session().SetSetting(ctx, models.SettingBoundChat, "U1"))
	out.Reset()
	require.NoError(t, c.run(ctx, "status", nil))
	assert.Contains(t, out.String(), "paired with chat U1")

	out.Reset()
	require.NoError(t, c.run(ctx, "unlink", nil))
	assert.Contains(t, out.String(), "unlinked chat U1")

	assert.ErrorIs(t, c.run(ctx, "unlink", nil), models.ErrNotPaired)
}

func TestConsole_ReviewFlow(t *testing.T) {
	ctx := context.Background()
	c, store, out := newConsole(t)

	draft, err := store.Session().CreateDraft(ctx, models.DraftInput{RawName: "Telegram: Netflix", Amount: 199, Currency: "UAH", ChatID: "U1"})
	require.NoError(t, err)

	require.NoError(t, c.run(ctx, "drafts", nil))
	assert.Contains(t, out.String(), "Telegram: Netflix")

	out.Reset()
	require.NoError(t, c.run(ctx, "approve", []string{"-id", "1", "-date", "01.02.2027"}))
	assert.Contains(t, out.String(), `"Netflix"`)
	assert.Contains(t, out.String(), "2027-02-01")
	assert.Contains(t, out.String(), "chat U1 notified")

	assert.ErrorIs(t, c.run(ctx, "reject", []string{"-id", "1"}), models.ErrDraftProcessed)
	assert.Equal(t, int64(1), draft.ID)

	out.Reset()
	require.NoError(t, c.run(ctx, "subs", nil))
	assert.Contains(t, out.String(), "01.02.2027")

	out.Reset()
	require.NoError(t, c.run(ctx, "pay", []string{"-id", "1"}))
	assert.Contains(t, out.String(), "01.03.2027")

	out.Reset()
	require.NoError(t, c.run(ctx, "sub-delete", []string{"-id", "1"}))
	assert.Contains(t, out.String(), `"Netflix" deleted`)
}

func TestConsole_SubAdd(t *testing.T) {
	ctx := context.Background()
	c, _, out := newConsole(t)

	assert.ErrorIs(t, c.run(ctx, "sub-add", []string{"-name", "Gym"}), errUsage)
	assert.ErrorIs(t, c.run(ctx, "sub-add", []string{"-name", "Gym", "-cost", "500", "-period", "weekly"}), models.ErrInvalidPayload)

	require.NoError(t, c.run(ctx, "sub-add", []string{"-name", "Gym", "-cost", "500", "-period", "quarter"}))
	assert.Contains(t, out.String(), `"Gym" created`)
}

func TestConsole_Usage(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newConsole(t)

	assert.ErrorIs(t, c.run(ctx, "nope", nil), errUsage)
	assert.ErrorIs(t, c.run(ctx, "approve", nil), errUsage)
	assert.ErrorIs(t, c.run(ctx, "pay", []string{"-bogus"}), errUsage)
	require.NoError(t, c.run(ctx, "dead-letters", nil))
}

func TestRun_ExitCodes(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "run.sqlite"))
	t.Setenv("LOG_FILE", "")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: pairctl")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"bogus"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: pairctl")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"reject", "-id", "42"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "error:")

	assert.Equal(t, 0, run([]string{"code"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "pairing code:")

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"status"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "waiting for code")
}
