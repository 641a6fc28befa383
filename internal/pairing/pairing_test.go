package pairing

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *db.Store) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := db.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "pairing.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	return NewManager(store, DefaultCodeLength, logger), store
}

func resolve(t *testing.T, store *db.Store, from models.Identity, code string) (Outcome, error) {
	t.Helper()
	var outcome Outcome
	err := store.InTx(context.Background(), func(ctx context.Context, sess *db.Session) error {
		var err error
		outcome, err = Resolve(ctx, sess, from, code)
		return err
	})
	return outcome, err
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		from models.Identity
		code string
		want Outcome
	}{
		{"unpaired without code", Snapshot{}, "U1", "123456", OutcomeMismatch},
		{"matching code", Snapshot{Code: "482913"}, "U1", "482913", OutcomeMatched},
		{"wrong code", Snapshot{Code: "482913"}, "U1", "000000", OutcomeMismatch},
		{"empty code never matches", Snapshot{Code: ""}, "U1", "", OutcomeMismatch},
		{"already bound to requester", Snapshot{Bound: "U1"}, "U1", "482913", OutcomeAlreadyPaired},
		{"bound to someone else", Snapshot{Bound: "U1", Code: "482913"}, "U2", "482913", OutcomeBoundElsewhere},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.snap, tt.from, tt.code))
		})
	}
}

func TestSnapshot_State(t *testing.T) {
	assert.Equal(t, Unpaired, Snapshot{}.State())
	assert.Equal(t, CodeIssued, Snapshot{Code: "1"}.State())
	assert.Equal(t, Paired, Snapshot{Bound: "U1", Code: "1"}.State())
	assert.Equal(t, "code_issued", CodeIssued.String())
}

func TestOutcome_Feedback(t *testing.T) {
	assert.Equal(t, models.EventPairingSuccess, OutcomeMatched.Feedback())
	assert.Equal(t, models.EventPairingFailed, OutcomeMismatch.Feedback())
	assert.Equal(t, models.EventAlreadyPaired, OutcomeAlreadyPaired.Feedback())
	assert.Empty(t, OutcomeBoundElsewhere.Feedback())
}

func TestOutcome_Err(t *testing.T) {
	assert.NoError(t, OutcomeMatched.Err())
	assert.ErrorIs(t, OutcomeMismatch.Err(), models.ErrPairingMismatch)
	assert.ErrorIs(t, OutcomeAlreadyPaired.Err(), models.ErrAlreadyPaired)
	assert.ErrorIs(t, OutcomeBoundElsewhere.Err(), models.ErrBoundElsewhere)
}

func TestManager_PairOnce(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	code, err := m.IssueCode(ctx)
	require.NoError(t, err)
	require.NoError(t, ValidateCode(code, DefaultCodeLength))

	snap, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, CodeIssued, snap.State())

	outcome, err := resolve(t, store, "U1", code)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, outcome)

	snap, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Paired, snap.State())
	assert.Equal(t, models.Identity("U1"), snap.Bound)
	assert.Empty(t, snap.Code)

	// the code is gone, so a replay cannot bind again
	outcome, err = resolve(t, store, "U1", code)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPaired, outcome)

	outcome, err = resolve(t, store, "U2", code)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBoundElsewhere, outcome)
}

func TestManager_MismatchKeepsCode(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	require.NoError(t, store.Session().SetSetting(ctx, models.SettingPairingCode, "482913"))

	outcome, err := resolve(t, store, "U1", "000000")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, outcome)

	snap, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "482913", snap.Code)
	assert.Empty(t, snap.Bound)
}

func TestManager_LastIssuedCodeWins(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	first, err := m.IssueCode(ctx)
	require.NoError(t, err)
	second, err := m.IssueCode(ctx)
	require.NoError(t, err)

	if first != second {
		outcome, err := resolve(t, store, "U1", first)
		require.NoError(t, err)
		assert.Equal(t, OutcomeMismatch, outcome)
	}

	outcome, err := resolve(t, store, "U1", second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, outcome)
}

func TestManager_IssueWhilePaired(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	require.NoError(t, store.Session().SetSetting(ctx, models.SettingBoundChat, "U1"))

	_, err := m.IssueCode(ctx)
	assert.ErrorIs(t, err, models.ErrAlreadyPaired)
}

func TestManager_Unlink(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	_, err := m.Unlink(ctx)
	assert.ErrorIs(t, err, models.ErrNotPaired)

	require.NoError(t, store.Session().SetSetting(ctx, models.SettingBoundChat, "U1"))
	prev, err := m.Unlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Identity("U1"), prev)

	snap, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unpaired, snap.State())
}

func TestGenerateCode(t *testing.T) {
	for _, n := range []int{4, 6, 8} {
		code, err := GenerateCode(n)
		require.NoError(t, err)
		assert.NoError(t, ValidateCode(code, n))
	}
}

func TestValidateCode(t *testing.T) {
	assert.NoError(t, ValidateCode("012345", 6))
	assert.ErrorIs(t, ValidateCode("12345", 6), models.ErrInvalidPayload)
	assert.ErrorIs(t, ValidateCode("12a456", 6), models.ErrInvalidPayload)
}
