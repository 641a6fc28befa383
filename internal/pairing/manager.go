package pairing

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/Guizzs26/go-sync-bridge/internal/db"
	"github.com/Guizzs26/go-sync-bridge/internal/models"
)

// DefaultCodeLength is the number of digits in an issued code
const DefaultCodeLength = 6

// Settings is the key/value capability the state machine works on.
// *db.Session satisfies it, inside or outside a transaction.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	SetSettingIfAbsent(ctx context.Context, key, value string) (bool, error)
	DeleteSetting(ctx context.Context, key string) (bool, error)
	DeleteSettingIfEquals(ctx context.Context, key, value string) (bool, error)
}

// Store runs a unit of work atomically
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, sess *db.Session) error) error
}

type Manager struct {
	store      Store
	codeLength int
	logger     *slog.Logger
}

func NewManager(store Store, codeLength int, logger *slog.Logger) *Manager {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	return &Manager{store: store, codeLength: codeLength, logger: logger}
}

// CodeLength is the number of digits this manager issues
func (m *Manager) CodeLength() int {
	return m.codeLength
}

// Load reads the pairing snapshot through the given settings
func Load(ctx context.Context, s Settings) (Snapshot, error) {
	bound, _, err := s.GetSetting(ctx, models.SettingBoundChat)
	if err != nil {
		return Snapshot{}, err
	}
	code, _, err := s.GetSetting(ctx, models.SettingPairingCode)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Bound: models.NewIdentity(bound), Code: code}, nil
}

func (m *Manager) Status(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := m.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		var err error
		snap, err = Load(ctx, sess)
		return err
	})
	return snap, err
}

// IssueCode generates a new code and stores it, replacing any pending one.
// The last issued code wins.
func (m *Manager) IssueCode(ctx context.Context) (string, error) {
	code, err := GenerateCode(m.codeLength)
	if err != nil {
		return "", err
	}

	err = m.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		snap, err := Load(ctx, sess)
		if err != nil {
			return err
		}
		if snap.State() == Paired {
			return fmt.Errorf("%w: bound to %s", models.ErrAlreadyPaired, snap.Bound)
		}
		if snap.Code != "" {
			m.logger.Warn("Replacing a pairing code that was never used")
		}
		return sess.SetSetting(ctx, models.SettingPairingCode, code)
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("Pairing code issued", "length", m.codeLength)
	return code, nil
}

// Unlink drops the bound identity and returns it. A pending code is cleared
// as well so the next pairing starts from Unpaired.
func (m *Manager) Unlink(ctx context.Context) (models.Identity, error) {
	var previous models.Identity
	err := m.store.InTx(ctx, func(ctx context.Context, sess *db.Session) error {
		snap, err := Load(ctx, sess)
		if err != nil {
			return err
		}
		if snap.State() != Paired {
			return models.ErrNotPaired
		}
		previous = snap.Bound
		if _, err := sess.DeleteSetting(ctx, models.SettingBoundChat); err != nil {
			return err
		}
		_, err = sess.DeleteSetting(ctx, models.SettingPairingCode)
		return err
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("Remote identity unlinked", "chat_id", previous)
	return previous, nil
}

// Resolve applies a pairing request inside the caller's transaction.
//
// The code is consumed with a compare-and-delete, so of two racing requests
// carrying the right code only one can bind.
func Resolve(ctx context.Context, s Settings, requester models.Identity, code string) (Outcome, error) {
	requester = models.NewIdentity(string(requester))

	snap, err := Load(ctx, s)
	if err != nil {
		return 0, err
	}

	outcome := Decide(snap, requester, code)
	if outcome != OutcomeMatched {
		return outcome, nil
	}

	consumed, err := s.DeleteSettingIfEquals(ctx, models.SettingPairingCode, code)
	if err != nil {
		return 0, err
	}
	if !consumed {
		return OutcomeMismatch, nil
	}

	bound, err := s.SetSettingIfAbsent(ctx, models.SettingBoundChat, string(requester))
	if err != nil {
		return 0, err
	}
	if !bound {
		// another transaction bound an identity after our snapshot
		return 0, models.ErrBoundElsewhere
	}
	return OutcomeMatched, nil
}

// GenerateCode returns n uniformly random decimal digits
func GenerateCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate pairing code: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// ValidateCode checks the shape of a code typed by the remote user
func ValidateCode(code string, length int) error {
	if length <= 0 {
		length = DefaultCodeLength
	}
	if len(code) != length {
		return fmt.Errorf("%w: pairing code must have %d digits", models.ErrInvalidPayload, length)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: pairing code must be numeric", models.ErrInvalidPayload)
		}
	}
	return nil
}
