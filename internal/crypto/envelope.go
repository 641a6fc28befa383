// Package crypto seals queue envelopes with a single shared secret.
//
// Tokens are authenticated: a flipped bit, a truncated token or a different
// secret all surface as ErrDecrypt, never as a plausible payload.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// SecretSize is the length of the raw shared secret in bytes
	SecretSize = 32

	tokenVersion byte = 0x01
	envelopeInfo      = "go-sync-bridge/envelope/v1"
	headerSize        = 1 + chacha20poly1305.NonceSizeX
)

var (
	// ErrDecrypt covers every way a token can be unreadable with the current secret
	ErrDecrypt = errors.New("envelope decrypt failed")
	// ErrInvalidSecret is returned when the stored secret has the wrong format
	ErrInvalidSecret = errors.New("invalid envelope secret")
)

// GenerateSecret returns a new random secret, base64url encoded
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Sealer encrypts and decrypts JSON values under one secret
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the envelope key from the encoded secret
func NewSealer(secret string) (*Sealer, error) {
	raw, err := base64.URLEncoding.DecodeString(secret)
	if err != nil || len(raw) != SecretSize {
		return nil, ErrInvalidSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(envelopeInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive envelope key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal marshals v to JSON and returns base64url(version || nonce || ciphertext)
func (s *Sealer) Seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+s.aead.Overhead())
	out[0] = tokenVersion
	if _, err := rand.Read(out[1:headerSize]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out = s.aead.Seal(out, out[1:headerSize], plaintext, out[:1])
	return base64.URLEncoding.EncodeToString(out), nil
}

// Open authenticates token and unmarshals the plaintext into v
func (s *Sealer) Open(token string, v any) error {
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("%w: bad encoding", ErrDecrypt)
	}
	if len(data) < headerSize+s.aead.Overhead() {
		return fmt.Errorf("%w: token too short", ErrDecrypt)
	}
	if data[0] != tokenVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrDecrypt, data[0])
	}

	plaintext, err := s.aead.Open(nil, data[1:headerSize], data[headerSize:], data[:1])
	if err != nil {
		return fmt.Errorf("%w: authentication failed", ErrDecrypt)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: malformed plaintext: %v", ErrDecrypt, err)
	}
	return nil
}

// EncryptEnvelope seals env with secret
func EncryptEnvelope(secret string, env models.Envelope) (string, error) {
	s, err := NewSealer(secret)
	if err != nil {
		return "", err
	}
	return s.Seal(env)
}

// DecryptEnvelope opens token with secret. A malformed secret is reported as
// ErrDecrypt as well, since the message is unreadable either way.
func DecryptEnvelope(secret, token string) (models.Envelope, error) {
	s, err := NewSealer(secret)
	if err != nil {
		return models.Envelope{}, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	var env models.Envelope
	if err := s.Open(token, &env); err != nil {
		return models.Envelope{}, err
	}
	return env, nil
}
