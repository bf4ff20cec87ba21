// Package crypto guards custodial key material at rest.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// KeyManager encrypts private keys before they are persisted. The env-seeded implementation
// below can be swapped for a KMS or HSM backed one without touching callers.
type KeyManager interface {
	Encrypt(ctx context.Context, plaintext []byte) (string, error)
	// Decrypt returns a fresh slice the caller must Zero once it is done signing.
	Decrypt(ctx context.Context, ciphertext string) ([]byte, error)
}

const envPrefix = "v1:"

var ErrCiphertext = errors.New("malformed ciphertext")

// EnvKeyManager is AES-256-GCM with a key stretched from a process secret by scrypt.
type EnvKeyManager struct {
	aead cipher.AEAD
}

// NewEnvKeyManager derives the data key once; scrypt is deliberately slow (N=32768).
func NewEnvKeyManager(secret, salt string) (*EnvKeyManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("encryption secret must be at least 16 bytes")
	}
	if salt == "" {
		return nil, errors.New("encryption salt is required")
	}
	key, err := scrypt.Key([]byte(secret), []byte(salt), 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &EnvKeyManager{aead: aead}, nil
}

func (m *EnvKeyManager) Encrypt(_ context.Context, plaintext []byte) (string, error) {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("create nonce: %w", err)
	}
	sealed := m.aead.Seal(nonce, nonce, plaintext, nil)
	return envPrefix + hex.EncodeToString(sealed), nil
}

func (m *EnvKeyManager) Decrypt(_ context.Context, ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, envPrefix) {
		return nil, ErrCiphertext
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(ciphertext, envPrefix))
	if err != nil {
		return nil, ErrCiphertext
	}
	ns := m.aead.NonceSize()
	if len(raw) < ns+m.aead.Overhead() {
		return nil, ErrCiphertext
	}
	plain, err := m.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plain, nil
}

// Zero overwrites b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
