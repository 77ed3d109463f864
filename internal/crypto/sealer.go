// Package crypto seals short text values for storage with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrMalformed is returned for sealed values that cannot be decoded or
// authenticated.
var ErrMalformed = errors.New("malformed sealed value")

// Sealer encrypts values bound to an owner. A value sealed for one owner
// cannot be opened as another owner's.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer takes a 32-byte key as 64 hex characters.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal returns base64(nonce || ciphertext) with owner as associated data.
func (s *Sealer) Seal(plaintext, owner string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := s.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(owner))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, owner string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	n := s.gcm.NonceSize()
	if len(raw) < n+s.gcm.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrMalformed)
	}
	plaintext, err := s.gcm.Open(nil, raw[:n], raw[n:], []byte(owner))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return string(plaintext), nil
}
