// Package secrets provides decryption of stored environment variable values.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Decryptor turns a stored ciphertext back into plaintext. Implementations may be
// slow (remote KMS calls) and must be safe for concurrent use.
type Decryptor interface {
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// AESGCM is the default Decryptor. Ciphertext is base64(nonce || sealed).
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM builds a decryptor from a hex-encoded 128- or 256-bit key.
func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESGCM{aead: aead}, nil
}

func (a *AESGCM) Decrypt(_ context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext is not valid base64: %w", err)
	}

	if len(raw) < a.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, sealed := raw[:a.aead.NonceSize()], raw[a.aead.NonceSize():]

	plaintext, err := a.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}

	return string(plaintext), nil
}

// Encrypt seals a plaintext value. Provided for tests and for the environment
// write path; the orchestration core only decrypts.
func (a *AESGCM) Encrypt(_ context.Context, plaintext string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := a.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}
