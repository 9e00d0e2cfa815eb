package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const pbkdf2Iterations = 100_000

// GenerateKey generates a new random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// DeriveKey stretches a password and salt into an AES-256 key.
func DeriveKey(password, salt string) ([]byte, error) {
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if salt == "" {
		return nil, ErrSaltRequired
	}
	return pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, KeySize, sha256.New), nil
}

// KeyFromBase64 decodes a base64-encoded AES-256 key.
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	return key, nil
}

func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
