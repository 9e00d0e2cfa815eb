package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKeySize     = errors.New("encryption key must be 32 bytes for AES-256")
	ErrPasswordRequired   = errors.New("credential password is required")
	ErrSaltRequired       = errors.New("credential salt is required")
	ErrCipherRequired     = errors.New("credential cipher must be set explicitly")
	ErrUnknownCipher      = errors.New("unknown credential cipher")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// TextEncryptor is a reversible cipher over strings.
type TextEncryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESGCMEncryptor encrypts with AES-256-GCM. Output is base64(nonce || ciphertext).
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

// NewAESGCMEncryptor creates an encryptor from a 32 byte key.
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMEncryptor{aead: gcm}, nil
}

// NewPasswordEncryptor derives the key from a password and salt.
func NewPasswordEncryptor(password, salt string) (*AESGCMEncryptor, error) {
	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	return NewAESGCMEncryptor(key)
}

func (e *AESGCMEncryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *AESGCMEncryptor) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// NoOpEncryptor stores secrets as plaintext. Only for non-production setups.
type NoOpEncryptor struct{}

func (NoOpEncryptor) Encrypt(plaintext string) (string, error) { return plaintext, nil }

func (NoOpEncryptor) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

var (
	_ TextEncryptor = (*AESGCMEncryptor)(nil)
	_ TextEncryptor = NoOpEncryptor{}
)
