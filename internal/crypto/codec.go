package crypto

import (
	"fmt"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/rs/zerolog/log"
)

// Cipher names accepted by NewCodecFromConfig.
const (
	CipherAESGCM = "aes-gcm"
	CipherNoOp   = "noop"
)

// Codec encrypts and decrypts the secret fields of a connection. Absent
// (nil) values pass through unchanged. It is safe for concurrent use.
type Codec struct {
	enc TextEncryptor
}

// NewCodec wraps enc. A nil encryptor is rejected: plaintext storage has to be
// requested with NoOpEncryptor.
func NewCodec(enc TextEncryptor) (*Codec, error) {
	if enc == nil {
		return nil, ErrCipherRequired
	}
	return &Codec{enc: enc}, nil
}

// NewCodecFromConfig builds a codec for the named cipher. For aes-gcm a
// base64 key takes precedence over password and salt.
func NewCodecFromConfig(cipherName, base64Key, password, salt string) (*Codec, error) {
	switch cipherName {
	case CipherAESGCM:
		var (
			enc *AESGCMEncryptor
			err error
		)
		if base64Key != "" {
			key, keyErr := KeyFromBase64(base64Key)
			if keyErr != nil {
				return nil, keyErr
			}
			enc, err = NewAESGCMEncryptor(key)
		} else {
			enc, err = NewPasswordEncryptor(password, salt)
		}
		if err != nil {
			return nil, err
		}
		return NewCodec(enc)
	case CipherNoOp:
		log.Warn().Msg("Credential encryption disabled, connection secrets are stored as plaintext")
		return NewCodec(NoOpEncryptor{})
	case "":
		return nil, ErrCipherRequired
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, cipherName)
	}
}

// Encrypt returns the ciphertext of value, or nil for nil.
func (c *Codec) Encrypt(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	out, err := c.enc.Encrypt(*value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Decrypt returns the plaintext of value, or nil for nil.
func (c *Codec) Decrypt(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	out, err := c.enc.Decrypt(*value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EncryptConnection returns a copy of conn with every secret field encrypted.
func (c *Codec) EncryptConnection(conn *domain.Connection) (*domain.Connection, error) {
	return c.apply(conn, c.Encrypt)
}

// DecryptConnection returns a copy of conn with every secret field decrypted.
func (c *Codec) DecryptConnection(conn *domain.Connection) (*domain.Connection, error) {
	return c.apply(conn, c.Decrypt)
}

func (c *Codec) apply(conn *domain.Connection, fn func(*string) (*string, error)) (*domain.Connection, error) {
	out := conn.Clone()

	accessToken, err := fn(&out.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	out.AccessToken = *accessToken

	if out.Secret, err = fn(out.Secret); err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	if out.RefreshToken, err = fn(out.RefreshToken); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return out, nil
}
