package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionAttributes is the durable attribute bag of one OAuth handshake
// session. It is created lazily on the first Set.
type SessionAttributes struct {
	ID         string         `bson:"_id"        json:"id"`
	Attributes map[string]any `bson:"attributes" json:"attributes"`
	UpdatedAt  time.Time      `bson:"updated_at" json:"updated_at"`
}

// ValidateAttributeName rejects names that cannot be used as a document field.
func ValidateAttributeName(name string) error {
	if name == "" || strings.ContainsRune(name, '.') || strings.HasPrefix(name, "$") {
		return fmt.Errorf("%w: %q", ErrInvalidAttributeName, name)
	}
	return nil
}
