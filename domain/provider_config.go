package domain

import (
	"strings"
	"time"
)

// ProviderConfig holds the admin-supplied settings of one external provider,
// e.g. {"clientId": "...", "clientSecret": "..."} for GitHub.
type ProviderConfig struct {
	ProviderID string            `bson:"_id"        json:"provider_id"`
	Attributes map[string]string `bson:"attributes" json:"attributes"`
	CreatedAt  time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `bson:"updated_at" json:"updated_at"`
}

// Attribute returns the trimmed value of name, or "" if unset.
func (p *ProviderConfig) Attribute(name string) string {
	if p == nil || p.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(p.Attributes[name])
}
