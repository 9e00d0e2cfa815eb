package domain

import "time"

// ConnectionKey identifies an identity at an external provider.
type ConnectionKey struct {
	ProviderID     string `bson:"provider_id" json:"provider_id"`
	ProviderUserID string `bson:"provider_user_id" json:"provider_user_id"`
}

func (k ConnectionKey) String() string {
	return k.ProviderID + ":" + k.ProviderUserID
}

// ConnectionData is the provider-facing part of a connection.
// Secret fields are plaintext in memory and ciphertext once persisted.
type ConnectionData struct {
	ConnectionKey `bson:",inline"`

	DisplayName  string  `bson:"display_name,omitempty" json:"display_name,omitempty"`
	ProfileURL   string  `bson:"profile_url,omitempty"  json:"profile_url,omitempty"`
	ImageURL     string  `bson:"image_url,omitempty"    json:"image_url,omitempty"`
	AccessToken  string  `bson:"access_token"           json:"-"` // Encrypted
	Secret       *string `bson:"secret,omitempty"        json:"-"` // Encrypted
	RefreshToken *string `bson:"refresh_token,omitempty" json:"-"` // Encrypted
	ExpireTime   *int64  `bson:"expire_time,omitempty"   json:"expire_time,omitempty"`
}

// Connection links a local user to an identity at an external OAuth provider.
type Connection struct {
	ID     string `bson:"_id,omitempty" json:"id,omitempty"`
	UserID string `bson:"user_id"       json:"user_id"`

	ConnectionData `bson:",inline"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Clone returns a deep copy, so that secret fields can be rewritten without
// touching the caller's value.
func (c *Connection) Clone() *Connection {
	cp := *c
	if c.Secret != nil {
		s := *c.Secret
		cp.Secret = &s
	}
	if c.RefreshToken != nil {
		s := *c.RefreshToken
		cp.RefreshToken = &s
	}
	if c.ExpireTime != nil {
		t := *c.ExpireTime
		cp.ExpireTime = &t
	}
	return &cp
}

// ProviderConnections is one group of ListAll: every connection the user holds
// at a single provider, newest first.
type ProviderConnections struct {
	ProviderID  string        `json:"provider_id"`
	Connections []*Connection `json:"connections"`
}
