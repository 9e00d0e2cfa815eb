package domain

import (
	"strings"
	"time"
)

// UserType tells which identity source a local account was created from.
type UserType string

const (
	UserTypeInternal UserType = "INTERNAL"
	UserTypeGitHub   UserType = "GITHUB"
)

// UserTypeForProvider maps a provider id ("github") to its identity-source tag ("GITHUB").
func UserTypeForProvider(providerID string) UserType {
	return UserType(strings.ToUpper(strings.TrimSpace(providerID)))
}

// UserMeta carries bookkeeping timestamps of an account.
type UserMeta struct {
	LastLogin      time.Time `bson:"last_login"      json:"last_login"`
	SynchronizedAt time.Time `bson:"synchronized_at" json:"synchronized_at"`
}

// User is the local account an external identity resolves to. Only the fields
// read or written by federation are modelled here.
type User struct {
	ID               string    `bson:"_id,omitempty"               json:"id,omitempty"`
	Login            string    `bson:"login"                       json:"login"`
	Email            string    `bson:"email"                       json:"email"`
	FullName         string    `bson:"full_name"                   json:"full_name"`
	Type             UserType  `bson:"type"                        json:"type"`
	Role             UserRole  `bson:"role"                        json:"role"`
	PhotoID          string    `bson:"photo_id,omitempty"          json:"photo_id,omitempty"`
	PhotoSourceURL   string    `bson:"photo_source_url,omitempty"  json:"-"`
	IsExpired        bool      `bson:"is_expired"                  json:"is_expired"`
	DefaultWorkspace string    `bson:"default_workspace,omitempty" json:"default_workspace,omitempty"`
	Meta             UserMeta  `bson:"meta"                        json:"meta"`
	CreatedAt        time.Time `bson:"created_at"                  json:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"                  json:"updated_at"`
}

// NormalizeLogin lower-cases and trims an external handle into a login.
func NormalizeLogin(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
