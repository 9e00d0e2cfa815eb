package domain

import (
	"context"
)

// ConnectionRepository persists connections across all users. Secret fields
// are stored as given; encryption happens above this layer.
type ConnectionRepository interface {
	// Insert stores a new connection. It returns ErrDuplicateConnection when
	// (user, provider, provider user) or (user, provider, created) is taken.
	Insert(ctx context.Context, conn *Connection) error
	// Update rewrites the mutable fields of the connection identified by
	// conn.UserID and conn.ConnectionKey. It returns ErrNotConnected when no
	// such connection exists.
	Update(ctx context.Context, conn *Connection) error

	// FindByUser lists every connection of a user ordered by provider id
	// ascending, then by creation time descending.
	FindByUser(ctx context.Context, userID string) ([]*Connection, error)
	// FindByUserAndProvider lists a user's connections at one provider, newest first.
	FindByUserAndProvider(ctx context.Context, userID, providerID string) ([]*Connection, error)
	// FindByUserAndKey returns ErrNotConnected when there is no match.
	FindByUserAndKey(ctx context.Context, userID string, key ConnectionKey) (*Connection, error)
	// FindByUserAndKeys returns every connection of the user matching any of
	// the provider user ids, in no particular order.
	FindByUserAndKeys(ctx context.Context, userID string, keys map[string][]string) ([]*Connection, error)

	DeleteByUserAndProvider(ctx context.Context, userID, providerID string) error
	DeleteByUserAndKey(ctx context.Context, userID string, key ConnectionKey) error

	// FindUserIDsByKey returns the ids of the users linked to the external identity.
	FindUserIDsByKey(ctx context.Context, key ConnectionKey) ([]string, error)
	// FindUserIDsConnectedTo returns the distinct ids of the users holding a
	// connection to any of the provider user ids.
	FindUserIDsConnectedTo(ctx context.Context, providerID string, providerUserIDs []string) ([]string, error)
}

// ProviderConfigRepository stores provider settings keyed by provider id.
type ProviderConfigRepository interface {
	// Get returns ErrConfigurationNotFound when the provider is not configured.
	Get(ctx context.Context, providerID string) (*ProviderConfig, error)
	// Save creates or replaces the configuration.
	Save(ctx context.Context, cfg *ProviderConfig) error
	// Delete returns ErrConfigurationNotFound when nothing was removed.
	Delete(ctx context.Context, providerID string) error
	// List returns all configurations ordered by provider id.
	List(ctx context.Context) ([]*ProviderConfig, error)
}

// UserRepository is the slice of the account store federation needs.
type UserRepository interface {
	// GetByLogin returns ErrUserNotFound when no user has the login.
	GetByLogin(ctx context.Context, login string) (*User, error)
	// GetByEmail returns ErrUserNotFound when no user has the email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Create returns ErrDuplicateLogin or ErrDuplicateEmail when the
	// corresponding unique key is taken.
	Create(ctx context.Context, user *User) error
	// Update replaces the stored user; ErrUserNotFound when it does not exist.
	Update(ctx context.Context, user *User) error
}

// WorkspaceRepository is the slice of the workspace store federation needs.
type WorkspaceRepository interface {
	// GetByName returns ErrWorkspaceNotFound when absent.
	GetByName(ctx context.Context, name string) (*Workspace, error)
	// Create returns ErrWorkspaceExists when the name is taken.
	Create(ctx context.Context, ws *Workspace) error
}

// ContentStore keeps binary content such as avatars.
type ContentStore interface {
	// Save stores the data and returns its content id.
	Save(ctx context.Context, data *BinaryData) (string, error)
	// Delete returns ErrContentNotFound when the id is unknown.
	Delete(ctx context.Context, id string) error
}

// SessionAttributeStore keeps per-handshake state keyed by session id, so any
// stateless handler instance can continue an OAuth redirect sequence.
type SessionAttributeStore interface {
	// Set upserts one attribute; the session document is created on demand.
	Set(ctx context.Context, sessionID, name string, value any) error
	// Get decodes the attribute into out. It reports false when either the
	// session or the attribute does not exist.
	Get(ctx context.Context, sessionID, name string, out any) (bool, error)
	// Remove unsets one attribute. Removing an absent attribute is not an error.
	Remove(ctx context.Context, sessionID, name string) error
}
