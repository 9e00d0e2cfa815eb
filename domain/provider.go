package domain

import (
	"context"
)

// RepositoryProvider gives access to every store a storage backend offers,
// so the service can be wired against MongoDB or in-memory storage alike.
type RepositoryProvider interface {
	ConnectionRepository(ctx context.Context) ConnectionRepository
	ProviderConfigRepository(ctx context.Context) ProviderConfigRepository
	UserRepository(ctx context.Context) UserRepository
	WorkspaceRepository(ctx context.Context) WorkspaceRepository
	ContentStore(ctx context.Context) ContentStore
	SessionAttributeStore(ctx context.Context) SessionAttributeStore
}
