package services

import (
	"context"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/federation"
)

// ProviderRegistry resolves provider ids and capabilities to connection
// factories. It is implemented by *federation.Registry.
type ProviderRegistry interface {
	Resolve(ctx context.Context, providerID string) (federation.ConnectionFactory, error)
	ProviderForCapability(ctx context.Context, capability federation.Capability) (string, error)
	RegisteredProviderIDs(ctx context.Context) ([]string, error)
	Descriptor(providerID string) (federation.ProviderDescriptor, error)
	Invalidate(providerID string)
}

// CredentialCodec encrypts the secret fields of a connection before it is
// persisted and decrypts them after it is read. It is implemented by
// *crypto.Codec.
type CredentialCodec interface {
	EncryptConnection(conn *domain.Connection) (*domain.Connection, error)
	DecryptConnection(conn *domain.Connection) (*domain.Connection, error)
}

// AvatarFetcher downloads a profile image.
type AvatarFetcher interface {
	Fetch(ctx context.Context, url string) (*domain.BinaryData, error)
}

var _ ProviderRegistry = (*federation.Registry)(nil)
