package services

import (
	"context"

	"github.com/pilab-dev/shadow-social/domain"
)

// ProfileSync refreshes a local account from the primary connection its user
// holds at a provider.
type ProfileSync struct {
	directory  *ConnectionDirectory
	registry   ProviderRegistry
	replicator *IdentityReplicator
}

func NewProfileSync(directory *ConnectionDirectory, registry ProviderRegistry, replicator *IdentityReplicator) *ProfileSync {
	return &ProfileSync{directory: directory, registry: registry, replicator: replicator}
}

// Synchronize loads userID's primary connection at providerID, binds it to the
// provider API and replicates the live profile into the account. A profile
// mapping to another account fails with domain.ErrLoginConflict.
func (s *ProfileSync) Synchronize(ctx context.Context, userID, providerID string) (*domain.User, error) {
	store, err := s.directory.ScopeTo(userID)
	if err != nil {
		return nil, err
	}
	stored, err := store.GetPrimaryByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	factory, err := s.registry.Resolve(ctx, providerID)
	if err != nil {
		return nil, err
	}

	return s.replicator.SynchronizeAccount(ctx, userID, factory.CreateConnection(stored.ConnectionData))
}
