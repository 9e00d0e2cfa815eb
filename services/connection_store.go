package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/audit"
	"github.com/pilab-dev/shadow-social/internal/crypto"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/pilab-dev/shadow-social/internal/metrics"
	"github.com/rs/zerolog/log"
)

// maxRankRetries bounds how often Add re-ranks a new connection that keeps
// colliding on (user, provider, created) with concurrently added ones.
const maxRankRetries = 5

// ConnectionStore manages the connections of a single local user. Secret
// fields are decrypted on every read and encrypted on every write.
type ConnectionStore struct {
	userID   string
	repo     domain.ConnectionRepository
	registry ProviderRegistry
	codec    CredentialCodec
	now      func() time.Time
}

// NewConnectionStore returns a store bound to userID. It fails with
// domain.ErrInvalidUserID when userID is empty.
func NewConnectionStore(userID string, repo domain.ConnectionRepository, registry ProviderRegistry, codec CredentialCodec) (*ConnectionStore, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	return &ConnectionStore{
		userID:   userID,
		repo:     repo,
		registry: registry,
		codec:    codec,
		now:      time.Now,
	}, nil
}

// UserID returns the local user the store is bound to.
func (s *ConnectionStore) UserID() string { return s.userID }

// ListAll groups the user's connections by provider. Every registered provider
// has a group, empty when the user holds no connection there. Groups are
// ordered by provider id, connections inside a group newest first.
func (s *ConnectionStore) ListAll(ctx context.Context) ([]domain.ProviderConnections, error) {
	registered, err := s.registry.RegisteredProviderIDs(ctx)
	if err != nil {
		return nil, err
	}

	conns, err := s.repo.FindByUser(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	conns, err = s.decryptAll(conns)
	if err != nil {
		return nil, err
	}

	byProvider := make(map[string][]*domain.Connection, len(registered))
	for _, id := range registered {
		byProvider[id] = []*domain.Connection{}
	}
	for _, c := range conns {
		byProvider[c.ProviderID] = append(byProvider[c.ProviderID], c)
	}

	ids := make([]string, 0, len(byProvider))
	for id := range byProvider {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	groups := make([]domain.ProviderConnections, 0, len(ids))
	for _, id := range ids {
		groups = append(groups, domain.ProviderConnections{ProviderID: id, Connections: byProvider[id]})
	}
	return groups, nil
}

// ListByProvider returns the user's connections at one provider, newest first.
func (s *ConnectionStore) ListByProvider(ctx context.Context, providerID string) ([]*domain.Connection, error) {
	conns, err := s.repo.FindByUserAndProvider(ctx, s.userID, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s connections: %w", providerID, err)
	}
	return s.decryptAll(conns)
}

// Get returns the connection with the exact key or domain.ErrNotConnected.
func (s *ConnectionStore) Get(ctx context.Context, key domain.ConnectionKey) (*domain.Connection, error) {
	conn, err := s.repo.FindByUserAndKey(ctx, s.userID, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, key)
		}
		return nil, fmt.Errorf("failed to get connection %s: %w", key, err)
	}
	return s.codec.DecryptConnection(conn)
}

// GetPrimary returns the newest connection at the provider carrying the
// capability, or domain.ErrNotConnected.
func (s *ConnectionStore) GetPrimary(ctx context.Context, capability federation.Capability) (*domain.Connection, error) {
	providerID, err := s.registry.ProviderForCapability(ctx, capability)
	if err != nil {
		return nil, err
	}
	return s.GetPrimaryByProvider(ctx, providerID)
}

// FindPrimary is GetPrimary returning nil, nil when the user is not connected.
func (s *ConnectionStore) FindPrimary(ctx context.Context, capability federation.Capability) (*domain.Connection, error) {
	conn, err := s.GetPrimary(ctx, capability)
	if errors.Is(err, domain.ErrNotConnected) {
		return nil, nil
	}
	return conn, err
}

// GetPrimaryByProvider returns the newest connection at providerID, or
// domain.ErrNotConnected.
func (s *ConnectionStore) GetPrimaryByProvider(ctx context.Context, providerID string) (*domain.Connection, error) {
	conns, err := s.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, providerID)
	}
	return conns[0], nil
}

// Add persists a new connection of the user and returns it with its id and
// creation time set. It fails with domain.ErrDuplicateConnection when the user
// is already linked to the same external identity.
func (s *ConnectionStore) Add(ctx context.Context, data domain.ConnectionData) (*domain.Connection, error) {
	conn := &domain.Connection{
		UserID:         s.userID,
		ConnectionData: data,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
	}

	for attempt := 0; ; attempt++ {
		encrypted, err := s.codec.EncryptConnection(conn)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt connection: %w", err)
		}

		err = s.repo.Insert(ctx, encrypted)
		if err == nil {
			conn.ID = encrypted.ID
			break
		}
		if !errors.Is(err, domain.ErrDuplicateConnection) {
			return nil, fmt.Errorf("failed to insert connection: %w", err)
		}

		// Same creation millisecond as another connection at this provider:
		// rank the new one after the newest instead of rejecting a distinct
		// identity.
		if _, getErr := s.repo.FindByUserAndKey(ctx, s.userID, data.ConnectionKey); getErr == nil || attempt >= maxRankRetries {
			metrics.DuplicateConnectionsTotal.WithLabelValues(data.ProviderID).Inc()
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateConnection, data.ConnectionKey)
		}
		next, err := s.nextRank(ctx, data.ProviderID, conn.CreatedAt)
		if err != nil {
			return nil, err
		}
		conn.CreatedAt = next
	}

	metrics.ConnectionsAddedTotal.WithLabelValues(data.ProviderID).Inc()
	audit.Record(ctx, audit.ActionConnectionAdded, s.userID, data.ConnectionKey.String(), nil)
	log.Info().Ctx(ctx).
		Str("userID", s.userID).
		Str("providerID", data.ProviderID).
		Msg("Connection added")

	return conn, nil
}

// nextRank returns the creation time that ranks a new connection at
// providerID after every existing one: one millisecond past the newest, or
// current when that is later.
func (s *ConnectionStore) nextRank(ctx context.Context, providerID string, current time.Time) (time.Time, error) {
	existing, err := s.repo.FindByUserAndProvider(ctx, s.userID, providerID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to list %s connections: %w", providerID, err)
	}
	next := current.Add(time.Millisecond)
	for _, c := range existing {
		if candidate := c.CreatedAt.UTC().Truncate(time.Millisecond).Add(time.Millisecond); candidate.After(next) {
			next = candidate
		}
	}
	return next, nil
}

// Update rewrites the display name, profile and image URLs, and secret fields
// of the connection identified by data's key.
func (s *ConnectionStore) Update(ctx context.Context, data domain.ConnectionData) error {
	encrypted, err := s.codec.EncryptConnection(&domain.Connection{UserID: s.userID, ConnectionData: data})
	if err != nil {
		return fmt.Errorf("failed to encrypt connection: %w", err)
	}
	if err := s.repo.Update(ctx, encrypted); err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			return fmt.Errorf("%w: %s", domain.ErrNotConnected, data.ConnectionKey)
		}
		return fmt.Errorf("failed to update connection %s: %w", data.ConnectionKey, err)
	}
	return nil
}

// RemoveByProvider deletes every connection of the user at providerID.
func (s *ConnectionStore) RemoveByProvider(ctx context.Context, providerID string) error {
	err := s.repo.DeleteByUserAndProvider(ctx, s.userID, providerID)
	audit.Record(ctx, audit.ActionConnectionsRemoved, s.userID, providerID, err)
	if err != nil {
		return fmt.Errorf("failed to remove %s connections: %w", providerID, err)
	}
	log.Info().Ctx(ctx).Str("userID", s.userID).Str("providerID", providerID).Msg("Connections removed")
	return nil
}

// RemoveByKey deletes the connection with the exact key, if any.
func (s *ConnectionStore) RemoveByKey(ctx context.Context, key domain.ConnectionKey) error {
	err := s.repo.DeleteByUserAndKey(ctx, s.userID, key)
	audit.Record(ctx, audit.ActionConnectionsRemoved, s.userID, key.String(), err)
	if err != nil {
		return fmt.Errorf("failed to remove connection %s: %w", key, err)
	}
	log.Info().Ctx(ctx).Str("userID", s.userID).Str("providerID", key.ProviderID).Msg("Connection removed")
	return nil
}

// FindBatch looks up connections across providers in one query. For every
// requested provider the result holds one entry per requested provider user
// id, in input order, nil where the user has no such connection.
func (s *ConnectionStore) FindBatch(ctx context.Context, keys map[string][]string) (map[string][]*domain.Connection, error) {
	result := make(map[string][]*domain.Connection, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	conns, err := s.repo.FindByUserAndKeys(ctx, s.userID, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to find connections: %w", err)
	}
	conns, err = s.decryptAll(conns)
	if err != nil {
		return nil, err
	}

	found := make(map[domain.ConnectionKey]*domain.Connection, len(conns))
	for _, c := range conns {
		found[c.ConnectionKey] = c
	}

	for providerID, providerUserIDs := range keys {
		row := make([]*domain.Connection, len(providerUserIDs))
		for i, id := range providerUserIDs {
			row[i] = found[domain.ConnectionKey{ProviderID: providerID, ProviderUserID: id}]
		}
		result[providerID] = row
	}
	return result, nil
}

func (s *ConnectionStore) decryptAll(conns []*domain.Connection) ([]*domain.Connection, error) {
	out := make([]*domain.Connection, 0, len(conns))
	for _, c := range conns {
		dc, err := s.codec.DecryptConnection(c)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt connection %s: %w", c.ConnectionKey, err)
		}
		out = append(out, dc)
	}
	return out, nil
}

var _ CredentialCodec = (*crypto.Codec)(nil)
