package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pilab-dev/shadow-social/domain"
)

// ConnectionRepository is an in-process domain.ConnectionRepository that
// enforces the same unique keys as the MongoDB collection.
type ConnectionRepository struct {
	mu    sync.RWMutex
	conns []*domain.Connection
}

func NewConnectionRepository() *ConnectionRepository {
	return &ConnectionRepository{}
}

func (r *ConnectionRepository) Insert(_ context.Context, conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.conns {
		if c.UserID != conn.UserID || c.ProviderID != conn.ProviderID {
			continue
		}
		if c.ProviderUserID == conn.ProviderUserID || c.CreatedAt.Equal(conn.CreatedAt) {
			return domain.ErrDuplicateConnection
		}
	}

	stored := conn.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	conn.ID = stored.ID
	r.conns = append(r.conns, stored)
	return nil
}

func (r *ConnectionRepository) Update(_ context.Context, conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.conns {
		if c.UserID == conn.UserID && c.ConnectionKey == conn.ConnectionKey {
			updated := conn.Clone()
			updated.ID = c.ID
			updated.CreatedAt = c.CreatedAt
			r.conns[i] = updated
			return nil
		}
	}
	return domain.ErrNotConnected
}

func (r *ConnectionRepository) FindByUser(_ context.Context, userID string) ([]*domain.Connection, error) {
	out := r.filter(func(c *domain.Connection) bool { return c.UserID == userID })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProviderID != out[j].ProviderID {
			return out[i].ProviderID < out[j].ProviderID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ConnectionRepository) FindByUserAndProvider(_ context.Context, userID, providerID string) ([]*domain.Connection, error) {
	out := r.filter(func(c *domain.Connection) bool {
		return c.UserID == userID && c.ProviderID == providerID
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *ConnectionRepository) FindByUserAndKey(_ context.Context, userID string, key domain.ConnectionKey) (*domain.Connection, error) {
	out := r.filter(func(c *domain.Connection) bool {
		return c.UserID == userID && c.ConnectionKey == key
	})
	if len(out) == 0 {
		return nil, domain.ErrNotConnected
	}
	return out[0], nil
}

func (r *ConnectionRepository) FindByUserAndKeys(_ context.Context, userID string, keys map[string][]string) ([]*domain.Connection, error) {
	return r.filter(func(c *domain.Connection) bool {
		return c.UserID == userID && slices.Contains(keys[c.ProviderID], c.ProviderUserID)
	}), nil
}

func (r *ConnectionRepository) DeleteByUserAndProvider(_ context.Context, userID, providerID string) error {
	r.remove(func(c *domain.Connection) bool {
		return c.UserID == userID && c.ProviderID == providerID
	})
	return nil
}

func (r *ConnectionRepository) DeleteByUserAndKey(_ context.Context, userID string, key domain.ConnectionKey) error {
	r.remove(func(c *domain.Connection) bool {
		return c.UserID == userID && c.ConnectionKey == key
	})
	return nil
}

func (r *ConnectionRepository) FindUserIDsByKey(_ context.Context, key domain.ConnectionKey) ([]string, error) {
	return userIDs(r.filter(func(c *domain.Connection) bool { return c.ConnectionKey == key })), nil
}

func (r *ConnectionRepository) FindUserIDsConnectedTo(_ context.Context, providerID string, providerUserIDs []string) ([]string, error) {
	return userIDs(r.filter(func(c *domain.Connection) bool {
		return c.ProviderID == providerID && slices.Contains(providerUserIDs, c.ProviderUserID)
	})), nil
}

func (r *ConnectionRepository) filter(match func(*domain.Connection) bool) []*domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Connection
	for _, c := range r.conns {
		if match(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (r *ConnectionRepository) remove(match func(*domain.Connection) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = slices.DeleteFunc(r.conns, match)
}

func userIDs(conns []*domain.Connection) []string {
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		if !slices.Contains(ids, c.UserID) {
			ids = append(ids, c.UserID)
		}
	}
	return ids
}

var _ domain.ConnectionRepository = (*ConnectionRepository)(nil)
