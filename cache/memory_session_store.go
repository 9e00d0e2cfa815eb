package cache

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/shadow-social/domain"
)

// MemorySessionStore implements domain.SessionAttributeStore using ttlcache.
// A session bag expires ttl after its last write.
type MemorySessionStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, map[string][]byte]
}

// NewMemorySessionStore creates a new in-memory session store with automatic cleanup.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, map[string][]byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, map[string][]byte](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemorySessionStore{cache: cache}
}

func (s *MemorySessionStore) Set(_ context.Context, sessionID, name string, value any) error {
	if err := domain.ValidateAttributeName(name); err != nil {
		return err
	}
	b, err := EncodeValue(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	attrs := map[string][]byte{}
	if item := s.cache.Get(sessionID); item != nil {
		attrs = maps.Clone(item.Value())
	}
	attrs[name] = b
	s.cache.Set(sessionID, attrs, ttlcache.DefaultTTL)
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID, name string, out any) (bool, error) {
	s.mu.Lock()
	item := s.cache.Get(sessionID)
	s.mu.Unlock()
	if item == nil {
		return false, nil
	}

	b, ok := item.Value()[name]
	if !ok {
		return false, nil
	}
	if err := DecodeValue(b, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemorySessionStore) Remove(_ context.Context, sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(sessionID)
	if item == nil {
		return nil
	}
	if _, ok := item.Value()[name]; !ok {
		return nil
	}
	attrs := maps.Clone(item.Value())
	delete(attrs, name)

	// keep the original deadline, removal is not a write that extends the bag
	ttl := ttlcache.NoTTL
	if expiresAt := item.ExpiresAt(); !expiresAt.IsZero() {
		if ttl = time.Until(expiresAt); ttl <= 0 {
			s.cache.Delete(sessionID)
			return nil
		}
	}
	s.cache.Set(sessionID, attrs, ttl)
	return nil
}

// Stop stops the cleanup goroutine.
func (s *MemorySessionStore) Stop() {
	s.cache.Stop()
}

var _ domain.SessionAttributeStore = (*MemorySessionStore)(nil)
