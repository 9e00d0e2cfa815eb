package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-social/cache"
	"github.com/pilab-dev/shadow-social/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore implements domain.SessionAttributeStore with one Redis hash per session.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration // Zero keeps bags until deleted externally
}

// NewSessionStore creates a new [SessionStore] instance
func NewSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// redisKey returns the Redis key of a session bag
func (s *SessionStore) redisKey(sessionID string) string {
	return fmt.Sprintf("%s:social_session:%s", s.prefix, sessionID)
}

// Set stores one attribute and refreshes the expiry of the bag
func (s *SessionStore) Set(ctx context.Context, sessionID, name string, value any) error {
	if err := domain.ValidateAttributeName(name); err != nil {
		return err
	}
	b, err := cache.EncodeValue(value)
	if err != nil {
		return err
	}

	key := s.redisKey(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, name, b)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set session attribute in Redis: %w", err)
	}
	return nil
}

// Get retrieves one attribute of a session bag
func (s *SessionStore) Get(ctx context.Context, sessionID, name string, out any) (bool, error) {
	b, err := s.client.HGet(ctx, s.redisKey(sessionID), name).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get session attribute from Redis: %w", err)
	}
	if err := cache.DecodeValue(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes one attribute of a session bag
func (s *SessionStore) Remove(ctx context.Context, sessionID, name string) error {
	if err := s.client.HDel(ctx, s.redisKey(sessionID), name).Err(); err != nil {
		return fmt.Errorf("failed to remove session attribute from Redis: %w", err)
	}
	return nil
}

var _ domain.SessionAttributeStore = (*SessionStore)(nil)
