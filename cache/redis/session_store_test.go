package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*SessionStore, redis.UniversalClient) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis session store tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	return NewSessionStore(client, "test-"+uuid.NewString(), ttl), client
}

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, time.Minute)

	require.NoError(t, store.Set(ctx, "sess-1", "state", "abc"))
	require.NoError(t, store.Set(ctx, "sess-1", "provider", "github"))

	var v string
	found, err := store.Get(ctx, "sess-1", "state", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", v)

	require.NoError(t, store.Remove(ctx, "sess-1", "state"))
	found, err = store.Get(ctx, "sess-1", "state", &v)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.Get(ctx, "sess-1", "provider", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "github", v)

	found, err = store.Get(ctx, "unknown", "state", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionStore_SetRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	store, client := newTestStore(t, time.Minute)

	require.NoError(t, store.Set(ctx, "sess-1", "state", "abc"))
	ttl, err := client.TTL(ctx, store.redisKey("sess-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}
