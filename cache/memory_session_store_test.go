package cache

import (
	"context"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handshake struct {
	Provider string `json:"provider"`
	Step     int    `json:"step"`
}

func TestMemorySessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Minute)
	defer store.Stop()

	require.NoError(t, store.Set(ctx, "sess-1", "state", "abc"))
	require.NoError(t, store.Set(ctx, "sess-1", "handshake", handshake{Provider: "github", Step: 2}))

	var state string
	found, err := store.Get(ctx, "sess-1", "state", &state)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", state)

	var hs handshake
	found, err = store.Get(ctx, "sess-1", "handshake", &hs)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, handshake{Provider: "github", Step: 2}, hs)

	// Last write wins per field.
	require.NoError(t, store.Set(ctx, "sess-1", "state", "def"))
	_, err = store.Get(ctx, "sess-1", "state", &state)
	require.NoError(t, err)
	assert.Equal(t, "def", state)
}

func TestMemorySessionStore_RemoveUnsetsOnlyOneField(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Minute)
	defer store.Stop()

	require.NoError(t, store.Set(ctx, "sess-1", "state", "abc"))
	require.NoError(t, store.Set(ctx, "sess-1", "provider", "github"))

	require.NoError(t, store.Remove(ctx, "sess-1", "state"))
	require.NoError(t, store.Remove(ctx, "sess-1", "state"))
	require.NoError(t, store.Remove(ctx, "missing", "state"))

	var v string
	found, err := store.Get(ctx, "sess-1", "state", &v)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.Get(ctx, "sess-1", "provider", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "github", v)
}

func TestMemorySessionStore_Absent(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	defer store.Stop()

	var v string
	found, err := store.Get(context.Background(), "nope", "state", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(50 * time.Millisecond)
	defer store.Stop()

	require.NoError(t, store.Set(ctx, "sess-1", "state", "abc"))
	time.Sleep(100 * time.Millisecond)

	var v string
	found, err := store.Get(ctx, "sess-1", "state", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemorySessionStore_RejectsInvalidNames(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	defer store.Stop()

	for _, name := range []string{"", "a.b", "$set"} {
		err := store.Set(context.Background(), "sess-1", name, "v")
		assert.ErrorIs(t, err, domain.ErrInvalidAttributeName, name)
	}
}
