package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func githubData(providerUserID string) domain.ConnectionData {
	return domain.ConnectionData{
		ConnectionKey: domain.ConnectionKey{ProviderID: "github", ProviderUserID: providerUserID},
		DisplayName:   "user-" + providerUserID,
		ProfileURL:    "https://github.com/user-" + providerUserID,
		AccessToken:   "token-" + providerUserID,
		Secret:        strPtr("secret-" + providerUserID),
		RefreshToken:  strPtr("refresh-" + providerUserID),
	}
}

func TestNewConnectionStore_RequiresUserID(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewConnectionStore("", env.conns, env.registry, env.codec)
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}

func TestConnectionStore_AddThenGetReturnsPlaintext(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")

	added, err := store.Add(ctx, githubData("42"))
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "user-1", added.UserID)

	got, err := store.Get(ctx, domain.ConnectionKey{ProviderID: "github", ProviderUserID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "token-42", got.AccessToken)
	require.NotNil(t, got.Secret)
	assert.Equal(t, "secret-42", *got.Secret)
	require.NotNil(t, got.RefreshToken)
	assert.Equal(t, "refresh-42", *got.RefreshToken)

	// Persisted form is encrypted.
	raw, err := env.conns.FindByUserAndKey(ctx, "user-1", got.ConnectionKey)
	require.NoError(t, err)
	assert.NotEqual(t, "token-42", raw.AccessToken)
	assert.NotEqual(t, "secret-42", *raw.Secret)
}

func TestConnectionStore_AddDuplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")

	_, err := store.Add(ctx, githubData("42"))
	require.NoError(t, err)

	_, err = store.Add(ctx, githubData("42"))
	assert.ErrorIs(t, err, domain.ErrDuplicateConnection)

	// Another user may link the same identity.
	_, err = env.store(t, "user-2").Add(ctx, githubData("42"))
	assert.NoError(t, err)
}

func TestConnectionStore_AddSameMillisecondDistinctIdentities(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return frozen }

	first, err := store.Add(ctx, githubData("1"))
	require.NoError(t, err)
	second, err := store.Add(ctx, githubData("2"))
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.After(first.CreatedAt))
}

func TestConnectionStore_AddManyIdentitiesWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return frozen }

	const n = 12
	for i := range n {
		_, err := store.Add(ctx, githubData(strconv.Itoa(i)))
		require.NoError(t, err, "identity %d", i)
	}

	conns, err := store.ListByProvider(ctx, "github")
	require.NoError(t, err)
	require.Len(t, conns, n)
	assert.Equal(t, strconv.Itoa(n-1), conns[0].ProviderUserID)
	assert.Equal(t, "0", conns[n-1].ProviderUserID)
	for i := 1; i < n; i++ {
		assert.True(t, conns[i-1].CreatedAt.After(conns[i].CreatedAt))
	}

	_, err = store.Add(ctx, githubData("3"))
	assert.ErrorIs(t, err, domain.ErrDuplicateConnection)
}

func TestConnectionStore_GetNotConnected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store(t, "user-1").Get(context.Background(), domain.ConnectionKey{ProviderID: "github", ProviderUserID: "404"})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestConnectionStore_ListAllHasGroupPerRegisteredProvider(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.configs.Save(ctx, &domain.ProviderConfig{
		ProviderID: "gitlab",
		Attributes: map[string]string{"clientId": "a", "clientSecret": "b"},
	}))

	store := env.store(t, "user-1")
	store.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	_, err := store.Add(ctx, githubData("1"))
	require.NoError(t, err)
	_, err = store.Add(ctx, githubData("2"))
	require.NoError(t, err)

	groups, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "github", groups[0].ProviderID)
	require.Len(t, groups[0].Connections, 2)
	assert.Equal(t, "2", groups[0].Connections[0].ProviderUserID, "newest first")
	assert.Equal(t, "1", groups[0].Connections[1].ProviderUserID)
	assert.Equal(t, "token-2", groups[0].Connections[0].AccessToken)

	assert.Equal(t, "gitlab", groups[1].ProviderID)
	assert.NotNil(t, groups[1].Connections)
	assert.Empty(t, groups[1].Connections)
}

func TestConnectionStore_PrimaryIsNewest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")
	store.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	_, err := store.Add(ctx, githubData("t1"))
	require.NoError(t, err)
	_, err = store.Add(ctx, githubData("t2"))
	require.NoError(t, err)

	primary, err := store.GetPrimary(ctx, federation.CapabilityGitHubAPI)
	require.NoError(t, err)
	assert.Equal(t, "t2", primary.ProviderUserID)

	found, err := store.FindPrimary(ctx, federation.CapabilityGitHubAPI)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "t2", found.ProviderUserID)
}

func TestConnectionStore_PrimaryAbsent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")

	_, err := store.GetPrimary(ctx, federation.CapabilityGitHubAPI)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	found, err := store.FindPrimary(ctx, federation.CapabilityGitHubAPI)
	assert.NoError(t, err)
	assert.Nil(t, found)

	// gitlab is known but not configured.
	_, err = store.FindPrimary(ctx, capabilityGitLabAPI)
	assert.ErrorIs(t, err, domain.ErrConfigurationNotFound)
}

func TestConnectionStore_Update(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")

	added, err := store.Add(ctx, githubData("42"))
	require.NoError(t, err)

	data := githubData("42")
	data.DisplayName = "renamed"
	data.ImageURL = "https://avatars.example.com/42.png"
	data.AccessToken = "rotated"
	data.RefreshToken = nil
	require.NoError(t, store.Update(ctx, data))

	got, err := store.Get(ctx, data.ConnectionKey)
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)
	assert.Equal(t, added.CreatedAt, got.CreatedAt)
	assert.Equal(t, "renamed", got.DisplayName)
	assert.Equal(t, "https://avatars.example.com/42.png", got.ImageURL)
	assert.Equal(t, "rotated", got.AccessToken)
	assert.Nil(t, got.RefreshToken)

	err = store.Update(ctx, githubData("404"))
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestConnectionStore_Remove(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")
	store.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	for _, id := range []string{"1", "2", "3"} {
		_, err := store.Add(ctx, githubData(id))
		require.NoError(t, err)
	}

	require.NoError(t, store.RemoveByKey(ctx, domain.ConnectionKey{ProviderID: "github", ProviderUserID: "2"}))
	conns, err := store.ListByProvider(ctx, "github")
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "3", conns[0].ProviderUserID)
	assert.Equal(t, "1", conns[1].ProviderUserID)

	require.NoError(t, store.RemoveByProvider(ctx, "github"))
	conns, err = store.ListByProvider(ctx, "github")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestConnectionStore_FindBatchKeepsInputOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := env.store(t, "user-1")
	store.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	_, err := store.Add(ctx, githubData("a"))
	require.NoError(t, err)
	_, err = store.Add(ctx, githubData("c"))
	require.NoError(t, err)

	result, err := store.FindBatch(ctx, map[string][]string{
		"github": {"c", "b", "a"},
		"gitlab": {"z"},
	})
	require.NoError(t, err)

	require.Len(t, result["github"], 3)
	assert.Equal(t, "c", result["github"][0].ProviderUserID)
	assert.Nil(t, result["github"][1])
	assert.Equal(t, "a", result["github"][2].ProviderUserID)
	assert.Equal(t, "token-a", result["github"][2].AccessToken)

	require.Len(t, result["gitlab"], 1)
	assert.Nil(t, result["gitlab"][0])
}
