package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/crypto"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/pilab-dev/shadow-social/memory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const capabilityGitLabAPI federation.Capability = "gitlab-api"

// fakeConnection serves a fixed profile and counts profile fetches.
type fakeConnection struct {
	data    domain.ConnectionData
	profile *federation.UserProfile
	err     error
	fetches atomic.Int32
}

func (c *fakeConnection) Key() domain.ConnectionKey   { return c.data.ConnectionKey }
func (c *fakeConnection) Data() domain.ConnectionData { return c.data }

func (c *fakeConnection) FetchProfile(context.Context) (*federation.UserProfile, error) {
	c.fetches.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	p := *c.profile
	return &p, nil
}

func newFakeConnection(providerID, providerUserID string, profile *federation.UserProfile) *fakeConnection {
	return &fakeConnection{
		data: domain.ConnectionData{
			ConnectionKey: domain.ConnectionKey{ProviderID: providerID, ProviderUserID: providerUserID},
			DisplayName:   profile.Username,
			AccessToken:   "access-" + providerUserID,
		},
		profile: profile,
	}
}

type fakeFactory struct {
	providerID string
	capability federation.Capability
	clientID   string
}

func (f *fakeFactory) ProviderID() string                { return f.providerID }
func (f *fakeFactory) Capability() federation.Capability { return f.capability }

func (f *fakeFactory) OAuth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    f.clientID,
		RedirectURL: redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://" + f.providerID + ".example.com/login/oauth/authorize",
			TokenURL: "https://" + f.providerID + ".example.com/login/oauth/access_token",
		},
	}
}

func (f *fakeFactory) CreateConnection(data domain.ConnectionData) federation.Connection {
	return &fakeConnection{data: data, profile: &federation.UserProfile{ID: data.DisplayName}}
}

func (f *fakeFactory) ConnectionFromToken(_ context.Context, token *oauth2.Token) (federation.Connection, error) {
	return f.CreateConnection(domain.ConnectionData{AccessToken: token.AccessToken}), nil
}

func testDescriptor(id string, capability federation.Capability) federation.ProviderDescriptor {
	return federation.ProviderDescriptor{
		ID:                 id,
		RequiredAttributes: []string{"clientId", "clientSecret"},
		OptionalAttributes: []string{"organizations"},
		Capability:         capability,
		Factory: func(cfg *domain.ProviderConfig, _ federation.FactoryOptions) (federation.ConnectionFactory, error) {
			return &fakeFactory{providerID: id, capability: capability, clientID: cfg.Attribute("clientId")}, nil
		},
	}
}

// testEnv wires the services over in-memory storage with github configured
// and gitlab known but unconfigured.
type testEnv struct {
	configs    *memory.ProviderConfigRepository
	conns      *memory.ConnectionRepository
	users      *memory.UserRepository
	workspaces *memory.WorkspaceRepository
	content    *memory.ContentStore
	registry   *federation.Registry
	codec      *crypto.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		configs:    memory.NewProviderConfigRepository(),
		conns:      memory.NewConnectionRepository(),
		users:      memory.NewUserRepository(),
		workspaces: memory.NewWorkspaceRepository(),
		content:    memory.NewContentStore(),
	}
	require.NoError(t, env.configs.Save(context.Background(), &domain.ProviderConfig{
		ProviderID: "github",
		Attributes: map[string]string{"clientId": "x", "clientSecret": "y"},
	}))

	env.registry = federation.NewRegistry(env.configs, []federation.ProviderDescriptor{
		testDescriptor("github", federation.CapabilityGitHubAPI),
		testDescriptor("gitlab", capabilityGitLabAPI),
	})
	t.Cleanup(env.registry.Stop)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	enc, err := crypto.NewAESGCMEncryptor(key)
	require.NoError(t, err)
	env.codec, err = crypto.NewCodec(enc)
	require.NoError(t, err)

	return env
}

func (e *testEnv) store(t *testing.T, userID string) *ConnectionStore {
	t.Helper()
	s, err := NewConnectionStore(userID, e.conns, e.registry, e.codec)
	require.NoError(t, err)
	return s
}

func (e *testEnv) replicator(avatars AvatarFetcher) *IdentityReplicator {
	return NewIdentityReplicator(e.users, e.workspaces, e.content, avatars)
}

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)-1) * time.Second)
	}
}

func strPtr(s string) *string { return &s }

// MockAvatarFetcher is a testify mock of AvatarFetcher.
type MockAvatarFetcher struct {
	mock.Mock
}

func (m *MockAvatarFetcher) Fetch(ctx context.Context, url string) (*domain.BinaryData, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BinaryData), args.Error(1)
}
