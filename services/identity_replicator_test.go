package services

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/pilab-dev/shadow-social/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func newAvatarServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/octocat.png", "/octocat-v2.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(srv *httptest.Server) *HTTPAvatarFetcher {
	return NewHTTPAvatarFetcher(AvatarFetcherConfig{Timeout: time.Second, HTTPClient: srv.Client()})
}

func TestIdentityReplicator_ReplicateOctocat(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	r := env.replicator(nil)

	user, err := r.Replicate(ctx, octocat())
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "octocat", user.Login)
	assert.Equal(t, "o@x.com", user.Email)
	assert.Equal(t, domain.UserTypeGitHub, user.Type)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.False(t, user.IsExpired)
	assert.Equal(t, "The Octocat", user.FullName)
	assert.Equal(t, "octocat_personal", user.DefaultWorkspace)

	stored, err := env.users.GetByLogin(ctx, "octocat")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)

	ws, err := env.workspaces.GetByName(ctx, "octocat_personal")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkspaceTypePersonal, ws.Type)
	assert.Equal(t, "octocat", ws.Owner)
	require.Len(t, ws.Members, 1)
	assert.Equal(t, domain.WorkspaceRoleManager, ws.Members[0].Role)
}

func TestIdentityReplicator_ReplicateFullName(t *testing.T) {
	tests := []struct {
		name    string
		profile federation.UserProfile
		want    string
	}{
		{"given and family", federation.UserProfile{ID: "a", FirstName: "Mona", LastName: "Lisa", Name: "ignored"}, "Mona Lisa"},
		{"given only", federation.UserProfile{ID: "b", FirstName: "Mona"}, "Mona"},
		{"display name", federation.UserProfile{ID: "c", Name: "Mona Octo"}, "Mona Octo"},
		{"login fallback", federation.UserProfile{ID: "D"}, "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			profile := tt.profile
			profile.Email = profile.ID + "@example.com"

			user, err := env.replicator(nil).Replicate(context.Background(), newFakeConnection("github", "1", &profile))
			require.NoError(t, err)
			assert.Equal(t, tt.want, user.FullName)
		})
	}
}

func TestIdentityReplicator_ReplicateNormalizesLogin(t *testing.T) {
	env := newTestEnv(t)
	conn := newFakeConnection("github", "1", &federation.UserProfile{ID: "  Mona.Lisa ", Email: " Mona@Example.COM "})

	user, err := env.replicator(nil).Replicate(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "mona.lisa", user.Login)
	assert.Equal(t, "mona@example.com", user.Email)
	assert.Equal(t, "mona_lisa_personal", user.DefaultWorkspace)
}

func TestIdentityReplicator_ReplicateExistingUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	r := env.replicator(nil)

	first, err := r.Replicate(ctx, octocat())
	require.NoError(t, err)
	second, err := r.Replicate(ctx, octocat())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, env.users.Count())
	assert.Equal(t, 1, env.workspaces.Count())
}

func TestIdentityReplicator_ReplicateFailures(t *testing.T) {
	tests := []struct {
		name     string
		existing *domain.User
		profile  *federation.UserProfile
		wantErr  error
	}{
		{
			name:    "missing email",
			profile: &federation.UserProfile{ID: "octocat"},
			wantErr: domain.ErrEmailRequired,
		},
		{
			name:     "email owned by another user",
			existing: &domain.User{ID: "u-other", Login: "someone", Email: "o@x.com", Type: domain.UserTypeInternal},
			profile:  &federation.UserProfile{ID: "octocat", Email: "O@x.com"},
			wantErr:  domain.ErrDuplicateEmail,
		},
		{
			name:     "login of another identity source",
			existing: &domain.User{ID: "u-internal", Login: "octocat", Email: "internal@x.com", Type: domain.UserTypeInternal},
			profile:  &federation.UserProfile{ID: "octocat", Email: "o@x.com"},
			wantErr:  domain.ErrLoginConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			want := 0
			if tt.existing != nil {
				require.NoError(t, env.users.Create(ctx, tt.existing))
				want = 1
			}

			_, err := env.replicator(nil).Replicate(ctx, newFakeConnection("github", "1", tt.profile))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, want, env.users.Count())
			assert.Equal(t, 0, env.workspaces.Count())
		})
	}
}

// failingWorkspaces rejects every workspace creation.
type failingWorkspaces struct {
	*memory.WorkspaceRepository
}

func (failingWorkspaces) Create(context.Context, *domain.Workspace) error {
	return errors.New("boom")
}

func TestIdentityReplicator_ReplicateWorkspaceFailureWritesNoUser(t *testing.T) {
	env := newTestEnv(t)
	workspaces := failingWorkspaces{env.workspaces}
	r := NewIdentityReplicator(env.users, workspaces, env.content, nil)

	_, err := r.Replicate(context.Background(), octocat())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "octocat_personal")
	assert.Equal(t, 0, env.users.Count())
	assert.Equal(t, 0, env.workspaces.Count())

	// The next sign-in provisions normally.
	user, err := env.replicator(nil).Replicate(context.Background(), octocat())
	require.NoError(t, err)
	assert.Equal(t, "octocat_personal", user.DefaultWorkspace)
	assert.Equal(t, 1, env.users.Count())
}

func TestIdentityReplicator_ReplicateProfileError(t *testing.T) {
	env := newTestEnv(t)
	conn := octocat()
	conn.err = federation.ErrOrganizationNotAllowed

	_, err := env.replicator(nil).Replicate(context.Background(), conn)
	assert.ErrorIs(t, err, federation.ErrOrganizationNotAllowed)
	assert.Equal(t, 0, env.users.Count())
}

func TestIdentityReplicator_ReplicateDownloadsAvatar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	srv := newAvatarServer(t)
	conn := octocat()
	conn.profile.ImageURL = srv.URL + "/octocat.png"

	user, err := env.replicator(newTestFetcher(srv)).Replicate(ctx, conn)
	require.NoError(t, err)
	require.NotEmpty(t, user.PhotoID)
	assert.Equal(t, srv.URL+"/octocat.png", user.PhotoSourceURL)

	data, contentType, ok := env.content.Load(user.PhotoID)
	require.True(t, ok)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, pngBytes, data)
}

func TestIdentityReplicator_AvatarFailureIsNotFatal(t *testing.T) {
	srv := newAvatarServer(t)
	for _, path := range []string{"/missing.png", "/page.html"} {
		t.Run(path, func(t *testing.T) {
			env := newTestEnv(t)
			conn := octocat()
			conn.profile.ImageURL = srv.URL + path

			user, err := env.replicator(newTestFetcher(srv)).Replicate(context.Background(), conn)
			require.NoError(t, err)
			assert.Empty(t, user.PhotoID)
			assert.Empty(t, user.PhotoSourceURL)
			assert.Equal(t, 1, env.users.Count())
		})
	}
}

func TestIdentityReplicator_SynchronizeWrongProviderType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	existing := &domain.User{ID: "u-1", Login: "octocat", Email: "o@x.com", FullName: "Before", Type: domain.UserTypeInternal}
	require.NoError(t, env.users.Create(ctx, existing))
	before, err := env.users.GetByLogin(ctx, "octocat")
	require.NoError(t, err)

	fetcher := new(MockAvatarFetcher)
	conn := octocat()
	conn.profile.ImageURL = "https://avatars.example.com/octocat.png"

	_, err = env.replicator(fetcher).Synchronize(ctx, conn)
	assert.ErrorIs(t, err, domain.ErrWrongProviderType)

	after, err := env.users.GetByLogin(ctx, "octocat")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestIdentityReplicator_SynchronizeUserNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.replicator(nil).Synchronize(context.Background(), octocat())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestIdentityReplicator_SynchronizeUpdatesProfileAndSwapsAvatar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	srv := newAvatarServer(t)

	oldPhotoID, err := env.content.Save(ctx, &domain.BinaryData{ContentType: "image/png", Body: bytes.NewReader([]byte("old"))})
	require.NoError(t, err)
	require.NoError(t, env.users.Create(ctx, &domain.User{
		ID:             "u-1",
		Login:          "octocat",
		Email:          "o@x.com",
		FullName:       "Before",
		Type:           domain.UserTypeGitHub,
		PhotoID:        oldPhotoID,
		PhotoSourceURL: srv.URL + "/octocat.png",
	}))

	r := env.replicator(newTestFetcher(srv))
	syncedAt := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return syncedAt }

	conn := octocat()
	conn.profile.Name = "Mona Octocat"
	conn.profile.ImageURL = srv.URL + "/octocat-v2.png"

	user, err := r.Synchronize(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "Mona Octocat", user.FullName)
	assert.Equal(t, syncedAt, user.Meta.SynchronizedAt)
	assert.NotEqual(t, oldPhotoID, user.PhotoID)
	assert.Equal(t, srv.URL+"/octocat-v2.png", user.PhotoSourceURL)

	_, _, ok := env.content.Load(oldPhotoID)
	assert.False(t, ok, "previous avatar is deleted")
	_, _, ok = env.content.Load(user.PhotoID)
	assert.True(t, ok)

	stored, err := env.users.GetByLogin(ctx, "octocat")
	require.NoError(t, err)
	assert.Equal(t, user.PhotoID, stored.PhotoID)
}

func TestIdentityReplicator_SynchronizeKeepsUnchangedAvatar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.users.Create(ctx, &domain.User{
		ID:             "u-1",
		Login:          "octocat",
		Email:          "o@x.com",
		Type:           domain.UserTypeGitHub,
		PhotoID:        "photo-1",
		PhotoSourceURL: "https://avatars.example.com/octocat.png",
	}))

	fetcher := new(MockAvatarFetcher)
	conn := octocat()
	conn.profile.Name = ""
	conn.profile.ImageURL = "https://avatars.example.com/octocat.png"

	user, err := env.replicator(fetcher).Synchronize(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "octocat", user.FullName, "falls back to the profile id")
	assert.Equal(t, "photo-1", user.PhotoID)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestIdentityReplicator_SynchronizeAvatarFailureKeepsOldAvatar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.users.Create(ctx, &domain.User{
		ID:      "u-1",
		Login:   "octocat",
		Email:   "o@x.com",
		Type:    domain.UserTypeGitHub,
		PhotoID: "photo-1",
	}))

	fetcher := new(MockAvatarFetcher)
	fetcher.On("Fetch", mock.Anything, "https://avatars.example.com/new.png").
		Return(nil, errors.New("connection reset")).Once()

	conn := octocat()
	conn.profile.ImageURL = "https://avatars.example.com/new.png"

	user, err := env.replicator(fetcher).Synchronize(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "photo-1", user.PhotoID)
	fetcher.AssertExpectations(t)
}
