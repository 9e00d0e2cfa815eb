package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/crypto"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/pilab-dev/shadow-social/memory"
	"github.com/pilab-dev/shadow-social/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testAdminToken = "admin-token"

type stubConnection struct {
	data    domain.ConnectionData
	profile federation.UserProfile
}

func (c *stubConnection) Key() domain.ConnectionKey   { return c.data.ConnectionKey }
func (c *stubConnection) Data() domain.ConnectionData { return c.data }

func (c *stubConnection) FetchProfile(context.Context) (*federation.UserProfile, error) {
	p := c.profile
	return &p, nil
}

// stubFactory signs in every token as the octocat.
type stubFactory struct {
	tokenURL string
}

func (f *stubFactory) ProviderID() string                { return "github" }
func (f *stubFactory) Capability() federation.Capability { return federation.CapabilityGitHubAPI }

func (f *stubFactory) OAuth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://github.example.com/login/oauth/authorize",
			TokenURL:  f.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (f *stubFactory) CreateConnection(data domain.ConnectionData) federation.Connection {
	return &stubConnection{data: data, profile: federation.UserProfile{
		ID:       data.DisplayName,
		Username: data.DisplayName,
		Name:     "The Octocat",
		Email:    "octocat@github.com",
	}}
}

func (f *stubFactory) ConnectionFromToken(_ context.Context, token *oauth2.Token) (federation.Connection, error) {
	return f.CreateConnection(domain.ConnectionData{
		ConnectionKey: domain.ConnectionKey{ProviderID: "github", ProviderUserID: "583231"},
		DisplayName:   "octocat",
		AccessToken:   token.AccessToken,
	}), nil
}

type testServer struct {
	e       *echo.Echo
	storage *memory.RepositoryProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_token","token_type":"bearer","scope":"read:user"}`))
	}))
	t.Cleanup(tokenSrv.Close)

	storage := memory.NewRepositoryProvider(time.Hour)
	t.Cleanup(storage.Close)

	factory := &stubFactory{tokenURL: tokenSrv.URL}
	registry := federation.NewRegistry(storage.ProviderConfigs, []federation.ProviderDescriptor{{
		ID:                 "github",
		RequiredAttributes: []string{"clientId", "clientSecret"},
		OptionalAttributes: []string{"organizations"},
		Capability:         federation.CapabilityGitHubAPI,
		Factory: func(*domain.ProviderConfig, federation.FactoryOptions) (federation.ConnectionFactory, error) {
			return factory, nil
		},
	}})
	t.Cleanup(registry.Stop)

	codec, err := crypto.NewCodec(crypto.NoOpEncryptor{})
	require.NoError(t, err)

	ctx := context.Background()
	replicator := services.NewIdentityReplicator(storage.Users, storage.Workspaces, storage.Content, nil)
	directory := services.NewConnectionDirectory(storage.Connections, registry, codec, services.WithSignUp(replicator))
	api := NewSocialAPI(
		services.NewProviderSettings(storage.ProviderConfigs, registry),
		services.NewSignIn(registry, storage.SessionAttributeStore(ctx), directory, "https://sso.example.com"),
		directory,
		services.NewProfileSync(directory, registry, replicator),
		time.Hour,
		false,
	)

	e := NewServer(prometheus.NewRegistry(), nil)
	api.RegisterRoutes(e, AdminKeyAuth(testAdminToken), UserFromHeader(UserIDHeader))
	return &testServer{e: e, storage: storage}
}

func (s *testServer) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func adminHeaders() map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + testAdminToken}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *testServer) configureGitHub(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/sso/admin/providers/github",
		`{"attributes":{"clientId":"client","clientSecret":"secret"}}`, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// signIn runs the redirect handshake and returns the local user id.
func (s *testServer) signIn(t *testing.T) string {
	t.Helper()

	rec := s.do(t, http.MethodGet, "/sso/signin/github", "", nil)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	location, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "https://sso.example.com/sso/signin/github/callback", location.Query().Get("redirect_uri"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	rec = s.do(t, http.MethodGet, "/sso/signin/github/callback?code=good-code&state="+url.QueryEscape(state), "",
		map[string]string{"Cookie": cookies[0].Name + "=" + cookies[0].Value})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SignInResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.UserID)
	return resp.UserID
}

func TestProviderAdminRoutes(t *testing.T) {
	s := newTestServer(t)

	t.Run("requires admin token", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/sso/admin/providers", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = s.do(t, http.MethodGet, "/sso/admin/providers", "",
			map[string]string{echo.HeaderAuthorization: "Bearer wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/sso/admin/providers/github", "", adminHeaders())
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "provider_not_configured", decodeError(t, rec).Code)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/sso/admin/providers/myspace/attributes", "", adminHeaders())
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "unsupported_provider", decodeError(t, rec).Code)
	})

	t.Run("attributes", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/sso/admin/providers/github/attributes", "", adminHeaders())
		require.Equal(t, http.StatusOK, rec.Code)

		var attrs services.ProviderAttributes
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attrs))
		assert.Equal(t, []string{"clientId", "clientSecret"}, attrs.Required)
		assert.Equal(t, []string{"organizations"}, attrs.Optional)
	})

	t.Run("missing attribute", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/sso/admin/providers/github",
			`{"attributes":{"clientId":"client"}}`, adminHeaders())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "missing_attribute", decodeError(t, rec).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/sso/admin/providers/github", `{"attributes":`, adminHeaders())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("save get list delete", func(t *testing.T) {
		s.configureGitHub(t)

		rec := s.do(t, http.MethodGet, "/sso/admin/providers/github", "", adminHeaders())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret\"", "attribute values must not be returned")

		var got ProviderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "github", got.ProviderID)
		assert.Equal(t, []string{"clientId", "clientSecret"}, got.Attributes)

		rec = s.do(t, http.MethodGet, "/sso/admin/providers", "", adminHeaders())
		require.Equal(t, http.StatusOK, rec.Code)
		var list []ProviderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Len(t, list, 1)

		rec = s.do(t, http.MethodDelete, "/sso/admin/providers/github", "", adminHeaders())
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = s.do(t, http.MethodDelete, "/sso/admin/providers/github", "", adminHeaders())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSignInFlow(t *testing.T) {
	s := newTestServer(t)
	s.configureGitHub(t)

	userID := s.signIn(t)

	user, err := s.storage.Users.GetByLogin(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)

	// A second sign-in resolves the same user.
	assert.Equal(t, userID, s.signIn(t))
	assert.Equal(t, 1, s.storage.Users.Count())
}

func TestSignInCallbackRejects(t *testing.T) {
	s := newTestServer(t)
	s.configureGitHub(t)

	rec := s.do(t, http.MethodGet, "/sso/signin/github", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	cookie := rec.Result().Cookies()[0]
	sessionHeader := map[string]string{"Cookie": cookie.Name + "=" + cookie.Value}

	tests := []struct {
		name     string
		query    string
		headers  map[string]string
		wantCode string
	}{
		{"provider error", "?error=access_denied&error_description=denied", sessionHeader, "access_denied"},
		{"no session", "?code=good-code&state=x", nil, "invalid_request"},
		{"no code", "?state=x", sessionHeader, "invalid_request"},
		{"bad state", "?code=good-code&state=forged", sessionHeader, "invalid_state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/sso/signin/github/callback"+tt.query, "", tt.headers)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestSignInUnconfiguredProvider(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/sso/signin/github", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "provider_not_configured", decodeError(t, rec).Code)
}

func TestMyConnectionsRoutes(t *testing.T) {
	s := newTestServer(t)
	s.configureGitHub(t)
	userID := s.signIn(t)
	me := map[string]string{UserIDHeader: userID}

	t.Run("requires user", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/sso/me/connections", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/sso/me/connections", "", me)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "gho_token")

		var groups []domain.ProviderConnections
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
		require.Len(t, groups, 1)
		assert.Equal(t, "github", groups[0].ProviderID)
		require.Len(t, groups[0].Connections, 1)
		assert.Equal(t, "583231", groups[0].Connections[0].ProviderUserID)
	})

	t.Run("synchronize", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/sso/me/github/synchronize", "", me)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var user domain.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
		assert.Equal(t, "The Octocat", user.FullName)
	})

	t.Run("synchronize without connection", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/sso/me/github/synchronize", "", map[string]string{UserIDHeader: "stranger"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_connected", decodeError(t, rec).Code)
	})

	t.Run("remove", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/sso/me/connections/github?providerUserId=583231", "", me)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = s.do(t, http.MethodPost, "/sso/me/github/synchronize", "", me)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForbidDisablesAdminRoutes(t *testing.T) {
	e := NewServer(prometheus.NewRegistry(), nil)
	e.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Forbid())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testAdminToken)
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrDuplicateConnection, http.StatusConflict, "duplicate_connection"},
		{domain.ErrEmailRequired, http.StatusUnprocessableEntity, "email_required"},
		{federation.ErrOrganizationNotAllowed, http.StatusForbidden, "organization_not_allowed"},
		{federation.ErrFetchUserInfoFailed, http.StatusBadGateway, "provider_unavailable"},
		{echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "Method Not Allowed"},
		{assert.AnError, http.StatusInternalServerError, "server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			resp := toErrorResponse(tt.err)
			assert.Equal(t, tt.status, resp.status)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}
