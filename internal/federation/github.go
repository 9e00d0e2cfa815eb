package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	githubOAuth2 "golang.org/x/oauth2/github"
)

const (
	GitHubProviderID = "github"

	GitHubAttrClientID      = "clientId"
	GitHubAttrClientSecret  = "clientSecret"
	GitHubAttrOrganizations = "organizations"
)

var (
	GithubUserInfoEndpoint   = "https://api.github.com/user"
	GithubUserEmailsEndpoint = "https://api.github.com/user/emails"
	GithubUserOrgsEndpoint   = "https://api.github.com/user/orgs"
)

var githubDefaultScopes = []string{"read:user", "user:email", "read:org"}

// GitHubConfig configures a GitHubConnectionFactory.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	// AllowedOrganizations restricts sign-in to members of these organizations.
	// Empty means no restriction.
	AllowedOrganizations []string
	HTTPClient           *http.Client
}

// GitHubConnectionFactory implements ConnectionFactory for GitHub.
type GitHubConnectionFactory struct {
	config GitHubConfig
}

// NewGitHubConnectionFactory creates a new GitHubConnectionFactory.
func NewGitHubConnectionFactory(cfg GitHubConfig) (*GitHubConnectionFactory, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}
	return &GitHubConnectionFactory{config: cfg}, nil
}

func newGitHubFactoryFromConfig(cfg *domain.ProviderConfig, opts FactoryOptions) (ConnectionFactory, error) {
	return NewGitHubConnectionFactory(GitHubConfig{
		ClientID:             cfg.Attribute(GitHubAttrClientID),
		ClientSecret:         cfg.Attribute(GitHubAttrClientSecret),
		AllowedOrganizations: splitOrganizations(cfg.Attribute(GitHubAttrOrganizations)),
		HTTPClient:           opts.HTTPClient,
	})
}

func splitOrganizations(raw string) []string {
	var orgs []string
	for _, org := range strings.Split(raw, ",") {
		if org = strings.TrimSpace(org); org != "" {
			orgs = append(orgs, org)
		}
	}
	return orgs
}

func (f *GitHubConnectionFactory) ProviderID() string { return GitHubProviderID }

func (f *GitHubConnectionFactory) Capability() Capability { return CapabilityGitHubAPI }

// AllowedOrganizations returns the configured organization restriction.
func (f *GitHubConnectionFactory) AllowedOrganizations() []string {
	return slices.Clone(f.config.AllowedOrganizations)
}

func (f *GitHubConnectionFactory) OAuth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.config.ClientID,
		ClientSecret: f.config.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       slices.Clone(githubDefaultScopes),
		Endpoint:     githubOAuth2.Endpoint,
	}
}

func (f *GitHubConnectionFactory) CreateConnection(data domain.ConnectionData) Connection {
	data.ProviderID = GitHubProviderID
	return &githubConnection{factory: f, data: data}
}

func (f *GitHubConnectionFactory) ConnectionFromToken(ctx context.Context, token *oauth2.Token) (Connection, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("github: %w: empty access token", ErrFetchUserInfoFailed)
	}

	data := domain.ConnectionData{AccessToken: token.AccessToken}
	if token.RefreshToken != "" {
		refresh := token.RefreshToken
		data.RefreshToken = &refresh
	}
	if !token.Expiry.IsZero() {
		expire := token.Expiry.UnixMilli()
		data.ExpireTime = &expire
	}

	conn := &githubConnection{factory: f, data: data}
	user, err := conn.fetchUser(ctx)
	if err != nil {
		return nil, err
	}

	conn.data.ConnectionKey = domain.ConnectionKey{
		ProviderID:     GitHubProviderID,
		ProviderUserID: string(user.ID),
	}
	conn.data.DisplayName = user.Login
	conn.data.ProfileURL = user.HTMLURL
	conn.data.ImageURL = user.AvatarURL

	return conn, nil
}

// githubConnection is a live GitHub connection.
type githubConnection struct {
	factory *GitHubConnectionFactory
	data    domain.ConnectionData
}

type githubUser struct {
	ID        json.Number `json:"id"`
	Login     string      `json:"login"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	AvatarURL string      `json:"avatar_url"`
	HTMLURL   string      `json:"html_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type githubOrganization struct {
	Login string `json:"login"`
}

func (c *githubConnection) Key() domain.ConnectionKey { return c.data.ConnectionKey }

func (c *githubConnection) Data() domain.ConnectionData { return c.data }

// FetchProfile reads /user and the primary verified address from /user/emails.
// When organizations are configured, the user must belong to one of them.
func (c *githubConnection) FetchProfile(ctx context.Context) (*UserProfile, error) {
	user, err := c.fetchUser(ctx)
	if err != nil {
		return nil, err
	}

	email := user.Email
	var emails []githubEmail
	if err := c.getJSON(ctx, GithubUserEmailsEndpoint, &emails); err != nil {
		log.Warn().Ctx(ctx).Err(err).Str("login", user.Login).Msg("Failed to fetch GitHub emails, using public profile email")
	} else if primary := primaryVerifiedEmail(emails); primary != "" {
		email = primary
	}

	if allowed := c.factory.config.AllowedOrganizations; len(allowed) > 0 {
		var orgs []githubOrganization
		if err := c.getJSON(ctx, GithubUserOrgsEndpoint, &orgs); err != nil {
			return nil, err
		}
		member := slices.ContainsFunc(orgs, func(o githubOrganization) bool {
			return slices.Contains(allowed, o.Login)
		})
		if !member {
			return nil, fmt.Errorf("%w: user '%s'", ErrOrganizationNotAllowed, user.Login)
		}
	}

	firstName, lastName := parseName(user.Name)

	return &UserProfile{
		ID:        user.Login,
		Username:  user.Login,
		Name:      user.Name,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		ImageURL:  user.AvatarURL,
	}, nil
}

func (c *githubConnection) fetchUser(ctx context.Context) (*githubUser, error) {
	var user githubUser
	if err := c.getJSON(ctx, GithubUserInfoEndpoint, &user); err != nil {
		return nil, err
	}
	if user.Login == "" {
		return nil, fmt.Errorf("github: %w: profile has no login", ErrFetchUserInfoFailed)
	}
	return &user, nil
}

func (c *githubConnection) httpClient(ctx context.Context) *http.Client {
	if hc := c.factory.config.HTTPClient; hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	token := &oauth2.Token{AccessToken: c.data.AccessToken, TokenType: "Bearer"}
	if c.data.ExpireTime != nil {
		token.Expiry = time.UnixMilli(*c.data.ExpireTime)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
}

func (c *githubConnection) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("github: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient(ctx).Do(req)
	if err != nil {
		return fmt.Errorf("github: %w: %w", ErrFetchUserInfoFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("github: failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github: %w: %s: status %d", ErrFetchUserInfoFailed, url, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("github: failed to unmarshal response: %w", err)
	}
	return nil
}

func primaryVerifiedEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

func parseName(fullName string) (string, string) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return "", ""
	}
	parts := strings.SplitN(fullName, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

var (
	_ ConnectionFactory = (*GitHubConnectionFactory)(nil)
	_ Connection        = (*githubConnection)(nil)
)
