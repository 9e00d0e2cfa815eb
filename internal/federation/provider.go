package federation

import (
	"context"
	"net/http"

	"github.com/pilab-dev/shadow-social/domain"
	"golang.org/x/oauth2"
)

// Capability tags the API a provider exposes, so callers can ask for "the
// provider that speaks the GitHub API" instead of naming a provider id.
type Capability string

const CapabilityGitHubAPI Capability = "github-api"

// UserProfile holds standardized user information retrieved from a provider.
type UserProfile struct {
	ID        string // Stable handle at the provider, used to derive the local login
	Username  string
	Name      string
	FirstName string
	LastName  string
	Email     string
	ImageURL  string
}

// Connection is a live connection: stored connection data bound to a
// provider API client.
type Connection interface {
	Key() domain.ConnectionKey
	Data() domain.ConnectionData
	// FetchProfile calls the provider API with the connection's credentials.
	FetchProfile(ctx context.Context) (*UserProfile, error)
}

// ConnectionFactory builds live connections for one configured provider.
type ConnectionFactory interface {
	ProviderID() string
	Capability() Capability

	// OAuth2Config returns the client configuration used by the security
	// layer to run the authorization-code exchange.
	OAuth2Config(redirectURL string) *oauth2.Config

	// CreateConnection binds stored connection data to the provider API.
	CreateConnection(data domain.ConnectionData) Connection

	// ConnectionFromToken builds a connection for a freshly exchanged token,
	// filling the provider user id and profile fields.
	ConnectionFromToken(ctx context.Context, token *oauth2.Token) (Connection, error)
}

// FactoryOptions carries the shared collaborators handed to every factory.
type FactoryOptions struct {
	// HTTPClient is used for all provider API calls. It should carry a
	// bounded timeout.
	HTTPClient *http.Client
}

// ProviderDescriptor describes one supported provider: the configuration
// attributes it needs and how to build its factory from them.
type ProviderDescriptor struct {
	ID                 string
	RequiredAttributes []string
	OptionalAttributes []string
	Capability         Capability
	Factory            func(cfg *domain.ProviderConfig, opts FactoryOptions) (ConnectionFactory, error)
}

// Attributes returns required then optional attribute names.
func (d ProviderDescriptor) Attributes() []string {
	out := make([]string, 0, len(d.RequiredAttributes)+len(d.OptionalAttributes))
	out = append(out, d.RequiredAttributes...)
	return append(out, d.OptionalAttributes...)
}

// MissingAttributes lists the required attributes that are absent or blank in cfg.
func (d ProviderDescriptor) MissingAttributes(cfg *domain.ProviderConfig) []string {
	var missing []string
	for _, name := range d.RequiredAttributes {
		if cfg.Attribute(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Descriptors returns the set of providers this build supports.
func Descriptors() []ProviderDescriptor {
	return []ProviderDescriptor{
		{
			ID:                 GitHubProviderID,
			RequiredAttributes: []string{GitHubAttrClientID, GitHubAttrClientSecret},
			OptionalAttributes: []string{GitHubAttrOrganizations},
			Capability:         CapabilityGitHubAPI,
			Factory:            newGitHubFactoryFromConfig,
		},
	}
}
