package memory

import (
	"context"
	"time"

	"github.com/pilab-dev/shadow-social/cache"
	"github.com/pilab-dev/shadow-social/domain"
)

// RepositoryProvider serves every store from process memory. Data is lost on
// restart; it backs tests and single-instance development setups.
type RepositoryProvider struct {
	Connections     *ConnectionRepository
	ProviderConfigs *ProviderConfigRepository
	Users           *UserRepository
	Workspaces      *WorkspaceRepository
	Content         *ContentStore
	Sessions        *cache.MemorySessionStore
}

func NewRepositoryProvider(sessionTTL time.Duration) *RepositoryProvider {
	return &RepositoryProvider{
		Connections:     NewConnectionRepository(),
		ProviderConfigs: NewProviderConfigRepository(),
		Users:           NewUserRepository(),
		Workspaces:      NewWorkspaceRepository(),
		Content:         NewContentStore(),
		Sessions:        cache.NewMemorySessionStore(sessionTTL),
	}
}

func (p *RepositoryProvider) ConnectionRepository(context.Context) domain.ConnectionRepository {
	return p.Connections
}

func (p *RepositoryProvider) ProviderConfigRepository(context.Context) domain.ProviderConfigRepository {
	return p.ProviderConfigs
}

func (p *RepositoryProvider) UserRepository(context.Context) domain.UserRepository {
	return p.Users
}

func (p *RepositoryProvider) WorkspaceRepository(context.Context) domain.WorkspaceRepository {
	return p.Workspaces
}

func (p *RepositoryProvider) ContentStore(context.Context) domain.ContentStore {
	return p.Content
}

func (p *RepositoryProvider) SessionAttributeStore(context.Context) domain.SessionAttributeStore {
	return p.Sessions
}

// Close stops the session expiry goroutine.
func (p *RepositoryProvider) Close() {
	p.Sessions.Stop()
}

var _ domain.RepositoryProvider = (*RepositoryProvider)(nil)
