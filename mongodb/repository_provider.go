package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoRepositoryProvider implements the domain.RepositoryProvider interface
// using MongoDB as the backing store.
type MongoRepositoryProvider struct {
	connRepo     *ConnectionRepositoryMongo
	providerRepo *ProviderConfigRepositoryMongo
	userRepo     *UserRepositoryMongo
	wsRepo       *WorkspaceRepositoryMongo
	content      *ContentStoreGridFS
	sessions     *SessionAttributeStoreMongo
}

// NewMongoRepositoryProvider builds every repository on db once and ensures
// their indexes. Handshake sessions expire sessionTTL after their last write.
func NewMongoRepositoryProvider(ctx context.Context, db *mongo.Database, sessionTTL time.Duration) (*MongoRepositoryProvider, error) {
	connRepo, err := NewConnectionRepositoryMongo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection repository: %w", err)
	}
	userRepo, err := NewUserRepositoryMongo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create user repository: %w", err)
	}
	sessions, err := NewSessionAttributeStoreMongo(ctx, db, sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create session attribute store: %w", err)
	}

	return &MongoRepositoryProvider{
		connRepo:     connRepo,
		providerRepo: NewProviderConfigRepositoryMongo(db),
		userRepo:     userRepo,
		wsRepo:       NewWorkspaceRepositoryMongo(db),
		content:      NewContentStoreGridFS(db),
		sessions:     sessions,
	}, nil
}

func (p *MongoRepositoryProvider) ConnectionRepository(context.Context) domain.ConnectionRepository {
	return p.connRepo
}

func (p *MongoRepositoryProvider) ProviderConfigRepository(context.Context) domain.ProviderConfigRepository {
	return p.providerRepo
}

func (p *MongoRepositoryProvider) UserRepository(context.Context) domain.UserRepository {
	return p.userRepo
}

func (p *MongoRepositoryProvider) WorkspaceRepository(context.Context) domain.WorkspaceRepository {
	return p.wsRepo
}

func (p *MongoRepositoryProvider) ContentStore(context.Context) domain.ContentStore {
	return p.content
}

func (p *MongoRepositoryProvider) SessionAttributeStore(context.Context) domain.SessionAttributeStore {
	return p.sessions
}

// Compile-time check to ensure MongoRepositoryProvider implements domain.RepositoryProvider
var _ domain.RepositoryProvider = (*MongoRepositoryProvider)(nil)
