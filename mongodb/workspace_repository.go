package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// WorkspaceRepositoryMongo implements domain.WorkspaceRepository. The
// workspace name is the document id, which keeps names unique.
type WorkspaceRepositoryMongo struct {
	collection *mongo.Collection
}

func NewWorkspaceRepositoryMongo(db *mongo.Database) *WorkspaceRepositoryMongo {
	return &WorkspaceRepositoryMongo{collection: db.Collection(WorkspacesCollection)}
}

func (r *WorkspaceRepositoryMongo) GetByName(ctx context.Context, name string) (*domain.Workspace, error) {
	var ws domain.Workspace
	if err := r.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&ws); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrWorkspaceNotFound
		}
		log.Error().Ctx(ctx).Err(err).Str("workspace", name).Msg("Error retrieving workspace from MongoDB")
		return nil, err
	}
	return &ws, nil
}

func (r *WorkspaceRepositoryMongo) Create(ctx context.Context, ws *domain.Workspace) error {
	if _, err := r.collection.InsertOne(ctx, ws); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", domain.ErrWorkspaceExists, ws.Name)
		}
		log.Error().Ctx(ctx).Err(err).Str("workspace", ws.Name).Msg("Error creating workspace in MongoDB")
		return err
	}
	return nil
}

var _ domain.WorkspaceRepository = (*WorkspaceRepositoryMongo)(nil)
