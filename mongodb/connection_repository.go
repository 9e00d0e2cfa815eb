package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	connectionKeyIndex  = "user_provider_key_unique"
	connectionRankIndex = "user_provider_rank_unique"
)

// ConnectionRepositoryMongo implements domain.ConnectionRepository.
type ConnectionRepositoryMongo struct {
	collection *mongo.Collection
}

// NewConnectionRepositoryMongo creates a new ConnectionRepositoryMongo and
// ensures the unique indexes the connection store relies on.
func NewConnectionRepositoryMongo(ctx context.Context, db *mongo.Database) (*ConnectionRepositoryMongo, error) {
	repo := &ConnectionRepositoryMongo{
		collection: db.Collection(ConnectionsCollection),
	}

	_ = ensureIndexes(ctx, repo.collection, []mongo.IndexModel{
		{
			// A user links a given external identity at most once.
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "provider_id", Value: 1},
				{Key: "provider_user_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName(connectionKeyIndex),
		},
		{
			// Creation time ranks a user's connections at one provider.
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "provider_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetUnique(true).SetName(connectionRankIndex),
		},
		{
			// Reverse lookup of the owners of an external identity.
			Keys: bson.D{
				{Key: "provider_id", Value: 1},
				{Key: "provider_user_id", Value: 1},
			},
		},
	})

	return repo, nil
}

func keyFilter(userID string, key domain.ConnectionKey) bson.M {
	return bson.M{
		"user_id":          userID,
		"provider_id":      key.ProviderID,
		"provider_user_id": key.ProviderUserID,
	}
}

func (r *ConnectionRepositoryMongo) Insert(ctx context.Context, conn *domain.Connection) error {
	if conn.ID == "" {
		conn.ID = NewObjectID()
	}

	_, err := r.collection.InsertOne(ctx, conn)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateConnection
		}
		log.Error().Ctx(ctx).Err(err).Str("userID", conn.UserID).Msg("Error inserting connection into MongoDB")
		return err
	}
	return nil
}

func (r *ConnectionRepositoryMongo) Update(ctx context.Context, conn *domain.Connection) error {
	set := bson.M{
		"display_name": conn.DisplayName,
		"profile_url":  conn.ProfileURL,
		"image_url":    conn.ImageURL,
		"access_token": conn.AccessToken,
	}
	unset := bson.M{}
	setOrUnset := func(field string, value any, isNil bool) {
		if isNil {
			unset[field] = ""
		} else {
			set[field] = value
		}
	}
	setOrUnset("secret", conn.Secret, conn.Secret == nil)
	setOrUnset("refresh_token", conn.RefreshToken, conn.RefreshToken == nil)
	setOrUnset("expire_time", conn.ExpireTime, conn.ExpireTime == nil)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := r.collection.UpdateOne(ctx, keyFilter(conn.UserID, conn.ConnectionKey), update)
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("userID", conn.UserID).Msg("Error updating connection in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotConnected
	}
	return nil
}

func (r *ConnectionRepositoryMongo) FindByUser(ctx context.Context, userID string) ([]*domain.Connection, error) {
	return r.find(ctx, bson.M{"user_id": userID},
		bson.D{{Key: "provider_id", Value: 1}, {Key: "created_at", Value: -1}})
}

func (r *ConnectionRepositoryMongo) FindByUserAndProvider(ctx context.Context, userID, providerID string) ([]*domain.Connection, error) {
	return r.find(ctx, bson.M{"user_id": userID, "provider_id": providerID},
		bson.D{{Key: "created_at", Value: -1}})
}

func (r *ConnectionRepositoryMongo) FindByUserAndKey(ctx context.Context, userID string, key domain.ConnectionKey) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.collection.FindOne(ctx, keyFilter(userID, key)).Decode(&conn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotConnected
		}
		log.Error().Ctx(ctx).Err(err).Str("userID", userID).Msg("Error retrieving connection from MongoDB")
		return nil, err
	}
	return &conn, nil
}

func (r *ConnectionRepositoryMongo) FindByUserAndKeys(ctx context.Context, userID string, keys map[string][]string) ([]*domain.Connection, error) {
	or := make(bson.A, 0, len(keys))
	for providerID, providerUserIDs := range keys {
		if len(providerUserIDs) == 0 {
			continue
		}
		or = append(or, bson.M{
			"provider_id":      providerID,
			"provider_user_id": bson.M{"$in": providerUserIDs},
		})
	}
	if len(or) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"user_id": userID, "$or": or}, nil)
}

func (r *ConnectionRepositoryMongo) DeleteByUserAndProvider(ctx context.Context, userID, providerID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"user_id": userID, "provider_id": providerID})
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("userID", userID).Str("providerID", providerID).Msg("Error deleting connections from MongoDB")
		return err
	}
	return nil
}

func (r *ConnectionRepositoryMongo) DeleteByUserAndKey(ctx context.Context, userID string, key domain.ConnectionKey) error {
	_, err := r.collection.DeleteOne(ctx, keyFilter(userID, key))
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("userID", userID).Msg("Error deleting connection from MongoDB")
		return err
	}
	return nil
}

func (r *ConnectionRepositoryMongo) FindUserIDsByKey(ctx context.Context, key domain.ConnectionKey) ([]string, error) {
	return r.distinctUserIDs(ctx, bson.M{
		"provider_id":      key.ProviderID,
		"provider_user_id": key.ProviderUserID,
	})
}

func (r *ConnectionRepositoryMongo) FindUserIDsConnectedTo(ctx context.Context, providerID string, providerUserIDs []string) ([]string, error) {
	return r.distinctUserIDs(ctx, bson.M{
		"provider_id":      providerID,
		"provider_user_id": bson.M{"$in": providerUserIDs},
	})
}

func (r *ConnectionRepositoryMongo) find(ctx context.Context, filter bson.M, sort bson.D) ([]*domain.Connection, error) {
	findOptions := options.Find()
	if sort != nil {
		findOptions.SetSort(sort)
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Msg("Error listing connections from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	conns := []*domain.Connection{}
	if err = cursor.All(ctx, &conns); err != nil {
		return nil, fmt.Errorf("failed to decode connections: %w", err)
	}
	return conns, nil
}

func (r *ConnectionRepositoryMongo) distinctUserIDs(ctx context.Context, filter bson.M) ([]string, error) {
	var ids []string
	if err := r.collection.Distinct(ctx, "user_id", filter).Decode(&ids); err != nil {
		log.Error().Ctx(ctx).Err(err).Msg("Error listing connection owners from MongoDB")
		return nil, err
	}
	return ids, nil
}

var _ domain.ConnectionRepository = (*ConnectionRepositoryMongo)(nil)
