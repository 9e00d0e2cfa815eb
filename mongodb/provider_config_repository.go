package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ProviderConfigRepositoryMongo implements domain.ProviderConfigRepository.
// Documents are keyed by provider id.
type ProviderConfigRepositoryMongo struct {
	collection *mongo.Collection
}

func NewProviderConfigRepositoryMongo(db *mongo.Database) *ProviderConfigRepositoryMongo {
	return &ProviderConfigRepositoryMongo{
		collection: db.Collection(ProviderConfigsCollection),
	}
}

// Get retrieves the configuration of a provider.
func (r *ProviderConfigRepositoryMongo) Get(ctx context.Context, providerID string) (*domain.ProviderConfig, error) {
	var cfg domain.ProviderConfig
	err := r.collection.FindOne(ctx, bson.M{"_id": providerID}).Decode(&cfg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrConfigurationNotFound
		}
		log.Error().Ctx(ctx).Err(err).Str("providerID", providerID).Msg("Error retrieving provider configuration from MongoDB")
		return nil, err
	}
	return &cfg, nil
}

// Save upserts the configuration. The creation time of an existing document
// is kept.
func (r *ProviderConfigRepositoryMongo) Save(ctx context.Context, cfg *domain.ProviderConfig) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"attributes": cfg.Attributes, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": cfg.ProviderID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("providerID", cfg.ProviderID).Msg("Error saving provider configuration to MongoDB")
		return err
	}
	return nil
}

// Delete removes the configuration of a provider.
func (r *ProviderConfigRepositoryMongo) Delete(ctx context.Context, providerID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": providerID})
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("providerID", providerID).Msg("Error deleting provider configuration from MongoDB")
		return err
	}
	if result.DeletedCount == 0 {
		return domain.ErrConfigurationNotFound
	}
	return nil
}

// List retrieves every configuration ordered by provider id.
func (r *ProviderConfigRepositoryMongo) List(ctx context.Context) ([]*domain.ProviderConfig, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Msg("Error listing provider configurations from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var configs []*domain.ProviderConfig
	if err = cursor.All(ctx, &configs); err != nil {
		log.Error().Ctx(ctx).Err(err).Msg("Error decoding provider configurations from MongoDB")
		return nil, err
	}
	return configs, nil
}

var _ domain.ProviderConfigRepository = (*ProviderConfigRepositoryMongo)(nil)
