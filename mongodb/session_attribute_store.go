package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SessionAttributeStoreMongo implements domain.SessionAttributeStore. Each
// session is one document holding an attribute sub-document; every operation
// touches a single field so concurrent handlers never overwrite each other.
type SessionAttributeStoreMongo struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewSessionAttributeStoreMongo creates the store. A positive ttl adds a TTL
// index that expires sessions ttl after their last write.
func NewSessionAttributeStoreMongo(ctx context.Context, db *mongo.Database, ttl time.Duration) (*SessionAttributeStoreMongo, error) {
	store := &SessionAttributeStoreMongo{
		collection: db.Collection(SessionAttributesCollection),
		now:        time.Now,
	}

	if ttl > 0 {
		_ = ensureIndexes(ctx, store.collection, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "updated_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())).SetName("updated_at_ttl"),
			},
		})
	}

	return store, nil
}

func attributeField(name string) string {
	return "attributes." + name
}

func (s *SessionAttributeStoreMongo) Set(ctx context.Context, sessionID, name string, value any) error {
	if err := domain.ValidateAttributeName(name); err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			attributeField(name): value,
			"updated_at":         s.now().UTC(),
		},
	}
	_, err := s.collection.UpdateByID(ctx, sessionID, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("attribute", name).Msg("Error setting session attribute in MongoDB")
		return fmt.Errorf("failed to set session attribute %s: %w", name, err)
	}
	return nil
}

func (s *SessionAttributeStoreMongo) Get(ctx context.Context, sessionID, name string, out any) (bool, error) {
	if err := domain.ValidateAttributeName(name); err != nil {
		return false, err
	}

	opts := options.FindOne().SetProjection(bson.M{attributeField(name): 1})
	raw, err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}, opts).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		log.Error().Ctx(ctx).Err(err).Str("attribute", name).Msg("Error retrieving session attribute from MongoDB")
		return false, fmt.Errorf("failed to get session attribute %s: %w", name, err)
	}

	value, err := raw.LookupErr("attributes", name)
	if err != nil {
		// the session exists but does not hold the attribute
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := value.Unmarshal(out); err != nil {
		return false, fmt.Errorf("failed to decode session attribute %s: %w", name, err)
	}
	return true, nil
}

func (s *SessionAttributeStoreMongo) Remove(ctx context.Context, sessionID, name string) error {
	if err := domain.ValidateAttributeName(name); err != nil {
		return err
	}

	update := bson.M{"$unset": bson.M{attributeField(name): ""}}
	if _, err := s.collection.UpdateByID(ctx, sessionID, update); err != nil {
		log.Error().Ctx(ctx).Err(err).Str("attribute", name).Msg("Error removing session attribute from MongoDB")
		return fmt.Errorf("failed to remove session attribute %s: %w", name, err)
	}
	return nil
}

var _ domain.SessionAttributeStore = (*SessionAttributeStoreMongo)(nil)
