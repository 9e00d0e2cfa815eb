package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// NewObjectID generates a new MongoDB ObjectID as a string
func NewObjectID() string {
	return bson.NewObjectID().Hex()
}

// isDuplicateKeyOn reports whether err is a duplicate key error raised by the
// named unique index.
func isDuplicateKeyOn(err error, index string) bool {
	if !mongo.IsDuplicateKeyError(err) {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if strings.Contains(e.Message, index) {
				return true
			}
		}
	}
	return strings.Contains(err.Error(), index)
}

// ensureIndexes creates the indexes of a collection. A failure is logged and
// returned; constructors treat it as non-fatal since compatible indexes may
// already exist.
func ensureIndexes(ctx context.Context, collection *mongo.Collection, models []mongo.IndexModel) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(timeoutCtx, models); err != nil {
		log.Warn().Err(err).Str("collection", collection.Name()).
			Msg("Issue creating indexes (might already exist or other error)")
		return err
	}
	log.Info().Str("collection", collection.Name()).Msg("Indexes ensured.")
	return nil
}
