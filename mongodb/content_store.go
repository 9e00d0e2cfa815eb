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

// ContentStoreGridFS implements domain.ContentStore on a GridFS bucket.
type ContentStoreGridFS struct {
	bucket *mongo.GridFSBucket
}

func NewContentStoreGridFS(db *mongo.Database) *ContentStoreGridFS {
	return &ContentStoreGridFS{
		bucket: db.GridFSBucket(options.GridFSBucket().SetName(AvatarsBucket)),
	}
}

func (s *ContentStoreGridFS) Save(ctx context.Context, data *domain.BinaryData) (string, error) {
	opts := options.GridFSUpload().SetMetadata(bson.M{
		"content_type": data.ContentType,
		"length":       data.Length,
	})

	id, err := s.bucket.UploadFromStream(ctx, data.Filename, data.Body, opts)
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("filename", data.Filename).Msg("Error uploading content to GridFS")
		return "", fmt.Errorf("failed to store content: %w", err)
	}
	return id.Hex(), nil
}

func (s *ContentStoreGridFS) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrContentNotFound, id)
	}

	if err := s.bucket.Delete(ctx, oid); err != nil {
		if errors.Is(err, mongo.ErrFileNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrContentNotFound, id)
		}
		return fmt.Errorf("failed to delete content %s: %w", id, err)
	}
	return nil
}

var _ domain.ContentStore = (*ContentStoreGridFS)(nil)
