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
	userLoginIndex = "login_unique"
	userEmailIndex = "email_unique"
)

// UserRepositoryMongo implements domain.UserRepository
type UserRepositoryMongo struct {
	users *mongo.Collection
}

// NewUserRepositoryMongo creates a new UserRepositoryMongo. The unique login index is
// what makes concurrent first-touch sign-ups of one identity converge.
func NewUserRepositoryMongo(ctx context.Context, db *mongo.Database) (*UserRepositoryMongo, error) {
	repo := &UserRepositoryMongo{
		users: db.Collection(UsersCollection),
	}

	if err := ensureIndexes(ctx, repo.users, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "login", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(userLoginIndex),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(userEmailIndex).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}}),
		},
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to create user indexes")
	}
	return repo, nil
}

func (r *UserRepositoryMongo) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"login": login})
}

func (r *UserRepositoryMongo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepositoryMongo) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = NewObjectID()
	}

	_, err := r.users.InsertOne(ctx, user)
	if err != nil {
		switch {
		case isDuplicateKeyOn(err, userLoginIndex):
			return fmt.Errorf("%w: %s", domain.ErrDuplicateLogin, user.Login)
		case isDuplicateKeyOn(err, userEmailIndex):
			return fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, user.Email)
		case mongo.IsDuplicateKeyError(err):
			return fmt.Errorf("user with id %s already exists: %w", user.ID, err)
		}
		log.Error().Ctx(ctx).Err(err).Str("login", user.Login).Msg("Error creating user in MongoDB")
		return err
	}
	return nil
}

func (r *UserRepositoryMongo) Update(ctx context.Context, user *domain.User) error {
	result, err := r.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		if isDuplicateKeyOn(err, userEmailIndex) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, user.Email)
		}
		log.Error().Ctx(ctx).Err(err).Str("userID", user.ID).Msg("Error updating user in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepositoryMongo) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	if err := r.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		log.Error().Ctx(ctx).Err(err).Msg("Error retrieving user from MongoDB")
		return nil, err
	}
	return &user, nil
}

var _ domain.UserRepository = (*UserRepositoryMongo)(nil)
