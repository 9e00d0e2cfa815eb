package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/pilab-dev/shadow-social/internal/metrics"
	"github.com/pilab-dev/shadow-social/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// IdentityReplicator copies provider profile data into local accounts and
// provisions accounts on first sign-in.
type IdentityReplicator struct {
	users      domain.UserRepository
	workspaces domain.WorkspaceRepository
	content    domain.ContentStore
	avatars    AvatarFetcher
	now        func() time.Time
}

func NewIdentityReplicator(
	users domain.UserRepository,
	workspaces domain.WorkspaceRepository,
	content domain.ContentStore,
	avatars AvatarFetcher,
) *IdentityReplicator {
	return &IdentityReplicator{
		users:      users,
		workspaces: workspaces,
		content:    content,
		avatars:    avatars,
		now:        time.Now,
	}
}

// Synchronize refreshes the local account linked to conn from the live
// provider profile. The display name and synchronization time are always
// updated; the avatar is replaced when the provider image changed.
func (r *IdentityReplicator) Synchronize(ctx context.Context, conn federation.Connection) (*domain.User, error) {
	return r.SynchronizeAccount(ctx, "", conn)
}

// SynchronizeAccount is Synchronize restricted to the account userID: when the
// profile maps to another account nothing is written and ErrLoginConflict is
// returned. An empty userID accepts any account.
func (r *IdentityReplicator) SynchronizeAccount(ctx context.Context, userID string, conn federation.Connection) (*domain.User, error) {
	providerID := conn.Key().ProviderID
	ctx, span := tracing.Start(ctx, "services.IdentityReplicator.Synchronize",
		trace.WithAttributes(attribute.String("provider.id", providerID)))
	defer span.End()

	user, err := r.synchronize(ctx, userID, conn)
	result := "success"
	if err != nil {
		result = "failure"
		tracing.RecordError(span, err)
	}
	metrics.SynchronizationsTotal.WithLabelValues(providerID, result).Inc()
	return user, err
}

func (r *IdentityReplicator) synchronize(ctx context.Context, userID string, conn federation.Connection) (*domain.User, error) {
	providerID := conn.Key().ProviderID

	profile, login, err := fetchProfile(ctx, conn)
	if err != nil {
		return nil, err
	}

	user, err := r.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, login)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", login, err)
	}
	if user.Type != domain.UserTypeForProvider(providerID) {
		return nil, fmt.Errorf("%w: user %s is %s, connection is %s",
			domain.ErrWrongProviderType, login, user.Type, providerID)
	}
	if userID != "" && user.ID != userID {
		return nil, fmt.Errorf("%w: %s profile maps to login %s", domain.ErrLoginConflict, providerID, login)
	}

	now := r.now().UTC()
	updated := *user
	updated.FullName = profile.Name
	if updated.FullName == "" {
		updated.FullName = profile.ID
	}
	updated.Meta.SynchronizedAt = now
	updated.UpdatedAt = now

	var newPhotoID string
	if profile.ImageURL != "" && profile.ImageURL != user.PhotoSourceURL {
		newPhotoID = r.transferAvatar(ctx, login, profile.ImageURL)
		if newPhotoID != "" {
			updated.PhotoID = newPhotoID
			updated.PhotoSourceURL = profile.ImageURL
		}
	}

	if err := r.users.Update(ctx, &updated); err != nil {
		r.discardAvatar(ctx, newPhotoID)
		return nil, fmt.Errorf("failed to update user %s: %w", login, err)
	}

	if newPhotoID != "" && user.PhotoID != "" {
		if err := r.content.Delete(ctx, user.PhotoID); err != nil && !errors.Is(err, domain.ErrContentNotFound) {
			log.Warn().Ctx(ctx).Err(err).Str("login", login).Msg("Failed to delete previous avatar")
		}
	}

	log.Info().Ctx(ctx).Str("login", login).Str("providerID", providerID).Msg("User synchronized")
	return &updated, nil
}

// Replicate returns the local account of the profile behind conn, creating
// it together with its personal workspace when it does not exist yet.
func (r *IdentityReplicator) Replicate(ctx context.Context, conn federation.Connection) (*domain.User, error) {
	providerID := conn.Key().ProviderID
	ctx, span := tracing.Start(ctx, "services.IdentityReplicator.Replicate",
		trace.WithAttributes(attribute.String("provider.id", providerID)))
	defer span.End()

	user, err := r.replicate(ctx, conn)
	if err != nil {
		tracing.RecordError(span, err)
	}
	return user, err
}

func (r *IdentityReplicator) replicate(ctx context.Context, conn federation.Connection) (*domain.User, error) {
	providerID := conn.Key().ProviderID
	userType := domain.UserTypeForProvider(providerID)

	profile, login, err := fetchProfile(ctx, conn)
	if err != nil {
		return nil, err
	}

	existing, err := r.users.GetByLogin(ctx, login)
	switch {
	case err == nil:
		return r.adoptExisting(ctx, existing, userType)
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("failed to get user %s: %w", login, err)
	}

	email := domain.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmailRequired, login)
	}
	if owner, err := r.users.GetByEmail(ctx, email); err == nil {
		if owner.Login == login {
			// Created by a concurrent first touch since the login lookup.
			return r.adoptExisting(ctx, owner, userType)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, email)
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email %s: %w", email, err)
	}

	// The workspace goes first: a user row must never exist without it.
	if err := r.ensurePersonalWorkspace(ctx, login); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	user := &domain.User{
		ID:               uuid.NewString(),
		Login:            login,
		Email:            email,
		FullName:         fullName(profile, login),
		Type:             userType,
		Role:             domain.RoleUser,
		IsExpired:        false,
		DefaultWorkspace: domain.PersonalWorkspaceName(login),
		Meta:             domain.UserMeta{LastLogin: now, SynchronizedAt: now},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if profile.ImageURL != "" {
		if id := r.transferAvatar(ctx, login, profile.ImageURL); id != "" {
			user.PhotoID = id
			user.PhotoSourceURL = profile.ImageURL
		}
	}

	if err := r.users.Create(ctx, user); err != nil {
		r.discardAvatar(ctx, user.PhotoID)
		if !errors.Is(err, domain.ErrDuplicateLogin) && !errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, fmt.Errorf("failed to create user %s: %w", login, err)
		}
		// Either a concurrent first touch for the same login won, or the
		// email was taken by someone else in the meantime.
		winner, getErr := r.users.GetByLogin(ctx, login)
		switch {
		case getErr == nil:
			return r.adoptExisting(ctx, winner, userType)
		case errors.Is(getErr, domain.ErrUserNotFound):
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, email)
		default:
			return nil, fmt.Errorf("failed to get user %s: %w", login, getErr)
		}
	}

	metrics.FirstTouchSignUpsTotal.Inc()
	log.Info().Ctx(ctx).
		Str("userID", user.ID).
		Str("login", login).
		Str("providerID", providerID).
		Msg("User provisioned on first sign-in")

	return user, nil
}

// SignUp provisions the local account of conn and returns its id. It lets the
// replicator drive first-touch sign-up in ConnectionDirectory.
func (r *IdentityReplicator) SignUp(ctx context.Context, conn federation.Connection) (string, error) {
	user, err := r.Replicate(ctx, conn)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func (r *IdentityReplicator) adoptExisting(ctx context.Context, user *domain.User, userType domain.UserType) (*domain.User, error) {
	if user.Type != userType {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrLoginConflict, user.Login, user.Type)
	}
	// Creation of the workspace may have failed after the user was stored.
	if err := r.ensurePersonalWorkspace(ctx, user.Login); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *IdentityReplicator) ensurePersonalWorkspace(ctx context.Context, login string) error {
	name := domain.PersonalWorkspaceName(login)
	if _, err := r.workspaces.GetByName(ctx, name); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrWorkspaceNotFound) {
		return fmt.Errorf("failed to get workspace %s: %w", name, err)
	}

	err := r.workspaces.Create(ctx, domain.NewPersonalWorkspace(login, r.now().UTC()))
	if err != nil && !errors.Is(err, domain.ErrWorkspaceExists) {
		return fmt.Errorf("failed to create workspace %s: %w", name, err)
	}
	return nil
}

// transferAvatar downloads the image into the content store and returns its
// content id, or "" when the transfer failed. Failures are logged only.
func (r *IdentityReplicator) transferAvatar(ctx context.Context, login, url string) string {
	id, err := r.storeAvatar(ctx, url)
	if err != nil {
		metrics.AvatarTransferFailuresTotal.Inc()
		log.Warn().Ctx(ctx).Err(err).Str("login", login).Msg("Avatar transfer failed, continuing without it")
		return ""
	}
	return id
}

func (r *IdentityReplicator) storeAvatar(ctx context.Context, url string) (string, error) {
	if r.avatars == nil {
		return "", fmt.Errorf("%w: no avatar fetcher configured", domain.ErrAvatarTransfer)
	}
	data, err := r.avatars.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAvatarTransfer, err)
	}
	id, err := r.content.Save(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAvatarTransfer, err)
	}
	return id, nil
}

func (r *IdentityReplicator) discardAvatar(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := r.content.Delete(ctx, id); err != nil {
		log.Warn().Ctx(ctx).Err(err).Str("contentID", id).Msg("Failed to delete orphaned avatar")
	}
}

func fetchProfile(ctx context.Context, conn federation.Connection) (*federation.UserProfile, string, error) {
	profile, err := conn.FetchProfile(ctx)
	if err != nil {
		return nil, "", err
	}
	handle := profile.ID
	if strings.TrimSpace(handle) == "" {
		handle = profile.Username
	}
	login := domain.NormalizeLogin(handle)
	if login == "" {
		return nil, "", fmt.Errorf("%w: profile has no id", federation.ErrFetchUserInfoFailed)
	}
	return profile, login, nil
}

func fullName(profile *federation.UserProfile, login string) string {
	if name := strings.TrimSpace(profile.FirstName + " " + profile.LastName); name != "" {
		return name
	}
	if name := strings.TrimSpace(profile.Name); name != "" {
		return name
	}
	return login
}

var _ SignUp = (*IdentityReplicator)(nil)
