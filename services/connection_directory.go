package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/pilab-dev/shadow-social/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SignUp mints a local user for an external identity seen for the first time.
// Returning an empty id declines the sign-up.
type SignUp interface {
	SignUp(ctx context.Context, conn federation.Connection) (string, error)
}

// SignUpFunc adapts a function to SignUp.
type SignUpFunc func(ctx context.Context, conn federation.Connection) (string, error)

func (f SignUpFunc) SignUp(ctx context.Context, conn federation.Connection) (string, error) {
	return f(ctx, conn)
}

// ConnectionDirectory answers which local users own an external identity,
// across all users.
type ConnectionDirectory struct {
	repo     domain.ConnectionRepository
	registry ProviderRegistry
	codec    CredentialCodec
	signUp   SignUp
}

// DirectoryOption configures a ConnectionDirectory.
type DirectoryOption func(*ConnectionDirectory)

// WithSignUp enables first-touch sign-up in FindOwners.
func WithSignUp(s SignUp) DirectoryOption {
	return func(d *ConnectionDirectory) { d.signUp = s }
}

func NewConnectionDirectory(repo domain.ConnectionRepository, registry ProviderRegistry, codec CredentialCodec, opts ...DirectoryOption) *ConnectionDirectory {
	d := &ConnectionDirectory{
		repo:     repo,
		registry: registry,
		codec:    codec,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindOwners returns the ids of the local users linked to the connection's
// external identity.
//
// When nobody is linked and a SignUp is configured, a local user is created
// and linked first. The lookup and the creation are two separate steps; the
// unique login of the created user and the unique connection key make a
// concurrent first touch of the same identity converge on a single owner.
func (d *ConnectionDirectory) FindOwners(ctx context.Context, conn federation.Connection) ([]string, error) {
	key := conn.Key()
	ctx, span := tracing.Start(ctx, "services.ConnectionDirectory.FindOwners",
		trace.WithAttributes(attribute.String("provider.id", key.ProviderID)))
	defer span.End()

	owners, err := d.repo.FindUserIDsByKey(ctx, key)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to find owners of %s: %w", key, err)
	}
	if len(owners) > 0 || d.signUp == nil {
		return owners, nil
	}

	userID, err := d.signUp.SignUp(ctx, conn)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if userID == "" {
		log.Info().Ctx(ctx).Str("providerID", key.ProviderID).Msg("Sign-up declined for unlinked identity")
		return nil, nil
	}

	store, err := d.ScopeTo(userID)
	if err != nil {
		return nil, err
	}
	linked := false
	switch _, err := store.Add(ctx, conn.Data()); {
	case err == nil:
		linked = true
	case errors.Is(err, domain.ErrDuplicateConnection):
		log.Debug().Ctx(ctx).Str("userID", userID).Str("providerID", key.ProviderID).
			Msg("External identity already linked by a concurrent first touch")
	default:
		tracing.RecordError(span, err)
		return nil, err
	}

	// Re-read: a concurrent first touch may have linked the same user.
	owners, err = d.repo.FindUserIDsByKey(ctx, key)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to find owners of %s: %w", key, err)
	}

	if linked {
		log.Info().Ctx(ctx).
			Str("userID", userID).
			Str("providerID", key.ProviderID).
			Msg("Linked external identity on first touch")
	}

	return owners, nil
}

// ResolveOwner is FindOwners for callers that need exactly one owner. It fails
// with domain.ErrNotConnected when there is none and domain.ErrAmbiguousOwner
// when there are several.
func (d *ConnectionDirectory) ResolveOwner(ctx context.Context, conn federation.Connection) (string, error) {
	owners, err := d.FindOwners(ctx, conn)
	if err != nil {
		return "", err
	}
	switch len(owners) {
	case 0:
		return "", fmt.Errorf("%w: %s", domain.ErrNotConnected, conn.Key())
	case 1:
		return owners[0], nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrAmbiguousOwner, conn.Key())
	}
}

// FindOwnersConnectedTo returns the distinct ids of the users holding a
// connection to any of the provider user ids. It never creates anything.
func (d *ConnectionDirectory) FindOwnersConnectedTo(ctx context.Context, providerID string, providerUserIDs []string) ([]string, error) {
	if len(providerUserIDs) == 0 {
		return nil, domain.ErrEmptyKeys
	}
	owners, err := d.repo.FindUserIDsConnectedTo(ctx, providerID, providerUserIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to find owners at %s: %w", providerID, err)
	}
	return owners, nil
}

// ScopeTo returns the connection store of one local user.
func (d *ConnectionDirectory) ScopeTo(userID string) (*ConnectionStore, error) {
	return NewConnectionStore(userID, d.repo, d.registry, d.codec)
}
