package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/pilab-dev/shadow-social/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Session attributes written during a sign-in handshake.
const (
	SessionAttrState    = "oauth_state"
	SessionAttrProvider = "oauth_provider"
)

// SignIn runs the redirect handshake with a provider. The handshake state
// lives in the session attribute store, so the callback may be served by any
// instance.
type SignIn struct {
	registry        ProviderRegistry
	sessions        domain.SessionAttributeStore
	directory       *ConnectionDirectory
	callbackBaseURL string
}

func NewSignIn(registry ProviderRegistry, sessions domain.SessionAttributeStore, directory *ConnectionDirectory, callbackBaseURL string) *SignIn {
	return &SignIn{
		registry:        registry,
		sessions:        sessions,
		directory:       directory,
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
	}
}

// CallbackURL is the redirect URL registered at the provider.
func (s *SignIn) CallbackURL(providerID string) string {
	return s.callbackBaseURL + "/sso/signin/" + providerID + "/callback"
}

// Begin stores a fresh state for the session and returns the provider's
// authorization URL.
func (s *SignIn) Begin(ctx context.Context, sessionID, providerID string) (string, error) {
	factory, err := s.registry.Resolve(ctx, providerID)
	if err != nil {
		return "", err
	}

	state := rand.Text()
	if err := s.sessions.Set(ctx, sessionID, SessionAttrState, state); err != nil {
		return "", fmt.Errorf("failed to store sign-in state: %w", err)
	}
	if err := s.sessions.Set(ctx, sessionID, SessionAttrProvider, providerID); err != nil {
		return "", fmt.Errorf("failed to store sign-in provider: %w", err)
	}

	return factory.OAuth2Config(s.CallbackURL(providerID)).AuthCodeURL(state), nil
}

// Verify checks the state returned by the provider against the one stored by
// Begin. The stored state is consumed either way.
func (s *SignIn) Verify(ctx context.Context, sessionID, providerID, state string) error {
	var stored, storedProvider string
	found, err := s.sessions.Get(ctx, sessionID, SessionAttrState, &stored)
	if err != nil {
		return fmt.Errorf("failed to read sign-in state: %w", err)
	}
	if _, err := s.sessions.Get(ctx, sessionID, SessionAttrProvider, &storedProvider); err != nil {
		return fmt.Errorf("failed to read sign-in provider: %w", err)
	}
	if err := s.sessions.Remove(ctx, sessionID, SessionAttrState); err != nil {
		return fmt.Errorf("failed to clear sign-in state: %w", err)
	}

	if !found || state == "" || storedProvider != providerID ||
		subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		return domain.ErrInvalidState
	}
	return nil
}

// Exchange finishes the handshake: it verifies the state, trades the code for
// a token and completes the sign-in with the resulting connection.
func (s *SignIn) Exchange(ctx context.Context, sessionID, providerID, code, state string) (string, error) {
	if err := s.Verify(ctx, sessionID, providerID, state); err != nil {
		return "", err
	}

	factory, err := s.registry.Resolve(ctx, providerID)
	if err != nil {
		return "", err
	}
	token, err := factory.OAuth2Config(s.CallbackURL(providerID)).Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	conn, err := factory.ConnectionFromToken(ctx, token)
	if err != nil {
		return "", err
	}
	return s.Complete(ctx, sessionID, conn)
}

// Complete resolves the single local owner of conn, provisioning one on first
// touch, refreshes the stored connection and clears the handshake state.
func (s *SignIn) Complete(ctx context.Context, sessionID string, conn federation.Connection) (string, error) {
	ctx, span := tracing.Start(ctx, "services.SignIn.Complete",
		trace.WithAttributes(attribute.String("provider.id", conn.Key().ProviderID)))
	defer span.End()

	userID, err := s.directory.ResolveOwner(ctx, conn)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}

	store, err := s.directory.ScopeTo(userID)
	if err != nil {
		return "", err
	}
	if err := store.Update(ctx, conn.Data()); err != nil {
		tracing.RecordError(span, err)
		return "", err
	}

	for _, name := range []string{SessionAttrState, SessionAttrProvider} {
		if err := s.sessions.Remove(ctx, sessionID, name); err != nil {
			log.Warn().Ctx(ctx).Err(err).Str("attribute", name).Msg("Failed to clear session attribute")
		}
	}

	log.Info().Ctx(ctx).Str("userID", userID).Str("providerID", conn.Key().ProviderID).Msg("User signed in")
	return userID, nil
}
