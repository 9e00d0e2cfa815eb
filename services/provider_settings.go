package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/audit"
	"github.com/rs/zerolog/log"
)

// ProviderAttributes lists the configuration attributes a provider accepts.
type ProviderAttributes struct {
	ProviderID string   `json:"provider_id"`
	Required   []string `json:"required"`
	Optional   []string `json:"optional"`
}

// ProviderSettings is the administrative CRUD over provider configurations.
// Every write invalidates the registry's cached factory of the provider.
type ProviderSettings struct {
	repo     domain.ProviderConfigRepository
	registry ProviderRegistry
	now      func() time.Time
}

func NewProviderSettings(repo domain.ProviderConfigRepository, registry ProviderRegistry) *ProviderSettings {
	return &ProviderSettings{repo: repo, registry: registry, now: time.Now}
}

// Save creates or replaces the configuration of a supported provider. Blank
// values are dropped; every required attribute must be present and unknown
// attribute names are rejected.
func (s *ProviderSettings) Save(ctx context.Context, providerID string, attrs map[string]string) (*domain.ProviderConfig, error) {
	desc, err := s.registry.Descriptor(providerID)
	if err != nil {
		return nil, err
	}

	known := desc.Attributes()
	clean := make(map[string]string, len(attrs))
	for name, value := range attrs {
		if !slices.Contains(known, name) {
			return nil, fmt.Errorf("%w: %s does not accept %q", domain.ErrUnknownAttribute, providerID, name)
		}
		if value = strings.TrimSpace(value); value != "" {
			clean[name] = value
		}
	}

	now := s.now().UTC()
	cfg := &domain.ProviderConfig{
		ProviderID: providerID,
		Attributes: clean,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if missing := desc.MissingAttributes(cfg); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrMissingAttribute, providerID, strings.Join(missing, ", "))
	}

	existing, err := s.repo.Get(ctx, providerID)
	switch {
	case err == nil:
		cfg.CreatedAt = existing.CreatedAt
	case !errors.Is(err, domain.ErrConfigurationNotFound):
		return nil, fmt.Errorf("failed to get %s configuration: %w", providerID, err)
	}

	err = s.repo.Save(ctx, cfg)
	audit.Record(ctx, audit.ActionProviderSaved, actor(ctx), providerID, err)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s configuration: %w", providerID, err)
	}
	s.registry.Invalidate(providerID)

	log.Info().Ctx(ctx).Str("providerID", providerID).Msg("Provider configuration saved")
	return cfg, nil
}

// Get returns the stored configuration of a supported provider.
func (s *ProviderSettings) Get(ctx context.Context, providerID string) (*domain.ProviderConfig, error) {
	if _, err := s.registry.Descriptor(providerID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, providerID)
}

// List returns every stored configuration ordered by provider id.
func (s *ProviderSettings) List(ctx context.Context) ([]*domain.ProviderConfig, error) {
	return s.repo.List(ctx)
}

// Delete removes a configuration; the provider stops resolving immediately.
func (s *ProviderSettings) Delete(ctx context.Context, providerID string) error {
	err := s.repo.Delete(ctx, providerID)
	audit.Record(ctx, audit.ActionProviderDeleted, actor(ctx), providerID, err)
	if err != nil {
		return err
	}
	s.registry.Invalidate(providerID)

	log.Info().Ctx(ctx).Str("providerID", providerID).Msg("Provider configuration deleted")
	return nil
}

// Attributes describes the attributes a provider accepts.
func (s *ProviderSettings) Attributes(providerID string) (*ProviderAttributes, error) {
	desc, err := s.registry.Descriptor(providerID)
	if err != nil {
		return nil, err
	}
	return &ProviderAttributes{
		ProviderID: desc.ID,
		Required:   slices.Clone(desc.RequiredAttributes),
		Optional:   slices.Clone(desc.OptionalAttributes),
	}, nil
}

func actor(ctx context.Context) string {
	if userID, ok := domain.UserIDFromContext(ctx); ok {
		return userID
	}
	return "admin"
}
