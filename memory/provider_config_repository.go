package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/pilab-dev/shadow-social/domain"
)

type ProviderConfigRepository struct {
	mu      sync.RWMutex
	configs map[string]*domain.ProviderConfig
}

func NewProviderConfigRepository() *ProviderConfigRepository {
	return &ProviderConfigRepository{configs: make(map[string]*domain.ProviderConfig)}
}

func (r *ProviderConfigRepository) Get(_ context.Context, providerID string) (*domain.ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[providerID]
	if !ok {
		return nil, domain.ErrConfigurationNotFound
	}
	return copyConfig(cfg), nil
}

func (r *ProviderConfigRepository) Save(_ context.Context, cfg *domain.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored := copyConfig(cfg)
	if existing, ok := r.configs[cfg.ProviderID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.configs[cfg.ProviderID] = stored
	return nil
}

func (r *ProviderConfigRepository) Delete(_ context.Context, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[providerID]; !ok {
		return domain.ErrConfigurationNotFound
	}
	delete(r.configs, providerID)
	return nil
}

func (r *ProviderConfigRepository) List(_ context.Context) ([]*domain.ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.ProviderConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, copyConfig(cfg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out, nil
}

func copyConfig(cfg *domain.ProviderConfig) *domain.ProviderConfig {
	cp := *cfg
	cp.Attributes = maps.Clone(cfg.Attributes)
	return &cp
}

var _ domain.ProviderConfigRepository = (*ProviderConfigRepository)(nil)
