package federation

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/metrics"
	"github.com/pilab-dev/shadow-social/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL      = 5 * time.Minute
	DefaultCacheCapacity = 64
)

// Registry resolves provider ids and capability tags to connection factories
// built from the stored provider configuration. Built factories are cached per
// provider id until they expire or Invalidate is called.
type Registry struct {
	descriptors map[string]ProviderDescriptor
	configs     domain.ProviderConfigRepository
	opts        FactoryOptions

	cacheTTL      time.Duration
	cacheCapacity uint64
	cache         *ttlcache.Cache[string, ConnectionFactory]
	group         singleflight.Group
	generation    atomic.Uint64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCacheTTL sets how long a built factory is reused.
func WithCacheTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.cacheTTL = ttl }
}

// WithCacheCapacity bounds the number of cached factories.
func WithCacheCapacity(capacity uint64) RegistryOption {
	return func(r *Registry) { r.cacheCapacity = capacity }
}

// WithHTTPClient sets the client handed to every factory for provider API calls.
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(r *Registry) { r.opts.HTTPClient = client }
}

// NewRegistry creates a registry over the given descriptors. Call Stop to
// release the cache janitor.
func NewRegistry(configs domain.ProviderConfigRepository, descriptors []ProviderDescriptor, opts ...RegistryOption) *Registry {
	r := &Registry{
		descriptors:   make(map[string]ProviderDescriptor, len(descriptors)),
		configs:       configs,
		cacheTTL:      DefaultCacheTTL,
		cacheCapacity: DefaultCacheCapacity,
	}
	for _, d := range descriptors {
		r.descriptors[d.ID] = d
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cache = ttlcache.New(
		ttlcache.WithTTL[string, ConnectionFactory](r.cacheTTL),
		ttlcache.WithCapacity[string, ConnectionFactory](r.cacheCapacity),
		ttlcache.WithDisableTouchOnHit[string, ConnectionFactory](),
	)
	go r.cache.Start()

	return r
}

// Stop stops the cache cleanup goroutine.
func (r *Registry) Stop() {
	r.cache.Stop()
}

// Descriptor returns the descriptor of a supported provider.
func (r *Registry) Descriptor(providerID string) (ProviderDescriptor, error) {
	d, ok := r.descriptors[providerID]
	if !ok {
		return ProviderDescriptor{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, providerID)
	}
	return d, nil
}

// Descriptors returns every supported descriptor ordered by id.
func (r *Registry) Descriptors() []ProviderDescriptor {
	out := make([]ProviderDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve returns the connection factory of a provider. It fails with
// domain.ErrConfigurationNotFound when the provider has no stored configuration.
func (r *Registry) Resolve(ctx context.Context, providerID string) (ConnectionFactory, error) {
	ctx, span := tracing.Start(ctx, "federation.Registry.Resolve",
		trace.WithAttributes(attribute.String("provider.id", providerID)))
	defer span.End()

	desc, err := r.Descriptor(providerID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if item := r.cache.Get(providerID); item != nil {
		metrics.ProviderCacheHitsTotal.Inc()
		return item.Value(), nil
	}

	v, err, _ := r.group.Do(providerID, func() (any, error) {
		if item := r.cache.Get(providerID); item != nil {
			return item.Value(), nil
		}
		metrics.ProviderCacheMissesTotal.Inc()

		gen := r.generation.Load()
		factory, err := r.build(ctx, desc)
		if err != nil {
			return nil, err
		}
		// A configuration write during the build makes this factory stale.
		if r.generation.Load() == gen {
			r.cache.Set(providerID, factory, ttlcache.DefaultTTL)
		}
		return factory, nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return v.(ConnectionFactory), nil
}

// ResolveCapability returns the factory of the configured provider carrying
// the capability tag, with the same failure mode as Resolve.
func (r *Registry) ResolveCapability(ctx context.Context, capability Capability) (ConnectionFactory, error) {
	providerID, err := r.ProviderForCapability(ctx, capability)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, providerID)
}

// ProviderForCapability returns the id of the configured provider carrying the tag.
func (r *Registry) ProviderForCapability(ctx context.Context, capability Capability) (string, error) {
	registered, err := r.RegisteredProviderIDs(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range registered {
		if r.descriptors[id].Capability == capability {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no provider configured for capability %s", domain.ErrConfigurationNotFound, capability)
}

// RegisteredProviderIDs returns, in ascending order, the ids of supported
// providers that have a stored configuration.
func (r *Registry) RegisteredProviderIDs(ctx context.Context) ([]string, error) {
	configs, err := r.configs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider configurations: %w", err)
	}

	ids := make([]string, 0, len(configs))
	for _, cfg := range configs {
		if _, ok := r.descriptors[cfg.ProviderID]; ok {
			ids = append(ids, cfg.ProviderID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// Invalidate drops the cached factory of a provider. It must be called after
// every configuration write.
func (r *Registry) Invalidate(providerID string) {
	r.generation.Add(1)
	r.group.Forget(providerID)
	r.cache.Delete(providerID)
	log.Debug().Str("providerID", providerID).Msg("Provider factory cache invalidated")
}

func (r *Registry) build(ctx context.Context, desc ProviderDescriptor) (ConnectionFactory, error) {
	cfg, err := r.configs.Get(ctx, desc.ID)
	if err != nil {
		return nil, err
	}
	if missing := desc.MissingAttributes(cfg); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMissingAttribute, desc.ID, missing)
	}

	factory, err := desc.Factory(cfg, r.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s connection factory: %w", desc.ID, err)
	}
	return factory, nil
}
