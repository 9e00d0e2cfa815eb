package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	FirstTouchSignUpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "social_first_touch_signups_total",
		Help: "Total number of local users provisioned on first login through a provider.",
	})
	ConnectionsAddedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_connections_added_total",
		Help: "Total number of provider connections added.",
	}, []string{"provider"})
	DuplicateConnectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_connections_duplicate_total",
		Help: "Total number of rejected duplicate connections.",
	}, []string{"provider"})
	SynchronizationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_synchronizations_total",
		Help: "Total number of profile synchronizations by result.",
	}, []string{"provider", "result"})
	AvatarTransferFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "social_avatar_transfer_failures_total",
		Help: "Total number of avatar downloads that failed and were skipped.",
	})
	ProviderCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "social_provider_cache_hits_total",
		Help: "Total number of provider registry lookups served from cache.",
	})
	ProviderCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "social_provider_cache_misses_total",
		Help: "Total number of provider registry lookups that rebuilt a factory.",
	})
)

// InitCustomMetrics registers the federation metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"FirstTouchSignUpsTotal":      FirstTouchSignUpsTotal,
		"ConnectionsAddedTotal":       ConnectionsAddedTotal,
		"DuplicateConnectionsTotal":   DuplicateConnectionsTotal,
		"SynchronizationsTotal":       SynchronizationsTotal,
		"AvatarTransferFailuresTotal": AvatarTransferFailuresTotal,
		"ProviderCacheHitsTotal":      ProviderCacheHitsTotal,
		"ProviderCacheMissesTotal":    ProviderCacheMissesTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
