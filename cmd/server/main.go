package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoapi "github.com/pilab-dev/shadow-social/api/echo"
	"github.com/pilab-dev/shadow-social/cache"
	rediscache "github.com/pilab-dev/shadow-social/cache/redis"
	"github.com/pilab-dev/shadow-social/config"
	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/crypto"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/pilab-dev/shadow-social/internal/metrics"
	"github.com/pilab-dev/shadow-social/internal/telemetry"
	sociallog "github.com/pilab-dev/shadow-social/log"
	"github.com/pilab-dev/shadow-social/memory"
	"github.com/pilab-dev/shadow-social/mongodb"
	"github.com/pilab-dev/shadow-social/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sessionKeyPrefix = "social:session:"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := sociallog.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.InitCustomMetrics(reg)

	otelProviders, err := telemetry.Init(cfg.OtelServiceName, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}

	ctx := context.Background()

	var closers []func(context.Context)
	storage, ping := mustStorage(ctx, cfg, &closers)
	sessions := mustSessions(ctx, cfg, storage, &closers)

	codec, err := crypto.NewCodecFromConfig(cfg.CredentialCipher, cfg.CredentialKey, cfg.CredentialPassword, cfg.CredentialSalt)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential codec")
	}

	configs := storage.ProviderConfigRepository(ctx)
	registry := federation.NewRegistry(configs, federation.Descriptors(),
		federation.WithCacheTTL(cfg.ProviderCacheTTL),
		federation.WithCacheCapacity(cfg.ProviderCacheCapacity),
		federation.WithHTTPClient(&http.Client{Timeout: cfg.HTTPClientTimeout}),
	)
	defer registry.Stop()

	avatars := services.NewHTTPAvatarFetcher(services.AvatarFetcherConfig{
		Timeout:    cfg.HTTPClientTimeout,
		MaxRetries: cfg.AvatarMaxRetries,
	})
	replicator := services.NewIdentityReplicator(
		storage.UserRepository(ctx),
		storage.WorkspaceRepository(ctx),
		storage.ContentStore(ctx),
		avatars,
	)
	directory := services.NewConnectionDirectory(storage.ConnectionRepository(ctx), registry, codec,
		services.WithSignUp(replicator))

	api := echoapi.NewSocialAPI(
		services.NewProviderSettings(configs, registry),
		services.NewSignIn(registry, sessions, directory, cfg.CallbackBaseURL),
		directory,
		services.NewProfileSync(directory, registry, replicator),
		cfg.SessionTTL,
		strings.HasPrefix(cfg.CallbackBaseURL, "https://"),
	)

	e := echoapi.NewServer(reg, ping)
	api.RegisterRoutes(e, adminAuth(cfg.AdminToken), echoapi.UserFromHeader(cfg.UserIDHeader))

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting HTTP server")
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	log.Info().Msg("Server components initialized. Waiting for interrupt signal...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	log.Info().Str("signal", receivedSignal.String()).Msg("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("OpenTelemetry shutdown error")
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i](shutdownCtx)
	}

	log.Info().Msg("Server gracefully stopped.")
}

// mustStorage opens the configured repository backend and returns it with the
// readiness check behind /healthz.
func mustStorage(ctx context.Context, cfg *config.ServerConfig, closers *[]func(context.Context)) (domain.RepositoryProvider, func(*http.Request) error) {
	if cfg.StorageBackend == config.BackendMemory {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		provider := memory.NewRepositoryProvider(cfg.SessionTTL)
		*closers = append(*closers, func(context.Context) { provider.Close() })
		return provider, nil
	}

	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	*closers = append(*closers, mongodb.CloseMongoDB)

	provider, err := mongodb.NewMongoRepositoryProvider(ctx, mongodb.GetDB(), cfg.SessionTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB repositories")
	}
	return provider, func(r *http.Request) error { return mongodb.Ping(r.Context()) }
}

func mustSessions(
	ctx context.Context,
	cfg *config.ServerConfig,
	storage domain.RepositoryProvider,
	closers *[]func(context.Context),
) domain.SessionAttributeStore {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		*closers = append(*closers, func(context.Context) {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Redis client")
			}
		})
		return rediscache.NewSessionStore(client, sessionKeyPrefix, cfg.SessionTTL)
	case config.BackendMemory:
		if cfg.StorageBackend == config.BackendMemory {
			return storage.SessionAttributeStore(ctx)
		}
		store := cache.NewMemorySessionStore(cfg.SessionTTL)
		*closers = append(*closers, func(context.Context) { store.Stop() })
		return store
	default:
		return storage.SessionAttributeStore(ctx)
	}
}

func adminAuth(token string) echo.MiddlewareFunc {
	if token == "" {
		log.Warn().Msg("ADMIN_TOKEN is not set, admin API is disabled")
		return echoapi.Forbid()
	}
	return echoapi.AdminKeyAuth(token)
}
