package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. SOCIAL_MONGO_URI.
const EnvPrefix = "SOCIAL"

const (
	BackendMongoDB = "mongodb"
	BackendMemory  = "memory"
	BackendRedis   = "redis"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPAddr        string `mapstructure:"HTTP_ADDR"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	StorageBackend string `mapstructure:"STORAGE_BACKEND"` // mongodb or memory
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDBName    string `mapstructure:"MONGO_DB_NAME"`

	SessionBackend string        `mapstructure:"SESSION_BACKEND"` // mongodb, redis or memory
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`

	// Connection secrets at rest. CREDENTIAL_KEY (base64 AES-256 key) wins
	// over the password/salt pair.
	CredentialCipher   string `mapstructure:"CREDENTIAL_CIPHER"`
	CredentialKey      string `mapstructure:"CREDENTIAL_KEY"`
	CredentialPassword string `mapstructure:"CREDENTIAL_PASSWORD"`
	CredentialSalt     string `mapstructure:"CREDENTIAL_SALT"`

	ProviderCacheTTL      time.Duration `mapstructure:"PROVIDER_CACHE_TTL"`
	ProviderCacheCapacity uint64        `mapstructure:"PROVIDER_CACHE_CAPACITY"`

	HTTPClientTimeout time.Duration `mapstructure:"HTTP_CLIENT_TIMEOUT"`
	AvatarMaxRetries  int           `mapstructure:"AVATAR_MAX_RETRIES"`

	// Public base URL OAuth providers redirect back to.
	CallbackBaseURL string `mapstructure:"CALLBACK_BASE_URL"`

	// Bearer token of the admin API; empty disables it.
	AdminToken string `mapstructure:"ADMIN_TOKEN"`
	// Header the authenticating gateway puts the local user id in.
	UserIDHeader string `mapstructure:"USER_ID_HEADER"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "shadow-social")

	v.SetDefault("STORAGE_BACKEND", BackendMongoDB)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "shadow_social")

	v.SetDefault("SESSION_BACKEND", BackendMongoDB)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL", 30*time.Minute)

	v.SetDefault("CREDENTIAL_CIPHER", "aes-gcm")
	v.SetDefault("CREDENTIAL_KEY", "")
	v.SetDefault("CREDENTIAL_PASSWORD", "")
	v.SetDefault("CREDENTIAL_SALT", "shadow-social")

	v.SetDefault("PROVIDER_CACHE_TTL", 10*time.Minute)
	v.SetDefault("PROVIDER_CACHE_CAPACITY", 64)

	v.SetDefault("HTTP_CLIENT_TIMEOUT", 10*time.Second)
	v.SetDefault("AVATAR_MAX_RETRIES", 2)

	v.SetDefault("CALLBACK_BASE_URL", "http://localhost:8080")
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("USER_ID_HEADER", "X-Social-User")
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/shadow-social/")
	v.AddConfigPath("$HOME/.shadow-social")
	v.AddConfigPath(".")

	return load(v)
}

// LoadConfigFile is LoadConfig with an explicit config file path.
func LoadConfigFile(path string) (*ServerConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*ServerConfig, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults and env vars only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *ServerConfig) Validate() error {
	switch c.StorageBackend {
	case BackendMongoDB, BackendMemory:
	default:
		return fmt.Errorf("%w: STORAGE_BACKEND=%q", ErrInvalidConfig, c.StorageBackend)
	}

	switch c.SessionBackend {
	case BackendMongoDB:
		if c.StorageBackend != BackendMongoDB {
			return fmt.Errorf("%w: SESSION_BACKEND=mongodb requires STORAGE_BACKEND=mongodb", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: REDIS_ADDR is required for the redis session backend", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: SESSION_BACKEND=%q", ErrInvalidConfig, c.SessionBackend)
	}

	if c.StorageBackend == BackendMongoDB && (c.MongoURI == "" || c.MongoDBName == "") {
		return fmt.Errorf("%w: MONGO_URI and MONGO_DB_NAME are required", ErrInvalidConfig)
	}

	switch c.CredentialCipher {
	case "aes-gcm":
		if c.CredentialKey == "" && c.CredentialPassword == "" {
			return fmt.Errorf("%w: CREDENTIAL_KEY or CREDENTIAL_PASSWORD is required for aes-gcm", ErrInvalidConfig)
		}
	case "noop":
	default:
		return fmt.Errorf("%w: CREDENTIAL_CIPHER=%q", ErrInvalidConfig, c.CredentialCipher)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: SESSION_TTL must be positive", ErrInvalidConfig)
	}
	if c.ProviderCacheTTL <= 0 {
		return fmt.Errorf("%w: PROVIDER_CACHE_TTL must be positive", ErrInvalidConfig)
	}
	if c.CallbackBaseURL == "" {
		return fmt.Errorf("%w: CALLBACK_BASE_URL is required", ErrInvalidConfig)
	}
	return nil
}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")
