// Package config provides configuration management for the application
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ServerConfig holds HTTP server and room service settings
type ServerConfig struct {
	Port              string        `env:"PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	LogFormat         string        `env:"LOG_FORMAT,default=console"`
	SeatCapacity      int           `env:"SEAT_CAPACITY,default=2"`
	CommitAttempts    int           `env:"COMMIT_ATTEMPTS,default=5"`
	SubscriberBuffer  int           `env:"SUBSCRIBER_BUFFER,default=64"`
	HeartbeatInterval time.Duration `env:"SSE_HEARTBEAT_INTERVAL,default=15s"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Backend string `env:"STORE_BACKEND,default=memory"`
}

// RedisConfig holds Redis/Valkey configuration
type RedisConfig struct {
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string `env:"REDIS_URI"`
	Host      string `env:"REDIS_HOST,default=localhost"`
	Port      string `env:"REDIS_PORT,default=6379"`
	Username  string `env:"REDIS_USERNAME"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB,default=0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX,default=zseats:"`
	// TTL for room keys (0 means no expiration)
	RoomTTL time.Duration `env:"REDIS_ROOM_TTL,default=0s"`
}

// PostgresConfig holds the PostgreSQL connection string
type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN"`
}

// VoiceConfig configures delivery of audio directives to the voice transport
type VoiceConfig struct {
	// URL of the transport's directive endpoint. Empty means directives are only logged.
	URL       string        `env:"VOICE_TRANSPORT_URL"`
	Token     string        `env:"VOICE_TRANSPORT_TOKEN"`
	Secret    string        `env:"VOICE_TRANSPORT_SECRET"`
	Timeout   time.Duration `env:"VOICE_TIMEOUT,default=5s"`
	Workers   int           `env:"VOICE_WORKERS,default=4"`

	// BacklogWarn is the per-worker backlog above which a warning is logged
	BacklogWarn int `env:"VOICE_BACKLOG_WARN,default=256"`
}

// IdentityConfig controls how callers are identified
type IdentityConfig struct {
	// IntrospectionEndpoint enables bearer token validation. When empty the
	// X-User-ID header set by the upstream identity provider is trusted.
	IntrospectionEndpoint string `env:"IDENTITY_INTROSPECTION_ENDPOINT"`
	Provider              string `env:"IDENTITY_PROVIDER,default=azuread"`
}

// Config is the complete application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Voice    VoiceConfig
	Identity IdentityConfig
}

// GetServerConfig loads server configuration from environment variables
func GetServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	return cfg, err
}

// GetStoreConfig loads the store selection from environment variables
func GetStoreConfig() (StoreConfig, error) {
	var cfg StoreConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	return cfg, err
}

// GetRedisConfig loads Redis/Valkey configuration from environment variables
func GetRedisConfig() (RedisConfig, error) {
	var cfg RedisConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	return cfg, err
}

// GetPostgresConfig loads PostgreSQL configuration from environment variables
func GetPostgresConfig() (PostgresConfig, error) {
	var cfg PostgresConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	return cfg, err
}

// GetVoiceConfig loads voice transport configuration from environment variables
func GetVoiceConfig() (VoiceConfig, error) {
	var cfg VoiceConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	return cfg, err
}

// GetIdentityConfig loads identity configuration from environment variables
func GetIdentityConfig() (IdentityConfig, error) {
	var cfg IdentityConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	return cfg, err
}

// Load reads an optional .env file and then the full configuration from the environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config
	var err error
	if cfg.Server, err = GetServerConfig(); err != nil {
		return Config{}, fmt.Errorf("server config: %w", err)
	}
	if cfg.Store, err = GetStoreConfig(); err != nil {
		return Config{}, fmt.Errorf("store config: %w", err)
	}
	if cfg.Redis, err = GetRedisConfig(); err != nil {
		return Config{}, fmt.Errorf("redis config: %w", err)
	}
	if cfg.Postgres, err = GetPostgresConfig(); err != nil {
		return Config{}, fmt.Errorf("postgres config: %w", err)
	}
	if cfg.Voice, err = GetVoiceConfig(); err != nil {
		return Config{}, fmt.Errorf("voice config: %w", err)
	}
	if cfg.Identity, err = GetIdentityConfig(); err != nil {
		return Config{}, fmt.Errorf("identity config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that the environment parser cannot
func (c Config) Validate() error {
	if c.Server.SeatCapacity < 1 {
		return fmt.Errorf("SEAT_CAPACITY must be at least 1, got %d", c.Server.SeatCapacity)
	}
	if c.Server.CommitAttempts < 1 {
		return fmt.Errorf("COMMIT_ATTEMPTS must be at least 1, got %d", c.Server.CommitAttempts)
	}
	if c.Server.SubscriberBuffer < 1 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be at least 1, got %d", c.Server.SubscriberBuffer)
	}
	if c.Voice.Workers < 1 {
		return fmt.Errorf("VOICE_WORKERS must be at least 1, got %d", c.Voice.Workers)
	}

	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("POSTGRES_DSN is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	return nil
}

// IsVoiceTransportConfigured reports whether directives are sent over HTTP
func (c VoiceConfig) IsVoiceTransportConfigured() bool {
	return c.URL != ""
}
