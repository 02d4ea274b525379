// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend selects the persistence implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr                 string        `env:"TRACECORE_ADDR"                   envDefault:":8080"`
	AdminActor           string        `env:"TRACECORE_ADMIN_ACTOR"`
	JWTSigningKey        string        `env:"TRACECORE_JWT_SIGNING_KEY"        envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer            string        `env:"TRACECORE_JWT_ISSUER"             envDefault:"tracecore"`
	ShutdownTimeout      time.Duration `env:"TRACECORE_SHUTDOWN_TIMEOUT"       envDefault:"10s"`
	LogLevel             string        `env:"TRACECORE_LOG_LEVEL"              envDefault:"info"`
	AllowCheckpointEdits bool          `env:"TRACECORE_ALLOW_CHECKPOINT_EDITS"`

	Storage Storage
	Redis   RedisConfig
	Kafka   KafkaConfig
	Events  EventsConfig
	Limits  RateLimitConfig
}

// Storage selects and configures the store backend.
type Storage struct {
	Backend     Backend `env:"TRACECORE_BACKEND"             envDefault:"memory"`
	PostgresDSN string  `env:"TRACECORE_POSTGRES_DSN"`
	MaxConns    int32   `env:"TRACECORE_POSTGRES_MAX_CONNS"  envDefault:"10"`
}

// RedisConfig configures the compliance status cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"TRACECORE_REDIS_URL"`
	PoolSize     int           `env:"TRACECORE_REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"TRACECORE_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"TRACECORE_REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"TRACECORE_REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"TRACECORE_REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
	StatusTTL    time.Duration `env:"TRACECORE_REDIS_STATUS_TTL"     envDefault:"5m"`
}

// KafkaConfig configures the event sink. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string `env:"TRACECORE_KAFKA_BROKERS"     envSeparator:","`
	Topic             string   `env:"TRACECORE_KAFKA_TOPIC"       envDefault:"tracecore.events"`
	Partitions        int32    `env:"TRACECORE_KAFKA_PARTITIONS"  envDefault:"3"`
	ReplicationFactor int16    `env:"TRACECORE_KAFKA_REPLICATION" envDefault:"1"`
}

// EventsConfig sizes the outbound event queue and its delivery retries.
type EventsConfig struct {
	QueueCapacity int           `env:"TRACECORE_EVENT_QUEUE_CAPACITY" envDefault:"10000"`
	MaxAttempts   int           `env:"TRACECORE_EVENT_MAX_ATTEMPTS"   envDefault:"5"`
	RetryBackoff  time.Duration `env:"TRACECORE_EVENT_RETRY_BACKOFF"  envDefault:"100ms"`
}

// RateLimitConfig bounds mutations per actor over a sliding window. Windows
// live in Redis when it is configured, in process memory otherwise.
type RateLimitConfig struct {
	Disabled bool          `env:"TRACECORE_RATELIMIT_DISABLED"`
	Requests int           `env:"TRACECORE_RATELIMIT_REQUESTS" envDefault:"300"`
	Window   time.Duration `env:"TRACECORE_RATELIMIT_WINDOW"   envDefault:"1m"`
}

// FromEnv parses the process environment.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot start.
func (c Server) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("TRACECORE_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Storage.Backend)
	}
	if !c.Limits.Disabled && (c.Limits.Requests <= 0 || c.Limits.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive")
	}
	if c.JWTSigningKey == "" {
		return fmt.Errorf("TRACECORE_JWT_SIGNING_KEY is required")
	}
	return nil
}
