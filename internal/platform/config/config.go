// Package config loads daemon configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Event publishers the worker forwards to besides the postgres event log.
const (
	PublisherLog   = "log"
	PublisherKafka = "kafka"
)

type Config struct {
	Log     Log
	Store   Store
	Redis   RedisConfig
	Kafka   Kafka
	Events  Events
	Ops     Ops
	Tracing Tracing
}

type Log struct {
	Level  string `env:"COLDCHAIN_LOG_LEVEL" envDefault:"info"`
	Format string `env:"COLDCHAIN_LOG_FORMAT" envDefault:"json"`
}

// SlogLevel maps Level onto slog. Unknown names fall back to info.
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type Store struct {
	Driver      string `env:"COLDCHAIN_STORE_DRIVER" envDefault:"memory"`
	PostgresDSN string `env:"COLDCHAIN_POSTGRES_DSN"`
	// Migrate applies the schema on startup.
	Migrate bool `env:"COLDCHAIN_POSTGRES_MIGRATE" envDefault:"true"`
}

// RedisConfig configures the redis client used by the redis store driver.
type RedisConfig struct {
	URL          string        `env:"COLDCHAIN_REDIS_URL"`
	KeyPrefix    string        `env:"COLDCHAIN_REDIS_KEY_PREFIX" envDefault:"coldchain"`
	PoolSize     int           `env:"COLDCHAIN_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"COLDCHAIN_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"COLDCHAIN_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"COLDCHAIN_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"COLDCHAIN_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type Kafka struct {
	Brokers           []string `env:"COLDCHAIN_KAFKA_BROKERS" envSeparator:","`
	Topic             string   `env:"COLDCHAIN_KAFKA_TOPIC" envDefault:"coldchain.ledger.events"`
	Partitions        int32    `env:"COLDCHAIN_KAFKA_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"COLDCHAIN_KAFKA_REPLICATION_FACTOR" envDefault:"1"`
	ClientID          string   `env:"COLDCHAIN_KAFKA_CLIENT_ID" envDefault:"coldchaind"`
}

type Events struct {
	Publisher    string        `env:"COLDCHAIN_EVENTS_PUBLISHER" envDefault:"log"`
	BufferSize   int           `env:"COLDCHAIN_EVENTS_BUFFER_SIZE" envDefault:"10000"`
	BatchSize    int           `env:"COLDCHAIN_EVENTS_BATCH_SIZE" envDefault:"100"`
	PollInterval time.Duration `env:"COLDCHAIN_EVENTS_POLL_INTERVAL" envDefault:"1s"`

	// Consecutive publisher failures before forwarding fails fast, and how
	// long it stays that way before probing again.
	BreakerThreshold int           `env:"COLDCHAIN_EVENTS_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"COLDCHAIN_EVENTS_BREAKER_COOLDOWN" envDefault:"30s"`
}

type Ops struct {
	Addr            string        `env:"COLDCHAIN_OPS_ADDR" envDefault:":9090"`
	ShutdownTimeout time.Duration `env:"COLDCHAIN_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Tracing is opt-in: an empty endpoint disables span export.
type Tracing struct {
	Endpoint    string `env:"COLDCHAIN_OTEL_ENDPOINT"`
	ServiceName string `env:"COLDCHAIN_OTEL_SERVICE_NAME" envDefault:"coldchaind"`
}

// FromEnv parses and validates the configuration.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the daemon cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("COLDCHAIN_POSTGRES_DSN is required for the postgres store"))
		}
	case DriverRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("COLDCHAIN_REDIS_URL is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Events.Publisher {
	case PublisherLog:
	case PublisherKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("COLDCHAIN_KAFKA_BROKERS is required for the kafka publisher"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown event publisher %q", c.Events.Publisher))
	}

	if c.Events.BufferSize <= 0 {
		errs = append(errs, errors.New("event buffer size must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
