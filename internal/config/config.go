// Package config loads typed configuration with viper: defaults first,
// then an optional YAML file, then environment variables (dots become
// underscores, so rate.limit.capacity is RATE_LIMIT_CAPACITY).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nishiki-ai/tapestry/internal/circuitbreaker"
	"github.com/nishiki-ai/tapestry/internal/retry"
	"github.com/nishiki-ai/tapestry/internal/tracing"
)

// Config holds every tunable, resolved to a typed value. Constructors
// receive it (or a field of it) explicitly; nothing reads global state.
type Config struct {
	MemoryLimit int
	Workers     int
	TaskTimeout time.Duration

	RateCapacity        int
	RateRefillPerSecond float64
	RateMaxWait         time.Duration

	Retry   retry.Policy
	Breaker circuitbreaker.Config

	Store   StoreConfig
	Tracing tracing.Config
}

// StoreConfig selects and configures the durable store backend.
type StoreConfig struct {
	Backend  string // "sqlite", "postgres", or "redis"
	DSN      string // SQL stores
	Addr     string // redis
	Password string
	DB       int
}

// Load resolves configuration. path may be empty; a missing file is not
// an error, only an unreadable one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		MemoryLimit: v.GetInt("memory.limit"),
		Workers:     v.GetInt("parallel.workers"),
		TaskTimeout: time.Duration(v.GetInt("task.timeout.seconds")) * time.Second,

		RateCapacity:        v.GetInt("rate.limit.capacity"),
		RateRefillPerSecond: v.GetFloat64("rate.limit.refill.per.second"),
		RateMaxWait:         time.Duration(v.GetInt("rate.limit.max.wait.ms")) * time.Millisecond,

		Retry: retry.Policy{
			MaxAttempts:      v.GetInt("retry.max.attempts"),
			InitialDelay:     time.Duration(v.GetInt("retry.initial.delay.ms")) * time.Millisecond,
			MaxDelay:         time.Duration(v.GetInt("retry.max.delay.ms")) * time.Millisecond,
			Multiplier:       v.GetFloat64("retry.multiplier"),
			JitterFactor:     v.GetFloat64("retry.jitter.factor"),
			MaxTotalDuration: time.Duration(v.GetInt("retry.max.duration.ms")) * time.Millisecond,
		},
		Breaker: circuitbreaker.Config{
			FailureThreshold: v.GetUint32("circuit.breaker.failure.threshold"),
			SuccessThreshold: v.GetUint32("circuit.breaker.success.threshold"),
			MaxProbes:        v.GetUint32("circuit.breaker.max.probes"),
			OpenDuration:     time.Duration(v.GetInt("circuit.breaker.open.duration.ms")) * time.Millisecond,
		},

		Store: StoreConfig{
			Backend:  v.GetString("store.backend"),
			DSN:      v.GetString("store.dsn"),
			Addr:     v.GetString("store.redis.addr"),
			Password: v.GetString("store.redis.password"),
			DB:       v.GetInt("store.redis.db"),
		},
		Tracing: tracing.Config{
			Enabled:      v.GetBool("tracing.enabled"),
			ServiceName:  v.GetString("tracing.service.name"),
			OTLPEndpoint: v.GetString("tracing.otlp.endpoint"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("memory.limit", 20)
	v.SetDefault("parallel.workers", 4)
	v.SetDefault("task.timeout.seconds", 30)

	v.SetDefault("rate.limit.capacity", 20)
	v.SetDefault("rate.limit.refill.per.second", 10.0)
	v.SetDefault("rate.limit.max.wait.ms", 30000)

	v.SetDefault("retry.max.attempts", 4)
	v.SetDefault("retry.initial.delay.ms", 250)
	v.SetDefault("retry.max.delay.ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter.factor", 0.2)
	v.SetDefault("retry.max.duration.ms", 60000)

	v.SetDefault("circuit.breaker.failure.threshold", 5)
	v.SetDefault("circuit.breaker.success.threshold", 2)
	v.SetDefault("circuit.breaker.max.probes", 1)
	v.SetDefault("circuit.breaker.open.duration.ms", 10000)

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.dsn", "tapestry.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service.name", "tapestry")
	v.SetDefault("tracing.otlp.endpoint", "localhost:4317")
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("parallel.workers must be positive, got %d", c.Workers)
	}
	if c.MemoryLimit <= 0 {
		return fmt.Errorf("memory.limit must be positive, got %d", c.MemoryLimit)
	}
	if c.RateCapacity <= 0 || c.RateRefillPerSecond <= 0 {
		return fmt.Errorf("rate limit capacity and refill must be positive, got %d and %g",
			c.RateCapacity, c.RateRefillPerSecond)
	}
	switch c.Store.Backend {
	case "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
