package kv

import (
	"context"
	"fmt"
	"time"
)

// Backend represents the storage backend type
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
)

// LogFunc receives fallback notices as a message plus key-value pairs.
type LogFunc func(msg string, keysAndValues ...interface{})

// Config holds configuration for creating a Store instance
type Config struct {
	Backend Backend

	// RedisURL is the connection string for Redis (required when Backend is "redis")
	// Format: redis://localhost:6379/0 or a bare host:port
	RedisURL string

	// JanitorInterval controls how often the in-memory store cleans up expired keys.
	// Default: 30 seconds
	JanitorInterval time.Duration

	// FallbackToMemory returns an in-memory store when Redis cannot be reached at startup.
	FallbackToMemory bool

	// StartupProbeTimeout controls how long to wait for Redis at startup.
	// Default: 1 second
	StartupProbeTimeout time.Duration

	Logger LogFunc
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

var factories = make(map[Backend]StoreFactory)

// RegisterBackend registers a store factory for a given backend
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

// NewStoreFromConfig creates a new Store instance based on the provided configuration
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 30 * time.Second
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = 1 * time.Second
	}

	switch cfg.Backend {
	case BackendMemory:
		return build(BackendMemory, cfg)
	case BackendRedis:
		return newRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis)
	}
}

func build(backend Backend, cfg Config) (Store, error) {
	factory, exists := factories[backend]
	if !exists {
		return nil, fmt.Errorf("%s backend not registered", backend)
	}
	return factory(cfg)
}

func newRedisStore(cfg Config) (Store, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
	}

	redisStore, err := build(BackendRedis, cfg)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
		defer cancel()
		if err = redisStore.Ping(ctx); err == nil {
			return redisStore, nil
		}
		redisStore.Close()
	}

	if !cfg.FallbackToMemory {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if cfg.Logger != nil {
		cfg.Logger("Redis unavailable at startup; using in-memory store", "error", err.Error())
	}
	return build(BackendMemory, cfg)
}
