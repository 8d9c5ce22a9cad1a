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
	// BackendPostgres stores slots in a Postgres table
	BackendPostgres Backend = "postgres"
)

// LogFunc receives backend selection events. Arguments follow zap's sugared key/value style.
type LogFunc func(msg string, keysAndValues ...interface{})

// Config holds configuration for creating a Store instance
type Config struct {
	Backend Backend

	// RedisURL is required when Backend is "redis".
	// Format: redis://localhost:6379/0 or a bare host:port
	RedisURL string

	// PostgresDSN is required when Backend is "postgres".
	PostgresDSN string

	// FallbackToMemory selects the in-memory store when Redis is unreachable at startup.
	FallbackToMemory bool

	// StartupProbeTimeout bounds the initial health probe. Default: 2 seconds
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
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = 2 * time.Second
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}

	factory, ok := factories[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("backend %q not registered", cfg.Backend)
	}

	switch cfg.Backend {
	case BackendRedis:
		return createRedisStore(cfg, factory)
	default:
		return factory(cfg)
	}
}

func createRedisStore(cfg Config, factory StoreFactory) (Store, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
	}

	store, err := factory(cfg)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
		defer cancel()
		if err = store.Ping(ctx); err == nil {
			return store, nil
		}
		store.Close()
	}

	if !cfg.FallbackToMemory {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	memoryFactory, ok := factories[BackendMemory]
	if !ok {
		return nil, fmt.Errorf("memory backend not registered")
	}
	if cfg.Logger != nil {
		cfg.Logger("Redis unavailable at startup; using in-memory store", "error", err.Error())
	}
	return memoryFactory(cfg)
}
