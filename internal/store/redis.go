// Package store provides the Redis backing store handle used by the queue.
//
// A Provider returns nil when no store is configured, so callers can
// short-circuit into degraded mode with a single nil check instead of
// handling an error on every call.
package store

import (
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/config"
)

// Provider returns the store handle, or nil when the store is unavailable.
type Provider func() redis.Cmdable

// None is a Provider for environments without a store.
func None() redis.Cmdable { return nil }

// Static returns a Provider that always hands out c.
func Static(c redis.Cmdable) Provider {
	return func() redis.Cmdable { return c }
}

// NewClient builds a Redis client from cfg. It does not dial; go-redis
// connects lazily on the first command.
func NewClient(cfg config.Redis) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}

	return redis.NewClient(opts), nil
}

// Lazy returns a Provider that builds one client from cfg on first use and
// shares it afterwards. When the URL is empty or invalid the Provider
// always returns nil.
func Lazy(cfg config.Redis, logger *zap.Logger) Provider {
	var (
		once   sync.Once
		client *redis.Client
	)

	return func() redis.Cmdable {
		once.Do(func() {
			if cfg.URL == "" {
				logger.Warn("redis not configured, queue running without persistence")
				return
			}
			c, err := NewClient(cfg)
			if err != nil {
				logger.Error("redis client init failed, queue running without persistence", zap.Error(err))
				return
			}
			client = c
		})

		if client == nil {
			return nil
		}
		return client
	}
}
