/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-backed cache for the current resolution and
// the schedule list. Redis being down never breaks the engine: the cache
// trips a circuit breaker and everything falls through to the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_preroll/internal/activation"
	"github.com/friendsincode/heimdall_preroll/internal/models"
)

// Default TTL values for different cache types
const (
	DefaultResolutionTTL = 5 * time.Minute
	DefaultScheduleTTL   = 10 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyCurrentResolution = "heimdall:cache:resolution:current"
	KeyScheduleList      = "heimdall:cache:schedules"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	ResolutionTTL time.Duration
	ScheduleTTL   time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ResolutionTTL:  DefaultResolutionTTL,
		ScheduleTTL:    DefaultScheduleTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Resolution caching

// GetCurrentResolution retrieves the cached current resolution.
func (c *Cache) GetCurrentResolution(ctx context.Context) (*activation.Resolution, bool) {
	var res activation.Resolution
	found, err := c.get(ctx, KeyCurrentResolution, &res)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("kind", string(res.Kind)).Msg("resolution cache hit")
	return &res, true
}

// SetCurrentResolution caches the current resolution.
func (c *Cache) SetCurrentResolution(ctx context.Context, res activation.Resolution) error {
	return c.set(ctx, KeyCurrentResolution, res, c.config.ResolutionTTL)
}

// InvalidateCurrentResolution removes the cached resolution.
func (c *Cache) InvalidateCurrentResolution(ctx context.Context) error {
	return c.delete(ctx, KeyCurrentResolution)
}

// Schedule caching

// GetScheduleList retrieves the cached schedule list.
func (c *Cache) GetScheduleList(ctx context.Context) ([]models.Schedule, bool) {
	var schedules []models.Schedule
	found, err := c.get(ctx, KeyScheduleList, &schedules)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Int("count", len(schedules)).Msg("schedule list cache hit")
	return schedules, true
}

// SetScheduleList caches the schedule list.
func (c *Cache) SetScheduleList(ctx context.Context, schedules []models.Schedule) error {
	return c.set(ctx, KeyScheduleList, schedules, c.config.ScheduleTTL)
}

// InvalidateScheduleList removes the schedule list from cache. Called on any
// schedule mutation so the next tick re-reads the database.
func (c *Cache) InvalidateScheduleList(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating schedule list cache")
	return c.delete(ctx, KeyScheduleList)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "heimdall:cache:*")
}
