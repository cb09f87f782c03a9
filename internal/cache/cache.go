// Package cache provides a two-tier cache for dosing results: an in-process
// LRU front with an optional shared Redis tier behind it. Identical patient
// inputs produce identical recommendations, so cached entries never go stale;
// the TTL only bounds memory on the Redis side.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/domain"
)

const keyPrefix = "dose:v1:"

// ResultCache caches serialized dose assessments keyed by patient input.
type ResultCache struct {
	logger     *logrus.Logger
	defaultTTL time.Duration
	local      *lru.Cache[string, []byte]
	redis      *redis.Client
}

// NewResultCache creates the cache. Redis is attached only when a URL is
// configured; a standalone deployment runs on the LRU tier alone.
func NewResultCache(cfg *domain.CacheConfig, logger *logrus.Logger) (*ResultCache, error) {
	size := cfg.LRUSize
	if size <= 0 {
		size = 1024
	}
	local, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating LRU cache: %w", err)
	}

	c := &ResultCache{
		logger:     logger,
		defaultTTL: cfg.DefaultTTL,
		local:      local,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opts.PoolSize = cfg.PoolSize
		opts.PoolTimeout = cfg.PoolTimeout
		opts.MaxRetries = cfg.MaxRetries

		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		c.redis = client
		logger.WithField("pool_size", opts.PoolSize).Info("Redis cache tier attached")
	}

	return c, nil
}

// Key derives the cache key for a patient input: a SHA-256 of its canonical
// JSON form, so equal inputs collide by construction.
func Key(input *domain.PatientInput) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key input: %w", err)
	}
	return keyPrefix + fmt.Sprintf("%x", sha256.Sum256(payload)), nil
}

// Get fetches a cached value into out. The LRU tier is consulted first; a
// Redis hit backfills the LRU. Redis errors count as misses.
func (c *ResultCache) Get(ctx context.Context, key string, out any) bool {
	if data, ok := c.local.Get(key); ok {
		if err := json.Unmarshal(data, out); err != nil {
			c.local.Remove(key)
			return false
		}
		return true
	}

	if c.redis == nil {
		return false
	}

	val, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.WithError(err).Debug("Redis get failed, treating as miss")
		return false
	}

	if err := json.Unmarshal(val, out); err != nil {
		c.redis.Del(ctx, key)
		return false
	}

	c.local.Add(key, val)
	return true
}

// Set stores a value in both tiers. Failures are logged, never surfaced: a
// broken cache degrades latency, not correctness.
func (c *ResultCache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal cache value")
		return
	}

	c.local.Add(key, data)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, c.defaultTTL).Err(); err != nil {
			c.logger.WithError(err).Debug("Redis set failed")
		}
	}
}

// Len returns the number of entries in the LRU tier.
func (c *ResultCache) Len() int {
	return c.local.Len()
}

// Close releases the Redis connection if one is attached.
func (c *ResultCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
