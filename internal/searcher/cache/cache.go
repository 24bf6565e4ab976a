// Package cache keeps query results in Redis, keyed by snapshot version so a
// reload never serves results from an older index.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/resilience"
)

const (
	keyPrefix = "termsearch:"
	opTimeout = 250 * time.Millisecond
)

// Backend is the key/value store behind the cache. *redis.Client satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache memoizes Executor results. Backend failures degrade to direct
// computation and never reach the caller.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     cfg.CacheTTL,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     10 * time.Second,
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached results for term under version, or runs
// compute and stores its output. Concurrent callers for the same key share
// one compute. hit reports whether the value came from the backend.
func (c *QueryCache) GetOrCompute(ctx context.Context, version, term string, compute func() []string) (results []string, hit bool) {
	if c == nil || version == "" {
		return compute(), false
	}
	key := c.buildKey(version, term)
	if results, ok := c.get(ctx, key); ok {
		return results, true
	}
	val, _, _ := c.group.Do(key, func() (any, error) {
		results := compute()
		c.set(ctx, key, results)
		return results, nil
	})
	return val.([]string), false
}

// Invalidate deletes every key stored under version.
func (c *QueryCache) Invalidate(ctx context.Context, version string) error {
	if c == nil || version == "" {
		return nil
	}
	pattern := keyPrefix + version + ":*"
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.backend.FlushByPattern(ctx, pattern)
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache version %s: %w", version, err)
	}
	c.logger.Info("cache invalidated", "version", version, "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts since creation.
func (c *QueryCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) get(ctx context.Context, key string) ([]string, bool) {
	var (
		data  string
		found bool
	)
	err := c.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		var err error
		data, found, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Debug("cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.miss()
		return nil, false
	}
	var results []string
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Warn("cache entry unreadable", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if results == nil {
		results = []string{}
	}
	c.hits.Add(1)
	c.metrics.CacheResult(true)
	return results, true
}

func (c *QueryCache) set(ctx context.Context, key string, results []string) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		return c.backend.Set(ctx, key, string(data), c.ttl)
	})
	if err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheResult(false)
}

func (c *QueryCache) buildKey(version, term string) string {
	hash := sha256.Sum256([]byte(term))
	return fmt.Sprintf("%s%s:%x", keyPrefix, version, hash[:16])
}
