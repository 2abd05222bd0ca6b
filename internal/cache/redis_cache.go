// Package cache provides the Redis-backed cache store for the insight service
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/wenjiaqi8255/context-me/internal/observability"
)

// Key builders. Formats are persisted in the shared store and must stay
// bit-exact for compatibility with existing entries.

// InsightKey builds the cache key for a user's whole-result insight bundle
func InsightKey(userID, contentHash string) string {
	return fmt.Sprintf("insight:%s:%s", userID, contentHash)
}

// ContentKey builds the cache key for a raw content analysis
func ContentKey(contentHash string) string {
	return fmt.Sprintf("content:%s", contentHash)
}

// UsageKey builds the quota counter key for a user and calendar day.
// Day buckets are UTC so quota resets are deterministic across regions.
func UsageKey(userID string, day time.Time) string {
	return fmt.Sprintf("usage:%s:%s", userID, day.UTC().Format("2006-01-02"))
}

// Config configures the cache store
type Config struct {
	// Enabled determines if caching is enabled; when false every read is
	// a miss and every write a no-op
	Enabled bool

	// DefaultTTL applies when a caller passes a zero TTL
	DefaultTTL time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DefaultTTL: time.Hour,
	}
}

// Store is the Redis-backed cache. It is an optimization, not a correctness
// dependency: transport errors are logged and swallowed, so a miss and a
// failure look identical to callers. Only Increment's atomicity (Redis INCR)
// is a guarantee callers rely on.
type Store struct {
	client *redis.Client
	config Config
	logger observability.Logger

	// Concurrent request goroutines share one Store, so the counters
	// are accessed atomically
	hits   atomic.Int64
	misses atomic.Int64
}

// NewStore creates a cache store on an injected Redis client. The client's
// lifecycle belongs to the caller (application startup/shutdown), not to
// ambient package state.
func NewStore(client *redis.Client, config Config, logger observability.Logger) *Store {
	return &Store{
		client: client,
		config: config,
		logger: logger.WithPrefix("redis-cache"),
	}
}

// GetJSON retrieves and unmarshals a value. Returns false on miss, on
// transport error, and on decode error.
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	if !s.config.Enabled {
		return false
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		s.misses.Add(1)
		return false
	}
	if err != nil {
		s.logger.Error("Cache get error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		s.misses.Add(1)
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Error("Cache unmarshal error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		s.misses.Add(1)
		return false
	}

	s.hits.Add(1)
	return true
}

// SetJSON marshals and stores a value with a TTL. A failed write never
// aborts the caller's broader operation.
func (s *Store) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.config.Enabled {
		return
	}

	if ttl == 0 {
		ttl = s.config.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("Cache marshal error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.Error("Cache set error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// Delete removes a key
func (s *Store) Delete(ctx context.Context, key string) {
	if !s.config.Enabled {
		return
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Error("Cache delete error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// Exists checks if a key exists; false on transport error
func (s *Store) Exists(ctx context.Context, key string) bool {
	if !s.config.Enabled {
		return false
	}

	count, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Error("Cache exists error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}

	return count > 0
}

// Increment atomically increments a counter, creating it at 1 with the TTL
// attached when absent. The atomicity comes from Redis INCR itself, not from
// a read-modify-write here. Returns 0 on transport error.
func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) int64 {
	if !s.config.Enabled {
		return 0
	}

	result, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Error("Cache incr error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return 0
	}

	// Attach the TTL only on first increment; later increments must not
	// push the expiry out
	if result == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			s.logger.Error("Cache expire error", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	return result
}

// Ping verifies connectivity to the backing store, for health checks
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Stats returns hit/miss statistics
func (s *Store) Stats() map[string]interface{} {
	hits := s.hits.Load()
	misses := s.misses.Load()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return map[string]interface{}{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	}
}
