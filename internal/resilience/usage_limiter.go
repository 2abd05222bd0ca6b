// Package resilience provides quota enforcement and request throttling for
// the expensive external dependencies of the insight service.
package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/wenjiaqi8255/context-me/internal/cache"
	"github.com/wenjiaqi8255/context-me/internal/observability"
)

// ErrDailyLimitExceeded is returned when a user has exhausted the daily quota
var ErrDailyLimitExceeded = errors.New("daily usage limit exceeded")

// usageTTL keeps a day's counter alive long enough to cover the whole
// bucket regardless of when the first request lands in it
const usageTTL = 24 * time.Hour

// UsageLimiterConfig configures per-user daily quotas
type UsageLimiterConfig struct {
	// DailyLimit is the number of generations a user may perform per
	// UTC calendar day
	DailyLimit int64
}

// DefaultUsageLimiterConfig returns sensible defaults
func DefaultUsageLimiterConfig() UsageLimiterConfig {
	return UsageLimiterConfig{
		DailyLimit: 100,
	}
}

// UsageLimiter enforces a per-user daily generation quota on top of the
// cache store's atomic increment. Day buckets are UTC calendar days.
//
// The check and the increment are two round trips, so concurrent bursts
// from one user can overshoot the limit slightly. That race is accepted:
// a rejected request must not consume quota, which rules out
// increment-then-check, and the overshoot is bounded by the burst width.
type UsageLimiter struct {
	store  *cache.Store
	config UsageLimiterConfig
	logger observability.Logger

	// now is swappable for day-boundary tests
	now func() time.Time
}

// NewUsageLimiter creates a usage limiter over the given cache store
func NewUsageLimiter(store *cache.Store, config UsageLimiterConfig, logger observability.Logger) *UsageLimiter {
	if config.DailyLimit <= 0 {
		config.DailyLimit = DefaultUsageLimiterConfig().DailyLimit
	}

	return &UsageLimiter{
		store:  store,
		config: config,
		logger: logger.WithPrefix("usage-limiter"),
		now:    time.Now,
	}
}

// CheckAndConsume verifies the user is under quota and records one unit of
// usage. Returns ErrDailyLimitExceeded without consuming quota when the
// limit is reached. Store outages fail open: the quota is an abuse guard,
// not a correctness dependency, and generation should not stop because
// Redis is down.
func (l *UsageLimiter) CheckAndConsume(ctx context.Context, userID string) error {
	key := cache.UsageKey(userID, l.now())

	var count int64
	l.store.GetJSON(ctx, key, &count)

	if count >= l.config.DailyLimit {
		l.logger.Info("Daily limit reached", map[string]interface{}{
			"user_id": userID,
			"count":   count,
			"limit":   l.config.DailyLimit,
		})
		return ErrDailyLimitExceeded
	}

	l.store.Increment(ctx, key, usageTTL)
	return nil
}

// Remaining reports how much quota the user has left today
func (l *UsageLimiter) Remaining(ctx context.Context, userID string) int64 {
	key := cache.UsageKey(userID, l.now())

	var count int64
	l.store.GetJSON(ctx, key, &count)

	remaining := l.config.DailyLimit - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the user's counter for the current day bucket
func (l *UsageLimiter) Reset(ctx context.Context, userID string) {
	key := cache.UsageKey(userID, l.now())
	l.store.Delete(ctx, key)

	l.logger.Info("Usage limit reset", map[string]interface{}{
		"user_id": userID,
	})
}

// ProviderLimiterConfig configures outbound request throttling
type ProviderLimiterConfig struct {
	// RequestsPerSecond is the sustained outbound rate to the LLM API
	RequestsPerSecond float64

	// BurstSize is the maximum burst size
	BurstSize int
}

// DefaultProviderLimiterConfig returns sensible defaults
func DefaultProviderLimiterConfig() ProviderLimiterConfig {
	return ProviderLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
	}
}

// ProviderLimiter throttles outbound calls to the LLM provider so a burst
// of cache misses cannot translate into a burst against the upstream API
type ProviderLimiter struct {
	limiter *rate.Limiter
	logger  observability.Logger
}

// NewProviderLimiter creates a provider limiter
func NewProviderLimiter(config ProviderLimiterConfig, logger observability.Logger) *ProviderLimiter {
	if config.RequestsPerSecond <= 0 {
		config = DefaultProviderLimiterConfig()
	}

	return &ProviderLimiter{
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
		logger:  logger.WithPrefix("provider-limiter"),
	}
}

// Wait blocks until a request slot is available or the context is done
func (p *ProviderLimiter) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed immediately
func (p *ProviderLimiter) Allow() bool {
	return p.limiter.Allow()
}
