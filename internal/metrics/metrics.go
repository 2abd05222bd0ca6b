// Package metrics provides Prometheus metrics for the insight service
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the insight service
type Metrics struct {
	// Generation metrics
	InsightsGenerated *prometheus.CounterVec
	GenerationErrors  *prometheus.CounterVec
	ProviderDuration  prometheus.Histogram
	ActiveRequests    prometheus.Gauge

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Quota metrics
	QuotaRejections prometheus.Counter

	// Cost tracking
	TokensProcessed prometheus.Counter
	CostCents       prometheus.Counter

	// Daily rollup (published by the usage report job)
	DailyRequests prometheus.Gauge
	DailyTokens   prometheus.Gauge
	DailyCost     prometheus.Gauge
}

// New creates insight service metrics on the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on the given registry. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InsightsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_bundles_served_total",
			Help: "Total insight bundles served, by source (cache or fresh)",
		}, []string{"source"}),
		GenerationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_generation_errors_total",
			Help: "Total failed generation requests, by error kind",
		}, []string{"kind"}),
		ProviderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "insight_provider_duration_seconds",
			Help:    "Latency of LLM provider calls",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		ActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "insight_active_requests",
			Help: "Number of generation requests in flight",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_cache_hits_total",
			Help: "Total insight cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_cache_misses_total",
			Help: "Total insight cache misses",
		}),
		QuotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_quota_rejections_total",
			Help: "Total requests rejected by the daily usage limit",
		}),
		TokensProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_tokens_processed_total",
			Help: "Total LLM tokens consumed",
		}),
		CostCents: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_cost_cents_total",
			Help: "Estimated LLM spend in cents",
		}),
		DailyRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "insight_daily_requests",
			Help: "Request count for the last reported day",
		}),
		DailyTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "insight_daily_tokens",
			Help: "Token count for the last reported day",
		}),
		DailyCost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "insight_daily_cost_cents",
			Help: "Estimated spend in cents for the last reported day",
		}),
	}
}
