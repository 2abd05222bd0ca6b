// Package service implements the insight generation orchestrator: the
// coordination layer between the cache store, the durable store, the usage
// limiter and the LLM provider. The orchestrator owns no state of its own.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/wenjiaqi8255/context-me/internal/ai"
	"github.com/wenjiaqi8255/context-me/internal/cache"
	"github.com/wenjiaqi8255/context-me/internal/metrics"
	"github.com/wenjiaqi8255/context-me/internal/models"
	"github.com/wenjiaqi8255/context-me/internal/observability"
	"github.com/wenjiaqi8255/context-me/internal/resilience"
)

// ErrValidation is returned when a request is missing required fields.
// It fails fast, before any side effects.
var ErrValidation = errors.New("invalid request")

// FingerprintStore is the durable fingerprint access the orchestrator needs
type FingerprintStore interface {
	Find(ctx context.Context, contentHash string) (*models.ContentFingerprint, error)
	Upsert(ctx context.Context, fp *models.ContentFingerprint) (*models.ContentFingerprint, error)
}

// UsageLogStore appends audit records
type UsageLogStore interface {
	Append(ctx context.Context, entry *models.UsageLogEntry) error
}

// UserStore ensures user rows exist before dependent writes
type UserStore interface {
	Upsert(ctx context.Context, userID string) error
}

// Config configures the orchestrator
type Config struct {
	// InsightTTL is how long a generated bundle stays cached
	InsightTTL time.Duration

	// ContentTTL is how long a content analysis stays cached
	ContentTTL time.Duration

	// SingleFlight collapses concurrent generations for the same cache
	// key into one provider call. Without it, concurrent misses on one
	// key each invoke the provider and last-write-wins on the cache;
	// that is correct but wastes LLM spend.
	SingleFlight bool

	Scoring    ScoringConfig
	Categories CategorizerConfig
	Analyzer   AnalyzerConfig
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		InsightTTL:   time.Hour,
		ContentTTL:   24 * time.Hour,
		SingleFlight: true,
		Scoring:      DefaultScoringConfig(),
		Categories:   DefaultCategorizerConfig(),
		Analyzer:     DefaultAnalyzerConfig(),
	}
}

// GenerateRequest is the orchestrator's input for insight generation
type GenerateRequest struct {
	UserID      string
	ContentHash string
	Profile     *models.UserProfile
	Analysis    *models.ContentAnalysis
}

// InsightService coordinates cache lookups, quota checks, provider calls
// and write-through persistence
type InsightService struct {
	config       Config
	store        *cache.Store
	limiter      *resilience.UsageLimiter
	provider     ai.Provider
	providerRate *resilience.ProviderLimiter
	fingerprints FingerprintStore
	usageLogs    UsageLogStore
	users        UserStore
	metrics      *metrics.Metrics
	logger       observability.Logger

	flight singleflight.Group
}

// NewInsightService creates the orchestrator
func NewInsightService(
	config Config,
	store *cache.Store,
	limiter *resilience.UsageLimiter,
	provider ai.Provider,
	providerRate *resilience.ProviderLimiter,
	fingerprints FingerprintStore,
	usageLogs UsageLogStore,
	users UserStore,
	m *metrics.Metrics,
	logger observability.Logger,
) *InsightService {
	if config.InsightTTL <= 0 {
		config.InsightTTL = DefaultConfig().InsightTTL
	}
	if config.ContentTTL <= 0 {
		config.ContentTTL = DefaultConfig().ContentTTL
	}
	if config.Scoring == (ScoringConfig{}) {
		config.Scoring = DefaultScoringConfig()
	}
	if len(config.Categories.Recommendation) == 0 &&
		len(config.Categories.Opportunity) == 0 &&
		len(config.Categories.Warning) == 0 {
		config.Categories = DefaultCategorizerConfig()
	}
	if config.Analyzer.MaxContentLength <= 0 {
		config.Analyzer.MaxContentLength = DefaultAnalyzerConfig().MaxContentLength
	}
	if len(config.Analyzer.TagKeywords) == 0 {
		config.Analyzer.TagKeywords = DefaultAnalyzerConfig().TagKeywords
	}
	if len(config.Analyzer.AdvancedTerms) == 0 && len(config.Analyzer.BeginnerTerms) == 0 {
		config.Analyzer.AdvancedTerms = DefaultAnalyzerConfig().AdvancedTerms
		config.Analyzer.BeginnerTerms = DefaultAnalyzerConfig().BeginnerTerms
	}

	return &InsightService{
		config:       config,
		store:        store,
		limiter:      limiter,
		provider:     provider,
		providerRate: providerRate,
		fingerprints: fingerprints,
		usageLogs:    usageLogs,
		users:        users,
		metrics:      m,
		logger:       logger.WithPrefix("insight-service"),
	}
}

// GetOrGenerate returns the cached insight bundle for (user, content) or
// generates one. While a valid cache entry exists no recomputation occurs.
// Cache and usage-log write failures never fail a request that produced a
// valid bundle; quota, provider and user-upsert failures do.
func (s *InsightService) GetOrGenerate(ctx context.Context, req GenerateRequest) (*models.InsightBundle, error) {
	if err := validateGenerateRequest(req); err != nil {
		return nil, err
	}

	s.metrics.ActiveRequests.Inc()
	defer s.metrics.ActiveRequests.Dec()

	key := cache.InsightKey(req.UserID, req.ContentHash)

	var cached models.InsightBundle
	if s.store.GetJSON(ctx, key, &cached) {
		s.metrics.CacheHits.Inc()
		s.metrics.InsightsGenerated.WithLabelValues("cache").Inc()
		cached.Cached = true
		return &cached, nil
	}
	s.metrics.CacheMisses.Inc()

	if !s.config.SingleFlight {
		return s.generate(ctx, key, req)
	}

	// Collapse concurrent misses for the same key into one generation.
	// The computation deliberately outlives the caller's context: a
	// disconnected caller's work still populates the cache, which is
	// cheaper than a second provider call.
	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.generate(context.WithoutCancel(ctx), key, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.InsightBundle), nil
}

func (s *InsightService) generate(ctx context.Context, key string, req GenerateRequest) (*models.InsightBundle, error) {
	// The user row must exist before fingerprints or usage logs can
	// reference it; this failure aborts the request
	if err := s.users.Upsert(ctx, req.UserID); err != nil {
		s.metrics.GenerationErrors.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("failed to ensure user record: %w", err)
	}

	if err := s.limiter.CheckAndConsume(ctx, req.UserID); err != nil {
		s.metrics.QuotaRejections.Inc()
		return nil, err
	}

	if s.providerRate != nil {
		if err := s.providerRate.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err := s.provider.Generate(ctx, req.Profile, req.Analysis)
	s.metrics.ProviderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.GenerationErrors.WithLabelValues(errorKind(err)).Inc()
		return nil, err
	}

	bundle := s.buildBundle(req, result)

	s.store.SetJSON(ctx, key, bundle, s.config.InsightTTL)

	costCents := estimateCostCents(result.TokensUsed)
	s.metrics.TokensProcessed.Add(float64(result.TokensUsed))
	s.metrics.CostCents.Add(float64(costCents))
	s.metrics.InsightsGenerated.WithLabelValues("fresh").Inc()

	entry := &models.UsageLogEntry{
		UserID:      req.UserID,
		ActionType:  models.ActionGenerateInsight,
		ContentHash: req.ContentHash,
		TokensUsed:  result.TokensUsed,
		CostCents:   costCents,
		Metadata: map[string]interface{}{
			"structured": bundle.Structured,
			"insights":   len(bundle.Insights),
		},
	}
	if err := s.usageLogs.Append(ctx, entry); err != nil {
		// Audit loss is logged but does not fail the delivered result
		s.logger.Error("Failed to append usage log", map[string]interface{}{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
	}

	return bundle, nil
}

// buildBundle converts a provider result into domain insights. Structured
// responses keep the model's relevance and category; the fallback path
// scores and categorizes locally.
func (s *InsightService) buildBundle(req GenerateRequest, result *ai.GenerateResult) *models.InsightBundle {
	now := time.Now().UTC()
	insights := make([]models.Insight, 0, len(result.Parsed.Insights))

	for _, p := range result.Parsed.Insights {
		insight := models.Insight{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			ContentHash:    req.ContentHash,
			SectionID:      p.SectionID,
			SectionType:    p.SectionType,
			Insight:        p.Insight,
			RelevanceScore: p.Relevance,
			Category:       p.Category,
			ActionItems:    p.ActionItems,
			CreatedAt:      now,
		}

		if !result.Parsed.Structured {
			insight.RelevanceScore = relevanceScore(s.config.Scoring, req.Profile, req.Analysis)
			insight.Category = categorize(s.config.Categories, p.Insight)
		}

		insights = append(insights, insight)
	}

	return &models.InsightBundle{
		Insights:   insights,
		Summary:    result.Parsed.Summary,
		Structured: result.Parsed.Structured,
		Cached:     false,
	}
}

// ResetUsage clears the caller's quota counter for today. Debug affordance
// for development environments.
func (s *InsightService) ResetUsage(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	s.limiter.Reset(ctx, userID)
	return nil
}

func validateGenerateRequest(req GenerateRequest) error {
	switch {
	case req.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	case req.ContentHash == "":
		return fmt.Errorf("%w: content_hash is required", ErrValidation)
	case req.Profile == nil:
		return fmt.Errorf("%w: user_profile is required", ErrValidation)
	case req.Analysis == nil:
		return fmt.Errorf("%w: content_analysis is required", ErrValidation)
	}
	return nil
}

// estimateCostCents converts token usage into cents at $0.002 per 1K tokens
func estimateCostCents(tokens int) int {
	return int(math.Ceil(float64(tokens) * 0.0002))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ai.ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, ai.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ai.ErrProvider):
		return "provider_error"
	default:
		return "internal"
	}
}
