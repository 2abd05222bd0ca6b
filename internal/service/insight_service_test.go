package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenjiaqi8255/context-me/internal/ai"
	"github.com/wenjiaqi8255/context-me/internal/cache"
	"github.com/wenjiaqi8255/context-me/internal/metrics"
	"github.com/wenjiaqi8255/context-me/internal/models"
	"github.com/wenjiaqi8255/context-me/internal/observability"
	"github.com/wenjiaqi8255/context-me/internal/repository"
	"github.com/wenjiaqi8255/context-me/internal/resilience"
)

// fakeProvider is an in-memory ai.Provider with call accounting
type fakeProvider struct {
	mu      sync.Mutex
	calls   int32
	content string
	tokens  int
	err     error
	delay   time.Duration
}

func (f *fakeProvider) Generate(ctx context.Context, profile *models.UserProfile, analysis *models.ContentAnalysis) (*ai.GenerateResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GenerateResult{
		Content:    f.content,
		TokensUsed: f.tokens,
		Parsed:     ai.ParseInsightResponse(f.content, observability.NewNoopLogger()),
	}, nil
}

func (f *fakeProvider) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

// fakeFingerprints is an in-memory FingerprintStore
type fakeFingerprints struct {
	mu   sync.Mutex
	rows map[string]*models.ContentFingerprint
}

func newFakeFingerprints() *fakeFingerprints {
	return &fakeFingerprints{rows: make(map[string]*models.ContentFingerprint)}
}

func (f *fakeFingerprints) Find(ctx context.Context, hash string) (*models.ContentFingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fp, ok := f.rows[hash]; ok {
		return fp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeFingerprints) Upsert(ctx context.Context, fp *models.ContentFingerprint) (*models.ContentFingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.rows[fp.ContentHash]; ok {
		return existing, nil
	}
	f.rows[fp.ContentHash] = fp
	return fp, nil
}

// fakeUsageLogs records appended entries
type fakeUsageLogs struct {
	mu      sync.Mutex
	entries []*models.UsageLogEntry
	err     error
}

func (f *fakeUsageLogs) Append(ctx context.Context, entry *models.UsageLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

// fakeUsers records upserted ids
type fakeUsers struct {
	mu  sync.Mutex
	ids map[string]bool
	err error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{ids: make(map[string]bool)}
}

func (f *fakeUsers) Upsert(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[userID] = true
	return nil
}

type testEnv struct {
	mr       *miniredis.Miniredis
	store    *cache.Store
	provider *fakeProvider
	users    *fakeUsers
	logs     *fakeUsageLogs
	prints   *fakeFingerprints
	svc      *InsightService
}

func structuredContent() string {
	return `{"insights":[{"sectionId":"section-0","sectionType":"p","insight":"You should enroll in this course","relevance":0.85,"category":"recommendation","actionItems":["enroll"]}],"summary":"good match"}`
}

func newTestEnv(t *testing.T, cfg Config, dailyLimit int64) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	logger := observability.NewNoopLogger()
	store := cache.NewStore(client, cache.DefaultConfig(), logger)
	limiter := resilience.NewUsageLimiter(store, resilience.UsageLimiterConfig{DailyLimit: dailyLimit}, logger)

	env := &testEnv{
		mr:       mr,
		store:    store,
		provider: &fakeProvider{content: structuredContent(), tokens: 500},
		users:    newFakeUsers(),
		logs:     &fakeUsageLogs{},
		prints:   newFakeFingerprints(),
	}

	env.svc = NewInsightService(
		cfg, store, limiter, env.provider, nil,
		env.prints, env.logs, env.users,
		metrics.NewWithRegistry(prometheus.NewRegistry()),
		logger,
	)
	return env
}

func validRequest() GenerateRequest {
	return GenerateRequest{
		UserID:      "u1",
		ContentHash: "h1",
		Profile: &models.UserProfile{
			UserID: "u1",
			ProfileData: models.ProfileData{
				Interests: []string{"go"},
				Goals:     []string{"learn backend development"},
			},
		},
		Analysis: &models.ContentAnalysis{
			ContentHash: "h1",
			Title:       "Go Course",
			ContentType: models.ContentTypeCourse,
			ExtractedData: models.ExtractedData{
				Summary: "A course to learn backend development with Go",
				Tags:    []string{"go", "programming"},
			},
		},
	}
}

func TestGetOrGenerate_CacheHitBypassesProvider(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 100)
	ctx := context.Background()

	prepopulated := models.InsightBundle{
		Insights: []models.Insight{{ID: "i1", UserID: "u1", ContentHash: "h1", Insight: "cached insight"}},
		Summary:  "cached summary",
	}
	env.store.SetJSON(ctx, cache.InsightKey("u1", "h1"), prepopulated, time.Hour)

	bundle, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)

	assert.True(t, bundle.Cached)
	assert.Equal(t, "cached summary", bundle.Summary)
	assert.Equal(t, int32(0), env.provider.callCount())
}

func TestGetOrGenerate_MissGeneratesAndWritesThrough(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 100)
	ctx := context.Background()

	bundle, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)

	assert.False(t, bundle.Cached)
	assert.True(t, bundle.Structured)
	require.Len(t, bundle.Insights, 1)
	assert.Equal(t, models.CategoryRecommendation, bundle.Insights[0].Category)
	assert.Equal(t, int32(1), env.provider.callCount())

	// Second call is served from cache without another provider call
	again, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, bundle.Summary, again.Summary)
	assert.Equal(t, int32(1), env.provider.callCount())
}

func TestGetOrGenerate_QuotaExceeded(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 2)
	ctx := context.Background()

	// Two distinct content hashes under a limit of 2
	req := validRequest()
	for _, hash := range []string{"h1", "h2"} {
		req.ContentHash = hash
		_, err := env.svc.GetOrGenerate(ctx, req)
		require.NoError(t, err)
	}

	req.ContentHash = "h3"
	_, err := env.svc.GetOrGenerate(ctx, req)
	assert.ErrorIs(t, err, resilience.ErrDailyLimitExceeded)

	// No partial result cached, no provider call for the rejected request
	assert.False(t, env.store.Exists(ctx, cache.InsightKey("u1", "h3")))
	assert.Equal(t, int32(2), env.provider.callCount())
}

func TestGetOrGenerate_MalformedOutputDegrades(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 100)
	env.provider.content = "This is plain prose, no JSON anywhere."
	ctx := context.Background()

	bundle, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)

	assert.False(t, bundle.Structured)
	require.Len(t, bundle.Insights, 1)
	assert.Equal(t, models.CategoryInformation, bundle.Insights[0].Category)

	// Fallback relevance comes from the keyword heuristic: baseline 0.5
	// + interest match (go in tags) + goal match in summary
	assert.InDelta(t, 0.75, bundle.Insights[0].RelevanceScore, 0.001)
}

func TestNewInsightService_ZeroConfigGetsHeuristicDefaults(t *testing.T) {
	env := newTestEnv(t, Config{}, 100)
	ctx := context.Background()

	cfg := env.svc.config
	assert.Equal(t, DefaultConfig().InsightTTL, cfg.InsightTTL)
	assert.Equal(t, DefaultConfig().ContentTTL, cfg.ContentTTL)
	assert.Equal(t, DefaultScoringConfig(), cfg.Scoring)
	assert.NotEmpty(t, cfg.Categories.Recommendation)
	assert.NotEmpty(t, cfg.Analyzer.TagKeywords)
	assert.NotEmpty(t, cfg.Analyzer.AdvancedTerms)
	assert.Greater(t, cfg.Analyzer.MaxContentLength, 0)

	// The fallback categorizer must still see its keyword families when
	// the caller left them unset
	env.provider.content = "You should definitely enroll in this course. I recommend it."
	bundle, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)
	require.Len(t, bundle.Insights, 1)
	assert.Equal(t, models.CategoryRecommendation, bundle.Insights[0].Category)
}

func TestGetOrGenerate_ProviderErrorNotCached(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 100)
	env.provider.err = ai.ErrProvider
	ctx := context.Background()

	_, err := env.svc.GetOrGenerate(ctx, validRequest())
	assert.ErrorIs(t, err, ai.ErrProvider)

	// A failed generation must not poison the cache
	assert.False(t, env.store.Exists(ctx, cache.InsightKey("u1", "h1")))

	// A later attempt retries the provider
	env.provider.err = nil
	bundle, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)
	assert.False(t, bundle.Cached)
}

func TestGetOrGenerate_ValidationFailsFast(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 100)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*GenerateRequest)
	}{
		{"missing user id", func(r *GenerateRequest) { r.UserID = "" }},
		{"missing content hash", func(r *GenerateRequest) { r.ContentHash = "" }},
		{"missing profile", func(r *GenerateRequest) { r.Profile = nil }},
		{"missing analysis", func(r *GenerateRequest) { r.Analysis = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := env.svc.GetOrGenerate(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	// Fail-fast means no side effects at all
	assert.Equal(t, int32(0), env.provider.callCount())
	assert.Empty(t, env.users.ids)
}

func TestGetOrGenerate_UserUpsertFailureAborts(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 100)
	env.users.err = errors.New("connection refused")
	ctx := context.Background()

	_, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.Error(t, err)

	// Later steps depend on the user row; nothing else may have run
	assert.Equal(t, int32(0), env.provider.callCount())
	assert.False(t, env.store.Exists(ctx, cache.InsightKey("u1", "h1")))
}

func TestGetOrGenerate_UsageLogFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 100)
	env.logs.err = errors.New("disk full")
	ctx := context.Background()

	bundle, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.Insights)
}

func TestGetOrGenerate_AppendsUsageLog(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 100)
	ctx := context.Background()

	_, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)

	require.Len(t, env.logs.entries, 1)
	entry := env.logs.entries[0]
	assert.Equal(t, "u1", entry.UserID)
	assert.Equal(t, models.ActionGenerateInsight, entry.ActionType)
	assert.Equal(t, 500, entry.TokensUsed)
	assert.Equal(t, 1, entry.CostCents) // ceil(500 * 0.0002)
}

func TestGetOrGenerate_SingleFlightCollapsesConcurrentMisses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingleFlight = true
	env := newTestEnv(t, cfg, 100)
	env.provider.delay = 50 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	const concurrency = 8
	results := make([]*models.InsightBundle, concurrency)
	errs := make([]error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.GetOrGenerate(ctx, validRequest())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), env.provider.callCount())
	for i := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "good match", results[i].Summary)
	}
}

func TestGetOrGenerate_WithoutSingleFlightBothMissesGenerate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingleFlight = false
	env := newTestEnv(t, cfg, 100)
	env.provider.delay = 30 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.GetOrGenerate(ctx, validRequest())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Concurrent misses on the same key both reach the provider; the
	// cache writes race and last write wins
	assert.Equal(t, int32(2), env.provider.callCount())
	assert.True(t, env.store.Exists(ctx, cache.InsightKey("u1", "h1")))
}

func TestResetUsage(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), 1)
	ctx := context.Background()

	_, err := env.svc.GetOrGenerate(ctx, validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.ContentHash = "h2"
	_, err = env.svc.GetOrGenerate(ctx, req)
	require.ErrorIs(t, err, resilience.ErrDailyLimitExceeded)

	require.NoError(t, env.svc.ResetUsage(ctx, "u1"))

	_, err = env.svc.GetOrGenerate(ctx, req)
	assert.NoError(t, err)
}

func TestEstimateCostCents(t *testing.T) {
	assert.Equal(t, 0, estimateCostCents(0))
	assert.Equal(t, 1, estimateCostCents(500))
	assert.Equal(t, 1, estimateCostCents(5000))
	assert.Equal(t, 2, estimateCostCents(5001))
}
