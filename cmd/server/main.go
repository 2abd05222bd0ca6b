// Package main is the entry point for the context-me insight service
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wenjiaqi8255/context-me/internal/ai"
	"github.com/wenjiaqi8255/context-me/internal/api"
	"github.com/wenjiaqi8255/context-me/internal/auth"
	"github.com/wenjiaqi8255/context-me/internal/cache"
	"github.com/wenjiaqi8255/context-me/internal/config"
	"github.com/wenjiaqi8255/context-me/internal/metrics"
	"github.com/wenjiaqi8255/context-me/internal/middleware"
	"github.com/wenjiaqi8255/context-me/internal/observability"
	"github.com/wenjiaqi8255/context-me/internal/repository"
	"github.com/wenjiaqi8255/context-me/internal/resilience"
	"github.com/wenjiaqi8255/context-me/internal/scheduler"
	"github.com/wenjiaqi8255/context-me/internal/service"
)

var (
	// Version information (set via ldflags during build)
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("context-me insight service\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n",
			version, buildTime, gitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewStandardLoggerWithLevel("context-me", observability.ParseLevel(cfg.Service.LogLevel))
	logger.Info("Starting insight service", map[string]interface{}{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	db, err := connectDatabase(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Address,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.Database,
		MaxRetries:  cfg.Redis.MaxRetries,
		DialTimeout: cfg.Redis.DialTimeout,
		PoolSize:    cfg.Redis.PoolSize,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close redis client", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	store := cache.NewStore(redisClient, cache.Config{
		Enabled:    cfg.Cache.Enabled,
		DefaultTTL: cfg.Cache.InsightTTL,
	}, logger)

	// The cache is optional, so a failed ping only degrades startup
	if err := store.Ping(ctx); err != nil {
		logger.Warn("Redis unavailable at startup, caching and quota degraded", map[string]interface{}{
			"error": err.Error(),
		})
	}

	m := metrics.New()

	limiter := resilience.NewUsageLimiter(store, resilience.UsageLimiterConfig{
		DailyLimit: cfg.Quota.DailyLimit,
	}, logger)

	providerRate := resilience.NewProviderLimiter(resilience.ProviderLimiterConfig{
		RequestsPerSecond: cfg.Provider.RateRPS,
		BurstSize:         cfg.Provider.RateBurst,
	}, logger)

	// The client takes the full chat completions endpoint
	provider := ai.NewClient(ai.Config{
		BaseURL:     strings.TrimSuffix(cfg.Provider.BaseURL, "/") + "/chat/completions",
		APIKey:      cfg.Provider.APIKey,
		Model:       cfg.Provider.Model,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		Timeout:     cfg.Provider.Timeout,
		MaxRetries:  cfg.Provider.MaxRetries,
	}, logger)

	usageLogs := repository.NewUsageLogRepository(db)

	insightService := service.NewInsightService(
		service.Config{
			InsightTTL:   cfg.Cache.InsightTTL,
			ContentTTL:   cfg.Cache.ContentTTL,
			SingleFlight: cfg.Insights.SingleFlight,
			Scoring:      cfg.Insights.Scoring,
			Categories:   cfg.Insights.Categories,
			Analyzer:     cfg.Insights.Analyzer,
		},
		store,
		limiter,
		provider,
		providerRate,
		repository.NewFingerprintRepository(db),
		usageLogs,
		repository.NewUserRepository(db),
		m,
		logger,
	)

	var reporter *scheduler.UsageReporter
	if cfg.Scheduler.Enabled {
		reporter = scheduler.NewUsageReporter(usageLogs, m, cfg.Scheduler.UsageReportSchedule, logger)
		if err := reporter.Start(); err != nil {
			log.Fatalf("Failed to start usage reporter: %v", err)
		}
	}

	validator := auth.NewValidator([]byte(cfg.Auth.Secret), cfg.Auth.Issuer)
	authMW := middleware.NewAuthMiddleware(validator, cfg.Auth.Enabled, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api.NewHandler(insightService, store, db, logger).RegisterRoutes(router, authMW)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("API server listening", map[string]interface{}{
			"port": cfg.Service.Port,
		})
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	metricsServer := startMetricsServer(cfg.Service.MetricsPort, logger)

	sig := <-sigChan
	logger.Info("Received shutdown signal", map[string]interface{}{
		"signal": sig.String(),
	})

	logger.Info("Starting graceful shutdown", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if reporter != nil {
		reporter.Stop()
	}

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown API server", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown metrics server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cancel()
	logger.Info("Shutdown complete", nil)
}

// connectDatabase establishes a database connection with retry logic
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*sqlx.DB, error) {
	maxRetries := 10
	baseDelay := 1 * time.Second

	logger.Info("Connecting to database", map[string]interface{}{
		"host":     cfg.Host,
		"database": cfg.Database,
	})

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			logger.Info("Database connected", nil)
			return db, nil
		}
		lastErr = err

		delay := baseDelay * time.Duration(i+1)
		logger.Warn("Database connection failed, retrying", map[string]interface{}{
			"attempt": i + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("database connection failed after %d attempts: %w", maxRetries, lastErr)
}

// startMetricsServer serves Prometheus metrics on a dedicated port
func startMetricsServer(port int, logger observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Metrics server listening", map[string]interface{}{
			"port": port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return server
}
