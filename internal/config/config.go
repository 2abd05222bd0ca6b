// Package config handles configuration for the insight service
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/wenjiaqi8255/context-me/internal/service"
)

// Config represents the complete configuration for the insight service
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Insights  InsightsConfig  `mapstructure:"insights"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServiceConfig contains service-level configuration
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxConns     int    `mapstructure:"max_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN builds the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	Database    int           `mapstructure:"database"`
	MaxRetries  int           `mapstructure:"max_retries"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	PoolSize    int           `mapstructure:"pool_size"`
}

// ProviderConfig contains LLM provider settings
type ProviderConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`

	// RateRPS and RateBurst bound outbound provider calls across all
	// users
	RateRPS   float64 `mapstructure:"rate_rps"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// QuotaConfig contains per-user usage quota settings
type QuotaConfig struct {
	DailyLimit int64 `mapstructure:"daily_limit"`
}

// CacheConfig contains cache behavior settings
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	InsightTTL time.Duration `mapstructure:"insight_ttl"`
	ContentTTL time.Duration `mapstructure:"content_ttl"`
}

// AuthConfig contains bearer token settings for the extension API
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
}

// InsightsConfig tunes insight generation behavior. The keyword sets feed
// the fallback scoring and categorization heuristics.
type InsightsConfig struct {
	SingleFlight bool                      `mapstructure:"single_flight"`
	Scoring      service.ScoringConfig     `mapstructure:"scoring"`
	Categories   service.CategorizerConfig `mapstructure:"categories"`
	Analyzer     service.AnalyzerConfig    `mapstructure:"analyzer"`
}

// SchedulerConfig contains scheduler settings
type SchedulerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	UsageReportSchedule string `mapstructure:"usage_report_schedule"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	viper.SetConfigName("context-me")
	viper.SetConfigType("yaml")

	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/configs")

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		// Defaults and env vars carry the service when no file exists
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	// Service defaults
	viper.SetDefault("service.port", 8080)
	viper.SetDefault("service.metrics_port", 9090)
	viper.SetDefault("service.shutdown_timeout", "30s")
	viper.SetDefault("service.log_level", "info")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "contextme_development")
	viper.SetDefault("database.username", "contextme")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)

	// Redis defaults
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.pool_size", 10)

	// Provider defaults
	viper.SetDefault("provider.base_url", "https://api.siliconflow.cn/v1")
	viper.SetDefault("provider.model", "THUDM/GLM-4-32B-0414")
	viper.SetDefault("provider.temperature", 0.7)
	viper.SetDefault("provider.max_tokens", 1000)
	viper.SetDefault("provider.timeout", "30s")
	viper.SetDefault("provider.max_retries", 2)
	viper.SetDefault("provider.rate_rps", 5.0)
	viper.SetDefault("provider.rate_burst", 10)

	// Quota defaults
	viper.SetDefault("quota.daily_limit", 100)

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.insight_ttl", "1h")
	viper.SetDefault("cache.content_ttl", "24h")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.issuer", "context-me")

	// Insight defaults
	viper.SetDefault("insights.single_flight", true)
	viper.SetDefault("insights.scoring.baseline", 0.5)
	viper.SetDefault("insights.scoring.interest_weight", 0.10)
	viper.SetDefault("insights.scoring.goal_weight", 0.15)

	// Scheduler defaults
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.usage_report_schedule", "5 0 * * *") // 00:05 UTC daily
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.AutomaticEnv()

	// Service bindings
	_ = viper.BindEnv("service.port", "PORT")
	_ = viper.BindEnv("service.log_level", "LOG_LEVEL")

	// Database bindings
	_ = viper.BindEnv("database.host", "DATABASE_HOST")
	_ = viper.BindEnv("database.port", "DATABASE_PORT")
	_ = viper.BindEnv("database.database", "DATABASE_NAME")
	_ = viper.BindEnv("database.username", "DATABASE_USER")
	_ = viper.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	// Redis bindings
	_ = viper.BindEnv("redis.address", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Provider bindings
	_ = viper.BindEnv("provider.base_url", "SILICONFLOW_BASE_URL")
	_ = viper.BindEnv("provider.api_key", "SILICONFLOW_API_KEY")
	_ = viper.BindEnv("provider.model", "SILICONFLOW_MODEL")

	// Quota bindings
	_ = viper.BindEnv("quota.daily_limit", "DAILY_USAGE_LIMIT")

	// Auth bindings
	_ = viper.BindEnv("auth.enabled", "AUTH_ENABLED")
	_ = viper.BindEnv("auth.secret", "AUTH_SECRET")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Service.Port <= 0 || cfg.Service.Port > 65535 {
		return fmt.Errorf("invalid service port: %d", cfg.Service.Port)
	}
	if cfg.Quota.DailyLimit <= 0 {
		return fmt.Errorf("invalid daily limit: %d", cfg.Quota.DailyLimit)
	}
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider base_url is required")
	}
	if cfg.Auth.Enabled && cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}
	return nil
}
