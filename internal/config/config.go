// Package config handles loading and validation of application configuration
// from environment variables. Supports .env files via godotenv.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const devJWTSecret = "dev-secret-change-in-production"

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        int    `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"` // "development" | "staging" | "production"
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Database: postgres://... for production, sqlite://path for local runs
	DatabaseURL string `envconfig:"DATABASE_URL" default:"sqlite://./data/reports.sqlite"`

	// Security
	JWTSecret      string `envconfig:"JWT_SECRET" default:"dev-secret-change-in-production"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	RateLimitRPM   int    `envconfig:"RATE_LIMIT_RPM" default:"120"`

	// Redis (rate limiting & accrual locks). Empty disables Redis.
	RedisURL string `envconfig:"REDIS_URL"`

	// Settlement policy
	DefaultReward    int64 `envconfig:"DEFAULT_REWARD" default:"500"`
	DefaultPenalty   int64 `envconfig:"DEFAULT_PENALTY" default:"1000"`
	DebtDueDays      int   `envconfig:"DEBT_DUE_DAYS" default:"14"`
	LateFeeWeeklyBPS int64 `envconfig:"LATE_FEE_WEEKLY_BPS" default:"200"`
	LateFeeMaxWeeks  int   `envconfig:"LATE_FEE_MAX_WEEKS" default:"52"`

	// Background jobs
	AccrualCron           string `envconfig:"ACCRUAL_CRON" default:"0 1 * * *"`
	LedgerRebuildInterval int    `envconfig:"LEDGER_REBUILD_INTERVAL" default:"5"` // minutes
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (development)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.DebtDueDays < 0 {
		return fmt.Errorf("%w: DEBT_DUE_DAYS must not be negative", ErrInvalidConfig)
	}
	if c.LateFeeWeeklyBPS < 0 || c.LateFeeMaxWeeks < 0 {
		return fmt.Errorf("%w: late fee parameters must not be negative", ErrInvalidConfig)
	}
	if c.LedgerRebuildInterval < 1 {
		return fmt.Errorf("%w: LEDGER_REBUILD_INTERVAL must be at least one minute", ErrInvalidConfig)
	}
	if c.DefaultReward <= 0 || c.DefaultPenalty <= 0 {
		return fmt.Errorf("%w: default reward and penalty must be positive", ErrInvalidConfig)
	}

	// Validate required fields in production
	if c.Environment == "production" {
		if !strings.HasPrefix(c.DatabaseURL, "postgres") {
			return fmt.Errorf("%w: a postgres DATABASE_URL is required in production", ErrInvalidConfig)
		}
		if c.JWTSecret == devJWTSecret {
			return fmt.Errorf("%w: JWT_SECRET must be set in production", ErrInvalidConfig)
		}
	}
	return nil
}

// Origins returns the CORS allow-list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DebtDue is the grace period before an unpaid penalty starts accruing.
func (c *Config) DebtDue() time.Duration {
	return time.Duration(c.DebtDueDays) * 24 * time.Hour
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
