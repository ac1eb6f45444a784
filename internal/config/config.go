package config

import (
	"errors"
	"fmt"
	"time"

	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/quota"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	AppPort       string `env:"APP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	JWTSecret     string `env:"JWT_SECRET"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Durable store
	StorageTimeout  time.Duration `env:"STORAGE_TIMEOUT" envDefault:"2s"`
	StorageCooldown time.Duration `env:"STORAGE_COOLDOWN" envDefault:"15s"`

	InitialCoins int64 `env:"INITIAL_COINS" envDefault:"0"`

	// Quotas
	GeneralRateLimit      int64         `env:"GENERAL_RATE_LIMIT" envDefault:"100"`
	GeneralRateLimitDev   int64         `env:"GENERAL_RATE_LIMIT_DEV" envDefault:"1000"`
	GeneralRateWindow     time.Duration `env:"GENERAL_RATE_WINDOW" envDefault:"15m"`
	MissionCompleteLimit  int64         `env:"MISSION_COMPLETE_LIMIT" envDefault:"50"`
	MissionCompleteWindow time.Duration `env:"MISSION_COMPLETE_WINDOW" envDefault:"15m"`
	AIDailyLimit          int64         `env:"AI_DAILY_LIMIT" envDefault:"60"`
	AIWindow              time.Duration `env:"AI_WINDOW" envDefault:"24h"`
	QuotaDevBypass        bool          `env:"QUOTA_DEV_BYPASS" envDefault:"false"`

	// AI advisor; an empty endpoint means catalog recommendations only
	AIEndpoint     string        `env:"AI_ENDPOINT"`
	AIAPIKey       string        `env:"AI_API_KEY"`
	AITimeout      time.Duration `env:"AI_TIMEOUT" envDefault:"5s"`
	AICallCoinCost int64         `env:"AI_CALL_COIN_COST" envDefault:"0"`

	SettlementSweepInterval time.Duration `env:"SETTLEMENT_SWEEP_INTERVAL" envDefault:"1m"`
	SettlementGrace         time.Duration `env:"SETTLEMENT_GRACE" envDefault:"30s"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// QuotaPolicies turns the configured limits into guard policies. The
// general limit depends on the environment.
func (c *Config) QuotaPolicies() map[quota.Class]quota.Policy {
	general := c.GeneralRateLimitDev
	if c.IsProduction() {
		general = c.GeneralRateLimit
	}
	return map[quota.Class]quota.Policy{
		quota.ClassGeneral:           {Class: quota.ClassGeneral, Limit: general, Window: c.GeneralRateWindow},
		quota.ClassMissionCompletion: {Class: quota.ClassMissionCompletion, Limit: c.MissionCompleteLimit, Window: c.MissionCompleteWindow},
		quota.ClassAIDaily:           {Class: quota.ClassAIDaily, Limit: c.AIDailyLimit, Window: c.AIWindow},
	}
}

// Parse reads the process environment. It does not load .env.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.IsProduction() && c.QuotaDevBypass {
		return errors.New("QUOTA_DEV_BYPASS is not allowed in production")
	}
	if c.InitialCoins < 0 {
		return errors.New("INITIAL_COINS must not be negative")
	}
	if c.AICallCoinCost < 0 {
		return errors.New("AI_CALL_COIN_COST must not be negative")
	}
	for _, p := range c.QuotaPolicies() {
		if p.Limit <= 0 || p.Window <= 0 {
			return fmt.Errorf("quota %s needs a positive limit and window", p.Class)
		}
	}
	if c.StorageTimeout <= 0 {
		return errors.New("STORAGE_TIMEOUT must be positive")
	}
	return nil
}

// Load reads .env when present and the environment, and exits on a bad
// configuration.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := Parse()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set, using an insecure development secret")
		cfg.JWTSecret = "dev-insecure-secret"
	}
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL is not set, running on the in-memory store only")
	}
	return cfg
}
