package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP
	ListenAddr  string
	MetricsAddr string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	CatalogPath   string

	// Trading
	StartingCash    int64 // cents
	SpreadBps       int64
	CommissionCents int64

	// Feed engine
	FeedInterval   time.Duration
	FeedVolatility int64 // max per-tick move in basis points

	// Auth
	SessionTTL time.Duration

	// Alerts
	WebhookURL string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/papertrade.db"),
		CatalogPath:   getEnv("CATALOG_PATH", "config/catalog.yaml"),

		// STARTING_CASH is whole dollars for operator convenience.
		StartingCash:    getEnvInt("STARTING_CASH", 100_000) * 100,
		SpreadBps:       getEnvInt("SPREAD_BPS", 5),
		CommissionCents: getEnvInt("COMMISSION_CENTS", 0),

		FeedInterval:   getEnvDur("FEED_INTERVAL", 2*time.Second),
		FeedVolatility: getEnvInt("FEED_VOLATILITY_BPS", 40),

		SessionTTL: getEnvDur("SESSION_TTL", 24*time.Hour),

		WebhookURL: getEnv("WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		log.Printf("[config] invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
