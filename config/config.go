package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"os"
	"snapgram/feeds"
	"snapgram/utils"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	LogLevel string

	// Storage is "postgres" or "memory"
	Storage    string
	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBMaxConns int

	// Redis is disabled when RedisHost is empty
	RedisHost               string
	RedisPort               string
	ProfilesCacheExpiration time.Duration

	// NATS publishing is disabled when NatsURL is empty
	NatsURL     string
	NatsSubject string

	SessionSecret string
	SessionTTL    time.Duration

	MediaDir     string
	MediaBaseURL string

	FeedPageSize int

	ReconcileInterval  time.Duration
	ReconcileFullEvery time.Duration
	ReconcileBatch     int
}

// Load reads configuration from the environment, after loading .env if present
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnv("PORT", "3333")
	cfg := &Config{
		Port:     port,
		LogLevel: getEnv("LOG_LEVEL", "warn"),

		Storage:    getEnv("STORAGE", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUsername: getEnv("DB_USERNAME", "snapgram"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "snapgram"),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 20),

		RedisHost: getEnv("REDIS_HOST", ""),
		RedisPort: getEnv("REDIS_PORT", "6379"),
		ProfilesCacheExpiration: time.Duration(
			getEnvInt("PROFILES_CACHE_EXPIRATION_MINUTES", 1),
		) * time.Minute,

		NatsURL:     getEnv("NATS_URL", ""),
		NatsSubject: getEnv("NATS_SUBJECT", "snapgram"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", 24*time.Hour),

		MediaDir:     getEnv("MEDIA_DIR", "media"),
		MediaBaseURL: getEnv("MEDIA_BASE_URL", "http://localhost:"+port),

		FeedPageSize: getEnvInt("FEED_PAGE_SIZE", 20),

		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		ReconcileFullEvery: getEnvDuration("RECONCILE_FULL_EVERY", 24*time.Hour),
		ReconcileBatch:     getEnvInt("RECONCILE_BATCH", 500),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.Storage != "postgres" && c.Storage != "memory" {
		return fmt.Errorf("STORAGE must be postgres or memory, got %q", c.Storage)
	}
	if c.FeedPageSize <= 0 || c.FeedPageSize > feeds.MaxPageSize {
		return fmt.Errorf("FEED_PAGE_SIZE must be between 1 and %d, got %d", feeds.MaxPageSize, c.FeedPageSize)
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s sslmode=disable host=%s port=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBName,
		c.DBHost,
		c.DBPort,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	return utils.IntFromString(os.Getenv(key), defaultValue)
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
