package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backend constants
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr string
	// EntrypointURL is the public base URL of this application, used to build
	// OAuth redirect URLs and links embedded in auth prompts.
	EntrypointURL string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Encryption key protecting OAuth tokens at rest
	EncryptionKey string

	// Slack application credentials
	SlackClientID      string
	SlackClientSecret  string
	SlackSigningSecret string

	// Unfurl processing
	UnfurlQueueBatchSize int           // page size for the Space unfurl queue
	DeferredReplayLimit  int           // deferred link_shared events replayed per auth completion
	NotificationBuffer   int           // buffer size for the internal work channels
	OAuthSessionTTL      time.Duration // OAuth session lifetime before sweep
	SessionSweepInterval time.Duration

	// Outbound HTTP settings for the Slack and Space APIs
	SlackAPITimeout  time.Duration
	SpaceAPITimeout  time.Duration
	APIMaxRetries    int
	APIRetryDelay    time.Duration
	APIMaxRetryDelay time.Duration

	// Lookup cache (Slack user/channel display names)
	CacheBackend       string // "memory" or "redis"
	CacheRedisAddr     string
	CacheRedisPassword string
	CacheRedisDB       int
	LookupCacheTTL     time.Duration

	// Rate limiting for the public Slack webhook endpoints
	RateLimitEnabled       bool
	RateLimitPerMinute     int
	RateLimitStore         string // "memory" or "redis"
	RateLimitRedisAddr     string
	RateLimitRedisPassword string
	RateLimitRedisDB       int

	// Metrics
	MetricsEnabled bool
	MetricsToken   string

	// StaticDir holds assets served under /static (the Space logo
	// embedded in unfurl cards).
	StaticDir string
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "unfurls.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		EntrypointURL: strings.TrimRight(getEnv("ENTRYPOINT_URL", "http://localhost:8080"), "/"),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		SlackClientID:      getEnv("SLACK_CLIENT_ID", ""),
		SlackClientSecret:  getEnv("SLACK_CLIENT_SECRET", ""),
		SlackSigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),

		UnfurlQueueBatchSize: getEnvInt("UNFURL_QUEUE_BATCH_SIZE", 100),
		DeferredReplayLimit:  getEnvInt("DEFERRED_REPLAY_LIMIT", 10),
		NotificationBuffer:   getEnvInt("NOTIFICATION_BUFFER", 64),
		OAuthSessionTTL:      getEnvDuration("OAUTH_SESSION_TTL", time.Hour),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),

		SlackAPITimeout:  getEnvDuration("SLACK_API_TIMEOUT", 15*time.Second),
		SpaceAPITimeout:  getEnvDuration("SPACE_API_TIMEOUT", 15*time.Second),
		APIMaxRetries:    getEnvInt("API_MAX_RETRIES", 3),
		APIRetryDelay:    getEnvDuration("API_RETRY_DELAY", 1*time.Second),
		APIMaxRetryDelay: getEnvDuration("API_MAX_RETRY_DELAY", 10*time.Second),

		CacheBackend:       getEnv("CACHE_BACKEND", CacheBackendMemory),
		CacheRedisAddr:     getEnv("CACHE_REDIS_ADDR", "localhost:6379"),
		CacheRedisPassword: getEnv("CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:       getEnvInt("CACHE_REDIS_DB", 0),
		LookupCacheTTL:     getEnvDuration("LOOKUP_CACHE_TTL", 10*time.Minute),

		RateLimitEnabled:       getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitStore:         getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		RateLimitRedisAddr:     getEnv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
		RateLimitRedisPassword: getEnv("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:       getEnvInt("RATE_LIMIT_REDIS_DB", 0),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		StaticDir: getEnv("STATIC_DIR", "static"),
	}
}

// Validate checks that settings required for talking to both platforms are present.
func (c *Config) Validate() error {
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY must not be empty")
	}
	if c.SlackClientID == "" || c.SlackClientSecret == "" {
		return fmt.Errorf("SLACK_CLIENT_ID and SLACK_CLIENT_SECRET must not be empty")
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for the postgres driver")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
