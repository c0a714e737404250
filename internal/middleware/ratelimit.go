package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitStoreType selects the backing store for rate-limit counters.
type RateLimitStoreType string

const (
	// RateLimitStoreMemory keeps counters in process memory (single instance only).
	RateLimitStoreMemory RateLimitStoreType = "memory"
	// RateLimitStoreRedis keeps counters in Redis (shared across replicas).
	RateLimitStoreRedis RateLimitStoreType = "redis"
)

// RateLimitConfig configures the per-client-IP rate limiter applied to
// the inbound Slack webhook endpoints.
type RateLimitConfig struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration // counter expiry sweep, memory store only

	StoreType RateLimitStoreType

	// Redis settings, used only when StoreType is RateLimitStoreRedis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewRateLimiter builds a gin middleware limiting requests per client IP.
// Slack retries rejected event deliveries, so 429 responses are safe to
// send on bursts.
func NewRateLimiter(config RateLimitConfig) (gin.HandlerFunc, error) {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  int64(config.RequestsPerMinute),
	}

	var store limiter.Store
	var err error

	switch config.StoreType {
	case RateLimitStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.RedisAddr, err)
		}

		store, err = limiterRedis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:          "ratelimit",
			CleanUpInterval: config.CleanupInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}

	case RateLimitStoreMemory:
		fallthrough
	default:
		store = memory.NewStore()
	}

	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		c.String(http.StatusTooManyRequests, "Too many requests. Please try again later.")
		c.Abort()
	})), nil
}

// NewMemoryRateLimiter builds an in-memory rate limiter for single-instance
// deployments.
func NewMemoryRateLimiter(requestsPerMinute int) (gin.HandlerFunc, error) {
	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		StoreType:         RateLimitStoreMemory,
		CleanupInterval:   5 * time.Minute,
	})
}

// NewRedisRateLimiter builds a Redis-backed rate limiter shared across
// replicas.
func NewRedisRateLimiter(requestsPerMinute int, redisAddr, redisPassword string, redisDB int) (gin.HandlerFunc, error) {
	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		StoreType:         RateLimitStoreRedis,
		RedisAddr:         redisAddr,
		RedisPassword:     redisPassword,
		RedisDB:           redisDB,
		CleanupInterval:   5 * time.Minute,
	})
}
