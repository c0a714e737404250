package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/cache"
	"github.com/JetBrains/space-slack-unfurls/internal/config"
)

// initializeLookupCache builds the cache holding Slack display names
// resolved while rendering message bodies. The Redis backend shares
// lookups across replicas.
func initializeLookupCache(cfg *config.Config) (cache.Cache[string], error) {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		c, err := cache.NewRueidisCache[string](
			ctx,
			cfg.CacheRedisAddr,
			cfg.CacheRedisPassword,
			cfg.CacheRedisDB,
			"lookup",
		)
		if err != nil {
			return nil, fmt.Errorf("initialize redis lookup cache: %w", err)
		}
		log.Printf("Lookup cache: redis at %s", cfg.CacheRedisAddr)
		return c, nil

	case config.CacheBackendMemory:
		fallthrough
	default:
		log.Println("Lookup cache: in-memory")
		return cache.NewMemoryCache[string](), nil
	}
}
