package bootstrap

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/middleware"
)

func setupRouter(cfg *config.Config, h handlerSet, recorder metrics.Recorder) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.MetricsEnabled {
		router.Use(metrics.HTTPMetricsMiddleware(recorder))
	}

	router.GET("/", h.app.Landing)
	router.GET("/health", h.app.Health)
	router.Static("/static", cfg.StaticDir)

	if cfg.MetricsEnabled {
		router.GET("/metrics",
			middleware.MetricsAuth(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()))
	}

	// OAuth flows
	router.GET("/slack/oauth", h.oauth.StartSlackFlow)
	router.GET("/slack/oauth/callback", h.oauth.SlackCallback)
	router.GET("/space/oauth", h.oauth.StartSpaceFlow)
	router.GET("/space/oauth/callback", h.oauth.SpaceCallback)

	// Inbound webhooks. Slack endpoints verify the request signature
	// and take the brunt of public traffic, so they are rate limited.
	slackWebhooks := router.Group("/slack")
	if limit := setupRateLimiter(cfg); limit != nil {
		slackWebhooks.Use(limit)
	}
	slackWebhooks.Use(middleware.SlackSignature(cfg.SlackSigningSecret))
	slackWebhooks.POST("/events", h.slack.Events)
	slackWebhooks.POST("/interactive", h.slack.Interactive)

	router.POST("/space/api", h.space.Webhook)

	return router
}

func setupRateLimiter(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimitEnabled {
		return nil
	}

	var (
		limit gin.HandlerFunc
		err   error
	)
	switch cfg.RateLimitStore {
	case config.RateLimitStoreRedis:
		limit, err = middleware.NewRedisRateLimiter(
			cfg.RateLimitPerMinute,
			cfg.RateLimitRedisAddr,
			cfg.RateLimitRedisPassword,
			cfg.RateLimitRedisDB,
		)
	default:
		limit, err = middleware.NewMemoryRateLimiter(cfg.RateLimitPerMinute)
	}
	if err != nil {
		log.Printf("Rate limiter disabled: %v", err)
		return nil
	}
	return limit
}
