// Package bootstrap assembles the application: infrastructure, the
// service layer with its work channels, the HTTP surface and the
// graceful lifecycle.
package bootstrap

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JetBrains/space-slack-unfurls/internal/cache"
	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/services"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
)

// Application holds all initialized components.
type Application struct {
	Config *config.Config

	// Core infrastructure
	Store       *store.Store
	Recorder    metrics.Recorder
	LookupCache cache.Cache[string]

	// Work channels owned by the application; each has exactly one
	// consumer goroutine.
	queueNotifications chan string
	authCompleted      chan models.SpaceUserKey
	linkEvents         chan services.LinkSharedNotification

	// Services
	SlackClient  *slack.Client
	SlackUnfurls *services.SlackUnfurlService
	SpaceUnfurls *services.SpaceUnfurlService
	OAuth        *services.OAuthService

	// HTTP
	Router *gin.Engine
	Server *http.Server
}

// Run initializes and starts the application, blocking until shutdown.
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	if err := app.initializeServices(); err != nil {
		return err
	}

	app.initializeHTTPLayer()

	app.startWithGracefulShutdown()

	return nil
}

func (app *Application) initializeInfrastructure() error {
	var err error

	app.Store, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	app.Recorder = metrics.Init(app.Config.MetricsEnabled)

	app.LookupCache, err = initializeLookupCache(app.Config)
	if err != nil {
		return err
	}

	return nil
}

func (app *Application) initializeHTTPLayer() {
	handlers := initializeHandlers(app)
	app.Router = setupRouter(app.Config, handlers, app.Recorder)
	app.Server = createHTTPServer(app.Config, app.Router)
}
