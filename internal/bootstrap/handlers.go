package bootstrap

import (
	"github.com/JetBrains/space-slack-unfurls/internal/handlers"
)

// handlerSet groups the HTTP handlers the router mounts.
type handlerSet struct {
	app   *handlers.AppHandler
	slack *handlers.SlackHandler
	space *handlers.SpaceHandler
	oauth *handlers.OAuthHandler
}

func initializeHandlers(app *Application) handlerSet {
	return handlerSet{
		app:   handlers.NewAppHandler(app.Store),
		slack: handlers.NewSlackHandler(app.SpaceUnfurls, app.linkEvents),
		space: handlers.NewSpaceHandler(app.Store, app.SlackUnfurls),
		oauth: handlers.NewOAuthHandler(app.OAuth),
	}
}
