package bootstrap

import (
	"fmt"

	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/services"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
)

// initializeServices wires the two unfurl pipelines and the OAuth
// coordinator together with the application-owned work channels.
func (app *Application) initializeServices() error {
	cfg := app.Config

	app.queueNotifications = make(chan string, cfg.NotificationBuffer)
	app.authCompleted = make(chan models.SpaceUserKey, cfg.NotificationBuffer)
	app.linkEvents = make(chan services.LinkSharedNotification, cfg.NotificationBuffer)

	slackClient, err := slack.NewClient(cfg, app.Recorder)
	if err != nil {
		return fmt.Errorf("initialize slack client: %w", err)
	}
	app.SlackClient = slackClient

	// One Space client per organization; the org row carries the
	// decrypted app credentials.
	spaceFor := func(org *models.SpaceOrg) (services.SpaceAPI, error) {
		return space.NewClient(cfg, org.OrgURL, org.ClientID, org.ClientSecret, app.Recorder)
	}

	app.SlackUnfurls = services.NewSlackUnfurlService(
		app.Store, cfg, slackClient, spaceFor, app.LookupCache, app.Recorder, app.queueNotifications)
	app.SpaceUnfurls = services.NewSpaceUnfurlService(
		app.Store, cfg, slackClient, spaceFor, app.Recorder)
	app.OAuth = services.NewOAuthService(
		app.Store, cfg, slackClient, app.SpaceUnfurls, app.Recorder, app.authCompleted)

	return nil
}
