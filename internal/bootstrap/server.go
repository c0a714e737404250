package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/appleboy/graceful"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
)

func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	app.addQueueConsumerJob(m)
	app.addAuthCompletedConsumerJob(m)
	app.addLinkEventConsumerJob(m)
	app.addSessionSweepJob(m)
	app.addCacheShutdownJob(m)

	<-m.Done()
}

func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addQueueConsumerJob drains queue notifications from the Space
// webhook. One consumer keeps at most one queue run in flight per
// process.
func (app *Application) addQueueConsumerJob(m *graceful.Manager) {
	m.AddRunningJob(func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case clientID := <-app.queueNotifications:
				if err := app.SlackUnfurls.ProcessQueue(ctx, clientID); err != nil {
					log.Printf("Queue processing failed for org %s: %v", clientID, err)
				}
			}
		}
	})
}

// addAuthCompletedConsumerJob reacts to finished Slack user auth flows:
// clears pending auth prompts in Space and schedules a queue run.
func (app *Application) addAuthCompletedConsumerJob(m *graceful.Manager) {
	m.AddRunningJob(func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case key := <-app.authCompleted:
				if err := app.SlackUnfurls.OnSlackAuthCompleted(ctx, key); err != nil {
					log.Printf("Auth completion handling failed for %s: %v", key, err)
				}
			}
		}
	})
}

// addLinkEventConsumerJob processes link_shared events handed off by
// the events endpoint.
func (app *Application) addLinkEventConsumerJob(m *graceful.Manager) {
	m.AddRunningJob(func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case notification := <-app.linkEvents:
				err := app.SpaceUnfurls.HandleLinkShared(ctx, notification.TeamID, notification.Event)
				if err != nil {
					log.Printf("Link event handling failed for team %s: %v", notification.TeamID, err)
				}
			}
		}
	})
}

func (app *Application) addSessionSweepJob(m *graceful.Manager) {
	interval := app.Config.SessionSweepInterval
	if interval <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if swept, err := app.OAuth.SweepSessions(); err != nil {
					log.Printf("Session sweep failed: %v", err)
				} else if swept > 0 {
					log.Printf("Swept %d expired OAuth sessions", swept)
				}
			}
		}
	})
}

func (app *Application) addCacheShutdownJob(m *graceful.Manager) {
	m.AddShutdownJob(func() error {
		if err := app.LookupCache.Close(); err != nil {
			log.Printf("Error closing lookup cache: %v", err)
			return err
		}
		return nil
	})
}
