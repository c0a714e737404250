package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JetBrains/space-slack-unfurls/internal/services"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
)

// SlackHandler receives the Slack events and interactivity webhooks.
// Request signatures are verified by middleware before these run.
type SlackHandler struct {
	spaceUnfurls *services.SpaceUnfurlService
	linkEvents   chan<- services.LinkSharedNotification
}

// NewSlackHandler creates the Slack webhook handler. link_shared events
// are handed to the linkEvents channel and processed by its consumer.
func NewSlackHandler(
	spaceUnfurls *services.SpaceUnfurlService,
	linkEvents chan<- services.LinkSharedNotification,
) *SlackHandler {
	return &SlackHandler{
		spaceUnfurls: spaceUnfurls,
		linkEvents:   linkEvents,
	}
}

// Events handles POST /slack/events.
func (h *SlackHandler) Events(c *gin.Context) {
	var callback slack.EventCallback
	if err := c.ShouldBindJSON(&callback); err != nil {
		c.String(http.StatusBadRequest, "Unable to parse the event payload.")
		return
	}

	switch callback.Type {
	case "url_verification":
		c.JSON(http.StatusOK, gin.H{"challenge": callback.Challenge})
	case "event_callback":
		h.dispatchEvent(c, &callback)
	default:
		c.Status(http.StatusOK)
	}
}

func (h *SlackHandler) dispatchEvent(c *gin.Context, callback *slack.EventCallback) {
	var inner slack.InnerEvent
	if err := json.Unmarshal(callback.Event, &inner); err != nil {
		c.String(http.StatusBadRequest, "Unable to parse the inner event.")
		return
	}

	switch inner.Type {
	case "link_shared":
		var event slack.LinkSharedEvent
		if err := json.Unmarshal(callback.Event, &event); err != nil {
			c.String(http.StatusBadRequest, "Unable to parse the link_shared event.")
			return
		}
		// Slack redelivers on errors; a full channel means the consumer
		// is behind, so drop rather than block the webhook.
		select {
		case h.linkEvents <- services.LinkSharedNotification{TeamID: callback.TeamID, Event: &event}:
		default:
			log.Printf("slack events: link event queue full, dropping event for team %s", callback.TeamID)
		}
	case "team_domain_change":
		var event slack.TeamDomainChangeEvent
		if err := json.Unmarshal(callback.Event, &event); err != nil {
			c.String(http.StatusBadRequest, "Unable to parse the team_domain_change event.")
			return
		}
		if err := h.spaceUnfurls.HandleTeamDomainChange(callback.TeamID, event.Domain); err != nil {
			log.Printf("slack events: failed to update domain for team %s: %v", callback.TeamID, err)
		}
	case "app_uninstalled":
		if err := h.spaceUnfurls.HandleAppUninstalled(callback.TeamID); err != nil {
			log.Printf("slack events: failed to remove team %s: %v", callback.TeamID, err)
		}
	}

	c.Status(http.StatusOK)
}

// Interactive handles POST /slack/interactive (block actions from the
// auth prompt).
func (h *SlackHandler) Interactive(c *gin.Context) {
	raw := c.PostForm("payload")
	if raw == "" {
		c.String(http.StatusBadRequest, "Missing interaction payload.")
		return
	}

	var payload slack.InteractionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.String(http.StatusBadRequest, "Unable to parse the interaction payload.")
		return
	}

	if err := h.spaceUnfurls.HandleInteraction(c.Request.Context(), &payload); err != nil {
		log.Printf("slack interactive: %v", err)
		c.String(http.StatusBadRequest, "Unable to process the interaction.")
		return
	}

	c.Status(http.StatusOK)
}
