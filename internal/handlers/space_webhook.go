package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JetBrains/space-slack-unfurls/internal/services"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
)

// SpaceHandler receives the Space application webhook.
type SpaceHandler struct {
	store        *store.Store
	slackUnfurls *services.SlackUnfurlService
}

// NewSpaceHandler creates the Space webhook handler.
func NewSpaceHandler(st *store.Store, slackUnfurls *services.SlackUnfurlService) *SpaceHandler {
	return &SpaceHandler{
		store:        st,
		slackUnfurls: slackUnfurls,
	}
}

// Webhook handles POST /space/api, dispatching on the payload class.
func (h *SpaceHandler) Webhook(c *gin.Context) {
	var payload space.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.String(http.StatusBadRequest, "Unable to parse the webhook payload.")
		return
	}
	if payload.ClientID == "" {
		c.String(http.StatusBadRequest, "Missing client id.")
		return
	}

	switch payload.ClassName {
	case space.PayloadInit:
		if payload.ClientSecret == "" || payload.ServerURL == "" {
			c.String(http.StatusBadRequest, "Missing client secret or server URL.")
			return
		}
		err := h.slackUnfurls.InstallOrg(c.Request.Context(), payload.ClientID, payload.ClientSecret, payload.ServerURL)
		if err != nil {
			log.Printf("space webhook: install failed for org %s: %v", payload.ClientID, err)
			c.String(http.StatusInternalServerError, "Installation failed.")
			return
		}
	case space.PayloadNewQueueItems:
		h.slackUnfurls.ScheduleProcessing(payload.ClientID)
	case space.PayloadUnfurlAction:
		err := h.slackUnfurls.OnUnfurlAction(c.Request.Context(),
			payload.ClientID, payload.UserID, payload.ActionID, payload.ActionValue)
		if err != nil {
			log.Printf("space webhook: unfurl action %q failed for org %s: %v",
				payload.ActionID, payload.ClientID, err)
			c.String(http.StatusInternalServerError, "Action failed.")
			return
		}
	case space.PayloadChangeSecret:
		if payload.ClientSecret == "" {
			c.String(http.StatusBadRequest, "Missing client secret.")
			return
		}
		if err := h.store.UpdateSpaceOrgClientSecret(payload.ClientID, payload.ClientSecret); err != nil {
			log.Printf("space webhook: secret rotation failed for org %s: %v", payload.ClientID, err)
			c.String(http.StatusInternalServerError, "Secret rotation failed.")
			return
		}
	default:
		log.Printf("space webhook: ignoring payload class %q from org %s", payload.ClassName, payload.ClientID)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
