package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/services"
)

// OAuthHandler drives the two user authentication flows over HTTP.
type OAuthHandler struct {
	oauth *services.OAuthService
}

// NewOAuthHandler creates the OAuth flow handler.
func NewOAuthHandler(oauth *services.OAuthService) *OAuthHandler {
	return &OAuthHandler{oauth: oauth}
}

// StartSlackFlow handles GET /slack/oauth. Space users land here from
// the auth-request message to connect their Slack account.
func (h *OAuthHandler) StartSlackFlow(c *gin.Context) {
	key := models.SpaceUserKey{
		SpaceOrgID:  c.Query("spaceOrgId"),
		SpaceUserID: c.Query("spaceUserId"),
		SlackTeamID: c.Query("slackTeamId"),
	}
	if key.SpaceOrgID == "" || key.SpaceUserID == "" || key.SlackTeamID == "" {
		c.String(http.StatusBadRequest, "Missing spaceOrgId, spaceUserId or slackTeamId parameter.")
		return
	}

	authURL, err := h.oauth.StartSlackUserFlow(key, c.Query("backUrl"))
	if err != nil {
		log.Printf("oauth: failed to start Slack flow for %s: %v", key, err)
		c.String(http.StatusBadRequest, "Unable to start the Slack authentication flow.")
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// SlackCallback handles GET /slack/oauth/callback. A callback without
// state completes an app install to a workspace instead of a user flow.
func (h *OAuthHandler) SlackCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		c.String(http.StatusBadRequest, "Slack authentication was not completed.")
		return
	}
	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "Missing code parameter.")
		return
	}

	state := c.Query("state")
	if state == "" {
		teamID, err := h.oauth.CompleteSlackInstall(c.Request.Context(), code)
		if err != nil {
			log.Printf("oauth: Slack install failed: %v", err)
			c.String(http.StatusBadRequest, "Unable to complete the installation.")
			return
		}
		log.Printf("oauth: installed to Slack team %s", teamID)
		c.String(http.StatusOK, "The application has been installed to your Slack workspace.")
		return
	}

	backURL, err := h.oauth.CompleteSlackUserFlow(c.Request.Context(), state, code)
	if err != nil {
		if errors.Is(err, services.ErrFlowStateMismatch) {
			c.String(http.StatusBadRequest, "The authentication link has expired. Please start over.")
			return
		}
		log.Printf("oauth: Slack user flow failed: %v", err)
		c.String(http.StatusBadRequest, "Unable to complete the Slack authentication.")
		return
	}
	if backURL != "" {
		c.Redirect(http.StatusFound, backURL)
		return
	}
	c.String(http.StatusOK, "Slack authentication complete. You can close this page.")
}

// StartSpaceFlow handles GET /space/oauth. Slack users land here from
// the auth prompt to connect their Space account.
func (h *OAuthHandler) StartSpaceFlow(c *gin.Context) {
	key := models.SlackUserKey{
		SlackTeamID: c.Query("slackTeamId"),
		SlackUserID: c.Query("slackUserId"),
		SpaceOrgID:  c.Query("spaceOrgId"),
	}
	if key.SlackTeamID == "" || key.SlackUserID == "" || key.SpaceOrgID == "" {
		c.String(http.StatusBadRequest, "Missing slackTeamId, slackUserId or spaceOrgId parameter.")
		return
	}

	authURL, err := h.oauth.StartSpaceUserFlow(key, c.Query("backUrl"))
	if err != nil {
		log.Printf("oauth: failed to start Space flow for %s: %v", key, err)
		c.String(http.StatusBadRequest, "Unable to start the Space authentication flow.")
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// SpaceCallback handles GET /space/oauth/callback.
func (h *OAuthHandler) SpaceCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		c.String(http.StatusBadRequest, "Space authentication was not completed.")
		return
	}
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.String(http.StatusBadRequest, "Missing state or code parameter.")
		return
	}

	backURL, err := h.oauth.CompleteSpaceUserFlow(c.Request.Context(), state, code)
	if err != nil {
		if errors.Is(err, services.ErrFlowStateMismatch) {
			c.String(http.StatusBadRequest, "The authentication link has expired. Please start over.")
			return
		}
		log.Printf("oauth: Space user flow failed: %v", err)
		c.String(http.StatusBadRequest, "Unable to complete the Space authentication.")
		return
	}
	if backURL != "" {
		c.Redirect(http.StatusFound, backURL)
		return
	}
	c.String(http.StatusOK, "Space authentication complete. You can close this page.")
}
