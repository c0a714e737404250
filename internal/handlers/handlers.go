// Package handlers exposes the HTTP surface: the Slack webhook
// endpoints, the Space application endpoint, the two OAuth flows and
// the service endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JetBrains/space-slack-unfurls/internal/store"
)

// AppHandler serves the landing page and the health endpoint.
type AppHandler struct {
	store *store.Store
}

// NewAppHandler creates the landing and health handler.
func NewAppHandler(st *store.Store) *AppHandler {
	return &AppHandler{store: st}
}

// Landing handles GET /.
func (h *AppHandler) Landing(c *gin.Context) {
	c.String(http.StatusOK,
		"Space <-> Slack link previews.\n\n"+
			"Install the application to a JetBrains Space organization and a Slack\n"+
			"workspace to get rich link previews in both directions.\n")
}

// Health handles GET /health with a database ping.
func (h *AppHandler) Health(c *gin.Context) {
	if err := h.store.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
