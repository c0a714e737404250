package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JetBrains/space-slack-unfurls/internal/slack"
)

// maxSlackBodySize caps payloads accepted on the webhook endpoints.
const maxSlackBodySize = 1 << 20

// SlackSignature verifies the v0 request signature on inbound Slack
// webhooks. The body is consumed for signing and restored so downstream
// handlers can bind it.
func SlackSignature(signingSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSlackBodySize+1))
		if err != nil || len(body) > maxSlackBodySize {
			c.String(http.StatusBadRequest, "Unable to read the request body.")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		timestamp := c.GetHeader("X-Slack-Request-Timestamp")
		signature := c.GetHeader("X-Slack-Signature")
		if !slack.VerifySignature(signingSecret, timestamp, signature, body, time.Now()) {
			c.String(http.StatusUnauthorized, "Invalid request signature.")
			c.Abort()
			return
		}

		c.Next()
	}
}
