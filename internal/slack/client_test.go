package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cfg := &config.Config{
		SlackClientID:     "client-id",
		SlackClientSecret: "client-secret",
		SlackAPITimeout:   5 * time.Second,
		APIMaxRetries:     1,
		APIRetryDelay:     time.Millisecond,
		APIMaxRetryDelay:  10 * time.Millisecond,
	}
	c, err := NewClient(cfg, metrics.NewNoopMetrics(), WithBaseURL(serverURL))
	require.NoError(t, err)
	return c
}

func TestConversationsHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.history", r.URL.Path)
		assert.Equal(t, "Bearer xoxp-token", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "C012345", r.PostForm.Get("channel"))
		assert.Equal(t, "1660000000.000100", r.PostForm.Get("latest"))
		assert.Equal(t, "true", r.PostForm.Get("inclusive"))
		assert.Equal(t, "1", r.PostForm.Get("limit"))

		fmt.Fprint(w, `{"ok":true,"messages":[{"type":"message","user":"U1","text":"hello","ts":"1660000000.000100"}]}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	messages, err := c.ConversationsHistory(context.Background(), "xoxp-token", "C012345", "1660000000.000100", true, 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, "U1", messages[0].User)
}

func TestErrorEnvelopeBecomesCodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"token_expired"}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	_, err := c.UsersInfo(context.Background(), "xoxp-token", "U1")
	require.Error(t, err)
	assert.Equal(t, "token_expired", tokens.Code(err))
}

func TestRateLimitedCallIsRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ok":true,"team":{"id":"T1","name":"Acme","domain":"acme"}}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	team, err := c.TeamInfo(context.Background(), "xoxb-token", "")
	require.NoError(t, err)
	assert.Equal(t, "acme", team.Domain)
	assert.Equal(t, 2, attempts)
}

func TestUnfurlSendsJSON(t *testing.T) {
	var received UnfurlRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.unfurl", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	err := c.Unfurl(context.Background(), "xoxp-token", &UnfurlRequest{
		Channel: "C012345",
		Ts:      "1660000000.000100",
		Unfurls: map[string]Unfurl{
			"https://org.jetbrains.space/p/key/issues/42": {
				Blocks: []Block{SectionBlock("issue title")},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "C012345", received.Channel)
	require.Contains(t, received.Unfurls, "https://org.jetbrains.space/p/key/issues/42")
}

func TestOAuthExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth.v2.access", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))

		fmt.Fprint(w, `{"ok":true,"team":{"id":"T1"},"authed_user":{"id":"U1","scope":"links:read","access_token":"xoxp-user","refresh_token":"xoxe-refresh"}}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	resp, err := c.OAuthExchange(context.Background(), "the-code", "https://app.example/slack/oauth/callback")
	require.NoError(t, err)
	assert.Equal(t, "xoxp-user", resp.UserAccessToken())
	assert.Equal(t, "xoxe-refresh", resp.UserRefreshToken())
	assert.Equal(t, "U1", resp.AuthedUser.ID)
}

func TestOAuthRefreshErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		fmt.Fprint(w, `{"ok":false,"error":"invalid_refresh_token"}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	_, err := c.OAuthRefresh(context.Background(), "xoxe-stale")
	require.Error(t, err)
	assert.Equal(t, "invalid_refresh_token", tokens.Code(err))
}

func TestRichTextStyleDecoding(t *testing.T) {
	raw := `{
		"type": "rich_text",
		"elements": [
			{
				"type": "rich_text_section",
				"elements": [
					{"type": "text", "text": "bold", "style": {"bold": true}},
					{"type": "link", "url": "https://example.org", "text": "label"}
				]
			},
			{
				"type": "rich_text_list",
				"style": "ordered",
				"indent": 1,
				"elements": [
					{"type": "rich_text_section", "elements": [{"type": "text", "text": "item"}]}
				]
			}
		]
	}`
	var block RichTextBlock
	require.NoError(t, json.Unmarshal([]byte(raw), &block))

	section := block.Elements[0]
	assert.Equal(t, "rich_text_section", section.Type)
	assert.True(t, section.Elements[0].TextStyle().Bold)
	assert.Empty(t, section.Elements[0].ListStyle())

	list := block.Elements[1]
	assert.Equal(t, "ordered", list.ListStyle())
	assert.Equal(t, 1, list.Indent)
	assert.Equal(t, TextStyle{}, list.TextStyle())
}

func TestUserDisplayLabel(t *testing.T) {
	u := &User{ID: "U1", Name: "jdoe"}
	assert.Equal(t, "jdoe", u.DisplayLabel())

	u.RealName = "Jane Doe"
	assert.Equal(t, "Jane Doe", u.DisplayLabel())

	u.Profile.DisplayName = "jane"
	assert.Equal(t, "jane", u.DisplayLabel())
}

func TestVerifySignature(t *testing.T) {
	secret := "signing-secret"
	body := []byte(`{"type":"event_callback"}`)
	now := time.Now()
	timestamp := strconv.FormatInt(now.Unix(), 10)

	signature := Sign(secret, timestamp, body)
	assert.True(t, VerifySignature(secret, timestamp, signature, body, now))

	// tampered body
	assert.False(t, VerifySignature(secret, timestamp, signature, []byte(`{}`), now))

	// wrong secret
	assert.False(t, VerifySignature("other", timestamp, signature, body, now))

	// stale timestamp
	stale := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
	staleSig := Sign(secret, stale, body)
	assert.False(t, VerifySignature(secret, stale, staleSig, body, now))

	// garbage timestamp
	assert.False(t, VerifySignature(secret, "not-a-number", signature, body, now))
}
