// Package slack is a minimal Slack Web API client covering the
// methods this service calls, with rate-limit aware retries.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/retry"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"

	httpclient "github.com/appleboy/go-httpclient"
	httpretry "github.com/appleboy/go-httpretry"
)

const defaultBaseURL = "https://slack.com/api"

// UserPermissionScopes is the user scope set requested when a Space
// user authenticates in Slack to read messages for link previews.
var UserPermissionScopes = []string{
	"channels:history",
	"groups:history",
	"im:history",
	"channels:read",
	"groups:read",
	"im:read",
	"team:read",
	"users:read",
	"usergroups:read",
}

// apiResult is implemented by all response types via the embedded
// envelope.
type apiResult interface {
	envelope() *apiEnvelope
}

func (e *apiEnvelope) envelope() *apiEnvelope { return e }

// Client calls the Slack Web API. Access tokens are passed per call so
// the token lifecycle manager stays in charge of refreshing them.
type Client struct {
	baseURL      string
	http         *retry.Client
	oauth        *httpretry.Client
	clientID     string
	clientSecret string
	recorder     metrics.Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root, used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the retrying transport.
func WithHTTPClient(client *retry.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// NewClient builds a Slack client from the application config.
func NewClient(cfg *config.Config, recorder metrics.Recorder, opts ...Option) (*Client, error) {
	httpClient, err := httpclient.NewClient(
		httpclient.WithTimeout(cfg.SlackAPITimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create slack http client: %w", err)
	}

	oauthClient, err := httpretry.NewRealtimeClient(
		httpretry.WithHTTPClient(httpClient),
		httpretry.WithMaxRetries(cfg.APIMaxRetries),
		httpretry.WithInitialRetryDelay(cfg.APIRetryDelay),
		httpretry.WithMaxRetryDelay(cfg.APIMaxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("create slack oauth client: %w", err)
	}

	c := &Client{
		baseURL: defaultBaseURL,
		http: retry.NewClient(
			retry.WithHTTPClient(httpClient),
			retry.WithMaxRetries(cfg.APIMaxRetries),
			retry.WithInitialRetryDelay(cfg.APIRetryDelay),
			retry.WithMaxRetryDelay(cfg.APIMaxRetryDelay),
		),
		oauth:        oauthClient,
		clientID:     cfg.SlackClientID,
		clientSecret: cfg.SlackClientSecret,
		recorder:     recorder,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// callForm posts a form-encoded Web API call with a bearer token and
// decodes the response into out. A response with ok=false becomes a
// tokens.CodeError so the lifecycle manager can classify it.
func (c *Client) callForm(ctx context.Context, method, accessToken string, form url.Values, out apiResult) error {
	body := form.Encode()
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/"+method,
		strings.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	return c.send(ctx, method, req, out)
}

// callJSON posts a JSON-encoded Web API call.
func (c *Client) callJSON(ctx context.Context, method, accessToken string, payload any, out apiResult) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/"+method,
		bytes.NewReader(encoded),
	)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.send(ctx, method, req, out)
}

func (c *Client) send(ctx context.Context, method string, req *http.Request, out apiResult) error {
	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	c.recorder.RecordExternalAPICall(metrics.PlatformSlack, method, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if env := out.envelope(); !env.OK {
		return &tokens.CodeError{Op: method, Code: env.Error}
	}
	return nil
}

type historyResponse struct {
	apiEnvelope
	Messages []Message `json:"messages"`
}

// ConversationsHistory fetches messages around latest. With inclusive
// set and limit 1 it resolves the single message a permalink points to.
func (c *Client) ConversationsHistory(ctx context.Context, accessToken, channel, latest string, inclusive bool, limit int) ([]Message, error) {
	form := url.Values{}
	form.Set("channel", channel)
	if latest != "" {
		form.Set("latest", latest)
	}
	if inclusive {
		form.Set("inclusive", "true")
	}
	if limit > 0 {
		form.Set("limit", strconv.Itoa(limit))
	}

	var resp historyResponse
	if err := c.callForm(ctx, "conversations.history", accessToken, form, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ConversationsReplies resolves a message inside a thread.
func (c *Client) ConversationsReplies(ctx context.Context, accessToken, channel, threadTs, latest string, inclusive bool, limit int) ([]Message, error) {
	form := url.Values{}
	form.Set("channel", channel)
	form.Set("ts", threadTs)
	if latest != "" {
		form.Set("latest", latest)
	}
	if inclusive {
		form.Set("inclusive", "true")
	}
	if limit > 0 {
		form.Set("limit", strconv.Itoa(limit))
	}

	var resp historyResponse
	if err := c.callForm(ctx, "conversations.replies", accessToken, form, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

type userResponse struct {
	apiEnvelope
	User User `json:"user"`
}

func (c *Client) UsersInfo(ctx context.Context, accessToken, userID string) (*User, error) {
	form := url.Values{}
	form.Set("user", userID)

	var resp userResponse
	if err := c.callForm(ctx, "users.info", accessToken, form, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

type conversationResponse struct {
	apiEnvelope
	Channel Conversation `json:"channel"`
}

func (c *Client) ConversationsInfo(ctx context.Context, accessToken, channelID string) (*Conversation, error) {
	form := url.Values{}
	form.Set("channel", channelID)

	var resp conversationResponse
	if err := c.callForm(ctx, "conversations.info", accessToken, form, &resp); err != nil {
		return nil, err
	}
	return &resp.Channel, nil
}

type teamResponse struct {
	apiEnvelope
	Team Team `json:"team"`
}

// TeamInfo fetches workspace metadata. An empty teamID means the team
// of the supplied token.
func (c *Client) TeamInfo(ctx context.Context, accessToken, teamID string) (*Team, error) {
	form := url.Values{}
	if teamID != "" {
		form.Set("team", teamID)
	}

	var resp teamResponse
	if err := c.callForm(ctx, "team.info", accessToken, form, &resp); err != nil {
		return nil, err
	}
	return &resp.Team, nil
}

type usergroupsResponse struct {
	apiEnvelope
	Usergroups []Usergroup `json:"usergroups"`
}

func (c *Client) UsergroupsList(ctx context.Context, accessToken string) ([]Usergroup, error) {
	var resp usergroupsResponse
	if err := c.callForm(ctx, "usergroups.list", accessToken, url.Values{}, &resp); err != nil {
		return nil, err
	}
	return resp.Usergroups, nil
}

// Unfurl attaches content or an auth prompt to previously shared links.
func (c *Client) Unfurl(ctx context.Context, accessToken string, req *UnfurlRequest) error {
	var resp struct{ apiEnvelope }
	return c.callJSON(ctx, "chat.unfurl", accessToken, req, &resp)
}

// RespondToInteraction posts a message to the response_url of an
// interactive action, replacing the original prompt.
func (c *Client) RespondToInteraction(ctx context.Context, responseURL string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("respond to interaction: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("respond to interaction: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	c.recorder.RecordExternalAPICall(metrics.PlatformSlack, "response_url", time.Since(start))
	if err != nil {
		return fmt.Errorf("respond to interaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("respond to interaction: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// OAuthExchange swaps an authorization code for a token pair.
func (c *Client) OAuthExchange(ctx context.Context, code, redirectURI string) (*OAuthV2Response, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	return c.oauthAccess(ctx, form)
}

// OAuthRefresh exchanges a refresh token for a fresh pair. Slack
// rotates refresh tokens, so the response may carry a new one.
func (c *Client) OAuthRefresh(ctx context.Context, refreshToken string) (*OAuthV2Response, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.oauthAccess(ctx, form)
}

func (c *Client) oauthAccess(ctx context.Context, form url.Values) (*OAuthV2Response, error) {
	start := time.Now()
	resp, err := c.oauth.Post(
		ctx,
		c.baseURL+"/oauth.v2.access",
		httpretry.WithBody("application/x-www-form-urlencoded", strings.NewReader(form.Encode())),
	)
	c.recorder.RecordExternalAPICall(metrics.PlatformSlack, "oauth.v2.access", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("oauth.v2.access: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oauth.v2.access: read response: %w", err)
	}
	var parsed OAuthV2Response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("oauth.v2.access: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return nil, &tokens.CodeError{Op: "oauth.v2.access", Code: parsed.Error}
	}
	return &parsed, nil
}
