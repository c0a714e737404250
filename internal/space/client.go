// Package space is a minimal JetBrains Space HTTP API client covering
// the unfurl queue, the entity fetchers behind the unfurl providers
// and the application management calls made on install.
package space

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/retry"

	httpclient "github.com/appleboy/go-httpclient"
	httpretry "github.com/appleboy/go-httpretry"
)

// UnfurlRightCode is the application right required to attach link
// previews in a Space organization.
const UnfurlRightCode = "Unfurl.App.ProvideAttachment"

// UserPermissionScopes is the scope set requested when a Space user
// authenticates for link previews of Space content in Slack.
var UserPermissionScopes = []string{
	"global:Project.Issues.View",
	"global:Project.CodeReview.View",
	"global:Project.CodeReview.ViewComments",
	"global:VcsRepository.Read",
	"global:Channel.ViewMessages",
	"global:Channel.ViewChannel",
	"global:Article.View",
	"global:Article.Comments.View",
}

// Client calls the HTTP API of a single Space organization. App-level
// calls authenticate with client credentials and cache the resulting
// token; entity fetchers take a user access token per call so the
// token lifecycle manager stays in charge of refreshing them.
type Client struct {
	serverURL    string
	clientID     string
	clientSecret string
	http         *retry.Client
	oauth        *httpretry.Client
	recorder     metrics.Recorder

	mu             sync.Mutex
	appToken       string
	appTokenExpiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the retrying transport, used in tests and to
// share one transport across per-org clients.
func WithHTTPClient(client *retry.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// NewClient builds a client for one Space organization.
func NewClient(cfg *config.Config, serverURL, clientID, clientSecret string, recorder metrics.Recorder, opts ...Option) (*Client, error) {
	httpClient, err := httpclient.NewClient(
		httpclient.WithTimeout(cfg.SpaceAPITimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create space http client: %w", err)
	}

	oauthClient, err := httpretry.NewRealtimeClient(
		httpretry.WithHTTPClient(httpClient),
		httpretry.WithMaxRetries(cfg.APIMaxRetries),
		httpretry.WithInitialRetryDelay(cfg.APIRetryDelay),
		httpretry.WithMaxRetryDelay(cfg.APIMaxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("create space oauth client: %w", err)
	}

	c := &Client{
		serverURL:    strings.TrimSuffix(serverURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http: retry.NewClient(
			retry.WithHTTPClient(httpClient),
			retry.WithMaxRetries(cfg.APIMaxRetries),
			retry.WithInitialRetryDelay(cfg.APIRetryDelay),
			retry.WithMaxRetryDelay(cfg.APIMaxRetryDelay),
		),
		oauth:    oauthClient,
		recorder: recorder,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ServerURL returns the organization's server root.
func (c *Client) ServerURL() string { return c.serverURL }

func (c *Client) call(ctx context.Context, op, method, path, accessToken string, query url.Values, payload, out any) error {
	target := c.serverURL + "/api/http/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("space %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("space %s: build request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	c.recorder.RecordExternalAPICall(metrics.PlatformSpace, op, time.Since(start))
	if err != nil {
		return fmt.Errorf("space %s: %w: %v", op, ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("space %s: read response: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return parseAPIError(op, resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("space %s: decode response: %w", op, err)
		}
	}
	return nil
}

func parseAPIError(op string, status int, raw []byte) error {
	apiErr := &APIError{Op: op, Status: status}
	var parsed struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		apiErr.ErrorCode = parsed.Error
		apiErr.Description = parsed.Description
	}
	return apiErr
}

// appCall performs a call under the cached client credentials token. A
// 401 drops the cached token so the next call fetches a fresh one.
func (c *Client) appCall(ctx context.Context, op, method, path string, query url.Values, payload, out any) error {
	token, err := c.appAccessToken(ctx)
	if err != nil {
		return err
	}
	err = c.call(ctx, op, method, path, token, query, payload, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == 401 {
		c.mu.Lock()
		c.appToken = ""
		c.mu.Unlock()
	}
	return err
}

func (c *Client) appAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.appToken != "" && time.Now().Before(c.appTokenExpiry) {
		token := c.appToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "**")
	info, err := c.oauthToken(ctx, form)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.appToken = info.AccessToken
	c.appTokenExpiry = time.Now().Add(time.Duration(info.ExpiresIn)*time.Second - time.Minute)
	c.mu.Unlock()
	return info.AccessToken, nil
}

// RefreshUserToken exchanges a user's refresh token for a fresh access
// token. Space does not rotate refresh tokens, so the response usually
// carries none.
func (c *Client) RefreshUserToken(ctx context.Context, refreshToken string) (*TokenInfo, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.oauthToken(ctx, form)
}

func (c *Client) oauthToken(ctx context.Context, form url.Values) (*TokenInfo, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	start := time.Now()
	resp, err := c.oauth.Post(
		ctx,
		c.serverURL+"/oauth/token",
		httpretry.WithBody("application/x-www-form-urlencoded", strings.NewReader(form.Encode())),
	)
	c.recorder.RecordExternalAPICall(metrics.PlatformSpace, "oauth/token", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("space oauth/token: %w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("space oauth/token: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, parseAPIError("oauth/token", resp.StatusCode, raw)
	}
	var info TokenInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("space oauth/token: decode response: %w", err)
	}
	return &info, nil
}

// GetUnfurlQueueItems pages the unfurl queue. A nil etag starts from
// the beginning, otherwise items strictly after the cursor are
// returned, oldest first.
func (c *Client) GetUnfurlQueueItems(ctx context.Context, afterEtag *int64, batchSize int) ([]UnfurlQueueItem, error) {
	query := url.Values{}
	query.Set("batchSize", strconv.Itoa(batchSize))
	if afterEtag != nil {
		query.Set("fromEtag", strconv.FormatInt(*afterEtag, 10))
	}

	var items []UnfurlQueueItem
	if err := c.appCall(ctx, "unfurls.queue.get", http.MethodGet, "applications/unfurls/queue", query, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// PostUnfurlsContent attaches produced previews to their queue items.
func (c *Client) PostUnfurlsContent(ctx context.Context, unfurls []ApplicationUnfurl) error {
	payload := map[string]any{"unfurls": unfurls}
	return c.appCall(ctx, "unfurls.queue.content", http.MethodPost, "applications/unfurls/queue/content", nil, payload, nil)
}

// RequestAuth attaches an authentication prompt to a queue item
// instead of preview content.
func (c *Client) RequestAuth(ctx context.Context, queueItemID string, message UnfurlContent) error {
	payload := map[string]any{
		"queueItemId": queueItemID,
		"message":     message,
	}
	return c.appCall(ctx, "unfurls.queue.request-auth", http.MethodPost,
		"applications/unfurls/queue/request-external-system-authentication", nil, payload, nil)
}

// ClearAuthRequests removes pending authentication prompts for a user,
// called after the user completed the Slack OAuth flow.
func (c *Client) ClearAuthRequests(ctx context.Context, profileID string) error {
	payload := map[string]any{"userId": profileID}
	return c.appCall(ctx, "unfurls.queue.clear-auth", http.MethodPost,
		"applications/unfurls/queue/clear-external-system-authentication-requests", nil, payload, nil)
}

// RequestUnfurlRights asks the org admins to grant the unfurl provider
// right, called once on application install.
func (c *Client) RequestUnfurlRights(ctx context.Context) error {
	payload := map[string]any{
		"contextIdentifier": "global",
		"rightCodes":        []string{UnfurlRightCode},
	}
	return c.appCall(ctx, "applications.request-rights", http.MethodPatch,
		"applications/clientId:"+c.clientID+"/authorizations/authorized-rights/request-rights", nil, payload, nil)
}

// UpdateUnfurledDomains registers the link domains this application
// provides previews for.
func (c *Client) UpdateUnfurledDomains(ctx context.Context, domains []string) error {
	payload := map[string]any{"domains": domains}
	return c.appCall(ctx, "applications.unfurl-domains", http.MethodPatch,
		"applications/clientId:"+c.clientID+"/unfurl-domains", nil, payload, nil)
}

// GetProfile resolves a team directory member. The identifier is one
// of the ProfileID or ProfileUsername forms.
func (c *Client) GetProfile(ctx context.Context, identifier string) (*Profile, error) {
	query := url.Values{}
	query.Set("$fields", "id,username")

	var profile Profile
	if err := c.appCall(ctx, "team-directory.profile", http.MethodGet, "team-directory/profiles/"+identifier, query, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

const channelFields = "contact(key,defaultName,ext(name))," +
	"content(projectKey(key),project(key)," +
	"issue(number,title,description)," +
	"codeReview(className,number,title,state,project(key),createdBy(name(firstName,lastName))))"

// GetChannel fetches a chat channel with the contact metadata and the
// issue or code review content backing it.
func (c *Client) GetChannel(ctx context.Context, accessToken, identifier string) (*Channel, error) {
	query := url.Values{}
	query.Set("$fields", channelFields)

	var channel Channel
	if err := c.call(ctx, "chats.channel", http.MethodGet, "chats/channels/"+identifier, accessToken, query, nil, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetChatMessage fetches a single message by internal id.
func (c *Client) GetChatMessage(ctx context.Context, accessToken, channelIdentifier, messageID string) (*ChatMessage, error) {
	query := url.Values{}
	query.Set("channel", channelIdentifier)
	query.Set("$fields", "author(name,details(user(name(firstName,lastName)))),created,text")

	var message ChatMessage
	if err := c.call(ctx, "chats.message", http.MethodGet, "chats/messages/id:"+messageID, accessToken, query, nil, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// GetIssue fetches a project issue by its number.
func (c *Client) GetIssue(ctx context.Context, accessToken, projectKey string, number int) (*Issue, error) {
	query := url.Values{}
	query.Set("$fields", "number,title,description")

	path := fmt.Sprintf("projects/key:%s/planning/issues/key:%s-T-%d", projectKey, projectKey, number)
	var issue Issue
	if err := c.call(ctx, "projects.issue", http.MethodGet, path, accessToken, query, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// GetCodeReview fetches a merge request or commit set review by its
// number.
func (c *Client) GetCodeReview(ctx context.Context, accessToken, projectKey string, number int) (*CodeReview, error) {
	query := url.Values{}
	query.Set("$fields", "className,number,title,state,project(key),createdBy(name(firstName,lastName))")

	path := fmt.Sprintf("projects/key:%s/code-reviews/number:%d", projectKey, number)
	var review CodeReview
	if err := c.call(ctx, "projects.code-review", http.MethodGet, path, accessToken, query, nil, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// ParseMarkdown turns message markdown into a rich text document for
// rendering into Slack mrkdwn.
func (c *Client) ParseMarkdown(ctx context.Context, accessToken, text string) (*Document, error) {
	payload := map[string]any{"text": text}

	var doc Document
	if err := c.call(ctx, "rich-text.parse", http.MethodPost, "rich-text/parse-markdown", accessToken, nil, payload, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Entity identifier builders for the path forms the API accepts.

func ProfileID(id string) string         { return "id:" + id }
func ProfileUsername(name string) string { return "username:" + name }

func ChannelID(id string) string          { return "id:" + id }
func ChannelContactKey(key string) string { return "contactKey:" + key }
func ChannelForIssue(id string) string    { return "issue:" + id }
func ChannelForReview(id string) string   { return "review:" + id }
