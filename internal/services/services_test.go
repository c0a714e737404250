package services

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"
	"github.com/JetBrains/space-slack-unfurls/internal/util"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cipher, err := util.NewCipher("services-test-passphrase")
	require.NoError(t, err)
	st, err := store.New("sqlite", ":memory:", cipher)
	require.NoError(t, err)
	return st
}

func testServiceConfig() *config.Config {
	return &config.Config{
		EntrypointURL:        "https://unfurls.example.com",
		SlackClientID:        "slack-client-id",
		SlackClientSecret:    "slack-client-secret",
		UnfurlQueueBatchSize: 100,
		DeferredReplayLimit:  10,
		NotificationBuffer:   8,
		OAuthSessionTTL:      time.Hour,
		LookupCacheTTL:       time.Minute,
	}
}

// fakeSlackAPI is an in-memory stand-in for the Slack Web API.
type fakeSlackAPI struct {
	mu sync.Mutex

	messages      map[string]slack.Message // "{channel}/{ts}"
	users         map[string]*slack.User
	conversations map[string]*slack.Conversation
	teams         map[string]*slack.Team
	usergroups    []slack.Usergroup

	unfurlErr    error
	unfurlCalls  []slack.UnfurlRequest
	interactions []string

	exchangeResp *slack.OAuthV2Response
	exchangeErr  error
	refreshResp  *slack.OAuthV2Response
	refreshErr   error
}

func newFakeSlackAPI() *fakeSlackAPI {
	return &fakeSlackAPI{
		messages:      map[string]slack.Message{},
		users:         map[string]*slack.User{},
		conversations: map[string]*slack.Conversation{},
		teams:         map[string]*slack.Team{},
	}
}

func (f *fakeSlackAPI) ConversationsHistory(ctx context.Context, accessToken, channel, latest string, inclusive bool, limit int) ([]slack.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[channel+"/"+latest]; ok {
		return []slack.Message{msg}, nil
	}
	return nil, nil
}

func (f *fakeSlackAPI) ConversationsReplies(ctx context.Context, accessToken, channel, threadTs, latest string, inclusive bool, limit int) ([]slack.Message, error) {
	return f.ConversationsHistory(ctx, accessToken, channel, latest, inclusive, limit)
}

func (f *fakeSlackAPI) UsersInfo(ctx context.Context, accessToken, userID string) (*slack.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		return user, nil
	}
	return nil, &tokens.CodeError{Op: "users.info", Code: "user_not_found"}
}

func (f *fakeSlackAPI) ConversationsInfo(ctx context.Context, accessToken, channelID string) (*slack.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[channelID]; ok {
		return conv, nil
	}
	return nil, &tokens.CodeError{Op: "conversations.info", Code: "channel_not_found"}
}

func (f *fakeSlackAPI) TeamInfo(ctx context.Context, accessToken, teamID string) (*slack.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if team, ok := f.teams[teamID]; ok {
		return team, nil
	}
	return nil, &tokens.CodeError{Op: "team.info", Code: "team_not_found"}
}

func (f *fakeSlackAPI) UsergroupsList(ctx context.Context, accessToken string) ([]slack.Usergroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usergroups, nil
}

func (f *fakeSlackAPI) Unfurl(ctx context.Context, accessToken string, req *slack.UnfurlRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unfurlErr != nil {
		return f.unfurlErr
	}
	f.unfurlCalls = append(f.unfurlCalls, *req)
	return nil
}

func (f *fakeSlackAPI) RespondToInteraction(ctx context.Context, responseURL string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactions = append(f.interactions, responseURL)
	return nil
}

func (f *fakeSlackAPI) OAuthExchange(ctx context.Context, code, redirectURI string) (*slack.OAuthV2Response, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.exchangeResp, nil
}

func (f *fakeSlackAPI) OAuthRefresh(ctx context.Context, refreshToken string) (*slack.OAuthV2Response, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshResp, nil
}

// fakeSpaceAPI is an in-memory stand-in for one org's Space HTTP API.
type fakeSpaceAPI struct {
	mu sync.Mutex

	serverURL string

	queue    []space.UnfurlQueueItem
	queueErr error

	posted  [][]space.ApplicationUnfurl
	postErr error

	authRequests    []string
	authCleared     []string
	rightsRequested bool
	domains         []string

	channels map[string]*space.Channel
	chatMsgs map[string]*space.ChatMessage // "{identifier}/{messageID}"
	issues   map[string]*space.Issue       // "{projectKey}/{number}"
	reviews  map[string]*space.CodeReview
	entity   error // injected failure for entity fetchers

	refreshResp *space.TokenInfo
	refreshErr  error
}

func newFakeSpaceAPI() *fakeSpaceAPI {
	return &fakeSpaceAPI{
		serverURL: "https://space.example.org",
		channels:  map[string]*space.Channel{},
		chatMsgs:  map[string]*space.ChatMessage{},
		issues:    map[string]*space.Issue{},
		reviews:   map[string]*space.CodeReview{},
	}
}

func (f *fakeSpaceAPI) factory() SpaceClientFactory {
	return func(org *models.SpaceOrg) (SpaceAPI, error) { return f, nil }
}

func (f *fakeSpaceAPI) ServerURL() string { return f.serverURL }

func (f *fakeSpaceAPI) GetUnfurlQueueItems(ctx context.Context, afterEtag *int64, batchSize int) ([]space.UnfurlQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	var items []space.UnfurlQueueItem
	for _, item := range f.queue {
		if afterEtag != nil && item.Etag <= *afterEtag {
			continue
		}
		items = append(items, item)
		if len(items) == batchSize {
			break
		}
	}
	return items, nil
}

func (f *fakeSpaceAPI) PostUnfurlsContent(ctx context.Context, unfurls []space.ApplicationUnfurl) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, unfurls)
	return nil
}

func (f *fakeSpaceAPI) RequestAuth(ctx context.Context, queueItemID string, message space.UnfurlContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authRequests = append(f.authRequests, queueItemID)
	return nil
}

func (f *fakeSpaceAPI) ClearAuthRequests(ctx context.Context, profileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCleared = append(f.authCleared, profileID)
	return nil
}

func (f *fakeSpaceAPI) RequestUnfurlRights(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rightsRequested = true
	return nil
}

func (f *fakeSpaceAPI) UpdateUnfurledDomains(ctx context.Context, domains []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains = domains
	return nil
}

func (f *fakeSpaceAPI) GetProfile(ctx context.Context, identifier string) (*space.Profile, error) {
	return &space.Profile{ID: "profile-id"}, nil
}

func (f *fakeSpaceAPI) RefreshUserToken(ctx context.Context, refreshToken string) (*space.TokenInfo, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshResp, nil
}

func (f *fakeSpaceAPI) GetChannel(ctx context.Context, accessToken, identifier string) (*space.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entity != nil {
		return nil, f.entity
	}
	if channel, ok := f.channels[identifier]; ok {
		return channel, nil
	}
	return nil, &space.APIError{Op: "chats.channels.get", Status: 404, ErrorCode: "not_found"}
}

func (f *fakeSpaceAPI) GetChatMessage(ctx context.Context, accessToken, channelIdentifier, messageID string) (*space.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entity != nil {
		return nil, f.entity
	}
	if msg, ok := f.chatMsgs[channelIdentifier+"/"+messageID]; ok {
		return msg, nil
	}
	return nil, &space.APIError{Op: "chats.messages.get", Status: 404, ErrorCode: "not_found"}
}

func (f *fakeSpaceAPI) GetIssue(ctx context.Context, accessToken, projectKey string, number int) (*space.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entity != nil {
		return nil, f.entity
	}
	if issue, ok := f.issues[issueKey(projectKey, number)]; ok {
		return issue, nil
	}
	return nil, &space.APIError{Op: "projects.planning.issues.get", Status: 404, ErrorCode: "not_found"}
}

func (f *fakeSpaceAPI) GetCodeReview(ctx context.Context, accessToken, projectKey string, number int) (*space.CodeReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entity != nil {
		return nil, f.entity
	}
	if review, ok := f.reviews[issueKey(projectKey, number)]; ok {
		return review, nil
	}
	return nil, &space.APIError{Op: "projects.code-reviews.get", Status: 404, ErrorCode: "not_found"}
}

func (f *fakeSpaceAPI) ParseMarkdown(ctx context.Context, accessToken, text string) (*space.Document, error) {
	if f.entity != nil {
		return nil, f.entity
	}
	// One paragraph with the raw text, close enough for rendering
	// assertions.
	return &space.Document{Children: []space.DocumentNode{{
		ClassName: "RtParagraph",
		Children:  []space.DocumentNode{{ClassName: "RtText", Value: text}},
	}}}, nil
}

func issueKey(projectKey string, number int) string {
	return projectKey + "/" + strconv.Itoa(number)
}
