// Package services implements the two unfurl pipelines, the OAuth flow
// coordinator and the token lifecycle strategies on top of the store
// and the platform API clients.
package services

import (
	"context"

	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
)

// SlackAPI is the Slack client surface the services call.
type SlackAPI interface {
	ConversationsHistory(ctx context.Context, accessToken, channel, latest string, inclusive bool, limit int) ([]slack.Message, error)
	ConversationsReplies(ctx context.Context, accessToken, channel, threadTs, latest string, inclusive bool, limit int) ([]slack.Message, error)
	UsersInfo(ctx context.Context, accessToken, userID string) (*slack.User, error)
	ConversationsInfo(ctx context.Context, accessToken, channelID string) (*slack.Conversation, error)
	TeamInfo(ctx context.Context, accessToken, teamID string) (*slack.Team, error)
	UsergroupsList(ctx context.Context, accessToken string) ([]slack.Usergroup, error)
	Unfurl(ctx context.Context, accessToken string, req *slack.UnfurlRequest) error
	RespondToInteraction(ctx context.Context, responseURL string, payload any) error
	OAuthExchange(ctx context.Context, code, redirectURI string) (*slack.OAuthV2Response, error)
	OAuthRefresh(ctx context.Context, refreshToken string) (*slack.OAuthV2Response, error)
}

// SpaceAPI is the per-organization Space client surface.
type SpaceAPI interface {
	ServerURL() string
	GetUnfurlQueueItems(ctx context.Context, afterEtag *int64, batchSize int) ([]space.UnfurlQueueItem, error)
	PostUnfurlsContent(ctx context.Context, unfurls []space.ApplicationUnfurl) error
	RequestAuth(ctx context.Context, queueItemID string, message space.UnfurlContent) error
	ClearAuthRequests(ctx context.Context, profileID string) error
	RequestUnfurlRights(ctx context.Context) error
	UpdateUnfurledDomains(ctx context.Context, domains []string) error
	GetProfile(ctx context.Context, identifier string) (*space.Profile, error)
	RefreshUserToken(ctx context.Context, refreshToken string) (*space.TokenInfo, error)
	GetChannel(ctx context.Context, accessToken, identifier string) (*space.Channel, error)
	GetChatMessage(ctx context.Context, accessToken, channelIdentifier, messageID string) (*space.ChatMessage, error)
	GetIssue(ctx context.Context, accessToken, projectKey string, number int) (*space.Issue, error)
	GetCodeReview(ctx context.Context, accessToken, projectKey string, number int) (*space.CodeReview, error)
	ParseMarkdown(ctx context.Context, accessToken, text string) (*space.Document, error)
}

// SpaceClientFactory builds a client for one Space organization. The
// org carries the decrypted client secret from the store.
type SpaceClientFactory func(org *models.SpaceOrg) (SpaceAPI, error)

// LinkSharedNotification is one link_shared event handed from the
// events endpoint to the push pipeline consumer.
type LinkSharedNotification struct {
	TeamID string
	Event  *slack.LinkSharedEvent
}
