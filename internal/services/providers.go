package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/richtext"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"
)

// spaceUserClient bundles a token manager with one org's API client
// for fetching Space entities on behalf of a Slack user.
type spaceUserClient struct {
	mgr     *tokens.Manager
	api     SpaceAPI
	logoURL string
}

func (c *spaceUserClient) execute(ctx context.Context, call func(ctx context.Context, accessToken string) error) error {
	return c.mgr.Execute(ctx, call)
}

func (c *spaceUserClient) spaceLogo() slack.ImageElement {
	return slack.ContextImage(c.logoURL, "Space Logo")
}

const descriptionLimit = 3000

// providerFunc produces a preview for one matched Space link. A nil
// result with a nil error means the link points at a supported path
// but not at an entity this service can preview.
type providerFunc func(ctx context.Context, target *url.URL, groups []string, client *spaceUserClient) (*slack.Unfurl, error)

type linkMatcher struct {
	pattern *regexp.Regexp
	provide providerFunc
}

const projectKeyPattern = `([A-Z](?:(?:[_-][A-Z0-9])|[A-Z0-9])+)`

// linkMatchers is checked in order against the full encoded path of a
// shared link; the first matching pattern decides the provider.
var linkMatchers = []linkMatcher{
	{regexp.MustCompile(`(?i)^/p/` + projectKeyPattern + `/issues/(\d+)$`), issueByDirectLink},
	{regexp.MustCompile(`(?i)^/im/issue/([A-Z0-9]*)$`), issueByChannel},
	{regexp.MustCompile(`(?i)^/p/` + projectKeyPattern + `/reviews/(\d+)(/.*)?$`), reviewByDirectLink},
	{regexp.MustCompile(`(?i)^/im/review/([A-Z0-9]*)$`), reviewByChannel},
	{regexp.MustCompile(`(?i)^/im/([A-Z0-9.\-_@/]*)$`), chatByContactKey},
}

// matchLink finds the provider for a link path. Returns false when no
// pattern matches and the link cannot be unfurled at all.
func matchLink(target *url.URL) (providerFunc, []string, bool) {
	path := target.EscapedPath()
	for _, m := range linkMatchers {
		if groups := m.pattern.FindStringSubmatch(path); groups != nil {
			return m.provide, groups, true
		}
	}
	return nil, nil, false
}

func issueByDirectLink(ctx context.Context, target *url.URL, groups []string, client *spaceUserClient) (*slack.Unfurl, error) {
	projectKey := strings.ToUpper(groups[1])
	number, err := strconv.Atoi(groups[2])
	if err != nil {
		return nil, nil
	}

	var issue *space.Issue
	err = client.execute(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		issue, callErr = client.api.GetIssue(ctx, accessToken, projectKey, number)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return issueUnfurl(target, projectKey, issue, client), nil
}

func issueByChannel(ctx context.Context, target *url.URL, groups []string, client *spaceUserClient) (*slack.Unfurl, error) {
	// Issue channels with a message parameter point at a comment, not
	// at the issue itself.
	if target.Query().Get("message") != "" {
		return nil, nil
	}

	var channel *space.Channel
	err := client.execute(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		channel, callErr = client.api.GetChannel(ctx, accessToken, space.ChannelForIssue(groups[1]))
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if channel.Content == nil || channel.Content.ProjectKey == nil || channel.Content.Issue == nil {
		return nil, nil
	}
	projectKey := strings.ToUpper(channel.Content.ProjectKey.Key)
	return issueUnfurl(target, projectKey, channel.Content.Issue, client), nil
}

func issueUnfurl(target *url.URL, projectKey string, issue *space.Issue, client *spaceUserClient) *slack.Unfurl {
	blocks := []slack.Block{
		slack.SectionBlock(fmt.Sprintf("<%s|*%s-T-%d* %s>", target, projectKey, issue.Number, issue.Title)),
	}
	if issue.Description != "" {
		blocks = append(blocks, slack.SectionBlock(richtext.Truncate(issue.Description, descriptionLimit)))
	}
	blocks = append(blocks, slack.ContextBlock(
		client.spaceLogo(),
		slack.MarkdownText(fmt.Sprintf("JetBrains Space issue in <%s|%s> project", projectURL(target, projectKey), projectKey)),
	))
	return &slack.Unfurl{Blocks: blocks}
}

func reviewByDirectLink(ctx context.Context, target *url.URL, groups []string, client *spaceUserClient) (*slack.Unfurl, error) {
	projectKey := strings.ToUpper(groups[1])
	number, err := strconv.Atoi(groups[2])
	if err != nil {
		return nil, nil
	}

	var review *space.CodeReview
	err = client.execute(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		review, callErr = client.api.GetCodeReview(ctx, accessToken, projectKey, number)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, nil
	}
	return reviewUnfurl(target, review, client), nil
}

func reviewByChannel(ctx context.Context, target *url.URL, groups []string, client *spaceUserClient) (*slack.Unfurl, error) {
	identifier := space.ChannelForReview(groups[1])

	// Review channels with a message parameter point at a discussion
	// message; unfurl that message instead of the review.
	if messageID := target.Query().Get("message"); messageID != "" {
		return messageUnfurl(ctx, target, identifier, messageID, client)
	}

	var channel *space.Channel
	err := client.execute(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		channel, callErr = client.api.GetChannel(ctx, accessToken, identifier)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if channel.Content == nil || channel.Content.Project == nil || channel.Content.CodeReview == nil {
		return nil, nil
	}
	review := channel.Content.CodeReview
	if review.Project.Key == "" {
		review.Project = *channel.Content.Project
	}
	return reviewUnfurl(target, review, client), nil
}

func reviewUnfurl(target *url.URL, review *space.CodeReview, client *spaceUserClient) *slack.Unfurl {
	projectKey := review.Project.Key

	var title, status, kind string
	if review.IsMergeRequest() {
		title = fmt.Sprintf("<%s|*%s-MR-%d* %s>", target, projectKey, review.Number, review.Title)
		status = review.State
		if review.CreatedBy != nil {
			status = fmt.Sprintf("%s, authored by *%s %s*", review.State, review.CreatedBy.Name.FirstName, review.CreatedBy.Name.LastName)
		}
		kind = "merge request"
	} else {
		title = fmt.Sprintf("<%s|*%s-CR-%d* %s>", target, projectKey, review.Number, review.Title)
		status = review.State
		if review.CreatedBy != nil {
			status = fmt.Sprintf("Authored by *%s %s*, %s", review.CreatedBy.Name.FirstName, review.CreatedBy.Name.LastName, review.State)
		}
		kind = "code review"
	}

	return &slack.Unfurl{Blocks: []slack.Block{
		slack.SectionBlock(title),
		slack.ContextBlock(slack.MarkdownText(status)),
		slack.ContextBlock(
			client.spaceLogo(),
			slack.MarkdownText(fmt.Sprintf("JetBrains Space %s in <%s|%s> project", kind, projectURL(target, projectKey), projectKey)),
		),
	}}
}

func chatByContactKey(ctx context.Context, target *url.URL, groups []string, client *spaceUserClient) (*slack.Unfurl, error) {
	contactKey := groups[1]
	query := target.Query()

	identifier := space.ChannelContactKey(contactKey)
	if channelID := query.Get("channel"); channelID != "" {
		identifier = space.ChannelID(channelID)
	}

	if messageID := query.Get("message"); messageID != "" {
		return messageUnfurl(ctx, target, identifier, messageID, client)
	}

	var channel *space.Channel
	err := client.execute(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		channel, callErr = client.api.GetChannel(ctx, accessToken, identifier)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return &slack.Unfurl{Blocks: []slack.Block{
		slack.ContextBlock(
			client.spaceLogo(),
			slack.MarkdownText(fmt.Sprintf("<%s|%s> in JetBrains Space", target, channel.Name())),
		),
	}}, nil
}

// messageUnfurl previews a single chat message: the channel card line,
// the message body rendered to mrkdwn and a link back to Space.
func messageUnfurl(ctx context.Context, target *url.URL, channelIdentifier, messageID string, client *spaceUserClient) (*slack.Unfurl, error) {
	var (
		channel *space.Channel
		message *space.ChatMessage
		body    *space.Document
	)
	err := client.execute(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		if channel, callErr = client.api.GetChannel(ctx, accessToken, channelIdentifier); callErr != nil {
			return callErr
		}
		if message, callErr = client.api.GetChatMessage(ctx, accessToken, channelIdentifier, messageID); callErr != nil {
			return callErr
		}
		body, callErr = client.api.ParseMarkdown(ctx, accessToken, message.Text)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	channelURL := &url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/im/" + channel.Contact.Key}

	return &slack.Unfurl{Blocks: []slack.Block{
		slack.ContextBlock(slack.MarkdownText(fmt.Sprintf(
			"*%s* in <%s|%s> (%s)",
			message.Author.DisplayName(), channelURL, channel.Name(), messageCreatedAt(message.Created),
		))),
		slack.SectionBlock(richtext.RenderDocument(body)),
		slack.ContextBlock(
			client.spaceLogo(),
			slack.MarkdownText(fmt.Sprintf("<%s|View message>", target)),
		),
	}}, nil
}

func messageCreatedAt(created string) string {
	at, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return created
	}
	return at.UTC().Format("2006-01-02 15:04")
}

// projectURL strips a link down to its project root.
func projectURL(target *url.URL, projectKey string) string {
	u := url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/p/" + projectKey}
	return u.String()
}
