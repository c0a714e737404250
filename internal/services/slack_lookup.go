package services

import (
	"context"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/cache"
	"github.com/JetBrains/space-slack-unfurls/internal/richtext"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"
)

// slackUserClient bundles a token manager with the API client and the
// display-name cache for one (team, author) group of queue items.
type slackUserClient struct {
	mgr    *tokens.Manager
	api    SlackAPI
	teamID string
	names  cache.Cache[string]
	ttl    time.Duration
}

func (c *slackUserClient) execute(ctx context.Context, call func(ctx context.Context, accessToken string) error) error {
	return c.mgr.Execute(ctx, call)
}

// fetchMessage resolves the single message a permalink points to, or
// the thread reply when threadTs is set. Returns nil when the message
// is gone.
func (c *slackUserClient) fetchMessage(ctx context.Context, channel, threadTs, ts string) (*slack.Message, error) {
	var messages []slack.Message
	err := c.execute(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		if threadTs != "" {
			messages, callErr = c.api.ConversationsReplies(ctx, accessToken, channel, threadTs, ts, true, 1)
		} else {
			messages, callErr = c.api.ConversationsHistory(ctx, accessToken, channel, ts, true, 1)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 || messages[0].Ts != ts {
		return nil, nil
	}
	return &messages[0], nil
}

func (c *slackUserClient) cached(ctx context.Context, key string, fetch func(ctx context.Context) (string, error)) (string, bool) {
	value, err := cache.GetWithFetch(ctx, c.names, key, c.ttl, func(ctx context.Context, _ string) (string, error) {
		return fetch(ctx)
	})
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

func (c *slackUserClient) userName(ctx context.Context, userID string) (string, bool) {
	return c.cached(ctx, "slack:user:"+c.teamID+":"+userID, func(ctx context.Context) (string, error) {
		var name string
		err := c.execute(ctx, func(ctx context.Context, accessToken string) error {
			user, callErr := c.api.UsersInfo(ctx, accessToken, userID)
			if callErr != nil {
				return callErr
			}
			name = user.DisplayLabel()
			return nil
		})
		return name, err
	})
}

// channelLabel renders "#name" for channels and "DM with <user>" for
// direct message conversations.
func (c *slackUserClient) channelLabel(ctx context.Context, channelID string) (string, bool) {
	return c.cached(ctx, "slack:channel:"+c.teamID+":"+channelID, func(ctx context.Context) (string, error) {
		var conv *slack.Conversation
		err := c.execute(ctx, func(ctx context.Context, accessToken string) error {
			var callErr error
			conv, callErr = c.api.ConversationsInfo(ctx, accessToken, channelID)
			return callErr
		})
		if err != nil {
			return "", err
		}
		if conv.IsIM {
			if name, ok := c.userName(ctx, conv.User); ok {
				return "DM with " + name, nil
			}
			return "", nil
		}
		if conv.Name == "" {
			return "", nil
		}
		return "#" + conv.Name, nil
	})
}

func (c *slackUserClient) teamName(ctx context.Context, teamID string) (string, bool) {
	return c.cached(ctx, "slack:team:"+teamID, func(ctx context.Context) (string, error) {
		var name string
		err := c.execute(ctx, func(ctx context.Context, accessToken string) error {
			team, callErr := c.api.TeamInfo(ctx, accessToken, teamID)
			if callErr != nil {
				return callErr
			}
			name = team.Name
			return nil
		})
		return name, err
	})
}

func (c *slackUserClient) usergroupName(ctx context.Context, usergroupID string) (string, bool) {
	return c.cached(ctx, "slack:usergroup:"+c.teamID+":"+usergroupID, func(ctx context.Context) (string, error) {
		var name string
		err := c.execute(ctx, func(ctx context.Context, accessToken string) error {
			groups, callErr := c.api.UsergroupsList(ctx, accessToken)
			if callErr != nil {
				return callErr
			}
			for _, g := range groups {
				if g.ID == usergroupID {
					name = g.Name
					break
				}
			}
			return nil
		})
		return name, err
	})
}

// lookups resolves every mention appearing in the message blocks so
// the converter can run without callbacks.
func (c *slackUserClient) lookups(ctx context.Context, slackDomain string, blocks []slack.RichTextBlock) richtext.Lookups {
	lk := richtext.Lookups{
		SlackDomain: slackDomain,
		Users:       map[string]string{},
		Channels:    map[string]string{},
		Teams:       map[string]string{},
		UserGroups:  map[string]string{},
	}
	users, channels, teams, usergroups := collectMentions(blocks)
	for id := range users {
		if name, ok := c.userName(ctx, id); ok {
			lk.Users[id] = name
		}
	}
	for id := range channels {
		if label, ok := c.channelLabel(ctx, id); ok {
			lk.Channels[id] = label
		}
	}
	for id := range teams {
		if name, ok := c.teamName(ctx, id); ok {
			lk.Teams[id] = name
		}
	}
	for id := range usergroups {
		if name, ok := c.usergroupName(ctx, id); ok {
			lk.UserGroups[id] = name
		}
	}
	return lk
}

func collectMentions(blocks []slack.RichTextBlock) (users, channels, teams, usergroups map[string]bool) {
	users = map[string]bool{}
	channels = map[string]bool{}
	teams = map[string]bool{}
	usergroups = map[string]bool{}

	var walk func(elements []slack.RichTextElement)
	walk = func(elements []slack.RichTextElement) {
		for _, el := range elements {
			switch el.Type {
			case "user":
				users[el.UserID] = true
			case "channel":
				channels[el.ChannelID] = true
			case "team":
				teams[el.TeamID] = true
			case "usergroup":
				usergroups[el.UsergroupID] = true
			}
			walk(el.Elements)
		}
	}
	for _, block := range blocks {
		walk(block.Elements)
	}
	return users, channels, teams, usergroups
}
