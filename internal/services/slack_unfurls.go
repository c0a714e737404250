package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/cache"
	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/richtext"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"
)

// SlackUnfurlService drains the Space unfurl queue and attaches
// previews for Slack message links. One queue processing run is in
// flight at a time; new-items notifications are funneled through the
// channel owned by the bootstrap.
type SlackUnfurlService struct {
	store    *store.Store
	config   *config.Config
	slack    SlackAPI
	spaceFor SpaceClientFactory
	names    cache.Cache[string]
	recorder metrics.Recorder
	notify   chan<- string
}

func NewSlackUnfurlService(
	st *store.Store,
	cfg *config.Config,
	slackAPI SlackAPI,
	spaceFor SpaceClientFactory,
	names cache.Cache[string],
	recorder metrics.Recorder,
	notify chan<- string,
) *SlackUnfurlService {
	return &SlackUnfurlService{
		store:    st,
		config:   cfg,
		slack:    slackAPI,
		spaceFor: spaceFor,
		names:    names,
		recorder: recorder,
		notify:   notify,
	}
}

// ScheduleProcessing queues one processing run for a Space org. Drops
// the notification when the channel is full: the queue cursor makes
// the next run pick up everything anyway.
func (s *SlackUnfurlService) ScheduleProcessing(spaceClientID string) {
	select {
	case s.notify <- spaceClientID:
	default:
		log.Printf("Unfurl queue notification buffer full, dropping notification for Space org %s", spaceClientID)
	}
}

// InstallOrg persists a Space organization on application install and
// registers this app as the unfurl provider for slack.com links.
func (s *SlackUnfurlService) InstallOrg(ctx context.Context, clientID, clientSecret, serverURL string) error {
	parsed, err := url.Parse(serverURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid Space server url %q", serverURL)
	}
	if err := s.store.SaveSpaceOrg(clientID, clientSecret, serverURL, parsed.Host); err != nil {
		return err
	}

	org, err := s.store.GetSpaceOrg(clientID)
	if err != nil {
		return err
	}
	client, err := s.spaceFor(org)
	if err != nil {
		return err
	}
	if err := client.RequestUnfurlRights(ctx); err != nil {
		return fmt.Errorf("request unfurl rights: %w", err)
	}
	if err := client.UpdateUnfurledDomains(ctx, []string{"slack.com"}); err != nil {
		return fmt.Errorf("register unfurl domains: %w", err)
	}
	log.Printf("Installed to Space org %s at %s", clientID, serverURL)
	return nil
}

// OnSlackAuthCompleted clears pending auth prompts for the user in
// Space and schedules a queue run to unfurl the links that were
// waiting for the credential.
func (s *SlackUnfurlService) OnSlackAuthCompleted(ctx context.Context, key models.SpaceUserKey) error {
	org, err := s.store.GetSpaceOrg(key.SpaceOrgID)
	if err != nil {
		return err
	}
	client, err := s.spaceFor(org)
	if err != nil {
		return err
	}
	if err := client.ClearAuthRequests(ctx, key.SpaceUserID); err != nil {
		return err
	}
	s.ScheduleProcessing(key.SpaceOrgID)
	return nil
}

// OnUnfurlAction handles the "not now" and "never" buttons of the auth
// prompt posted into Space.
func (s *SlackUnfurlService) OnUnfurlAction(ctx context.Context, spaceClientID, spaceUserID, actionID, slackTeamID string) error {
	org, err := s.store.GetSpaceOrg(spaceClientID)
	if err != nil {
		return err
	}
	client, err := s.spaceFor(org)
	if err != nil {
		return err
	}
	if err := client.ClearAuthRequests(ctx, spaceUserID); err != nil {
		return err
	}
	if actionID == space.ActionNever {
		key := models.SpaceUserKey{SpaceOrgID: spaceClientID, SpaceUserID: spaceUserID, SlackTeamID: slackTeamID}
		if err := s.store.DisableSlackUnfurls(key); err != nil {
			return err
		}
		log.Printf("Disabled Slack link previews for %s", key)
	}
	return nil
}

// queueLink is one queue item parsed down to its Slack coordinates.
type queueLink struct {
	item      space.UnfurlQueueItem
	domain    string
	channel   string
	messageID string
	threadTs  string
}

type authorGroup struct {
	team  *models.SlackTeam
	key   models.SpaceUserKey
	links []queueLink
}

// ProcessQueue drains the unfurl queue of one Space org: fetch a batch
// after the stored etag, produce previews, write them back, advance
// the cursor, repeat until the queue is empty. The cursor only moves
// after a successful write-back, so a crash redelivers the batch.
func (s *SlackUnfurlService) ProcessQueue(ctx context.Context, spaceClientID string) error {
	org, err := s.store.GetSpaceOrg(spaceClientID)
	if err != nil {
		return fmt.Errorf("load Space org %s: %w", spaceClientID, err)
	}
	spaceClient, err := s.spaceFor(org)
	if err != nil {
		return err
	}

	etag := org.LastUnfurlQueueEtag
	for {
		start := time.Now()
		items, err := spaceClient.GetUnfurlQueueItems(ctx, etag, s.config.UnfurlQueueBatchSize)
		if err != nil {
			return fmt.Errorf("fetch unfurl queue for %s: %w", spaceClientID, err)
		}
		if len(items) == 0 {
			return nil
		}

		unfurls := s.processBatch(ctx, org, spaceClient, items)
		if len(unfurls) > 0 {
			if err := spaceClient.PostUnfurlsContent(ctx, unfurls); err != nil {
				return fmt.Errorf("post unfurls content for %s: %w", spaceClientID, err)
			}
			s.recorder.RecordUnfurlsProduced(metrics.DirectionSlackToSpace, len(unfurls))
		}

		last := items[len(items)-1].Etag
		if err := s.store.UpdateSpaceOrgEtag(org.ClientID, &last); err != nil {
			return fmt.Errorf("advance queue cursor for %s: %w", spaceClientID, err)
		}
		etag = &last
		s.recorder.RecordQueueBatch(len(items), time.Since(start))
	}
}

func (s *SlackUnfurlService) processBatch(ctx context.Context, org *models.SpaceOrg, spaceClient SpaceAPI, items []space.UnfurlQueueItem) []space.ApplicationUnfurl {
	var (
		authorless int
		unmatched  int
		groups     []*authorGroup
		groupIndex = map[models.SpaceUserKey]*authorGroup{}
	)

	for _, item := range items {
		if item.AuthorUserID == "" {
			authorless++
			continue
		}
		link, ok := parseArchiveLink(item)
		if !ok {
			unmatched++
			continue
		}
		team, err := s.store.GetSlackTeamByDomain(link.domain)
		if err != nil {
			unmatched++
			continue
		}

		key := models.SpaceUserKey{
			SpaceOrgID:  org.ClientID,
			SpaceUserID: item.AuthorUserID,
			SlackTeamID: team.ID,
		}
		group, ok := groupIndex[key]
		if !ok {
			group = &authorGroup{team: team, key: key}
			groupIndex[key] = group
			groups = append(groups, group)
		}
		group.links = append(group.links, link)
	}
	if authorless > 0 || unmatched > 0 {
		log.Printf("Skipped queue items for Space org %s: %d without author, %d not pointing at an installed Slack workspace", org.ClientID, authorless, unmatched)
	}

	var unfurls []space.ApplicationUnfurl
	for _, group := range groups {
		unfurls = append(unfurls, s.processGroup(ctx, spaceClient, group)...)
	}
	return unfurls
}

func (s *SlackUnfurlService) processGroup(ctx context.Context, spaceClient SpaceAPI, group *authorGroup) []space.ApplicationUnfurl {
	cred, err := s.store.GetSlackUserToken(group.key)
	if err != nil {
		log.Printf("Load Slack credential for %s: %v", group.key, err)
		return nil
	}

	switch {
	case cred == nil:
		s.requestSlackAuth(ctx, spaceClient, group)
		return nil
	case cred.State() == store.CredentialDisabled:
		return nil
	}

	uc := &slackUserClient{
		mgr:    tokens.New(credentialToToken(cred), slackUserStrategy(s.store, s.slack, s.recorder, group.key)),
		api:    s.slack,
		teamID: group.key.SlackTeamID,
		names:  s.names,
		ttl:    s.config.LookupCacheTTL,
	}

	var unfurls []space.ApplicationUnfurl
	for _, link := range group.links {
		content, err := s.provideUnfurl(ctx, uc, group.team, link)
		if err != nil {
			s.recorder.RecordUnfurlFailed(metrics.DirectionSlackToSpace, "fetch")
			log.Printf("Unfurl queue item %s: %v", link.item.ID, err)
			continue
		}
		if content == nil {
			s.recorder.RecordUnfurlFailed(metrics.DirectionSlackToSpace, "message_missing")
			log.Printf("Failed to fetch message for queue item %s", link.item.ID)
			continue
		}
		unfurls = append(unfurls, space.ApplicationUnfurl{QueueItemID: link.item.ID, Content: *content})
	}
	return unfurls
}

// requestSlackAuth attaches a single auth prompt per (team, author)
// group, on the group's first queue item.
func (s *SlackUnfurlService) requestSlackAuth(ctx context.Context, spaceClient SpaceAPI, group *authorGroup) {
	authURL := s.config.EntrypointURL + "/slack/oauth?" + url.Values{
		"spaceOrgId":  {group.key.SpaceOrgID},
		"spaceUserId": {group.key.SpaceUserID},
		"slackTeamId": {group.key.SlackTeamID},
	}.Encode()

	prompt := space.UnfurlContent{
		Sections: []space.UnfurlSection{{Elements: []space.UnfurlElement{
			space.TextElement("Authenticate in Slack to get link previews in Space"),
			space.ControlGroup(
				space.NavigateButton("Authenticate", authURL),
				space.PostMessageButton("Not now", space.ActionNotNow, group.key.SlackTeamID),
				space.PostMessageButton("Never ask me again", space.ActionNever, group.key.SlackTeamID),
			),
		}}},
	}

	if err := spaceClient.RequestAuth(ctx, group.links[0].item.ID, prompt); err != nil {
		log.Printf("Request Slack authentication for %s: %v", group.key, err)
		return
	}
	s.recorder.RecordAuthPrompt(metrics.DirectionSlackToSpace)
	log.Printf("Requested Slack authentication for %s covering %d links", group.key, len(group.links))
}

func (s *SlackUnfurlService) provideUnfurl(ctx context.Context, uc *slackUserClient, team *models.SlackTeam, link queueLink) (*space.UnfurlContent, error) {
	ts := messageIDToTs(link.messageID)
	msg, err := uc.fetchMessage(ctx, link.channel, link.threadTs, ts)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}

	author := msg.User
	if name, ok := uc.userName(ctx, msg.User); ok {
		author = name
	}

	var channelLink string
	if link.threadTs != "" {
		channelLink = fmt.Sprintf("https://%s.slack.com/archives/%s/%s", team.Domain, link.channel, link.messageID)
	} else if label, ok := uc.channelLabel(ctx, link.channel); ok {
		channelLink = richtext.ChannelLink(team.Domain, link.channel, label)
	} else {
		channelLink = link.channel
	}

	body := richtext.RenderMessage(msg, uc.lookups(ctx, team.Domain, msg.Blocks))

	return &space.UnfurlContent{
		Outline: &space.UnfurlOutline{
			Icon: &space.Icon{Icon: "slack"},
			Text: fmt.Sprintf("*%s* in %s (%s)", author, channelLink, messageTime(ts)),
		},
		Sections: []space.UnfurlSection{{Elements: []space.UnfurlElement{
			space.TextElement(body),
			space.TextElement("[View message](" + link.item.Target + ")"),
		}}},
	}, nil
}

// parseArchiveLink accepts https://{team}.slack.com/archives/{channel}/
// {messageId} permalinks, with an optional thread_ts query parameter.
func parseArchiveLink(item space.UnfurlQueueItem) (queueLink, bool) {
	parsed, err := url.Parse(item.Target)
	if err != nil {
		return queueLink{}, false
	}
	domain, ok := strings.CutSuffix(parsed.Host, ".slack.com")
	if !ok || domain == "" {
		return queueLink{}, false
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "archives" {
		return queueLink{}, false
	}
	return queueLink{
		item:      item,
		domain:    domain,
		channel:   parts[1],
		messageID: parts[2],
		threadTs:  parsed.Query().Get("thread_ts"),
	}, true
}

// messageIDToTs converts the permalink message id ("p1660000000000100")
// into the API timestamp form ("1660000000.000100").
func messageIDToTs(messageID string) string {
	id := strings.TrimPrefix(messageID, "p")
	if len(id) <= 6 {
		return id
	}
	return id[:len(id)-6] + "." + id[len(id)-6:]
}

// messageTime renders the timestamp's second part as a human readable
// UTC time for the outline.
func messageTime(ts string) string {
	seconds, _, _ := strings.Cut(ts, ".")
	epoch, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return ts
	}
	return time.Unix(epoch, 0).UTC().Format("2006-01-02 15:04")
}
