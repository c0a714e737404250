package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"
)

// Interactive action ids of the auth prompt posted into Slack.
const (
	SlackActionAuthenticate = "authenticate"
	SlackActionNotNow       = "not-now"
	SlackActionNever        = "never"
)

// SpaceUnfurlService turns link_shared events from Slack into previews
// of Space issues, code reviews, channels and messages. Links whose
// author has no Space credential yet are parked as deferred events and
// replayed after the user authenticates.
type SpaceUnfurlService struct {
	store    *store.Store
	config   *config.Config
	slack    SlackAPI
	spaceFor SpaceClientFactory
	recorder metrics.Recorder
}

func NewSpaceUnfurlService(
	st *store.Store,
	cfg *config.Config,
	slackAPI SlackAPI,
	spaceFor SpaceClientFactory,
	recorder metrics.Recorder,
) *SpaceUnfurlService {
	return &SpaceUnfurlService{
		store:    st,
		config:   cfg,
		slack:    slackAPI,
		spaceFor: spaceFor,
		recorder: recorder,
	}
}

// deferredLinkEvent is the persisted form of a link_shared event that
// waits for the author to authenticate in Space.
type deferredLinkEvent struct {
	TeamID string                 `json:"teamId"`
	Event  *slack.LinkSharedEvent `json:"event"`
}

// readyLink is one shared link whose author holds a Space credential.
type readyLink struct {
	originalLink string
	target       *url.URL
	key          models.SlackUserKey
	client       *spaceUserClient
	groups       []string
	provide      providerFunc
}

// HandleLinkShared processes one link_shared event. Links that can be
// previewed are always unfurled; the auth prompt is attached only when
// every matched link waits for a Space credential.
func (s *SpaceUnfurlService) HandleLinkShared(ctx context.Context, teamID string, event *slack.LinkSharedEvent) error {
	team, err := s.store.GetSlackTeam(teamID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && team.AccessToken == "") {
		log.Printf("Application is not installed into Slack team %s, dropping link_shared event", teamID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load Slack team %s: %w", teamID, err)
	}
	teamMgr := tokens.New(
		&tokens.Credential{AccessToken: team.AccessToken, RefreshToken: team.RefreshToken},
		slackTeamStrategy(s.store, s.slack, s.recorder, teamID),
	)

	var (
		ready      []readyLink
		needAuth   []*models.SpaceOrg
		noOrg      int
		unmatched  int
		disabled   int
	)
	for _, link := range event.Links {
		// Slack html-escapes ampersands in shared link urls.
		target, err := url.Parse(strings.ReplaceAll(link.URL, "&amp;", "&"))
		if err != nil {
			unmatched++
			continue
		}
		org, err := s.store.GetSpaceOrgByDomain(target.Host)
		if errors.Is(err, store.ErrNotFound) {
			noOrg++
			continue
		}
		if err != nil {
			log.Printf("Load Space org for host %s: %v", target.Host, err)
			continue
		}
		provide, groups, ok := matchLink(target)
		if !ok {
			unmatched++
			continue
		}

		key := models.SlackUserKey{SlackTeamID: teamID, SlackUserID: event.User, SpaceOrgID: org.ClientID}
		cred, err := s.store.GetSpaceUserToken(key)
		if err != nil {
			log.Printf("Load Space credential for %s: %v", key, err)
			continue
		}
		switch {
		case cred == nil:
			needAuth = append(needAuth, org)
		case cred.State() == store.CredentialDisabled:
			disabled++
		default:
			api, err := s.spaceFor(org)
			if err != nil {
				log.Printf("Build Space client for org %s: %v", org.ClientID, err)
				continue
			}
			ready = append(ready, readyLink{
				originalLink: link.URL,
				target:       target,
				key:          key,
				client: &spaceUserClient{
					mgr:     tokens.New(credentialToToken(cred), spaceUserStrategy(s.store, api, s.recorder, key)),
					api:     api,
					logoURL: s.config.EntrypointURL + "/static/space.jpeg",
				},
				groups:  groups,
				provide: provide,
			})
		}
	}
	if noOrg > 0 || unmatched > 0 || disabled > 0 {
		log.Printf("Skipped shared links for Slack team %s: %d without an installed Space org, %d not pointing at an unfurlable entity, %d disabled by user", teamID, noOrg, unmatched, disabled)
	}

	if len(ready) == 0 && len(needAuth) > 0 {
		return s.requestSpaceAuth(ctx, teamMgr, teamID, event, needAuth[0])
	}

	unfurls := map[string]slack.Unfurl{}
	for _, item := range ready {
		content, err := item.provide(ctx, item.target, item.groups, item.client)
		if err != nil {
			if space.IsAuthError(err) {
				log.Printf("Dropping Space refresh token for %s after authentication failure: %v", item.key, err)
				if delErr := s.store.DeleteSpaceUserToken(item.key); delErr != nil {
					log.Printf("Delete Space credential for %s: %v", item.key, delErr)
				}
			}
			s.recorder.RecordUnfurlFailed(metrics.DirectionSpaceToSlack, "fetch")
			log.Printf("Providing unfurl for %s: %v", item.originalLink, err)
			continue
		}
		if content == nil {
			continue
		}
		unfurls[item.originalLink] = *content
	}
	if len(unfurls) == 0 {
		return nil
	}

	err = teamMgr.Execute(ctx, func(ctx context.Context, accessToken string) error {
		return s.slack.Unfurl(ctx, accessToken, &slack.UnfurlRequest{
			Channel:  event.Channel,
			Ts:       event.MessageTs,
			UnfurlID: event.UnfurlID,
			Source:   event.Source,
			Unfurls:  unfurls,
		})
	})
	if err != nil {
		return fmt.Errorf("post unfurls to Slack team %s: %w", teamID, err)
	}
	s.recorder.RecordUnfurlsProduced(metrics.DirectionSpaceToSlack, len(unfurls))
	return nil
}

// requestSpaceAuth attaches the auth prompt to the message and parks
// the event for replay once the user completes the OAuth flow.
func (s *SpaceUnfurlService) requestSpaceAuth(ctx context.Context, teamMgr *tokens.Manager, teamID string, event *slack.LinkSharedEvent, org *models.SpaceOrg) error {
	authURL := s.config.EntrypointURL + "/space/oauth?" + url.Values{
		"slackTeamId": {teamID},
		"slackUserId": {event.User},
		"spaceOrgId":  {org.ClientID},
	}.Encode()

	blocks := []slack.Block{
		slack.SectionBlock(fmt.Sprintf("Authenticate in %s to get link previews in Slack", org.Domain)),
		slack.ActionsBlock(
			slack.LinkButton("Authenticate", SlackActionAuthenticate, authURL),
			slack.Button("Not now", SlackActionNotNow, org.ClientID),
			slack.Button("Never ask me again", SlackActionNever, org.ClientID),
		),
	}
	err := teamMgr.Execute(ctx, func(ctx context.Context, accessToken string) error {
		return s.slack.Unfurl(ctx, accessToken, &slack.UnfurlRequest{
			Channel:        event.Channel,
			Ts:             event.MessageTs,
			UnfurlID:       event.UnfurlID,
			Source:         event.Source,
			UserAuthBlocks: blocks,
		})
	})
	if err != nil {
		return fmt.Errorf("request Space authentication in Slack team %s: %w", teamID, err)
	}
	s.recorder.RecordAuthPrompt(metrics.DirectionSpaceToSlack)

	payload, err := json.Marshal(deferredLinkEvent{TeamID: teamID, Event: event})
	if err != nil {
		return err
	}
	key := models.SlackUserKey{SlackTeamID: teamID, SlackUserID: event.User, SpaceOrgID: org.ClientID}
	if err := s.store.AppendDeferredEvent(key, string(payload)); err != nil {
		return fmt.Errorf("park link_shared event for %s: %w", key, err)
	}
	s.recorder.RecordDeferredEvent("parked")
	log.Printf("Requested Space authentication for %s and parked the link_shared event", key)
	return nil
}

// ReplayDeferredEvents reprocesses the link_shared events that were
// waiting for the user's Space credential. Safe to call when nothing
// is parked.
func (s *SpaceUnfurlService) ReplayDeferredEvents(ctx context.Context, key models.SlackUserKey) error {
	payloads, err := s.store.TakeDeferredEvents(key, s.config.DeferredReplayLimit)
	if err != nil {
		return fmt.Errorf("take deferred events for %s: %w", key, err)
	}
	if len(payloads) == 0 {
		return nil
	}
	log.Printf("Replaying %d deferred link_shared events for %s", len(payloads), key)
	for _, payload := range payloads {
		var event deferredLinkEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("Discarding malformed deferred event for %s: %v", key, err)
			continue
		}
		s.recorder.RecordDeferredEvent("replayed")
		if err := s.HandleLinkShared(ctx, event.TeamID, event.Event); err != nil {
			log.Printf("Replay deferred link_shared event for %s: %v", key, err)
		}
	}
	return nil
}

// HandleInteraction processes a block action from the auth prompt.
// "Authenticate" and "Not now" just remove the prompt message; "Never"
// additionally disables previews for the Space org the button carries.
func (s *SpaceUnfurlService) HandleInteraction(ctx context.Context, payload *slack.InteractionPayload) error {
	if len(payload.Actions) != 1 {
		return fmt.Errorf("expected a single action in block_actions payload, got %d", len(payload.Actions))
	}
	action := payload.Actions[0]

	switch action.ActionID {
	case SlackActionAuthenticate, SlackActionNotNow:
		return s.slack.RespondToInteraction(ctx, payload.ResponseURL, map[string]bool{"delete_original": true})
	case SlackActionNever:
		key := models.SlackUserKey{
			SlackTeamID: payload.Team.ID,
			SlackUserID: payload.User.ID,
			SpaceOrgID:  action.Value,
		}
		if err := s.store.DisableSpaceUnfurls(key); err != nil {
			return err
		}
		log.Printf("Disabled Space link previews for %s", key)
		return s.slack.RespondToInteraction(ctx, payload.ResponseURL, map[string]bool{"delete_original": true})
	}
	return fmt.Errorf("unknown action %q in block_actions payload", action.ActionID)
}

// HandleTeamDomainChange keeps the workspace domain in sync so queue
// items pointing at the new domain still resolve to the team.
func (s *SpaceUnfurlService) HandleTeamDomainChange(teamID, newDomain string) error {
	if newDomain == "" {
		return nil
	}
	if err := s.store.UpdateSlackTeamDomain(teamID, newDomain); err != nil {
		return fmt.Errorf("update domain for Slack team %s: %w", teamID, err)
	}
	log.Printf("Updated domain for Slack team %s to %s", teamID, newDomain)
	return nil
}

// HandleAppUninstalled removes the workspace and all credentials
// scoped to it.
func (s *SpaceUnfurlService) HandleAppUninstalled(teamID string) error {
	if err := s.store.DeleteSlackTeam(teamID); err != nil {
		return fmt.Errorf("remove Slack team %s: %w", teamID, err)
	}
	log.Printf("Removed Slack team %s after app_uninstalled event", teamID)
	return nil
}
