package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
	"github.com/JetBrains/space-slack-unfurls/internal/util"
)

const oauthNonceLength = 32

// ErrFlowStateMismatch is returned when a callback carries a state
// nonce that does not match a pending OAuth session.
var ErrFlowStateMismatch = errors.New("oauth state does not match a pending flow")

// OAuthService runs the three OAuth flows of the application: Slack
// workspace installation, Slack user tokens for the poll pipeline and
// Space user tokens for the push pipeline. Completed Slack user flows
// are announced on the authCompleted channel so the queue consumer can
// pick up the links that were waiting for the credential.
type OAuthService struct {
	store         *store.Store
	config        *config.Config
	slack         SlackAPI
	spaceUnfurls  *SpaceUnfurlService
	recorder      metrics.Recorder
	authCompleted chan<- models.SpaceUserKey
}

func NewOAuthService(
	st *store.Store,
	cfg *config.Config,
	slackAPI SlackAPI,
	spaceUnfurls *SpaceUnfurlService,
	recorder metrics.Recorder,
	authCompleted chan<- models.SpaceUserKey,
) *OAuthService {
	return &OAuthService{
		store:         st,
		config:        cfg,
		slack:         slackAPI,
		spaceUnfurls:  spaceUnfurls,
		recorder:      recorder,
		authCompleted: authCompleted,
	}
}

func (s *OAuthService) slackCallbackURL() string {
	return s.config.EntrypointURL + "/slack/oauth/callback"
}

func (s *OAuthService) spaceCallbackURL() string {
	return s.config.EntrypointURL + "/space/oauth/callback"
}

// StartSlackUserFlow begins the OAuth flow that grants this app read
// access to Slack messages on behalf of a Space user. Any previously
// stored credential is dropped so a failed flow cannot leave a stale
// token behind.
func (s *OAuthService) StartSlackUserFlow(key models.SpaceUserKey, backURL string) (string, error) {
	team, err := s.store.GetSlackTeam(key.SlackTeamID)
	if err != nil {
		return "", fmt.Errorf("load Slack team %s: %w", key.SlackTeamID, err)
	}

	nonce, err := util.CryptoRandomString(oauthNonceLength)
	if err != nil {
		return "", err
	}
	if err := s.store.DeleteSlackUserToken(key); err != nil {
		return "", err
	}
	scopes := strings.Join(slack.UserPermissionScopes, ",")
	err = s.store.CreateSlackOAuthSession(&models.SlackOAuthSession{
		ID:               nonce,
		SpaceOrgID:       key.SpaceOrgID,
		SpaceUserID:      key.SpaceUserID,
		SlackTeamID:      key.SlackTeamID,
		BackURL:          backURL,
		PermissionScopes: scopes,
	})
	if err != nil {
		return "", err
	}
	log.Printf("Started OAuth flow in Slack for %s", key)

	authURL := url.URL{
		Scheme: "https",
		Host:   team.Domain + ".slack.com",
		Path:   "/oauth/v2/authorize",
		RawQuery: url.Values{
			"client_id":    {s.config.SlackClientID},
			"user_scope":   {scopes},
			"state":        {nonce},
			"redirect_uri": {s.slackCallbackURL()},
		}.Encode(),
	}
	return authURL.String(), nil
}

// CompleteSlackUserFlow exchanges the callback code for a user token
// pair and stores it. Returns the url to send the user back to.
func (s *OAuthService) CompleteSlackUserFlow(ctx context.Context, state, code string) (string, error) {
	session, err := s.store.ConsumeSlackOAuthSession(state)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrFlowStateMismatch
	}
	if err != nil {
		return "", err
	}
	key := models.SpaceUserKey{
		SpaceOrgID:  session.SpaceOrgID,
		SpaceUserID: session.SpaceUserID,
		SlackTeamID: session.SlackTeamID,
	}

	resp, err := s.slack.OAuthExchange(ctx, code, s.slackCallbackURL())
	if err != nil {
		s.recorder.RecordOAuthFlow(metrics.PlatformSlack, "failed")
		return "", fmt.Errorf("exchange Slack OAuth code for %s: %w", key, err)
	}
	if resp.AuthedUser.AccessToken == "" {
		s.recorder.RecordOAuthFlow(metrics.PlatformSlack, "failed")
		return "", fmt.Errorf("no user access token in Slack OAuth response for %s", key)
	}

	err = s.store.SaveSlackUserToken(key, resp.AuthedUser.AccessToken, resp.AuthedUser.RefreshToken, resp.AuthedUser.Scope)
	if err != nil {
		return "", err
	}
	s.recorder.RecordOAuthFlow(metrics.PlatformSlack, "completed")
	log.Printf("Authenticated user in Slack for %s", key)

	select {
	case s.authCompleted <- key:
	default:
		log.Printf("Auth completion buffer full, dropping notification for %s", key)
	}
	return session.BackURL, nil
}

// CompleteSlackInstall handles the workspace-level OAuth callback of
// an app installation and registers the team.
func (s *OAuthService) CompleteSlackInstall(ctx context.Context, code string) (string, error) {
	resp, err := s.slack.OAuthExchange(ctx, code, "")
	if err != nil {
		s.recorder.RecordOAuthFlow(metrics.PlatformSlack, "install_failed")
		return "", fmt.Errorf("exchange Slack OAuth code: %w", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.Team.ID == "" {
		s.recorder.RecordOAuthFlow(metrics.PlatformSlack, "install_failed")
		return "", errors.New("incomplete token response for Slack app installation")
	}

	team, err := s.slack.TeamInfo(ctx, resp.AccessToken, resp.Team.ID)
	if err != nil {
		s.recorder.RecordOAuthFlow(metrics.PlatformSlack, "install_failed")
		return "", fmt.Errorf("fetch team info for %s: %w", resp.Team.ID, err)
	}

	if err := s.store.CreateSlackTeam(team.ID, team.Domain, resp.AccessToken, resp.RefreshToken); err != nil {
		return "", err
	}
	if err := s.store.UpdateSlackTeamInfo(team.ID, team.Name, team.Icon.Image44); err != nil {
		log.Printf("Store team info for %s: %v", team.ID, err)
	}
	s.recorder.RecordOAuthFlow(metrics.PlatformSlack, "installed")
	log.Printf("Application installed to Slack team %s (%s)", team.ID, team.Domain)
	return team.ID, nil
}

// spaceOAuthConfig builds the oauth2 endpoint of one Space org.
func (s *OAuthService) spaceOAuthConfig(org *models.SpaceOrg) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     org.ClientID,
		ClientSecret: org.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  org.OrgURL + "/oauth/auth",
			TokenURL: org.OrgURL + "/oauth/token",
		},
		RedirectURL: s.spaceCallbackURL(),
		Scopes:      space.UserPermissionScopes,
	}
}

// StartSpaceUserFlow begins the OAuth flow that grants this app read
// access to Space entities on behalf of a Slack user.
func (s *OAuthService) StartSpaceUserFlow(key models.SlackUserKey, backURL string) (string, error) {
	org, err := s.store.GetSpaceOrg(key.SpaceOrgID)
	if err != nil {
		return "", fmt.Errorf("load Space org %s: %w", key.SpaceOrgID, err)
	}

	nonce, err := util.CryptoRandomString(oauthNonceLength)
	if err != nil {
		return "", err
	}
	if err := s.store.DeleteSpaceUserToken(key); err != nil {
		return "", err
	}
	err = s.store.CreateSpaceOAuthSession(&models.SpaceOAuthSession{
		ID:               nonce,
		SlackTeamID:      key.SlackTeamID,
		SlackUserID:      key.SlackUserID,
		SpaceOrgID:       key.SpaceOrgID,
		BackURL:          backURL,
		PermissionScopes: strings.Join(space.UserPermissionScopes, " "),
	})
	if err != nil {
		return "", err
	}
	log.Printf("Started OAuth flow in Space for %s", key)

	return s.spaceOAuthConfig(org).AuthCodeURL(
		nonce,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("request_credentials", "default"),
	), nil
}

// CompleteSpaceUserFlow exchanges the callback code for a Space token
// pair, stores it and replays the link_shared events that were parked
// for this user. Returns the url to send the user back to.
func (s *OAuthService) CompleteSpaceUserFlow(ctx context.Context, state, code string) (string, error) {
	session, err := s.store.ConsumeSpaceOAuthSession(state)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrFlowStateMismatch
	}
	if err != nil {
		return "", err
	}
	key := models.SlackUserKey{
		SlackTeamID: session.SlackTeamID,
		SlackUserID: session.SlackUserID,
		SpaceOrgID:  session.SpaceOrgID,
	}

	org, err := s.store.GetSpaceOrg(key.SpaceOrgID)
	if err != nil {
		return "", fmt.Errorf("load Space org %s: %w", key.SpaceOrgID, err)
	}
	token, err := s.spaceOAuthConfig(org).Exchange(ctx, code)
	if err != nil {
		s.recorder.RecordOAuthFlow(metrics.PlatformSpace, "failed")
		return "", fmt.Errorf("exchange Space OAuth code for %s: %w", key, err)
	}
	if token.RefreshToken == "" {
		s.recorder.RecordOAuthFlow(metrics.PlatformSpace, "failed")
		return "", fmt.Errorf("no refresh token in Space OAuth response for %s", key)
	}

	err = s.store.SaveSpaceUserToken(key, token.AccessToken, token.RefreshToken, session.PermissionScopes)
	if err != nil {
		return "", err
	}
	s.recorder.RecordOAuthFlow(metrics.PlatformSpace, "completed")
	log.Printf("Authenticated user in Space for %s", key)

	if err := s.spaceUnfurls.ReplayDeferredEvents(ctx, key); err != nil {
		log.Printf("Replay deferred events for %s: %v", key, err)
	}
	return session.BackURL, nil
}

// SweepSessions drops abandoned OAuth flows, returning how many rows
// went away. Runs on the bootstrap's sweep schedule.
func (s *OAuthService) SweepSessions() (int64, error) {
	swept, err := s.store.SweepExpiredOAuthSessions(s.config.OAuthSessionTTL)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.recorder.RecordSessionsSwept(int(swept))
		log.Printf("Swept %d expired OAuth sessions", swept)
	}
	return swept, nil
}
