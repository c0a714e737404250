package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
)

const testSlackUserID = "U42"

func newPushService(t *testing.T, st *store.Store, slackAPI SlackAPI, spaceAPI *fakeSpaceAPI) *SpaceUnfurlService {
	t.Helper()
	return NewSpaceUnfurlService(st, testServiceConfig(), slackAPI, spaceAPI.factory(), metrics.Init(false))
}

func slackUserKey() models.SlackUserKey {
	return models.SlackUserKey{SlackTeamID: testTeamID, SlackUserID: testSlackUserID, SpaceOrgID: testOrgID}
}

func linkSharedEvent(urls ...string) *slack.LinkSharedEvent {
	event := &slack.LinkSharedEvent{
		Type:      "link_shared",
		User:      testSlackUserID,
		Channel:   "C777",
		MessageTs: "1660000000.000100",
		UnfurlID:  "unfurl-1",
		Source:    "conversations_history",
	}
	for _, u := range urls {
		event.Links = append(event.Links, slack.SharedLink{Domain: "space.example.org", URL: u})
	}
	return event
}

func TestHandleLinkSharedUnfurlsIssueLink(t *testing.T) {
	st := newTestStore(t)
	installTestOrg(t, st)
	installTestTeam(t, st)
	require.NoError(t, st.SaveSpaceUserToken(slackUserKey(), "space-access", "space-refresh", "global:Project.View"))

	spaceAPI := newFakeSpaceAPI()
	spaceAPI.issues["KEY/42"] = &space.Issue{Number: 42, Title: "Fix the widget", Description: "It wobbles"}

	slackAPI := newFakeSlackAPI()
	svc := newPushService(t, st, slackAPI, spaceAPI)

	link := "https://space.example.org/p/KEY/issues/42"
	require.NoError(t, svc.HandleLinkShared(context.Background(), testTeamID, linkSharedEvent(link)))

	require.Len(t, slackAPI.unfurlCalls, 1)
	call := slackAPI.unfurlCalls[0]
	assert.Equal(t, "unfurl-1", call.UnfurlID)
	assert.Equal(t, "conversations_history", call.Source)
	require.Contains(t, call.Unfurls, link)

	blocks := call.Unfurls[link].Blocks
	require.Len(t, blocks, 3)
	assert.Contains(t, blocks[0].Text.Text, "*KEY-T-42* Fix the widget")
	assert.Contains(t, blocks[1].Text.Text, "It wobbles")
	require.Len(t, blocks[2].Elements, 2)
	text, ok := blocks[2].Elements[1].(slack.TextObject)
	require.True(t, ok)
	assert.Contains(t, text.Text, "JetBrains Space issue in <https://space.example.org/p/KEY|KEY> project")
}

func TestHandleLinkSharedPromptsWhenNoCredential(t *testing.T) {
	st := newTestStore(t)
	installTestOrg(t, st)
	installTestTeam(t, st)

	slackAPI := newFakeSlackAPI()
	svc := newPushService(t, st, slackAPI, newFakeSpaceAPI())

	event := linkSharedEvent("https://space.example.org/p/KEY/issues/42")
	require.NoError(t, svc.HandleLinkShared(context.Background(), testTeamID, event))

	require.Len(t, slackAPI.unfurlCalls, 1)
	call := slackAPI.unfurlCalls[0]
	assert.Empty(t, call.Unfurls)
	require.Len(t, call.UserAuthBlocks, 2)
	assert.Contains(t, call.UserAuthBlocks[0].Text.Text, "Authenticate in space.example.org")
	require.Len(t, call.UserAuthBlocks[1].Elements, 3)

	events, err := st.TakeDeferredEvents(slackUserKey(), 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "the event is parked for replay")
}

func TestHandleLinkSharedUnfurlsReadyLinksDespitePendingAuth(t *testing.T) {
	st := newTestStore(t)
	installTestOrg(t, st)
	installTestTeam(t, st)
	require.NoError(t, st.SaveSpaceOrg("other-org", "secret", "https://other.example.org", "other.example.org"))
	require.NoError(t, st.SaveSpaceUserToken(slackUserKey(), "space-access", "space-refresh", ""))

	spaceAPI := newFakeSpaceAPI()
	spaceAPI.issues["KEY/42"] = &space.Issue{Number: 42, Title: "Fix the widget"}

	slackAPI := newFakeSlackAPI()
	svc := newPushService(t, st, slackAPI, spaceAPI)

	ready := "https://space.example.org/p/KEY/issues/42"
	needsAuth := "https://other.example.org/p/ABC/issues/1"
	require.NoError(t, svc.HandleLinkShared(context.Background(), testTeamID, linkSharedEvent(ready, needsAuth)))

	require.Len(t, slackAPI.unfurlCalls, 1)
	call := slackAPI.unfurlCalls[0]
	assert.Empty(t, call.UserAuthBlocks, "no auth prompt while at least one link can be unfurled")
	assert.Contains(t, call.Unfurls, ready)

	otherKey := models.SlackUserKey{SlackTeamID: testTeamID, SlackUserID: testSlackUserID, SpaceOrgID: "other-org"}
	events, err := st.TakeDeferredEvents(otherKey, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHandleLinkSharedDisabledUserStaysSilent(t *testing.T) {
	st := newTestStore(t)
	installTestOrg(t, st)
	installTestTeam(t, st)
	require.NoError(t, st.DisableSpaceUnfurls(slackUserKey()))

	slackAPI := newFakeSlackAPI()
	svc := newPushService(t, st, slackAPI, newFakeSpaceAPI())

	require.NoError(t, svc.HandleLinkShared(context.Background(), testTeamID, linkSharedEvent("https://space.example.org/p/KEY/issues/42")))
	assert.Empty(t, slackAPI.unfurlCalls)
}

func TestHandleLinkSharedDropsTokenOnAuthFailure(t *testing.T) {
	st := newTestStore(t)
	installTestOrg(t, st)
	installTestTeam(t, st)
	require.NoError(t, st.SaveSpaceUserToken(slackUserKey(), "space-access", "space-refresh", ""))

	spaceAPI := newFakeSpaceAPI()
	spaceAPI.entity = &space.APIError{Op: "projects.planning.issues.get", Status: 403, ErrorCode: "no_permission"}

	slackAPI := newFakeSlackAPI()
	svc := newPushService(t, st, slackAPI, spaceAPI)

	require.NoError(t, svc.HandleLinkShared(context.Background(), testTeamID, linkSharedEvent("https://space.example.org/p/KEY/issues/42")))

	assert.Empty(t, slackAPI.unfurlCalls)
	cred, err := st.GetSpaceUserToken(slackUserKey())
	require.NoError(t, err)
	assert.Nil(t, cred, "the rejected credential is removed")
}

func TestReplayDeferredEvents(t *testing.T) {
	st := newTestStore(t)
	installTestOrg(t, st)
	installTestTeam(t, st)

	slackAPI := newFakeSlackAPI()
	spaceAPI := newFakeSpaceAPI()
	svc := newPushService(t, st, slackAPI, spaceAPI)

	link := "https://space.example.org/p/KEY/issues/42"
	require.NoError(t, svc.HandleLinkShared(context.Background(), testTeamID, linkSharedEvent(link)))
	require.Len(t, slackAPI.unfurlCalls, 1, "auth prompt attached")

	// User authenticates, the parked event is replayed and unfurled.
	require.NoError(t, st.SaveSpaceUserToken(slackUserKey(), "space-access", "space-refresh", ""))
	spaceAPI.issues["KEY/42"] = &space.Issue{Number: 42, Title: "Fix the widget"}

	require.NoError(t, svc.ReplayDeferredEvents(context.Background(), slackUserKey()))
	require.Len(t, slackAPI.unfurlCalls, 2)
	assert.Contains(t, slackAPI.unfurlCalls[1].Unfurls, link)

	// Replay is idempotent once drained.
	require.NoError(t, svc.ReplayDeferredEvents(context.Background(), slackUserKey()))
	assert.Len(t, slackAPI.unfurlCalls, 2)
}

func TestHandleInteraction(t *testing.T) {
	st := newTestStore(t)
	installTestOrg(t, st)

	slackAPI := newFakeSlackAPI()
	svc := newPushService(t, st, slackAPI, newFakeSpaceAPI())

	payload := &slack.InteractionPayload{Type: "block_actions", ResponseURL: "https://hooks.slack.example/response/1"}
	payload.User.ID = testSlackUserID
	payload.Team.ID = testTeamID

	payload.Actions = nil
	require.Error(t, svc.HandleInteraction(context.Background(), payload), "a single action is required")

	payload.Actions = []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	}{{ActionID: SlackActionNotNow, Value: testOrgID}}
	require.NoError(t, svc.HandleInteraction(context.Background(), payload))
	assert.Len(t, slackAPI.interactions, 1, "prompt message removed")

	payload.Actions[0].ActionID = SlackActionNever
	require.NoError(t, svc.HandleInteraction(context.Background(), payload))

	cred, err := st.GetSpaceUserToken(slackUserKey())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, store.CredentialDisabled, cred.State())
}

func TestHandleTeamDomainChange(t *testing.T) {
	st := newTestStore(t)
	installTestTeam(t, st)

	svc := newPushService(t, st, newFakeSlackAPI(), newFakeSpaceAPI())
	require.NoError(t, svc.HandleTeamDomainChange(testTeamID, "acme-renamed"))

	team, err := st.GetSlackTeamByDomain("acme-renamed")
	require.NoError(t, err)
	assert.Equal(t, testTeamID, team.ID)
}

func TestHandleAppUninstalled(t *testing.T) {
	st := newTestStore(t)
	installTestTeam(t, st)

	svc := newPushService(t, st, newFakeSlackAPI(), newFakeSpaceAPI())
	require.NoError(t, svc.HandleAppUninstalled(testTeamID))

	_, err := st.GetSlackTeam(testTeamID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
