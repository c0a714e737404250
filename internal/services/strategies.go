package services

import (
	"context"
	"errors"
	"log"

	"github.com/JetBrains/space-slack-unfurls/internal/metrics"
	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"
)

func credentialToToken(cred *store.UserCredential) *tokens.Credential {
	if cred == nil || cred.State() != store.CredentialReady {
		return nil
	}
	return &tokens.Credential{
		AccessToken:      cred.AccessToken,
		RefreshToken:     cred.RefreshToken,
		PermissionScopes: cred.PermissionScopes,
	}
}

// slackUserStrategy manages the Slack tokens of a Space user, used by
// the poll pipeline to read Slack messages.
func slackUserStrategy(st *store.Store, api SlackAPI, recorder metrics.Recorder, key models.SpaceUserKey) tokens.Strategy {
	return tokens.Strategy{
		Load: func(ctx context.Context) (*tokens.Credential, error) {
			cred, err := st.GetSlackUserToken(key)
			if err != nil {
				return nil, err
			}
			return credentialToToken(cred), nil
		},
		Persist: func(ctx context.Context, cred *tokens.Credential) error {
			return st.SaveSlackUserToken(key, cred.AccessToken, cred.RefreshToken, cred.PermissionScopes)
		},
		Refresh: func(ctx context.Context, refreshToken string) (*tokens.RefreshResult, error) {
			resp, err := api.OAuthRefresh(ctx, refreshToken)
			recorder.RecordTokenRefresh(metrics.PlatformSlack, err == nil)
			if err != nil {
				return nil, err
			}
			return &tokens.RefreshResult{
				AccessToken:      resp.UserAccessToken(),
				RefreshToken:     resp.UserRefreshToken(),
				PermissionScopes: resp.AuthedUser.Scope,
			}, nil
		},
		OnInvalidRefreshToken: func(ctx context.Context) error {
			log.Printf("Slack refresh token rejected for %s, dropping credential", key)
			return st.DeleteSlackUserToken(key)
		},
		OnInvalidAppCredentials: func(ctx context.Context) error {
			log.Printf("Slack rejected the application credentials, check SLACK_CLIENT_ID and SLACK_CLIENT_SECRET")
			return nil
		},
		Reset: func(ctx context.Context) error {
			recorder.RecordTokenReset(metrics.PlatformSlack)
			return st.DeleteSlackUserToken(key)
		},
	}
}

// slackTeamStrategy manages the workspace token of an installed Slack
// app, used by the push pipeline to post unfurls.
func slackTeamStrategy(st *store.Store, api SlackAPI, recorder metrics.Recorder, teamID string) tokens.Strategy {
	return tokens.Strategy{
		Load: func(ctx context.Context) (*tokens.Credential, error) {
			team, err := st.GetSlackTeam(teamID)
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			if team.AccessToken == "" {
				return nil, nil
			}
			return &tokens.Credential{
				AccessToken:  team.AccessToken,
				RefreshToken: team.RefreshToken,
			}, nil
		},
		Persist: func(ctx context.Context, cred *tokens.Credential) error {
			return st.UpdateSlackTeamTokens(teamID, cred.AccessToken, cred.RefreshToken)
		},
		Refresh: func(ctx context.Context, refreshToken string) (*tokens.RefreshResult, error) {
			resp, err := api.OAuthRefresh(ctx, refreshToken)
			recorder.RecordTokenRefresh(metrics.PlatformSlack, err == nil)
			if err != nil {
				return nil, err
			}
			return &tokens.RefreshResult{
				AccessToken:  resp.AccessToken,
				RefreshToken: resp.RefreshToken,
			}, nil
		},
		OnInvalidRefreshToken: func(ctx context.Context) error {
			log.Printf("Slack refresh token rejected for team %s, removing the installation", teamID)
			return st.DeleteSlackTeam(teamID)
		},
		OnInvalidAppCredentials: func(ctx context.Context) error {
			log.Printf("Slack rejected the application credentials, check SLACK_CLIENT_ID and SLACK_CLIENT_SECRET")
			return nil
		},
		Reset: func(ctx context.Context) error {
			recorder.RecordTokenReset(metrics.PlatformSlack)
			return st.DeleteSlackTeam(teamID)
		},
	}
}

// spaceUserStrategy manages the Space tokens of a Slack user, used by
// the push pipeline to fetch Space entities.
func spaceUserStrategy(st *store.Store, api SpaceAPI, recorder metrics.Recorder, key models.SlackUserKey) tokens.Strategy {
	return tokens.Strategy{
		Load: func(ctx context.Context) (*tokens.Credential, error) {
			cred, err := st.GetSpaceUserToken(key)
			if err != nil {
				return nil, err
			}
			return credentialToToken(cred), nil
		},
		Persist: func(ctx context.Context, cred *tokens.Credential) error {
			return st.SaveSpaceUserToken(key, cred.AccessToken, cred.RefreshToken, cred.PermissionScopes)
		},
		Refresh: func(ctx context.Context, refreshToken string) (*tokens.RefreshResult, error) {
			info, err := api.RefreshUserToken(ctx, refreshToken)
			recorder.RecordTokenRefresh(metrics.PlatformSpace, err == nil)
			if err != nil {
				return nil, err
			}
			return &tokens.RefreshResult{
				AccessToken:      info.AccessToken,
				RefreshToken:     info.RefreshToken,
				PermissionScopes: info.Scope,
			}, nil
		},
		OnInvalidRefreshToken: func(ctx context.Context) error {
			log.Printf("Space refresh token rejected for %s, dropping credential", key)
			return st.DeleteSpaceUserToken(key)
		},
		OnInvalidAppCredentials: func(ctx context.Context) error {
			log.Printf("Space org %s rejected the application credentials, reinstall may be required", key.SpaceOrgID)
			return nil
		},
		Reset: func(ctx context.Context) error {
			recorder.RecordTokenReset(metrics.PlatformSpace)
			return st.DeleteSpaceUserToken(key)
		},
	}
}
