package models

import (
	"fmt"
	"time"
)

// SpaceUserKey identifies a Space user's linkage to a Slack workspace.
// It keys credentials used to act in Slack on behalf of a Space user.
type SpaceUserKey struct {
	SpaceOrgID  string
	SpaceUserID string
	SlackTeamID string
}

func (k SpaceUserKey) String() string {
	return fmt.Sprintf("Space org %s, user %s, Slack team %s", k.SpaceOrgID, k.SpaceUserID, k.SlackTeamID)
}

// SlackUserKey identifies a Slack user's linkage to a Space
// organization. It keys credentials used to act in Space on behalf of
// a Slack user.
type SlackUserKey struct {
	SlackTeamID string
	SlackUserID string
	SpaceOrgID  string
}

func (k SlackUserKey) String() string {
	return fmt.Sprintf("Slack team %s, user %s, Space org %s", k.SlackTeamID, k.SlackUserID, k.SpaceOrgID)
}

// SlackUserToken holds a Space user's OAuth tokens for the Slack side.
// At most one row exists per (SpaceOrgID, SpaceUserID, SlackTeamID).
// UnfurlsDisabled means the user picked "never" in the auth prompt;
// a disabled row never carries a refresh token.
type SlackUserToken struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SpaceOrgID  string `gorm:"not null;uniqueIndex:idx_slack_user_tokens_key,priority:1"`
	SpaceUserID string `gorm:"not null;uniqueIndex:idx_slack_user_tokens_key,priority:2"`
	SlackTeamID string `gorm:"not null;uniqueIndex:idx_slack_user_tokens_key,priority:3"`

	AccessToken      string `gorm:"type:text"`
	RefreshToken     string `gorm:"type:text"`
	PermissionScopes string
	UnfurlsDisabled  bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SlackUserToken) TableName() string {
	return "slack_user_tokens"
}

func (t *SlackUserToken) Key() SpaceUserKey {
	return SpaceUserKey{
		SpaceOrgID:  t.SpaceOrgID,
		SpaceUserID: t.SpaceUserID,
		SlackTeamID: t.SlackTeamID,
	}
}

// SpaceUserToken holds a Slack user's OAuth tokens for the Space side.
// Mirror of SlackUserToken in the opposite direction.
type SpaceUserToken struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SlackTeamID string `gorm:"not null;uniqueIndex:idx_space_user_tokens_key,priority:1"`
	SlackUserID string `gorm:"not null;uniqueIndex:idx_space_user_tokens_key,priority:2"`
	SpaceOrgID  string `gorm:"not null;uniqueIndex:idx_space_user_tokens_key,priority:3"`

	AccessToken      string `gorm:"type:text"`
	RefreshToken     string `gorm:"type:text"`
	PermissionScopes string
	UnfurlsDisabled  bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SpaceUserToken) TableName() string {
	return "space_user_tokens"
}

func (t *SpaceUserToken) Key() SlackUserKey {
	return SlackUserKey{
		SlackTeamID: t.SlackTeamID,
		SlackUserID: t.SlackUserID,
		SpaceOrgID:  t.SpaceOrgID,
	}
}
