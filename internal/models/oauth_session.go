package models

import (
	"time"
)

// SlackOAuthSession tracks one in-flight OAuth flow towards Slack. The
// ID is a random nonce carried as the OAuth state parameter; rows are
// single-use and swept after the configured TTL.
type SlackOAuthSession struct {
	ID          string `gorm:"primaryKey"`
	SpaceOrgID  string `gorm:"not null;uniqueIndex:idx_slack_oauth_sessions_key,priority:1"`
	SpaceUserID string `gorm:"not null;uniqueIndex:idx_slack_oauth_sessions_key,priority:2"`
	SlackTeamID string `gorm:"not null;uniqueIndex:idx_slack_oauth_sessions_key,priority:3"`

	BackURL          string
	PermissionScopes string

	CreatedAt time.Time `gorm:"index"`
}

func (SlackOAuthSession) TableName() string {
	return "slack_oauth_sessions"
}

// SpaceOAuthSession tracks one in-flight OAuth flow towards Space.
type SpaceOAuthSession struct {
	ID          string `gorm:"primaryKey"`
	SlackTeamID string `gorm:"not null;uniqueIndex:idx_space_oauth_sessions_key,priority:1"`
	SlackUserID string `gorm:"not null;uniqueIndex:idx_space_oauth_sessions_key,priority:2"`
	SpaceOrgID  string `gorm:"not null;uniqueIndex:idx_space_oauth_sessions_key,priority:3"`

	BackURL          string
	PermissionScopes string

	CreatedAt time.Time `gorm:"index"`
}

func (SpaceOAuthSession) TableName() string {
	return "space_oauth_sessions"
}
