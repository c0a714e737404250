package models

import (
	"time"
)

// SlackTeam is a Slack workspace that installed the application. The
// token pair belongs to the app-level bot installation and is stored
// encrypted.
type SlackTeam struct {
	ID           string `gorm:"primaryKey"`
	Domain       string `gorm:"uniqueIndex;not null"`
	AccessToken  string `gorm:"type:text"`
	RefreshToken string `gorm:"type:text"`
	Name         string
	IconURL      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SlackTeam) TableName() string {
	return "slack_teams"
}

// SpaceSlackLink connects a Space organization to a Slack workspace.
// Unfurls only flow between linked pairs.
type SpaceSlackLink struct {
	SpaceOrgID  string `gorm:"primaryKey"`
	SlackTeamID string `gorm:"primaryKey;index"`

	CreatedAt time.Time
}

func (SpaceSlackLink) TableName() string {
	return "space_slack_links"
}
