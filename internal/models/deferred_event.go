package models

import (
	"time"
)

// DeferredSlackEvent is a link_shared event parked until its author
// completes the Space OAuth flow. Replayed FIFO in bounded batches.
type DeferredSlackEvent struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SlackTeamID string `gorm:"not null;index:idx_deferred_events_key,priority:1"`
	SlackUserID string `gorm:"not null;index:idx_deferred_events_key,priority:2"`
	SpaceOrgID  string `gorm:"not null;index:idx_deferred_events_key,priority:3"`

	Payload string `gorm:"type:text;not null"`

	CreatedAt time.Time
}

func (DeferredSlackEvent) TableName() string {
	return "deferred_slack_events"
}
