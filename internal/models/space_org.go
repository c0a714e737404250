package models

import (
	"time"
)

// SpaceOrg is a Space organization that installed the application.
// ClientID and ClientSecret are the per-org app credentials issued by
// Space on installation; the secret is stored encrypted.
type SpaceOrg struct {
	ClientID     string `gorm:"primaryKey"`
	Domain       string `gorm:"uniqueIndex;not null"`
	OrgURL       string `gorm:"not null"`
	ClientSecret string `gorm:"type:text;not null"`

	// Cursor into the org's unfurl queue. Nil means the queue has
	// never been read for this org.
	LastUnfurlQueueEtag *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SpaceOrg) TableName() string {
	return "space_orgs"
}
