package store

import (
	"errors"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/models"

	"gorm.io/gorm"
)

// CreateSlackOAuthSession starts an OAuth flow towards Slack. Any
// earlier pending session for the same triple is replaced, so only the
// most recent state nonce can complete the flow.
func (s *Store) CreateSlackOAuthSession(session *models.SlackOAuthSession) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("space_org_id = ? AND space_user_id = ? AND slack_team_id = ?",
				session.SpaceOrgID, session.SpaceUserID, session.SlackTeamID).
			Delete(&models.SlackOAuthSession{}).Error; err != nil {
			return err
		}
		return tx.Create(session).Error
	})
}

// ConsumeSlackOAuthSession returns the session and deletes it in the
// same transaction. A second consume of the same id is ErrNotFound.
func (s *Store) ConsumeSlackOAuthSession(id string) (*models.SlackOAuthSession, error) {
	var session models.SlackOAuthSession
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&session).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.SlackOAuthSession{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) CreateSpaceOAuthSession(session *models.SpaceOAuthSession) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("slack_team_id = ? AND slack_user_id = ? AND space_org_id = ?",
				session.SlackTeamID, session.SlackUserID, session.SpaceOrgID).
			Delete(&models.SpaceOAuthSession{}).Error; err != nil {
			return err
		}
		return tx.Create(session).Error
	})
}

func (s *Store) ConsumeSpaceOAuthSession(id string) (*models.SpaceOAuthSession, error) {
	var session models.SpaceOAuthSession
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&session).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.SpaceOAuthSession{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// SweepExpiredOAuthSessions deletes abandoned flows older than ttl
// from both session tables and reports how many rows went away.
func (s *Store) SweepExpiredOAuthSessions(ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	var total int64

	res := s.db.Where("created_at < ?", cutoff).Delete(&models.SlackOAuthSession{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	res = s.db.Where("created_at < ?", cutoff).Delete(&models.SpaceOAuthSession{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	return total, nil
}
