package store

import (
	"github.com/JetBrains/space-slack-unfurls/internal/models"

	"gorm.io/gorm"
)

// AppendDeferredEvent parks a raw link_shared payload until the Slack
// user completes the Space OAuth flow.
func (s *Store) AppendDeferredEvent(key models.SlackUserKey, payload string) error {
	return s.db.Create(&models.DeferredSlackEvent{
		SlackTeamID: key.SlackTeamID,
		SlackUserID: key.SlackUserID,
		SpaceOrgID:  key.SpaceOrgID,
		Payload:     payload,
	}).Error
}

// TakeDeferredEvents returns up to limit parked payloads for the triple
// in insertion order and deletes them in the same transaction.
func (s *Store) TakeDeferredEvents(key models.SlackUserKey, limit int) ([]string, error) {
	var payloads []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rows []models.DeferredSlackEvent
		if err := tx.
			Where("slack_team_id = ? AND slack_user_id = ? AND space_org_id = ?",
				key.SlackTeamID, key.SlackUserID, key.SpaceOrgID).
			Order("id ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
			payloads = append(payloads, row.Payload)
		}
		return tx.Where("id IN ?", ids).Delete(&models.DeferredSlackEvent{}).Error
	})
	if err != nil {
		return nil, err
	}
	return payloads, nil
}
