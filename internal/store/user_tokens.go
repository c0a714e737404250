package store

import (
	"errors"

	"github.com/JetBrains/space-slack-unfurls/internal/models"

	"gorm.io/gorm"
)

// SaveSlackUserToken stores a Space user's token pair for the Slack
// side. Updates may omit the refresh token when Slack did not rotate
// it; inserts must carry one.
func (s *Store) SaveSlackUserToken(key models.SpaceUserKey, accessToken, refreshToken, permissionScopes string) error {
	encAccess, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return err
	}
	encRefresh, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"access_token":      encAccess,
			"permission_scopes": permissionScopes,
			"unfurls_disabled":  false,
		}
		if refreshToken != "" {
			updates["refresh_token"] = encRefresh
		}
		res := tx.Model(&models.SlackUserToken{}).
			Where("space_org_id = ? AND space_user_id = ? AND slack_team_id = ?",
				key.SpaceOrgID, key.SpaceUserID, key.SlackTeamID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		if refreshToken == "" {
			return ErrMissingRefreshToken
		}
		return tx.Create(&models.SlackUserToken{
			SpaceOrgID:       key.SpaceOrgID,
			SpaceUserID:      key.SpaceUserID,
			SlackTeamID:      key.SlackTeamID,
			AccessToken:      encAccess,
			RefreshToken:     encRefresh,
			PermissionScopes: permissionScopes,
		}).Error
	})
}

// GetSlackUserToken returns the decrypted credential for the triple, a
// disabled marker when the user opted out, or nil when no usable
// credential exists.
func (s *Store) GetSlackUserToken(key models.SpaceUserKey) (*UserCredential, error) {
	var row models.SlackUserToken
	err := s.db.
		Where("space_org_id = ? AND space_user_id = ? AND slack_team_id = ?",
			key.SpaceOrgID, key.SpaceUserID, key.SlackTeamID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.toCredential(row.UnfurlsDisabled, row.AccessToken, row.RefreshToken, row.PermissionScopes)
}

func (s *Store) DeleteSlackUserToken(key models.SpaceUserKey) error {
	return s.db.
		Where("space_org_id = ? AND space_user_id = ? AND slack_team_id = ?",
			key.SpaceOrgID, key.SpaceUserID, key.SlackTeamID).
		Delete(&models.SlackUserToken{}).Error
}

// DisableSlackUnfurls records that the user never wants unfurls for
// this linkage. Tokens are cleared; the row itself stays so the auth
// prompt is not repeated.
func (s *Store) DisableSlackUnfurls(key models.SpaceUserKey) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SlackUserToken{}).
			Where("space_org_id = ? AND space_user_id = ? AND slack_team_id = ?",
				key.SpaceOrgID, key.SpaceUserID, key.SlackTeamID).
			Updates(map[string]any{
				"unfurls_disabled": true,
				"access_token":     "",
				"refresh_token":    "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&models.SlackUserToken{
			SpaceOrgID:      key.SpaceOrgID,
			SpaceUserID:     key.SpaceUserID,
			SlackTeamID:     key.SlackTeamID,
			UnfurlsDisabled: true,
		}).Error
	})
}

// SaveSpaceUserToken is the mirror of SaveSlackUserToken for Slack
// users acting in Space. Space always returns a full pair, so the row
// is replaced wholesale.
func (s *Store) SaveSpaceUserToken(key models.SlackUserKey, accessToken, refreshToken, permissionScopes string) error {
	encAccess, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return err
	}
	encRefresh, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return err
	}
	if refreshToken == "" {
		return ErrMissingRefreshToken
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("slack_team_id = ? AND slack_user_id = ? AND space_org_id = ?",
				key.SlackTeamID, key.SlackUserID, key.SpaceOrgID).
			Delete(&models.SpaceUserToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.SpaceUserToken{
			SlackTeamID:      key.SlackTeamID,
			SlackUserID:      key.SlackUserID,
			SpaceOrgID:       key.SpaceOrgID,
			AccessToken:      encAccess,
			RefreshToken:     encRefresh,
			PermissionScopes: permissionScopes,
		}).Error
	})
}

func (s *Store) GetSpaceUserToken(key models.SlackUserKey) (*UserCredential, error) {
	var row models.SpaceUserToken
	err := s.db.
		Where("slack_team_id = ? AND slack_user_id = ? AND space_org_id = ?",
			key.SlackTeamID, key.SlackUserID, key.SpaceOrgID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.toCredential(row.UnfurlsDisabled, row.AccessToken, row.RefreshToken, row.PermissionScopes)
}

func (s *Store) DeleteSpaceUserToken(key models.SlackUserKey) error {
	return s.db.
		Where("slack_team_id = ? AND slack_user_id = ? AND space_org_id = ?",
			key.SlackTeamID, key.SlackUserID, key.SpaceOrgID).
		Delete(&models.SpaceUserToken{}).Error
}

func (s *Store) DisableSpaceUnfurls(key models.SlackUserKey) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("slack_team_id = ? AND slack_user_id = ? AND space_org_id = ?",
				key.SlackTeamID, key.SlackUserID, key.SpaceOrgID).
			Delete(&models.SpaceUserToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.SpaceUserToken{
			SlackTeamID:     key.SlackTeamID,
			SlackUserID:     key.SlackUserID,
			SpaceOrgID:      key.SpaceOrgID,
			UnfurlsDisabled: true,
		}).Error
	})
}

func (s *Store) toCredential(disabled bool, accessToken, refreshToken, permissionScopes string) (*UserCredential, error) {
	if disabled {
		return &UserCredential{Disabled: true}, nil
	}
	access, err := s.cipher.Decrypt(accessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.cipher.Decrypt(refreshToken)
	if err != nil {
		return nil, err
	}
	if access == "" || refresh == "" {
		return nil, nil
	}
	return &UserCredential{
		AccessToken:      access,
		RefreshToken:     refresh,
		PermissionScopes: permissionScopes,
	}, nil
}
