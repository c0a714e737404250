package store

import (
	"errors"

	"github.com/JetBrains/space-slack-unfurls/internal/models"

	"gorm.io/gorm"
)

// CreateSlackTeam registers or replaces a Slack workspace installation
// together with its app-level token pair.
func (s *Store) CreateSlackTeam(teamID, domain, accessToken, refreshToken string) error {
	encAccess, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return err
	}
	encRefresh, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", teamID).Delete(&models.SlackTeam{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.SlackTeam{
			ID:           teamID,
			Domain:       domain,
			AccessToken:  encAccess,
			RefreshToken: encRefresh,
		}).Error
	})
}

func (s *Store) GetSlackTeam(teamID string) (*models.SlackTeam, error) {
	var team models.SlackTeam
	if err := s.db.Where("id = ?", teamID).First(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.decryptSlackTeam(&team)
}

func (s *Store) GetSlackTeamByDomain(domain string) (*models.SlackTeam, error) {
	var team models.SlackTeam
	if err := s.db.Where("domain = ?", domain).First(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.decryptSlackTeam(&team)
}

func (s *Store) UpdateSlackTeamDomain(teamID, newDomain string) error {
	return s.db.Model(&models.SlackTeam{}).
		Where("id = ?", teamID).
		Update("domain", newDomain).Error
}

func (s *Store) UpdateSlackTeamInfo(teamID, name, iconURL string) error {
	return s.db.Model(&models.SlackTeam{}).
		Where("id = ?", teamID).
		Updates(map[string]any{
			"name":     name,
			"icon_url": iconURL,
		}).Error
}

// UpdateSlackTeamTokens replaces the app token pair. An empty refresh
// token keeps the stored one, because Slack only rotates it sometimes.
func (s *Store) UpdateSlackTeamTokens(teamID, accessToken, refreshToken string) error {
	encAccess, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return err
	}
	updates := map[string]any{"access_token": encAccess}
	if refreshToken != "" {
		encRefresh, err := s.cipher.Encrypt(refreshToken)
		if err != nil {
			return err
		}
		updates["refresh_token"] = encRefresh
	}
	return s.db.Model(&models.SlackTeam{}).
		Where("id = ?", teamID).
		Updates(updates).Error
}

func (s *Store) DeleteSlackTeam(teamID string) error {
	return s.db.Where("id = ?", teamID).Delete(&models.SlackTeam{}).Error
}

// LinkSpaceOrgToSlackTeam connects an installed Space org with an
// installed Slack workspace. Idempotent.
func (s *Store) LinkSpaceOrgToSlackTeam(spaceOrgID, slackTeamID string) error {
	link := models.SpaceSlackLink{SpaceOrgID: spaceOrgID, SlackTeamID: slackTeamID}
	return s.db.
		Where("space_org_id = ? AND slack_team_id = ?", spaceOrgID, slackTeamID).
		FirstOrCreate(&link).Error
}

func (s *Store) UnlinkSpaceOrgFromSlackTeam(spaceOrgID, slackTeamID string) error {
	return s.db.
		Where("space_org_id = ? AND slack_team_id = ?", spaceOrgID, slackTeamID).
		Delete(&models.SpaceSlackLink{}).Error
}

func (s *Store) ListSlackTeamsForSpaceOrg(spaceOrgID string) ([]models.SlackTeam, error) {
	var teams []models.SlackTeam
	err := s.db.
		Joins("JOIN space_slack_links ON space_slack_links.slack_team_id = slack_teams.id").
		Where("space_slack_links.space_org_id = ?", spaceOrgID).
		Find(&teams).Error
	if err != nil {
		return nil, err
	}
	for i := range teams {
		if _, err := s.decryptSlackTeam(&teams[i]); err != nil {
			return nil, err
		}
	}
	return teams, nil
}

func (s *Store) ListSpaceOrgsForSlackTeam(slackTeamID string) ([]models.SpaceOrg, error) {
	var orgs []models.SpaceOrg
	err := s.db.
		Joins("JOIN space_slack_links ON space_slack_links.space_org_id = space_orgs.client_id").
		Where("space_slack_links.slack_team_id = ?", slackTeamID).
		Find(&orgs).Error
	if err != nil {
		return nil, err
	}
	for i := range orgs {
		if _, err := s.decryptSpaceOrg(&orgs[i]); err != nil {
			return nil, err
		}
	}
	return orgs, nil
}

func (s *Store) decryptSlackTeam(team *models.SlackTeam) (*models.SlackTeam, error) {
	access, err := s.cipher.Decrypt(team.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.cipher.Decrypt(team.RefreshToken)
	if err != nil {
		return nil, err
	}
	team.AccessToken = access
	team.RefreshToken = refresh
	return team, nil
}
