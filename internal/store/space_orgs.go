package store

import (
	"errors"
	"net/url"

	"github.com/JetBrains/space-slack-unfurls/internal/models"

	"gorm.io/gorm"
)

// SaveSpaceOrg registers or replaces a Space organization after app
// installation. An existing row for the same client id is replaced
// wholesale, which also resets the unfurl queue cursor.
func (s *Store) SaveSpaceOrg(clientID, clientSecret, orgURL, domain string) error {
	encrypted, err := s.cipher.Encrypt(clientSecret)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", clientID).Delete(&models.SpaceOrg{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.SpaceOrg{
			ClientID:     clientID,
			ClientSecret: encrypted,
			OrgURL:       orgURL,
			Domain:       domain,
		}).Error
	})
}

func (s *Store) GetSpaceOrg(clientID string) (*models.SpaceOrg, error) {
	var org models.SpaceOrg
	if err := s.db.Where("client_id = ?", clientID).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.decryptSpaceOrg(&org)
}

func (s *Store) GetSpaceOrgByDomain(domain string) (*models.SpaceOrg, error) {
	var org models.SpaceOrg
	if err := s.db.Where("domain = ?", domain).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.decryptSpaceOrg(&org)
}

// UpdateSpaceOrgEtag advances the unfurl queue cursor. Nil resets the
// cursor so the next poll starts from the beginning of the queue.
func (s *Store) UpdateSpaceOrgEtag(clientID string, etag *int64) error {
	return s.db.Model(&models.SpaceOrg{}).
		Where("client_id = ?", clientID).
		Update("last_unfurl_queue_etag", etag).Error
}

func (s *Store) UpdateSpaceOrgServerURL(clientID, serverURL string) error {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return err
	}
	return s.db.Model(&models.SpaceOrg{}).
		Where("client_id = ?", clientID).
		Updates(map[string]any{
			"org_url": serverURL,
			"domain":  parsed.Host,
		}).Error
}

func (s *Store) UpdateSpaceOrgClientSecret(clientID, clientSecret string) error {
	encrypted, err := s.cipher.Encrypt(clientSecret)
	if err != nil {
		return err
	}
	return s.db.Model(&models.SpaceOrg{}).
		Where("client_id = ?", clientID).
		Update("client_secret", encrypted).Error
}

func (s *Store) decryptSpaceOrg(org *models.SpaceOrg) (*models.SpaceOrg, error) {
	secret, err := s.cipher.Decrypt(org.ClientSecret)
	if err != nil {
		return nil, err
	}
	org.ClientSecret = secret
	return org, nil
}
