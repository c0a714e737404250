package store

import (
	"github.com/JetBrains/space-slack-unfurls/internal/models"
	"github.com/JetBrains/space-slack-unfurls/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists orgs, teams, user credentials, OAuth sessions and
// deferred events. All token and secret columns are encrypted with the
// configured cipher before they reach the database.
type Store struct {
	db     *gorm.DB
	cipher *util.Cipher
}

func New(driver, dsn string, cipher *util.Cipher) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.SpaceOrg{},
		&models.SlackTeam{},
		&models.SpaceSlackLink{},
		&models.SlackUserToken{},
		&models.SpaceUserToken{},
		&models.SlackOAuthSession{},
		&models.SpaceOAuthSession{},
		&models.DeferredSlackEvent{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db, cipher: cipher}, nil
}

// Health checks database connectivity
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB exposes the underlying gorm handle for tests
func (s *Store) DB() *gorm.DB {
	return s.db
}
