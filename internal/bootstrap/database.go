package bootstrap

import (
	"fmt"
	"log"

	"github.com/JetBrains/space-slack-unfurls/internal/config"
	"github.com/JetBrains/space-slack-unfurls/internal/store"
	"github.com/JetBrains/space-slack-unfurls/internal/util"
)

func initializeDatabase(cfg *config.Config) (*store.Store, error) {
	cipher, err := util.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("initialize token cipher: %w", err)
	}

	st, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, cipher)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	log.Printf("Database initialized (%s)", cfg.DatabaseDriver)
	return st, nil
}
