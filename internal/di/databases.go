package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens history.db and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// history.db - daily adjusted closes per ticker
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    database.HistoryDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	if err := historyDB.Migrate(); err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", historyDB.Name(), err)
	}

	log.Info().Str("path", historyDB.Path()).Msg("History database initialized and schema applied")

	return container, nil
}
