package store

import (
	"context"
	"log/slog"

	"github.com/refdatahq/lookupd/internal/config"
)

// NewStore selects the store implementation from the configuration: the
// PostgreSQL store when a database is configured, the file store otherwise.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg.Database != nil {
		return NewPostgresStore(ctx, cfg.Database)
	}

	dataDir := cfg.Storage.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	slog.Info("Using file-based definition store", "data_dir", dataDir)
	return NewFileStore(dataDir), nil
}
