package repository

import (
	"context"
	"fmt"

	"github.com/bsvalues/PACS-DataBridge/internal/config"
	"github.com/bsvalues/PACS-DataBridge/internal/database"
)

// Open connects to the configured store driver and applies its schema.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Store.Driver)
}
