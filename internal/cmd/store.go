package cmd

import (
	"context"
	"fmt"

	"github.com/faultlens/faultlens/internal/config"
	"github.com/faultlens/faultlens/internal/core/store"
)

// openStore opens the knowledge database and brings its schema up to
// date. The caller owns the returned store.
func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s store: %w", db.Driver(), err)
	}
	return db, nil
}
