// Package store persists the knowledge base and the usage window in a
// libSQL database, either a local file or a remote Turso URL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/faultlens/faultlens/internal/config"
)

const driverLibsql = "libsql"

var errNotInitialized = errors.New("store is not initialized")

// Store wraps the database connection holding the knowledge base and
// usage window state.
type Store struct {
	DB     *sql.DB
	driver string
}

// Open connects to the configured database and verifies it answers a ping.
// Migrations are applied separately by Migrate.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	target, err := resolveDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverLibsql, target.dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}
	if target.local {
		configureLocal(ctx, db)
	}
	return &Store{DB: db, driver: driver}, nil
}

// configureLocal serializes writers on a single connection and lets
// concurrent CLI processes wait for the file lock instead of failing.
func configureLocal(ctx context.Context, db *sql.DB) {
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		var ignored any
		_ = db.QueryRowContext(ctx, pragma).Scan(&ignored)
	}
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// CheckHealth pings the database; it backs the "store" health check.
func (s *Store) CheckHealth(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.DB.PingContext(ctx)
}
