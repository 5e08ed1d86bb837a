package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is applied once, in version order, inside its own transaction.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "knowledge",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS knowledge (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				signature TEXT NOT NULL,
				signature_key TEXT NOT NULL UNIQUE,
				explanation TEXT NOT NULL,
				created_at INTEGER NOT NULL DEFAULT 0
			);`,
		},
	},
	{
		version: 2,
		name:    "usage_windows",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS usage_windows (
				name TEXT PRIMARY KEY,
				request_count INTEGER NOT NULL DEFAULT 0,
				window_start INTEGER NOT NULL
			);`,
		},
	},
	{
		version: 3,
		name:    "knowledge_created_index",
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_knowledge_created_at ON knowledge (created_at, id);`,
		},
	},
}

// SchemaVersion is the highest migration version this build knows.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies pending migrations. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	);`); err != nil {
		return fmt.Errorf("store migration failed: %w", err)
	}

	current, err := s.AppliedVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("store migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

// AppliedVersion returns the highest recorded migration, 0 on a fresh database.
func (s *Store) AppliedVersion(ctx context.Context) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	var version sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
