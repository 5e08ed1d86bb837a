package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/faultlens/faultlens/internal/core"
)

// GetUsage returns the stored usage window for a limiter. It returns nil
// without error when no window has been persisted yet.
func (s *Store) GetUsage(ctx context.Context, name string) (*core.UsageState, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("limiter name is required")
	}

	var (
		count       int
		windowStart int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT request_count, window_start
		FROM usage_windows
		WHERE name = ?
	`, name)

	if err := row.Scan(&count, &windowStart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch usage: %w", err)
	}

	return &core.UsageState{
		Count:       count,
		WindowStart: time.UnixMilli(windowStart).UTC(),
	}, nil
}

// SaveUsage persists the usage window for a limiter.
func (s *Store) SaveUsage(ctx context.Context, name string, state *core.UsageState) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("limiter name is required")
	}
	if state == nil {
		return errors.New("usage state is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO usage_windows (name, request_count, window_start)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start
	`, name, state.Count, state.WindowStart.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store usage: %w", err)
	}

	return nil
}
