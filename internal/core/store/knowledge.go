package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/faultlens/faultlens/internal/core"
)

// ListKnowledge returns every stored knowledge entry in insertion order.
func (s *Store) ListKnowledge(ctx context.Context) ([]core.KnowledgeEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT signature, explanation, created_at
		FROM knowledge
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	entries := make([]core.KnowledgeEntry, 0)
	for rows.Next() {
		var (
			entry     core.KnowledgeEntry
			createdAt int64
		)
		if err := rows.Scan(&entry.Signature, &entry.Explanation, &createdAt); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		if createdAt > 0 {
			entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}

	return entries, nil
}

// InsertKnowledge appends an entry unless one with the same signature
// (compared case-insensitively) already exists. It reports whether a row
// was written.
func (s *Store) InsertKnowledge(ctx context.Context, entry core.KnowledgeEntry) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errNotInitialized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if entry.Signature == "" {
		return false, errors.New("signature is required")
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.DB.ExecContext(ctx, `
		INSERT INTO knowledge (signature, signature_key, explanation, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(signature_key) DO NOTHING
	`, entry.Signature, keyForSignature(entry.Signature), entry.Explanation, createdAt.UTC().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("store knowledge: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return true, nil
	}
	return affected > 0, nil
}

func keyForSignature(signature string) string {
	return strings.ToLower(signature)
}
