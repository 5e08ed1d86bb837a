//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/faultlens/faultlens/internal/config"
	"github.com/faultlens/faultlens/internal/core"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Close())
}

func TestKnowledgeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	entries, err := store.ListKnowledge(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	inserted, err := store.InsertKnowledge(ctx, core.KnowledgeEntry{Signature: "TypeError: x", Explanation: "first"})
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.InsertKnowledge(ctx, core.KnowledgeEntry{Signature: "typeerror: X", Explanation: "second"})
	require.NoError(t, err)
	require.False(t, inserted)

	inserted, err = store.InsertKnowledge(ctx, core.KnowledgeEntry{Signature: "ReferenceError: y", Explanation: "third"})
	require.NoError(t, err)
	require.True(t, inserted)

	entries, err = store.ListKnowledge(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "TypeError: x", entries[0].Signature)
	require.Equal(t, "first", entries[0].Explanation)
	require.False(t, entries[0].CreatedAt.IsZero())
	require.Equal(t, "ReferenceError: y", entries[1].Signature)
}

func TestUsageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	state, err := store.GetUsage(ctx, "service")
	require.NoError(t, err)
	require.Nil(t, state)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveUsage(ctx, "service", &core.UsageState{Count: 3, WindowStart: start}))
	require.NoError(t, store.SaveUsage(ctx, "service", &core.UsageState{Count: 4, WindowStart: start}))

	state, err = store.GetUsage(ctx, "service")
	require.NoError(t, err)
	require.Equal(t, 4, state.Count)
	require.True(t, start.Equal(state.WindowStart))
}
