package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
)

// KnowledgeStore persists knowledge entries.
type KnowledgeStore interface {
	ListKnowledge(ctx context.Context) ([]core.KnowledgeEntry, error)
	InsertKnowledge(ctx context.Context, entry core.KnowledgeEntry) (bool, error)
}

// KnowledgeBase maps error signatures to explanations.
//
// Lookups match when a stored signature is a case-insensitive substring of
// the query; the earliest stored entry wins. Writes are skipped when the
// signature already exists under a case-insensitive exact match.
type KnowledgeBase struct {
	Store  KnowledgeStore
	Clock  func() time.Time
	Logger Logger

	mu      sync.Mutex
	entries []core.KnowledgeEntry
}

// Find returns the explanation of the first entry whose signature occurs
// in query. Store failures read as an empty collection.
func (k *KnowledgeBase) Find(ctx context.Context, query string) (string, bool) {
	if k == nil {
		return "", false
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	needle := strings.ToLower(query)
	for _, entry := range k.load(ctx) {
		if entry.Signature == "" {
			continue
		}
		if strings.Contains(needle, strings.ToLower(entry.Signature)) {
			return entry.Explanation, true
		}
	}
	return "", false
}

// Record stores an explanation for a new signature. Existing signatures and
// empty signatures are left untouched. The entry stays available in-process
// even when persisting it fails.
func (k *KnowledgeBase) Record(ctx context.Context, signature, explanation string) error {
	if k == nil {
		return errors.New("knowledge base is not initialized")
	}
	if signature == "" {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, entry := range k.load(ctx) {
		if strings.EqualFold(entry.Signature, signature) {
			return nil
		}
	}

	entry := core.KnowledgeEntry{
		Signature:   signature,
		Explanation: explanation,
		CreatedAt:   k.now(),
	}
	k.entries = append(k.entries, entry)

	if k.Store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := k.Store.InsertKnowledge(ctx, entry); err != nil {
		return core.NewFailure(core.FailurePersistence, "store knowledge entry", err)
	}
	return nil
}

// Entries returns all known entries in insertion order.
func (k *KnowledgeBase) Entries(ctx context.Context) []core.KnowledgeEntry {
	if k == nil {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	entries := k.load(ctx)
	out := make([]core.KnowledgeEntry, len(entries))
	copy(out, entries)
	return out
}

func (k *KnowledgeBase) load(ctx context.Context) []core.KnowledgeEntry {
	if k.Store == nil {
		return k.entries
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stored, err := k.Store.ListKnowledge(ctx)
	if err != nil {
		loggerOrNop(k.Logger).Warn("Knowledge load failed",
			zap.String("failure_kind", string(core.FailurePersistence)),
			zap.Error(err))
		return k.entries
	}

	k.entries = mergeEntries(stored, k.entries)
	return k.entries
}

// mergeEntries keeps stored order and appends in-process entries the store
// does not have yet.
func mergeEntries(stored, local []core.KnowledgeEntry) []core.KnowledgeEntry {
	if len(local) == 0 {
		return stored
	}

	seen := make(map[string]struct{}, len(stored))
	for _, entry := range stored {
		seen[strings.ToLower(entry.Signature)] = struct{}{}
	}

	merged := stored
	for _, entry := range local {
		if _, ok := seen[strings.ToLower(entry.Signature)]; ok {
			continue
		}
		merged = append(merged, entry)
	}
	return merged
}

func (k *KnowledgeBase) now() time.Time {
	if k != nil && k.Clock != nil {
		return k.Clock()
	}
	return time.Now().UTC()
}
