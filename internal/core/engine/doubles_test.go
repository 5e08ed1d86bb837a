package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/faultlens/faultlens/internal/core"
)

type memoryUsageStore struct {
	state   map[string]*core.UsageState
	getErr  error
	saveErr error
	saves   int
}

func (m *memoryUsageStore) GetUsage(ctx context.Context, name string) (*core.UsageState, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if val, ok := m.state[name]; ok {
		copied := *val
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryUsageStore) SaveUsage(ctx context.Context, name string, state *core.UsageState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.state == nil {
		m.state = make(map[string]*core.UsageState)
	}
	copied := *state
	m.state[name] = &copied
	m.saves++
	return nil
}

type memoryKnowledgeStore struct {
	entries   []core.KnowledgeEntry
	listErr   error
	insertErr error
}

func (m *memoryKnowledgeStore) ListKnowledge(ctx context.Context) ([]core.KnowledgeEntry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]core.KnowledgeEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memoryKnowledgeStore) InsertKnowledge(ctx context.Context, entry core.KnowledgeEntry) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	m.entries = append(m.entries, entry)
	return true, nil
}

type stubExplainer struct {
	mu       sync.Mutex
	response string
	err      error
	requests []core.ExplainRequest
}

func (s *stubExplainer) Explain(ctx context.Context, req core.ExplainRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubExplainer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type fixedLimiter struct {
	allow      bool
	increments int
}

func (f *fixedLimiter) CheckLimit(ctx context.Context) bool { return f.allow }

func (f *fixedLimiter) IncrementUsage(ctx context.Context) { f.increments++ }

type stubRunner struct {
	result *core.RunResult
	err    error
	specs  []core.RunSpec
}

func (s *stubRunner) Run(ctx context.Context, spec core.RunSpec) (*core.RunResult, error) {
	s.specs = append(s.specs, spec)
	return s.result, s.err
}

var errStoreDown = errors.New("store down")
