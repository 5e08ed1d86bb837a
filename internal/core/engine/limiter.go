package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
)

const (
	// DefaultUsageLimit is the number of explainer calls allowed per window.
	DefaultUsageLimit = 100
	// DefaultUsageWindow is the length of one usage window.
	DefaultUsageWindow = 15 * time.Minute
	// DefaultUsageName keys the persisted usage window.
	DefaultUsageName = "explainer"
)

// UsageStore persists the usage window.
type UsageStore interface {
	GetUsage(ctx context.Context, name string) (*core.UsageState, error)
	SaveUsage(ctx context.Context, name string, state *core.UsageState) error
}

// UsageLimiter caps explainer calls within a fixed window. The window is
// reset lazily on access once it has elapsed. Persistence failures fall
// back to the in-process state, or a fresh window, and are only logged.
type UsageLimiter struct {
	Store  UsageStore
	Name   string
	Limit  int
	Window time.Duration
	Clock  func() time.Time
	Logger Logger

	mu    sync.Mutex
	state *core.UsageState
}

// CheckLimit resets an elapsed window and reports whether another call fits.
func (l *UsageLimiter) CheckLimit(ctx context.Context) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.load(ctx)
	if l.resetIfElapsed(state) {
		l.save(ctx, state)
	}
	return state.Count < l.limit()
}

// IncrementUsage resets an elapsed window and counts one call.
func (l *UsageLimiter) IncrementUsage(ctx context.Context) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.load(ctx)
	l.resetIfElapsed(state)
	state.Count++
	l.save(ctx, state)
}

// Remaining returns the calls left in the current window.
func (l *UsageLimiter) Remaining(ctx context.Context) int {
	state := l.State(ctx)
	remaining := l.limit() - state.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// State returns a snapshot of the current window. An elapsed window is
// reported as freshly reset but is not persisted.
func (l *UsageLimiter) State(ctx context.Context) core.UsageState {
	if l == nil {
		return core.UsageState{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := *l.load(ctx)
	l.resetIfElapsed(&snapshot)
	return snapshot
}

// UsageSnapshot describes the current window for display.
type UsageSnapshot struct {
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
	ResetsAt    time.Time `json:"resets_at"`
	Label       string    `json:"label"`
}

// Snapshot returns the current window with its limit and reset time.
func (l *UsageLimiter) Snapshot(ctx context.Context) UsageSnapshot {
	state := l.State(ctx)
	remaining := l.limit() - state.Count
	if remaining < 0 {
		remaining = 0
	}
	return UsageSnapshot{
		Count:       state.Count,
		Limit:       l.limit(),
		Remaining:   remaining,
		WindowStart: state.WindowStart,
		ResetsAt:    l.ResetsAt(state),
		Label:       FormatLimitLabel(l.limit(), l.window()),
	}
}

// ResetsAt returns when the window of state elapses.
func (l *UsageLimiter) ResetsAt(state core.UsageState) time.Time {
	return state.WindowStart.Add(l.window())
}

// Reset starts a new empty window and persists it.
func (l *UsageLimiter) Reset(ctx context.Context) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state := &core.UsageState{WindowStart: l.now()}
	l.state = state
	if l.Store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return l.Store.SaveUsage(ctx, l.name(), state)
}

// load returns the state to mutate. Stored state wins so separate
// processes sharing a store observe each other's usage.
func (l *UsageLimiter) load(ctx context.Context) *core.UsageState {
	if l.Store != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		stored, err := l.Store.GetUsage(ctx, l.name())
		if err != nil {
			loggerOrNop(l.Logger).Warn("Usage state load failed",
				zap.String("failure_kind", string(core.FailurePersistence)),
				zap.Error(err))
		} else if stored != nil {
			l.state = stored
		}
	}

	if l.state == nil {
		l.state = &core.UsageState{WindowStart: l.now()}
	}
	return l.state
}

func (l *UsageLimiter) save(ctx context.Context, state *core.UsageState) {
	l.state = state
	if l.Store == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.Store.SaveUsage(ctx, l.name(), state); err != nil {
		loggerOrNop(l.Logger).Warn("Usage state save failed",
			zap.String("failure_kind", string(core.FailurePersistence)),
			zap.Error(err))
	}
}

func (l *UsageLimiter) resetIfElapsed(state *core.UsageState) bool {
	now := l.now()
	if now.Sub(state.WindowStart) <= l.window() {
		return false
	}
	state.Count = 0
	state.WindowStart = now
	return true
}

func (l *UsageLimiter) limit() int {
	if l == nil || l.Limit <= 0 {
		return DefaultUsageLimit
	}
	return l.Limit
}

func (l *UsageLimiter) window() time.Duration {
	if l == nil || l.Window <= 0 {
		return DefaultUsageWindow
	}
	return l.Window
}

func (l *UsageLimiter) name() string {
	if l.Name == "" {
		return DefaultUsageName
	}
	return l.Name
}

func (l *UsageLimiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}
