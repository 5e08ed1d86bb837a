package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TraceEntry is one provider round trip, written as a single NDJSON line.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
	Model       string          `json:"model,omitempty"`
	PromptSlug  string          `json:"prompt_slug,omitempty"`
	Mode        string          `json:"mode,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// Tracer serializes entries onto one writer.
type Tracer struct {
	mu sync.Mutex
	w  io.WriteCloser
}

var activeTracer atomic.Pointer[Tracer]

// EnableTracing appends traces to the file at path. The returned cleanup
// stops tracing and closes the file.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- trace path is chosen by the user
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return SetTraceWriter(f), nil
}

// SetTraceWriter routes traces to w, closing any tracer it replaces.
func SetTraceWriter(w io.WriteCloser) func() {
	tracer := &Tracer{w: w}
	if previous := activeTracer.Swap(tracer); previous != nil {
		_ = previous.Close()
	}
	return func() {
		activeTracer.CompareAndSwap(tracer, nil)
		_ = tracer.Close()
	}
}

// IsTracingEnabled returns true if tracing is active.
func IsTracingEnabled() bool {
	return activeTracer.Load() != nil
}

// Trace records entry when tracing is enabled.
func Trace(entry TraceEntry) {
	activeTracer.Load().Write(entry)
}

// Write records a trace entry. Encoding failures drop the entry.
func (t *Tracer) Write(entry TraceEntry) {
	if t == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w != nil {
		_, _ = t.w.Write(append(data, '\n'))
	}
}

// Close closes the underlying writer once.
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return nil
	}
	err := t.w.Close()
	t.w = nil
	return err
}
