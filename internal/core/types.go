package core

import "time"

// AnalysisMode identifies when an analysis pass runs relative to execution.
type AnalysisMode string

const (
	// ModeStatic runs before execution over source text or diagnostics.
	ModeStatic AnalysisMode = "static"
	// ModeExecution runs after a run attempt over captured output.
	ModeExecution AnalysisMode = "execution"
)

// Label returns the stage name used in analysis requests.
func (m AnalysisMode) Label() string {
	if m == ModeStatic {
		return "Preliminary"
	}
	return "Execution"
}

// Heading returns the console banner for the mode.
func (m AnalysisMode) Heading() string {
	if m == ModeStatic {
		return ". PRELIMINARY ANALYSIS ."
	}
	return ". EXECUTION ANALYSIS ."
}

// Location is a 1-based line/column position as found in the text.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// AnalysisRequest is constructed per invocation and never persisted.
type AnalysisRequest struct {
	Context  string       `json:"context"`
	Mode     AnalysisMode `json:"mode"`
	Location *Location    `json:"location,omitempty"`
}

// KnowledgeEntry maps a normalized error signature to an explanation.
type KnowledgeEntry struct {
	Signature   string    `json:"signature"`
	Explanation string    `json:"explanation"`
	CreatedAt   time.Time `json:"created_at"`
}

// UsageState captures the call count inside the current window.
type UsageState struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// AnalysisSource reports where an explanation came from.
type AnalysisSource string

const (
	SourceCache    AnalysisSource = "cache"
	SourceService  AnalysisSource = "service"
	SourceLimit    AnalysisSource = "limit"
	SourceDegraded AnalysisSource = "degraded"
)

// Analysis is the outcome of a single analysis invocation.
type Analysis struct {
	ID          string         `json:"id"`
	Mode        AnalysisMode   `json:"mode"`
	Signature   string         `json:"signature"`
	Location    *Location      `json:"location,omitempty"`
	Explanation string         `json:"explanation"`
	Source      AnalysisSource `json:"source"`
	Failure     *Failure       `json:"failure,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
	ResolvedAt  time.Time      `json:"resolved_at"`
}

// Degraded reports whether the explanation is a fixed fallback message.
func (a *Analysis) Degraded() bool {
	if a == nil {
		return true
	}
	return a.Source == SourceLimit || a.Source == SourceDegraded
}

// Report collects the analyses performed for one target file.
type Report struct {
	Path      string      `json:"path"`
	Mode      string      `json:"mode"`
	Analyses  []*Analysis `json:"analyses"`
	Executed  bool        `json:"executed"`
	ExitCode  int         `json:"exit_code,omitempty"`
	TimedOut  bool        `json:"timed_out,omitempty"`
	Success   bool        `json:"success"`
	StartedAt time.Time   `json:"started_at"`
	Duration  string      `json:"duration"`
}

// ExplainRequest carries the prompt inputs for one external analysis call.
type ExplainRequest struct {
	Mode           AnalysisMode `json:"mode"`
	Stage          string       `json:"stage"`
	LocationClause string       `json:"location_clause"`
	Context        string       `json:"context"`
	MaxWords       int          `json:"max_words"`
}

// RunSpec describes one execution of a target file.
type RunSpec struct {
	Command []string `json:"command"`
	Path    string   `json:"path"`
}

// RunResult captures the outcome of executing a target file.
type RunResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the run exited non-zero, wrote to stderr, or was
// killed on timeout.
func (r *RunResult) Failed() bool {
	if r == nil {
		return false
	}
	return r.ExitCode != 0 || r.Stderr != "" || r.TimedOut
}

// Log returns stderr when present, otherwise stdout.
func (r *RunResult) Log() string {
	if r == nil {
		return ""
	}
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}
