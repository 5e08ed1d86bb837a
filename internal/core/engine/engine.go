// Package engine drives error analysis: it consults the knowledge base,
// enforces the usage limiter, calls the external explainer, and fans
// analyses out over source files, logs, diagnostics, and run output.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
)

// Logger is the subset of the structured logger used by the engine.
// Both *logging.Logger and *zap.Logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Explainer produces a free-text explanation for an analysis request.
type Explainer interface {
	Explain(ctx context.Context, req core.ExplainRequest) (string, error)
}

// Knowledge maps error signatures to previously produced explanations.
type Knowledge interface {
	Find(ctx context.Context, query string) (string, bool)
	Record(ctx context.Context, signature, explanation string) error
}

// Limiter caps calls to the external explainer.
type Limiter interface {
	CheckLimit(ctx context.Context) bool
	IncrementUsage(ctx context.Context)
}

// Runner executes a target file and captures its output.
type Runner interface {
	Run(ctx context.Context, spec core.RunSpec) (*core.RunResult, error)
}

// Handler performs one analysis invocation.
type Handler interface {
	HandleAnalysis(ctx context.Context, req core.AnalysisRequest) *core.Analysis
}

func loggerOrNop(logger Logger) Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
