package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/extract"
)

// DefaultExplanationWords bounds the explanation length requested from the
// explainer.
const DefaultExplanationWords = 20

// Analyzer runs single analysis invocations. HandleAnalysis never returns
// an error: every failure becomes a degraded explanation on the result.
type Analyzer struct {
	Knowledge Knowledge
	Limiter   Limiter
	Explainer Explainer
	Logger    Logger
	Clock     func() time.Time

	// MaxWords bounds the explanation length; zero uses DefaultExplanationWords.
	MaxWords int
	// LimitLabel describes the limiter budget in the limit-reached message,
	// e.g. "100/15min".
	LimitLabel string
}

// Explanation is the text produced for one request and where it came from.
type Explanation struct {
	Text    string
	Source  core.AnalysisSource
	Failure *core.Failure
}

// HandleAnalysis answers one analysis request from the knowledge base or the
// explainer. Genuine explainer answers for execution analyses are recorded.
func (a *Analyzer) HandleAnalysis(ctx context.Context, req core.AnalysisRequest) *core.Analysis {
	if ctx == nil {
		ctx = context.Background()
	}

	signature := extract.Signature(req.Context)
	analysis := &core.Analysis{
		ID:          uuid.NewString(),
		Mode:        req.Mode,
		Signature:   signature,
		Location:    req.Location,
		RequestedAt: a.now(),
	}

	logger := loggerOrNop(a.logger())

	if a != nil && a.Knowledge != nil {
		if cached, ok := a.Knowledge.Find(ctx, signature); ok {
			analysis.Explanation = cached
			analysis.Source = core.SourceCache
			analysis.ResolvedAt = a.now()
			logger.Debug("Knowledge hit", zap.String("signature", signature))
			return analysis
		}
	}

	result := a.RequestExplanation(ctx, req)
	analysis.Explanation = result.Text
	analysis.Source = result.Source
	analysis.Failure = result.Failure
	analysis.ResolvedAt = a.now()

	if result.Failure != nil {
		logger.Warn("Analysis degraded",
			zap.String("mode", string(req.Mode)),
			zap.String("signature", signature),
			zap.String("failure_kind", string(result.Failure.Kind)),
			zap.String("reason", result.Failure.Reason()))
		return analysis
	}

	if req.Mode == core.ModeExecution && result.Source == core.SourceService && a.Knowledge != nil {
		if err := a.Knowledge.Record(ctx, signature, result.Text); err != nil {
			logger.Warn("Knowledge write failed",
				zap.String("signature", signature),
				zap.String("failure_kind", string(core.FailurePersistence)),
				zap.Error(err))
		}
	}

	return analysis
}

// RequestExplanation enforces the usage limit and calls the explainer once.
// Usage is counted before the call, so failed calls still consume quota.
func (a *Analyzer) RequestExplanation(ctx context.Context, req core.AnalysisRequest) Explanation {
	if ctx == nil {
		ctx = context.Background()
	}

	if a == nil || a.Explainer == nil {
		failure := core.NewFailure(core.FailureConfiguration, "no analysis service configured", nil)
		return Explanation{Text: FailureMessage(failure.Reason()), Source: core.SourceDegraded, Failure: failure}
	}

	if a.Limiter != nil {
		if !a.Limiter.CheckLimit(ctx) {
			return Explanation{
				Text:    LimitMessage(a.LimitLabel),
				Source:  core.SourceLimit,
				Failure: core.NewFailure(core.FailureLimitExceeded, "usage limit reached", nil),
			}
		}
		a.Limiter.IncrementUsage(ctx)
	}

	text, err := a.Explainer.Explain(ctx, a.explainRequest(req))
	if err != nil {
		failure := classifyFailure(err)
		return Explanation{Text: FailureMessage(failure.Reason()), Source: core.SourceDegraded, Failure: failure}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		failure := core.NewFailure(core.FailureService, "empty response from analysis service", nil)
		return Explanation{Text: FailureMessage(failure.Reason()), Source: core.SourceDegraded, Failure: failure}
	}

	return Explanation{Text: text, Source: core.SourceService}
}

func (a *Analyzer) explainRequest(req core.AnalysisRequest) core.ExplainRequest {
	words := a.MaxWords
	if words <= 0 {
		words = DefaultExplanationWords
	}
	return core.ExplainRequest{
		Mode:           req.Mode,
		Stage:          req.Mode.Label(),
		LocationClause: LocationClause(req.Location),
		Context:        req.Context,
		MaxWords:       words,
	}
}

// LocationClause tells the explainer where the error is, or asks it to find
// the position itself when none was extracted.
func LocationClause(loc *core.Location) string {
	if loc == nil {
		return "Location: Identify the exact Line and Column from the source code below."
	}
	return fmt.Sprintf("Location: Line %d, Col %d", loc.Line, loc.Column)
}

// LimitMessage is the fixed response returned while the usage limit is hit.
func LimitMessage(label string) string {
	if label == "" {
		label = FormatLimitLabel(DefaultUsageLimit, DefaultUsageWindow)
	}
	return fmt.Sprintf("- . Status: AI limit reached (%s)\n- . Hint: Train manually or wait for reset.", label)
}

// FailureMessage is the fixed response returned when the explainer fails.
func FailureMessage(reason string) string {
	return "- . Error: " + reason
}

// FormatLimitLabel renders a limit and window as "100/15min".
func FormatLimitLabel(limit int, window time.Duration) string {
	if limit <= 0 {
		limit = DefaultUsageLimit
	}
	if window <= 0 {
		window = DefaultUsageWindow
	}

	switch {
	case window%time.Hour == 0:
		return fmt.Sprintf("%d/%dh", limit, int(window/time.Hour))
	case window%time.Minute == 0:
		return fmt.Sprintf("%d/%dmin", limit, int(window/time.Minute))
	default:
		return fmt.Sprintf("%d/%ds", limit, int(window/time.Second))
	}
}

func classifyFailure(err error) *core.Failure {
	var failure *core.Failure
	if errors.As(err, &failure) {
		return failure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewFailure(core.FailureTimeout, "analysis service timed out", err)
	}
	return core.NewFailure(core.FailureService, "analysis service failed", err)
}

func (a *Analyzer) logger() Logger {
	if a == nil {
		return nil
	}
	return a.Logger
}

func (a *Analyzer) now() time.Time {
	if a != nil && a.Clock != nil {
		return a.Clock()
	}
	return time.Now().UTC()
}
