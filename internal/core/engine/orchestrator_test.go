package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
)

func newTestAnalyzer(explainer *stubExplainer, limiter Limiter) (*Analyzer, *memoryKnowledgeStore) {
	store := &memoryKnowledgeStore{}
	return &Analyzer{
		Knowledge: &KnowledgeBase{Store: store},
		Limiter:   limiter,
		Explainer: explainer,
		Logger:    zap.NewNop(),
	}, store
}

func TestHandleAnalysisCacheHitSkipsService(t *testing.T) {
	ctx := context.Background()
	explainer := &stubExplainer{response: "fresh"}
	limiter := &fixedLimiter{allow: true}
	analyzer, _ := newTestAnalyzer(explainer, limiter)

	require.NoError(t, analyzer.Knowledge.Record(ctx, "TypeError: x is not a function", "cached answer"))

	analysis := analyzer.HandleAnalysis(ctx, core.AnalysisRequest{
		Context: "Error: TypeError: x is not a function\nFull Log:\n...",
		Mode:    core.ModeExecution,
	})

	require.Equal(t, "cached answer", analysis.Explanation)
	require.Equal(t, core.SourceCache, analysis.Source)
	require.Equal(t, 0, explainer.calls())
	require.Equal(t, 0, limiter.increments)
	require.NotEmpty(t, analysis.ID)
}

func TestHandleAnalysisRecordsExecutionResults(t *testing.T) {
	ctx := context.Background()
	explainer := &stubExplainer{response: "  - . Error: TypeError\n"}
	limiter := &fixedLimiter{allow: true}
	analyzer, store := newTestAnalyzer(explainer, limiter)

	req := core.AnalysisRequest{
		Context:  "Error: TypeError: x is not a function\nFull Log:\nTypeError: x is not a function",
		Mode:     core.ModeExecution,
		Location: &core.Location{Line: 3, Column: 1},
	}
	analysis := analyzer.HandleAnalysis(ctx, req)

	require.Equal(t, core.SourceService, analysis.Source)
	require.Equal(t, "- . Error: TypeError", analysis.Explanation)
	require.Nil(t, analysis.Failure)
	require.Equal(t, 1, limiter.increments)
	require.Len(t, store.entries, 1)
	require.Equal(t, "Error: TypeError: x is not a function", store.entries[0].Signature)

	sent := explainer.requests[0]
	require.Equal(t, "Execution", sent.Stage)
	require.Equal(t, "Location: Line 3, Col 1", sent.LocationClause)
	require.Equal(t, DefaultExplanationWords, sent.MaxWords)
	require.Equal(t, req.Context, sent.Context)

	again := analyzer.HandleAnalysis(ctx, req)
	require.Equal(t, core.SourceCache, again.Source)
	require.Equal(t, 1, explainer.calls())
}

func TestHandleAnalysisDoesNotRecordStaticResults(t *testing.T) {
	ctx := context.Background()
	explainer := &stubExplainer{response: "static answer"}
	analyzer, store := newTestAnalyzer(explainer, &fixedLimiter{allow: true})

	analysis := analyzer.HandleAnalysis(ctx, core.AnalysisRequest{
		Context: "File: app.js\nNumbered Source:\n1: foo()",
		Mode:    core.ModeStatic,
	})

	require.Equal(t, core.SourceService, analysis.Source)
	require.Empty(t, store.entries)
	require.Equal(t, "Preliminary", explainer.requests[0].Stage)
	require.Equal(t, "Location: Identify the exact Line and Column from the source code below.", explainer.requests[0].LocationClause)
}

func TestHandleAnalysisLimitReachedWritesNothing(t *testing.T) {
	ctx := context.Background()
	explainer := &stubExplainer{response: "never"}
	limiter := &fixedLimiter{allow: false}
	analyzer, store := newTestAnalyzer(explainer, limiter)

	analysis := analyzer.HandleAnalysis(ctx, core.AnalysisRequest{
		Context: "Error: boom",
		Mode:    core.ModeExecution,
	})

	require.Equal(t, "- . Status: AI limit reached (100/15min)\n- . Hint: Train manually or wait for reset.", analysis.Explanation)
	require.Equal(t, core.SourceLimit, analysis.Source)
	require.True(t, analysis.Degraded())
	require.Equal(t, core.FailureLimitExceeded, analysis.Failure.Kind)
	require.Equal(t, 0, explainer.calls())
	require.Equal(t, 0, limiter.increments)
	require.Empty(t, store.entries)
}

func TestHandleAnalysisServiceFailureIsDegraded(t *testing.T) {
	ctx := context.Background()
	explainer := &stubExplainer{err: errors.New("connection refused")}
	limiter := &fixedLimiter{allow: true}
	analyzer, store := newTestAnalyzer(explainer, limiter)

	analysis := analyzer.HandleAnalysis(ctx, core.AnalysisRequest{Context: "Error: boom", Mode: core.ModeExecution})

	require.Equal(t, "- . Error: connection refused", analysis.Explanation)
	require.Equal(t, core.SourceDegraded, analysis.Source)
	require.Equal(t, core.FailureService, analysis.Failure.Kind)
	require.Equal(t, 1, limiter.increments, "quota is reserved before the call")
	require.Empty(t, store.entries)
}

func TestHandleAnalysisClassifiesFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want core.FailureKind
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), core.FailureTimeout},
		{"typed", core.NewFailure(core.FailureConfiguration, "no api key", nil), core.FailureConfiguration},
		{"plain", errors.New("bad gateway"), core.FailureService},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analyzer, _ := newTestAnalyzer(&stubExplainer{err: tc.err}, nil)
			analysis := analyzer.HandleAnalysis(context.Background(), core.AnalysisRequest{Context: "Error: x", Mode: core.ModeStatic})
			require.Equal(t, tc.want, analysis.Failure.Kind)
			require.Equal(t, core.SourceDegraded, analysis.Source)
		})
	}
}

func TestHandleAnalysisEmptyResponseIsDegraded(t *testing.T) {
	analyzer, store := newTestAnalyzer(&stubExplainer{response: "   "}, nil)
	analysis := analyzer.HandleAnalysis(context.Background(), core.AnalysisRequest{Context: "Error: x", Mode: core.ModeExecution})
	require.Equal(t, core.SourceDegraded, analysis.Source)
	require.Empty(t, store.entries)
}

func TestHandleAnalysisWithoutExplainer(t *testing.T) {
	analyzer := &Analyzer{}
	analysis := analyzer.HandleAnalysis(context.Background(), core.AnalysisRequest{Context: "Error: x", Mode: core.ModeExecution})
	require.Equal(t, core.FailureConfiguration, analysis.Failure.Kind)
	require.Equal(t, "- . Error: no analysis service configured", analysis.Explanation)
}

func TestHandleAnalysisWithRealLimiter(t *testing.T) {
	ctx := context.Background()
	explainer := &stubExplainer{response: "ok"}
	limiter := &UsageLimiter{Limit: 2, Window: time.Minute}
	analyzer, _ := newTestAnalyzer(explainer, limiter)
	analyzer.LimitLabel = FormatLimitLabel(2, time.Minute)

	for i := 0; i < 2; i++ {
		analysis := analyzer.HandleAnalysis(ctx, core.AnalysisRequest{Context: fmt.Sprintf("File: %d", i), Mode: core.ModeStatic})
		require.Equal(t, core.SourceService, analysis.Source)
	}

	analysis := analyzer.HandleAnalysis(ctx, core.AnalysisRequest{Context: "File: 3", Mode: core.ModeStatic})
	require.Equal(t, core.SourceLimit, analysis.Source)
	require.Contains(t, analysis.Explanation, "(2/1min)")
	require.Equal(t, 2, explainer.calls())
}

func TestFormatLimitLabel(t *testing.T) {
	require.Equal(t, "100/15min", FormatLimitLabel(0, 0))
	require.Equal(t, "50/1h", FormatLimitLabel(50, time.Hour))
	require.Equal(t, "5/90s", FormatLimitLabel(5, 90*time.Second))
}
