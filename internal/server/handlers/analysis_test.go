package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/engine"
)

type stubAnalyzer struct {
	got core.AnalysisRequest
}

func (s *stubAnalyzer) HandleAnalysis(_ context.Context, req core.AnalysisRequest) *core.Analysis {
	s.got = req
	return &core.Analysis{ID: "a-1", Mode: req.Mode, Explanation: "- . Error: TypeError", Source: core.SourceService}
}

type stubReports struct {
	content string
	err     error
}

func (s *stubReports) Run(_ context.Context, path string) (*core.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.Report{Path: path, Mode: "source", Success: true}, nil
}

func (s *stubReports) RunContent(_ context.Context, path, content string) *core.Report {
	s.content = content
	return &core.Report{
		Path:     path,
		Mode:     "log",
		Analyses: []*core.Analysis{{ID: "a-2", Mode: core.ModeExecution, Source: core.SourceCache}},
	}
}

type failingKnowledgeStore struct{}

func (failingKnowledgeStore) ListKnowledge(context.Context) ([]core.KnowledgeEntry, error) {
	return nil, errors.New("disk full")
}

func (failingKnowledgeStore) InsertKnowledge(context.Context, core.KnowledgeEntry) (bool, error) {
	return false, errors.New("disk full")
}

func newTestAPI() (*AnalysisAPI, *stubAnalyzer, *stubReports) {
	analyzer := &stubAnalyzer{}
	reports := &stubReports{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &AnalysisAPI{
		Analyzer:  analyzer,
		Reports:   reports,
		Knowledge: &engine.KnowledgeBase{},
		Usage:     &engine.UsageLimiter{Limit: 10, Clock: func() time.Time { return now }},
	}, analyzer, reports
}

func doRequest(handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAnalyzeReturnsAnalysis(t *testing.T) {
	api, analyzer, _ := newTestAPI()
	var observed []*core.Analysis
	api.OnAnalysis = func(a *core.Analysis) { observed = append(observed, a) }

	rec := doRequest(api.Analyze, http.MethodPost, "/v1/analyze",
		`{"context":"TypeError: x","mode":"execution","location":{"line":3,"column":7}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var analysis core.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&analysis))
	require.Equal(t, "a-1", analysis.ID)
	require.Equal(t, core.ModeExecution, analyzer.got.Mode)
	require.Equal(t, &core.Location{Line: 3, Column: 7}, analyzer.got.Location)
	require.Len(t, observed, 1)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	api, _, _ := newTestAPI()

	cases := map[string]string{
		"empty context": `{"context":"  ","mode":"static"}`,
		"bad mode":      `{"context":"x","mode":"later"}`,
		"missing mode":  `{"context":"x"}`,
		"unknown field": `{"context":"x","mode":"static","extra":1}`,
		"not json":      `nope`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(api.Analyze, http.MethodPost, "/v1/analyze", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAnalyzeFileWithContent(t *testing.T) {
	api, _, reports := newTestAPI()

	rec := doRequest(api.AnalyzeFile, http.MethodPost, "/v1/analyze/file",
		`{"path":"build.log","content":"ERROR: boom"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ERROR: boom", reports.content)

	var report core.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	require.Equal(t, "log", report.Mode)
	require.Len(t, report.Analyses, 1)
}

func TestAnalyzeFileReadFailure(t *testing.T) {
	api, _, reports := newTestAPI()
	reports.err = errors.New("no such file")

	rec := doRequest(api.AnalyzeFile, http.MethodPost, "/v1/analyze/file", `{"path":"missing.py"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(api.AnalyzeFile, http.MethodPost, "/v1/analyze/file", `{"path":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeTrainListAndFind(t *testing.T) {
	api, _, _ := newTestAPI()

	rec := doRequest(api.Train, http.MethodPost, "/v1/knowledge",
		`{"signature":"TypeError: x is not a function","explanation":"call a function"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var trained TrainResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trained))
	require.True(t, trained.Persisted)

	rec = doRequest(api.ListKnowledge, http.MethodGet, "/v1/knowledge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list KnowledgeListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Count)

	rec = doRequest(api.ListKnowledge, http.MethodGet, "/v1/knowledge?q=Error:+TYPEERROR:+X+IS+NOT+A+FUNCTION+at+line+4", "")
	var found KnowledgeFindResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&found))
	require.True(t, found.Found)
	require.Equal(t, "call a function", found.Explanation)

	rec = doRequest(api.Train, http.MethodPost, "/v1/knowledge", `{"signature":"","explanation":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeTrainPersistenceFailureStillRecords(t *testing.T) {
	api, _, _ := newTestAPI()
	api.Knowledge = &engine.KnowledgeBase{Store: failingKnowledgeStore{}}

	rec := doRequest(api.Train, http.MethodPost, "/v1/knowledge", `{"signature":"E1","explanation":"fix"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var trained TrainResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trained))
	require.False(t, trained.Persisted)
	require.Contains(t, trained.Warning, "disk full")
}

func TestUsageStatusAndReset(t *testing.T) {
	api, _, _ := newTestAPI()
	limiter := api.Usage.(*engine.UsageLimiter)
	limiter.IncrementUsage(context.Background())

	rec := doRequest(api.UsageStatus, http.MethodGet, "/v1/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot engine.UsageSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snapshot))
	require.Equal(t, 1, snapshot.Count)
	require.Equal(t, 9, snapshot.Remaining)
	require.Equal(t, "10/15min", snapshot.Label)

	rec = doRequest(api.ResetUsage, http.MethodPost, "/v1/usage/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snapshot))
	require.Equal(t, 0, snapshot.Count)
}

func TestUnconfiguredAPIReturnsServiceUnavailable(t *testing.T) {
	api := &AnalysisAPI{}
	rec := doRequest(api.UsageStatus, http.MethodGet, "/v1/usage", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
