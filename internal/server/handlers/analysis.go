package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/engine"
	apperrors "github.com/faultlens/faultlens/internal/errors"
)

// maxRequestBytes bounds request bodies; analysis contexts carry whole
// source files and logs.
const maxRequestBytes = 4 << 20

// respondWithError writes the JSON error envelope for err.
var respondWithError = apperrors.RespondWithError

// ReportRunner analyzes whole target files.
type ReportRunner interface {
	Run(ctx context.Context, path string) (*core.Report, error)
	RunContent(ctx context.Context, path, content string) *core.Report
}

// KnowledgeService exposes the knowledge base.
type KnowledgeService interface {
	Entries(ctx context.Context) []core.KnowledgeEntry
	Find(ctx context.Context, query string) (string, bool)
	Record(ctx context.Context, signature, explanation string) error
}

// UsageService exposes the usage limiter.
type UsageService interface {
	Snapshot(ctx context.Context) engine.UsageSnapshot
	Reset(ctx context.Context) error
}

// AnalysisAPI serves the /v1 analysis endpoints.
type AnalysisAPI struct {
	Analyzer  engine.Handler
	Reports   ReportRunner
	Knowledge KnowledgeService
	Usage     UsageService

	// OnAnalysis observes every analysis produced by a request.
	OnAnalysis func(*core.Analysis)
}

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	Context  string         `json:"context"`
	Mode     string         `json:"mode"`
	Location *core.Location `json:"location,omitempty"`
}

// AnalyzeFileRequest is the body of POST /v1/analyze/file. When Content is
// set it replaces reading Path from disk and the target is not executed.
type AnalyzeFileRequest struct {
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}

// TrainRequest is the body of POST /v1/knowledge.
type TrainRequest struct {
	Signature   string `json:"signature"`
	Explanation string `json:"explanation"`
}

// TrainResponse reports the outcome of a manual knowledge write.
type TrainResponse struct {
	Signature string `json:"signature"`
	Persisted bool   `json:"persisted"`
	Warning   string `json:"warning,omitempty"`
}

// KnowledgeListResponse lists knowledge entries.
type KnowledgeListResponse struct {
	Entries []core.KnowledgeEntry `json:"entries"`
	Count   int                   `json:"count"`
}

// KnowledgeFindResponse reports a lookup result.
type KnowledgeFindResponse struct {
	Query       string `json:"query"`
	Found       bool   `json:"found"`
	Explanation string `json:"explanation,omitempty"`
}

// Analyze handles POST /v1/analyze.
func (a *AnalysisAPI) Analyze(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Analyzer == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("analyzer not configured"))
		return
	}

	var req AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Context) == "" {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), nil, "context is required"))
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid mode"))
		return
	}

	analysis := a.Analyzer.HandleAnalysis(r.Context(), core.AnalysisRequest{
		Context:  req.Context,
		Mode:     mode,
		Location: req.Location,
	})
	a.observe(analysis)
	writeJSON(w, http.StatusOK, analysis)
}

// AnalyzeFile handles POST /v1/analyze/file.
func (a *AnalysisAPI) AnalyzeFile(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Reports == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("file analysis not configured"))
		return
	}

	var req AnalyzeFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid request body"))
		return
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), nil, "path is required"))
		return
	}

	var report *core.Report
	if req.Content != nil {
		report = a.Reports.RunContent(r.Context(), path, *req.Content)
	} else {
		var err error
		report, err = a.Reports.Run(r.Context(), path)
		if err != nil {
			respondWithError(w, r, apperrors.WrapNotFound(r.Context(), err, "target file could not be read"))
			return
		}
	}

	for _, analysis := range report.Analyses {
		a.observe(analysis)
	}
	writeJSON(w, http.StatusOK, report)
}

// ListKnowledge handles GET /v1/knowledge. With ?q= it performs a lookup.
func (a *AnalysisAPI) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Knowledge == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("knowledge base not configured"))
		return
	}

	if query := r.URL.Query().Get("q"); query != "" {
		explanation, found := a.Knowledge.Find(r.Context(), query)
		writeJSON(w, http.StatusOK, KnowledgeFindResponse{Query: query, Found: found, Explanation: explanation})
		return
	}

	entries := a.Knowledge.Entries(r.Context())
	if entries == nil {
		entries = []core.KnowledgeEntry{}
	}
	writeJSON(w, http.StatusOK, KnowledgeListResponse{Entries: entries, Count: len(entries)})
}

// Train handles POST /v1/knowledge.
func (a *AnalysisAPI) Train(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Knowledge == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("knowledge base not configured"))
		return
	}

	var req TrainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Signature) == "" || strings.TrimSpace(req.Explanation) == "" {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), nil, "signature and explanation are required"))
		return
	}

	resp := TrainResponse{Signature: req.Signature, Persisted: true}
	if err := a.Knowledge.Record(r.Context(), req.Signature, req.Explanation); err != nil {
		var failure *core.Failure
		if !errors.As(err, &failure) || failure.Kind != core.FailurePersistence {
			respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "knowledge write failed"))
			return
		}
		resp.Persisted = false
		resp.Warning = failure.Reason()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// UsageStatus handles GET /v1/usage.
func (a *AnalysisAPI) UsageStatus(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Usage == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("usage limiter not configured"))
		return
	}
	writeJSON(w, http.StatusOK, a.Usage.Snapshot(r.Context()))
}

// ResetUsage handles POST /v1/usage/reset.
func (a *AnalysisAPI) ResetUsage(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Usage == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("usage limiter not configured"))
		return
	}
	if err := a.Usage.Reset(r.Context()); err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "usage reset failed"))
		return
	}
	writeJSON(w, http.StatusOK, a.Usage.Snapshot(r.Context()))
}

func (a *AnalysisAPI) observe(analysis *core.Analysis) {
	if a.OnAnalysis != nil && analysis != nil {
		a.OnAnalysis(analysis)
	}
}

func parseMode(raw string) (core.AnalysisMode, error) {
	switch core.AnalysisMode(strings.ToLower(strings.TrimSpace(raw))) {
	case core.ModeStatic:
		return core.ModeStatic, nil
	case core.ModeExecution:
		return core.ModeExecution, nil
	default:
		return "", fmt.Errorf("mode must be %q or %q, got %q", core.ModeStatic, core.ModeExecution, raw)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
