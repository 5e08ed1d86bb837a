package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/extract"
)

// Report modes.
const (
	ReportModeSource      = "source"
	ReportModeLog         = "log"
	ReportModeDiagnostics = "diagnostics"
)

const (
	DefaultLogHeadLines         = 5
	DefaultLogSnippetChars      = 500
	DefaultMaxSubsequentErrors  = 3
	DefaultSourcePreviewChars   = 1000
	diagnosticsContentMarker    = "diagnostics"
	rawDiagnosticsContextPrefix = "Raw Diagnostics:\n"
)

var logExtensions = map[string]struct{}{
	".log":  {},
	".logs": {},
	".txt":  {},
}

// DefaultCommands maps file extensions to the command that runs them. The
// target path is appended as the last argument.
var DefaultCommands = map[string][]string{
	".js":   {"node"},
	".ts":   {"ts-node"},
	".py":   {"python"},
	".dart": {"dart", "run"},
	".java": {"java"},
	".go":   {"go", "run"},
}

// Pipeline analyzes one target file. Analyses run sequentially so each
// knowledge write and usage increment is visible to the next decision.
type Pipeline struct {
	Handler Handler
	Runner  Runner
	Logger  Logger
	Clock   func() time.Time

	// Commands overrides DefaultCommands when non-nil.
	Commands map[string][]string
	// Sink receives each analysis as soon as it completes.
	Sink func(*core.Analysis)

	LogHeadLines        int
	LogSnippetChars     int
	MaxSubsequentErrors int
	SourcePreviewChars  int
}

// Run analyzes the file at path. Only a failure to read the file is
// returned; analysis failures are degraded results inside the report.
func (p *Pipeline) Run(ctx context.Context, path string) (*core.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("target path is required")
	}

	content, err := os.ReadFile(path) // #nosec G304 -- the target file is chosen by the user
	if err != nil {
		return nil, fmt.Errorf("read target file: %w", err)
	}

	return p.run(ctx, path, string(content), true), nil
}

// RunContent analyzes content as if read from path. Supplied content is
// never executed; source files only get the static pass.
func (p *Pipeline) RunContent(ctx context.Context, path, content string) *core.Report {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.run(ctx, path, content, false)
}

func (p *Pipeline) run(ctx context.Context, path, content string, executable bool) *core.Report {
	start := p.now()
	report := &core.Report{
		Path:      path,
		StartedAt: start,
		Analyses:  make([]*core.Analysis, 0),
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case isLogExtension(ext):
		report.Mode = ReportModeLog
		p.runLog(ctx, report, content)
	case ext == ".json" && strings.Contains(content, diagnosticsContentMarker):
		report.Mode = ReportModeDiagnostics
		p.runDiagnostics(ctx, report, content)
	default:
		report.Mode = ReportModeSource
		p.runSource(ctx, report, path, ext, content, executable)
	}

	report.Duration = p.now().Sub(start).String()
	loggerOrNop(p.Logger).Debug("Analysis finished",
		zap.String("path", path),
		zap.String("mode", report.Mode),
		zap.Int("analyses", len(report.Analyses)),
		zap.Bool("success", report.Success))
	return report
}

func (p *Pipeline) runLog(ctx context.Context, report *core.Report, content string) {
	head := extract.FirstLines(content, positive(p.LogHeadLines, DefaultLogHeadLines))
	snippet := extract.Truncate(content, positive(p.LogSnippetChars, DefaultLogSnippetChars))

	p.analyze(ctx, report, core.AnalysisRequest{
		Context: fmt.Sprintf("File Structure/Start:\n%s\n\nFull Content Snippet:\n%s", head, snippet),
		Mode:    core.ModeExecution,
	})

	limit := positive(p.MaxSubsequentErrors, DefaultMaxSubsequentErrors)
	count := 0
	for _, line := range extract.ErrorLines(content, extract.VariantLogFile) {
		if count >= limit {
			break
		}
		if strings.Contains(head, line) {
			continue
		}
		loc, _ := extract.Location(line, extract.VariantLogFile)
		p.analyze(ctx, report, core.AnalysisRequest{
			Context:  "Subsequent Error Found: " + line,
			Mode:     core.ModeExecution,
			Location: loc,
		})
		count++
	}
}

func (p *Pipeline) runDiagnostics(ctx context.Context, report *core.Report, content string) {
	records, err := parseDiagnostics(content)
	if err != nil {
		loggerOrNop(p.Logger).Warn("Diagnostics could not be parsed",
			zap.String("path", report.Path),
			zap.String("failure_kind", string(core.FailureMalformedInput)),
			zap.Error(err))
		p.analyze(ctx, report, core.AnalysisRequest{
			Context: rawDiagnosticsContextPrefix + content,
			Mode:    core.ModeStatic,
		})
		return
	}

	for _, record := range records {
		encoded, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			encoded = []byte(fmt.Sprint(record))
		}
		p.analyze(ctx, report, core.AnalysisRequest{
			Context:  fmt.Sprintf("Diagnostic: %s\n%s", diagnosticMessage(record), encoded),
			Mode:     core.ModeStatic,
			Location: diagnosticLocation(record),
		})
	}
}

func (p *Pipeline) runSource(ctx context.Context, report *core.Report, path, ext, content string, executable bool) {
	if strings.TrimSpace(content) != "" {
		numbered := extract.Truncate(extract.NumberLines(content), positive(p.SourcePreviewChars, DefaultSourcePreviewChars))
		loc, _ := extract.Location(content, extract.VariantProcessOutput)
		p.analyze(ctx, report, core.AnalysisRequest{
			Context:  fmt.Sprintf("File: %s\nNumbered Source:\n%s", path, numbered),
			Mode:     core.ModeStatic,
			Location: loc,
		})
	}

	if !executable || p.Runner == nil {
		return
	}
	command, ok := p.command(ext)
	if !ok {
		return
	}

	result := p.execute(ctx, command, path)
	report.Executed = true
	report.ExitCode = result.ExitCode
	report.TimedOut = result.TimedOut

	log := result.Log()
	if result.TimedOut {
		notice := "Error: process timed out after " + result.Duration.Round(time.Millisecond).String()
		if log == "" {
			log = notice
		} else {
			log = strings.TrimRight(log, "\n") + "\n" + notice
		}
	}

	lines := extract.ErrorLines(log, extract.VariantProcessOutput)
	if !result.Failed() && len(lines) == 0 {
		report.Success = true
		return
	}

	if len(lines) == 0 {
		p.analyze(ctx, report, core.AnalysisRequest{
			Context: fmt.Sprintf("Exec Log:\n%s\nContext:\n%s", log, content),
			Mode:    core.ModeExecution,
		})
		return
	}

	for _, line := range lines {
		loc, found := extract.Location(line, extract.VariantProcessOutput)
		if !found {
			loc, _ = extract.Location(log, extract.VariantProcessOutput)
		}
		p.analyze(ctx, report, core.AnalysisRequest{
			Context:  fmt.Sprintf("Error: %s\nFull Log:\n%s\nContext:\n%s", line, log, content),
			Mode:     core.ModeExecution,
			Location: loc,
		})
	}
}

func (p *Pipeline) execute(ctx context.Context, command []string, path string) *core.RunResult {
	spec := core.RunSpec{Command: command, Path: path}
	result, err := p.Runner.Run(ctx, spec)
	if err != nil {
		loggerOrNop(p.Logger).Warn("Target run failed to start",
			zap.String("path", path),
			zap.Strings("command", command),
			zap.Error(err))
		return &core.RunResult{ExitCode: -1, Stderr: err.Error()}
	}
	if result == nil {
		return &core.RunResult{}
	}
	return result
}

func (p *Pipeline) analyze(ctx context.Context, report *core.Report, req core.AnalysisRequest) {
	if p.Handler == nil {
		return
	}
	analysis := p.Handler.HandleAnalysis(ctx, req)
	if analysis == nil {
		return
	}
	report.Analyses = append(report.Analyses, analysis)
	if p.Sink != nil {
		p.Sink(analysis)
	}
}

func (p *Pipeline) command(ext string) ([]string, bool) {
	commands := p.Commands
	if commands == nil {
		commands = DefaultCommands
	}
	command, ok := commands[ext]
	if !ok || len(command) == 0 {
		return nil, false
	}
	return command, true
}

func (p *Pipeline) now() time.Time {
	if p != nil && p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}

func isLogExtension(ext string) bool {
	_, ok := logExtensions[ext]
	return ok
}

// parseDiagnostics accepts an array of records, an object with a
// "diagnostics" array, or a single record.
func parseDiagnostics(content string) ([]map[string]any, error) {
	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}

	switch value := raw.(type) {
	case []any:
		return diagnosticRecords(value)
	case map[string]any:
		if nested, ok := value["diagnostics"].([]any); ok {
			return diagnosticRecords(nested)
		}
		return []map[string]any{value}, nil
	default:
		return nil, fmt.Errorf("unexpected diagnostics payload %T", raw)
	}
}

func diagnosticRecords(values []any) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(values))
	for i, value := range values {
		record, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("diagnostic %d is %T, not an object", i, value)
		}
		records = append(records, record)
	}
	return records, nil
}

func diagnosticMessage(record map[string]any) string {
	if message, ok := record["message"].(string); ok {
		return message
	}
	return ""
}

// diagnosticLocation reads editor-style (startLineNumber/startColumn) or
// plain (line/column) positions. A missing column defaults to 1.
func diagnosticLocation(record map[string]any) *core.Location {
	line := firstNumber(record, "startLineNumber", "line")
	if line <= 0 {
		return nil
	}
	column := firstNumber(record, "startColumn", "column")
	if column <= 0 {
		column = 1
	}
	return &core.Location{Line: line, Column: column}
}

func firstNumber(record map[string]any, keys ...string) int {
	for _, key := range keys {
		if value, ok := record[key].(float64); ok && value > 0 {
			return int(value)
		}
	}
	return 0
}

func positive(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
