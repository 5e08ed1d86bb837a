package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/engine"
)

func sampleReport() *core.Report {
	return &core.Report{
		Path:     "app.js",
		Mode:     engine.ReportModeSource,
		Executed: true,
		ExitCode: 1,
		Analyses: []*core.Analysis{
			{
				Mode:        core.ModeStatic,
				Signature:   "File: app.js",
				Explanation: "- . Error: none found",
				Source:      core.SourceService,
			},
			{
				Mode:        core.ModeExecution,
				Signature:   "Error: TypeError: x is not a function",
				Location:    &core.Location{Line: 12, Column: 5},
				Explanation: "- . Error: TypeError\n- . Fix: check x",
				Source:      core.SourceLimit,
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatText, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestTextFormatterUsesConsoleBanners(t *testing.T) {
	rendered, err := NewFormatter(FormatText).FormatReport(sampleReport())
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(rendered, " . PRELIMINARY ANALYSIS .\n"))
	require.Contains(t, rendered, "\n . EXECUTION ANALYSIS .\n- . Error: TypeError\n- . Fix: check x\n")
	require.NotContains(t, rendered, SuccessLine)
}

func TestTextFormatterSuccess(t *testing.T) {
	report := &core.Report{Path: "ok.py", Mode: engine.ReportModeSource, Executed: true, Success: true}

	rendered, err := NewFormatter(FormatText).FormatReport(report)
	require.NoError(t, err)
	require.Equal(t, SuccessLine+"\n", rendered)
}

func TestTextFormatterVerbose(t *testing.T) {
	formatter := &TextFormatter{Verbose: true}
	rendered := formatter.FormatAnalysis(sampleReport().Analyses[1])

	require.Contains(t, rendered, "location: 12:5")
	require.Contains(t, rendered, "source: limit")
}

func TestFormatReportsJSON(t *testing.T) {
	rendered, err := FormatReports(FormatJSON, []*core.Report{sampleReport()})
	require.NoError(t, err)

	var decoded []core.Report
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "app.js", decoded[0].Path)
	require.Equal(t, core.SourceLimit, decoded[0].Analyses[1].Source)
}

func TestTableAndMarkdownFormatters(t *testing.T) {
	table, err := NewFormatter(FormatTable).FormatReport(sampleReport())
	require.NoError(t, err)
	require.Contains(t, table, "Preliminary")
	require.Contains(t, table, "12:5")
	require.Contains(t, strings.ToLower(table), "2 analyses, exit 1, 1 degraded")

	markdown, err := NewFormatter(FormatMarkdown).FormatReport(sampleReport())
	require.NoError(t, err)
	require.Contains(t, markdown, "## app.js")
	require.Contains(t, markdown, "### Execution analysis (12:5)")
	require.Contains(t, markdown, "> - . Fix: check x")
}

func TestFormatKnowledge(t *testing.T) {
	entries := []core.KnowledgeEntry{{
		Signature:   "TypeError: x is not a function",
		Explanation: "Call a function",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	text, err := FormatKnowledge(FormatText, entries)
	require.NoError(t, err)
	require.Equal(t, "TypeError: x is not a function\n  Call a function", text)

	empty, err := FormatKnowledge(FormatJSON, nil)
	require.NoError(t, err)
	require.Equal(t, "[]", empty)

	table, err := FormatKnowledge(FormatTable, entries)
	require.NoError(t, err)
	require.Contains(t, strings.ToLower(table), "1 entries")
}

func TestFormatUsage(t *testing.T) {
	snapshot := engine.UsageSnapshot{Count: 3, Limit: 100, Remaining: 97, Label: "100/15min"}

	text, err := FormatUsage(FormatText, snapshot)
	require.NoError(t, err)
	require.Contains(t, text, "3/100 calls used (97 remaining)")

	table, err := FormatUsage(FormatTable, snapshot)
	require.NoError(t, err)
	require.Contains(t, table, "100/15min")
}

func TestFirstLineCutsOnRuneBoundaries(t *testing.T) {
	require.Equal(t, "Erreur: é"+"...", firstLine("Erreur: éé\nsecond", 9))
	require.Equal(t, "日本語...", firstLine("日本語のエラー", 3))
	require.Equal(t, "short", firstLine("  short  \nnext", 10))
	require.True(t, utf8.ValidString(firstLine(strings.Repeat("ü", 80), signatureColumnWidth)))
}
