package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/engine"
)

const (
	signatureColumnWidth   = 60
	explanationColumnWidth = 80
)

// TableFormatter renders reports as an ASCII table.
type TableFormatter struct{}

// FormatReport renders a report as a table.
func (f *TableFormatter) FormatReport(report *core.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("%s (%s)", report.Path, report.Mode))
	t.AppendHeader(table.Row{"Stage", "Location", "Source", "Signature", "Explanation"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: signatureColumnWidth},
		{Number: 5, WidthMax: explanationColumnWidth},
	})

	for _, analysis := range report.Analyses {
		if analysis == nil {
			continue
		}
		t.AppendRow(table.Row{
			analysis.Mode.Label(),
			locationLabel(analysis.Location),
			string(analysis.Source),
			firstLine(analysis.Signature, signatureColumnWidth),
			analysis.Explanation,
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", reportSummary(report)})
	return t.Render(), nil
}

func knowledgeTable(entries []core.KnowledgeEntry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Signature", "Explanation", "Created"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: signatureColumnWidth},
		{Number: 2, WidthMax: explanationColumnWidth},
	})

	for _, entry := range entries {
		t.AppendRow(table.Row{entry.Signature, entry.Explanation, formatTime(entry.CreatedAt)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d entries", len(entries)), ""})
	return t.Render()
}

func usageTable(snapshot engine.UsageSnapshot) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Budget", "Used", "Remaining", "Window Start", "Resets At"})
	t.AppendRow(table.Row{
		snapshot.Label,
		snapshot.Count,
		snapshot.Remaining,
		formatTime(snapshot.WindowStart),
		formatTime(snapshot.ResetsAt),
	})
	return t.Render()
}
