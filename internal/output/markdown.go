package output

import (
	"fmt"
	"strings"

	"github.com/faultlens/faultlens/internal/core"
)

// MarkdownFormatter renders reports as Markdown.
type MarkdownFormatter struct{}

// FormatReport renders a report as Markdown.
func (f *MarkdownFormatter) FormatReport(report *core.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", escapeMarkdownCell(report.Path))
	fmt.Fprintf(&sb, "**Mode**: %s · %s\n", report.Mode, reportSummary(report))

	for _, analysis := range report.Analyses {
		if analysis == nil {
			continue
		}
		fmt.Fprintf(&sb, "\n### %s analysis", analysis.Mode.Label())
		if analysis.Location != nil {
			fmt.Fprintf(&sb, " (%s)", locationLabel(analysis.Location))
		}
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "`%s` · %s\n\n", strings.ReplaceAll(firstLine(analysis.Signature, signatureColumnWidth), "`", "'"), analysis.Source)
		for _, line := range strings.Split(strings.TrimSpace(analysis.Explanation), "\n") {
			fmt.Fprintf(&sb, "> %s\n", line)
		}
	}

	if report.Success {
		sb.WriteString("\nRun completed successfully.\n")
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
