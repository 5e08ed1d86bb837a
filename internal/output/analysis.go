package output

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/extract"
)

// SuccessLine is printed when an executed target ran cleanly.
const SuccessLine = " . Success ."

// TextFormatter renders reports in the console layout: one banner per
// analysis followed by its explanation.
type TextFormatter struct {
	// Verbose adds signature, source and failure lines under each banner.
	Verbose bool
}

// FormatReport renders a report as console text.
func (f *TextFormatter) FormatReport(report *core.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, analysis := range report.Analyses {
		sb.WriteString(f.FormatAnalysis(analysis))
	}
	if report.Success {
		sb.WriteString("\n" + SuccessLine + "\n")
	}
	return strings.TrimLeft(sb.String(), "\n"), nil
}

// FormatAnalysis renders one analysis, starting with a blank line and the
// mode banner.
func (f *TextFormatter) FormatAnalysis(analysis *core.Analysis) string {
	if analysis == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n %s\n", analysis.Mode.Heading())
	if f.Verbose {
		fmt.Fprintf(&sb, "signature: %s\n", analysis.Signature)
		fmt.Fprintf(&sb, "source: %s\n", analysis.Source)
		if analysis.Location != nil {
			fmt.Fprintf(&sb, "location: %s\n", locationLabel(analysis.Location))
		}
		if analysis.Failure != nil {
			fmt.Fprintf(&sb, "failure: %s\n", analysis.Failure.Kind)
		}
	}
	sb.WriteString(strings.TrimSpace(analysis.Explanation))
	sb.WriteString("\n")
	return sb.String()
}

func locationLabel(loc *core.Location) string {
	if loc == nil {
		return "-"
	}
	return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
}

// reportSummary describes the run outcome in one line.
func reportSummary(report *core.Report) string {
	parts := []string{fmt.Sprintf("%d analyses", len(report.Analyses))}
	switch {
	case !report.Executed:
		parts = append(parts, "not executed")
	case report.TimedOut:
		parts = append(parts, "timed out")
	case report.Success:
		parts = append(parts, "success")
	default:
		parts = append(parts, fmt.Sprintf("exit %d", report.ExitCode))
	}
	if degraded := degradedCount(report); degraded > 0 {
		parts = append(parts, fmt.Sprintf("%d degraded", degraded))
	}
	return strings.Join(parts, ", ")
}

func degradedCount(report *core.Report) int {
	count := 0
	for _, analysis := range report.Analyses {
		if analysis.Degraded() {
			count++
		}
	}
	return count
}

func firstLine(text string, limit int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if limit > 0 && utf8.RuneCountInString(line) > limit {
		return extract.Truncate(line, limit) + "..."
	}
	return line
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
