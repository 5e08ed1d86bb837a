package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/engine"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders analysis reports.
type Formatter interface {
	FormatReport(report *core.Report) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatText):
		return FormatText, nil
	case string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatTable:
		return &TableFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TextFormatter{}
	}
}

// FormatReports renders multiple reports using the requested format.
func FormatReports(format Format, reports []*core.Report) (string, error) {
	if format == FormatJSON {
		return marshal(reports, true)
	}

	formatter := NewFormatter(format)
	rendered := make([]string, 0, len(reports))
	for _, report := range reports {
		if report == nil {
			continue
		}
		value, err := formatter.FormatReport(report)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		rendered = append(rendered, value)
	}

	return strings.Join(rendered, "\n\n"), nil
}

// FormatKnowledge renders knowledge entries.
func FormatKnowledge(format Format, entries []core.KnowledgeEntry) (string, error) {
	switch format {
	case FormatJSON:
		if entries == nil {
			entries = []core.KnowledgeEntry{}
		}
		return marshal(entries, true)
	case FormatText:
		var sb strings.Builder
		for _, entry := range entries {
			fmt.Fprintf(&sb, "%s\n  %s\n", entry.Signature, indentContinuation(entry.Explanation, "  "))
		}
		if len(entries) == 0 {
			sb.WriteString("No knowledge entries.\n")
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	default:
		return knowledgeTable(entries), nil
	}
}

// FormatUsage renders the usage limiter state.
func FormatUsage(format Format, snapshot engine.UsageSnapshot) (string, error) {
	switch format {
	case FormatJSON:
		return marshal(snapshot, true)
	case FormatText:
		return fmt.Sprintf("%d/%d calls used (%d remaining), window resets at %s",
			snapshot.Count, snapshot.Limit, snapshot.Remaining, formatTime(snapshot.ResetsAt)), nil
	default:
		return usageTable(snapshot), nil
	}
}

func marshal(value any, indent bool) (string, error) {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func indentContinuation(text, prefix string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), "\n", "\n"+prefix)
}
