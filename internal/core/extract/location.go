// Package extract holds the text heuristics that locate errors in source
// files, process output, and log files.
package extract

import (
	"regexp"
	"strconv"

	"github.com/faultlens/faultlens/internal/core"
)

// Variant selects the rule set for the kind of text being scanned.
type Variant int

const (
	// VariantProcessOutput scans source text and captured stdout/stderr.
	VariantProcessOutput Variant = iota
	// VariantLogFile scans application log files.
	VariantLogFile
)

type locationRule struct {
	name    string
	pattern *regexp.Regexp
	logOnly bool
}

// Order matters: the first matching rule wins.
var locationRules = []locationRule{
	{name: "position_suffix", pattern: regexp.MustCompile(`:(\d+):(\d+)`)},
	{name: "stack_frame", pattern: regexp.MustCompile(`at\s+.*\s+\(.*?(\d+):(\d+)\)`)},
	{name: "line_column", pattern: regexp.MustCompile(`(?i)line\s+(\d+).*?column\s+(\d+)`)},
	{name: "line_col", pattern: regexp.MustCompile(`(?i)Line (\d+), Col (\d+)`), logOnly: true},
}

// Location returns the first line/column position found in text.
// The boolean is false when no rule matches; callers then ask the
// analysis service to infer the position from the full context.
func Location(text string, variant Variant) (*core.Location, bool) {
	for _, rule := range locationRules {
		if rule.logOnly && variant != VariantLogFile {
			continue
		}
		match := rule.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		line, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		column, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		return &core.Location{Line: line, Column: column}, true
	}
	return nil, false
}
