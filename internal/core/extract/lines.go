package extract

import (
	"fmt"
	"strings"
)

const (
	// MaxErrorLineLength caps each deduplicated error line.
	MaxErrorLineLength = 200
	// MaxSignatureLength caps the knowledge signature derived from a context.
	MaxSignatureLength = 100
)

var processOutputMarkers = []string{"Error:", "Exception", "ReferenceError", "TypeError"}

// Matched against the lowercased line.
var logFileMarkers = []string{"[error]", "failed", "exception"}

// ErrorLines returns the error-marked lines of text, trimmed, truncated to
// MaxErrorLineLength characters and deduplicated in first-seen order.
func ErrorLines(text string, variant Variant) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	result := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if !hasMarker(line, variant) {
			continue
		}
		normalized := Truncate(strings.TrimSpace(line), MaxErrorLineLength)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}

func hasMarker(line string, variant Variant) bool {
	if variant == VariantLogFile {
		lower := strings.ToLower(line)
		for _, marker := range logFileMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
		return false
	}

	for _, marker := range processOutputMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// Signature derives the knowledge key for an analysis context: its first
// line truncated to MaxSignatureLength characters.
func Signature(context string) string {
	first, _, _ := strings.Cut(context, "\n")
	return Truncate(first, MaxSignatureLength)
}

// FirstLines returns at most n leading lines of text.
func FirstLines(text string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.SplitN(text, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// NumberLines prefixes every line with its 1-based number.
func NumberLines(source string) string {
	lines := strings.Split(source, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %s", i+1, line)
	}
	return b.String()
}

// Truncate shortens s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
