package models

import "strings"

// fileNote records one examined file with a short summary.
type fileNote struct {
	Path    string
	Summary string
}

// RunContext accumulates codebase knowledge across error analyses within a
// single run, so later analyses benefit from earlier discoveries. Append-only.
// When analyses fan out in parallel the context is advisory only; entries may
// arrive in any order.
type RunContext struct {
	filesExamined      []fileNote
	patternsDiscovered []string
	errorsAnalyzed     []string
}

// NewRunContext creates an empty accumulator.
func NewRunContext() *RunContext {
	return &RunContext{}
}

// RecordAnalysis records a completed analysis for future context.
func (c *RunContext) RecordAnalysis(errorClass, transaction, summary string) {
	entry := errorClass + " in " + transaction
	if summary != "" {
		entry += " — " + truncate(summary, 100)
	}
	c.errorsAnalyzed = append(c.errorsAnalyzed, entry)
}

// RecordFile records an examined file. Re-recording a path updates its summary.
func (c *RunContext) RecordFile(path, summary string) {
	summary = truncate(summary, 80)
	for i := range c.filesExamined {
		if c.filesExamined[i].Path == path {
			c.filesExamined[i].Summary = summary
			return
		}
	}
	c.filesExamined = append(c.filesExamined, fileNote{Path: path, Summary: summary})
}

// RecordPattern records a discovered codebase pattern.
func (c *RunContext) RecordPattern(pattern string) {
	c.patternsDiscovered = append(c.patternsDiscovered, pattern)
}

// Empty reports whether nothing has been recorded yet.
func (c *RunContext) Empty() bool {
	return len(c.filesExamined) == 0 && len(c.patternsDiscovered) == 0 && len(c.errorsAnalyzed) == 0
}

// ToPromptSection formats the accumulated context as a prompt section,
// keeping the last 5 errors, 5 patterns, and 10 files, capped at maxChars.
func (c *RunContext) ToPromptSection(maxChars int) string {
	if c.Empty() {
		return ""
	}

	parts := []string{"## Codebase Context from Previous Analyses"}

	if len(c.errorsAnalyzed) > 0 {
		parts = append(parts, "\n### Errors Already Analyzed")
		for _, entry := range tail(c.errorsAnalyzed, 5) {
			parts = append(parts, "- "+entry)
		}
	}

	if len(c.patternsDiscovered) > 0 {
		parts = append(parts, "\n### Codebase Patterns Discovered")
		for _, pattern := range tail(c.patternsDiscovered, 5) {
			parts = append(parts, "- "+pattern)
		}
	}

	if len(c.filesExamined) > 0 {
		parts = append(parts, "\n### Key Files Examined")
		for _, note := range tail(c.filesExamined, 10) {
			parts = append(parts, "- `"+note.Path+"`: "+note.Summary)
		}
	}

	result := strings.Join(parts, "\n")
	if len(result) > maxChars {
		result = result[:maxChars-20] + "\n\n[...truncated]"
	}
	return result
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
