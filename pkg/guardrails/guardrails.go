// Package guardrails renders run findings as a Markdown constraints file
// that downstream automation reads before touching the affected code.
package guardrails

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/history"
)

// Generate writes a guardrails document for the given run to path.
func Generate(entry history.Entry, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create guardrails dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(Render(entry, time.Now())), 0o644)
}

// Render builds the guardrails Markdown from one run's history entry.
func Render(entry history.Entry, now time.Time) string {
	var b strings.Builder
	b.WriteString("# NightWatch Guardrails\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", now.UTC().Format(time.RFC3339))
	b.WriteString("Known production errors from the latest triage run. Avoid\n")
	b.WriteString("reintroducing these failure modes when modifying the listed areas.\n\n")

	if len(entry.ErrorsAnalyzed) > 0 {
		b.WriteString("## Active Errors\n\n")
		for _, e := range entry.ErrorsAnalyzed {
			fmt.Fprintf(&b, "- **%s** in `%s` (confidence: %s)", e.ErrorClass, e.Transaction, e.Confidence)
			if e.RootCause != "" {
				fmt.Fprintf(&b, "\n  - Root cause: %s", e.RootCause)
			}
			if e.HasFix {
				b.WriteString("\n  - A fix has been proposed; check open NightWatch PRs before changing this area.")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(entry.PatternsDetected) > 0 {
		b.WriteString("## Systemic Patterns\n\n")
		for _, p := range entry.PatternsDetected {
			fmt.Fprintf(&b, "- %s (%d errors", p.Title, p.Occurrences)
			if len(p.ErrorClasses) > 0 {
				fmt.Fprintf(&b, ": %s", strings.Join(p.ErrorClasses, ", "))
			}
			b.WriteString(")\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Run Summary\n\n- Issues created: %d\n- Draft PR: %s\n- Tokens used: %d\n",
		entry.IssuesCreated, yesNo(entry.PRCreated), entry.TotalTokensUsed)
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
