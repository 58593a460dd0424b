// Package correlation links errors to recently merged PRs that touched
// related files, a frequent cause of fresh production errors.
package correlation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/research"
)

// Correlate finds PRs whose changed files relate to this error, sorted by
// overlap descending. Overlap is the fraction of a PR's changed files
// matching a search term derived from the error.
func Correlate(e models.ErrorGroup, prs []models.CorrelatedPR) []models.CorrelatedPR {
	terms := extractSearchTerms(e.ErrorClass, e.Transaction)
	if len(terms) == 0 {
		return nil
	}

	var related []models.CorrelatedPR
	for _, pr := range prs {
		overlap := 0
		for _, f := range pr.ChangedFiles {
			lower := strings.ToLower(f)
			for _, term := range terms {
				if strings.Contains(lower, term) {
					overlap++
					break
				}
			}
		}
		if overlap > 0 {
			denom := len(pr.ChangedFiles)
			if denom == 0 {
				denom = 1
			}
			pr.OverlapScore = float64(overlap) / float64(denom)
			related = append(related, pr)
		}
	}

	sort.SliceStable(related, func(i, j int) bool {
		return related[i].OverlapScore > related[j].OverlapScore
	})
	return related
}

// FormatCorrelatedPRs renders correlated PRs as a markdown table for the
// issue body. Returns "" when there is nothing to show.
func FormatCorrelatedPRs(prs []models.CorrelatedPR) string {
	if len(prs) == 0 {
		return ""
	}

	lines := []string{
		"## Recent Related Changes",
		"",
		"| PR | Title | Merged | Overlap |",
		"|----|-------|--------|---------|",
	}

	now := time.Now().UTC()
	shown := prs
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, pr := range shown {
		title := pr.Title
		if len(title) > 40 {
			title = title[:40] + "..."
		}
		lines = append(lines, fmt.Sprintf("| [#%d](%s) | %s | %s | %.0f%% |",
			pr.Number, pr.URL, title, timeAgo(pr.MergedAt, now), pr.OverlapScore*100))
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// extractSearchTerms derives file-name fragments from the transaction
// segments and the error class namespaces. Terms under 3 characters are
// dropped as too noisy.
func extractSearchTerms(errorClass, transaction string) []string {
	terms := make(map[string]bool)

	if strings.Contains(transaction, "/") {
		for _, part := range strings.Split(strings.ToLower(transaction), "/") {
			if part == "" || part == "controller" || part == "action" || part == "nested" {
				continue
			}
			terms[part] = true
			if strings.HasSuffix(part, "s") && len(part) > 2 {
				terms[part[:len(part)-1]] = true
			}
			if !strings.HasSuffix(part, "_controller") {
				terms[part+"_controller"] = true
			}
		}
	}

	if strings.Contains(errorClass, "::") {
		for _, part := range strings.Split(errorClass, "::") {
			if strings.Contains(strings.ToLower(part), "error") {
				continue
			}
			snake := research.CamelToSnake(part)
			terms[snake] = true
			if strings.HasSuffix(snake, "_controller") {
				terms[strings.TrimSuffix(snake, "_controller")] = true
			}
		}
	} else if errorClass != "" {
		snake := research.CamelToSnake(errorClass)
		if !strings.Contains(snake, "error") {
			terms[snake] = true
		}
	}

	var out []string
	for term := range terms {
		if len(term) > 2 {
			out = append(out, term)
		}
	}
	sort.Strings(out)
	return out
}

func timeAgo(isoStr string, reference time.Time) string {
	t, err := time.Parse(time.RFC3339, isoStr)
	if err != nil {
		return "?"
	}
	hours := reference.Sub(t).Hours()
	switch {
	case hours < 1:
		return fmt.Sprintf("%dm ago", int(hours*60))
	case hours < 24:
		return fmt.Sprintf("%dh ago", int(hours))
	default:
		return fmt.Sprintf("%dd ago", int(hours/24))
	}
}
