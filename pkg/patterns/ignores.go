package patterns

import (
	"fmt"
	"strings"

	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// noiseIndicator pairs a transient substring with the reason it can be
// ignored. Checked in order, one suggestion per error.
type noiseIndicator struct {
	substring string
	reason    string
}

var noiseIndicators = []noiseIndicator{
	{"timeout", "Timeout errors are typically transient network issues"},
	{"rate limit", "Rate limiting errors are expected under load"},
	{"connection reset", "Connection resets are transient infrastructure issues"},
	{"ssl", "SSL errors are often transient certificate/handshake issues"},
	{"econnrefused", "Connection refused errors are transient"},
	{"deadlock", "Deadlock errors may be transient under high concurrency"},
}

// SuggestIgnores proposes ignore-config additions: low-confidence no-fix
// errors with enough occurrences, and known transient noise. Deduplicated
// by (match, pattern).
func SuggestIgnores(analyses []models.ErrorAnalysisResult, minOccurrences int) []models.IgnoreSuggestion {
	var suggestions []models.IgnoreSuggestion

	for _, result := range analyses {
		e := result.Error
		a := result.Analysis

		if a.Confidence == models.ConfidenceLow && !a.HasFix && e.Occurrences >= minOccurrences {
			suggestions = append(suggestions, models.IgnoreSuggestion{
				Pattern: e.ErrorClass,
				Match:   models.MatchExact,
				Reason: fmt.Sprintf("Low confidence analysis with no fix (%d occurrences)",
					e.Occurrences),
				Evidence: fmt.Sprintf("Analyzed in %s — root cause: %s",
					e.Transaction, clipStr(a.RootCause, 100)),
			})
		}

		errorText := strings.ToLower(e.ErrorClass + " " + e.Message)
		for _, ind := range noiseIndicators {
			if strings.Contains(errorText, ind.substring) {
				suggestions = append(suggestions, models.IgnoreSuggestion{
					Pattern: ind.substring,
					Match:   models.MatchContains,
					Reason:  ind.reason,
					Evidence: fmt.Sprintf("Matched in %s: %s",
						e.ErrorClass, clipStr(e.Message, 100)),
				})
				break
			}
		}
	}

	seen := make(map[string]bool)
	var unique []models.IgnoreSuggestion
	for _, s := range suggestions {
		key := string(s.Match) + ":" + s.Pattern
		if !seen[key] {
			seen[key] = true
			unique = append(unique, s)
		}
	}
	return unique
}

// SuggestIgnoreUpdates filters SuggestIgnores output against the active
// ignore configuration so already-covered patterns are not re-suggested.
func SuggestIgnoreUpdates(analyses []models.ErrorAnalysisResult, ignorePath string, minOccurrences int) []models.IgnoreSuggestion {
	raw := SuggestIgnores(analyses, minOccurrences)

	existing, err := config.LoadIgnorePatterns(ignorePath)
	if err != nil || len(existing) == 0 {
		return raw
	}
	current := make([]string, 0, len(existing))
	for _, p := range existing {
		if p.Pattern != "" {
			current = append(current, strings.ToLower(p.Pattern))
		}
	}

	var fresh []models.IgnoreSuggestion
	for _, s := range raw {
		lower := strings.ToLower(s.Pattern)
		covered := false
		for _, existing := range current {
			if strings.Contains(existing, lower) || strings.Contains(lower, existing) {
				covered = true
				break
			}
		}
		if !covered {
			fresh = append(fresh, s)
		}
	}
	return fresh
}

func clipStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
