// Package patterns detects systemic issues across a run's analyses:
// module clusters, recurring error classes, file hotspots, cross-run
// recurrence against the knowledge base, and transient noise.
package patterns

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/nightwatchhq/nightwatch/pkg/knowledge"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Detect runs the in-run detectors over a batch of completed analyses and
// returns patterns sorted by occurrences descending, then title.
func Detect(analyses []models.ErrorAnalysisResult, minClusterSize int) []models.DetectedPattern {
	if len(analyses) < minClusterSize {
		return nil
	}

	var patterns []models.DetectedPattern
	patterns = append(patterns, detectModuleClusters(analyses, minClusterSize)...)
	patterns = append(patterns, detectClassClusters(analyses, minClusterSize)...)
	patterns = append(patterns, detectFileHotspots(analyses, minClusterSize)...)

	sortPatterns(patterns)
	return patterns
}

// DetectWithKnowledge extends Detect with cross-run recurrence from the
// knowledge base and transient-noise detection. store may be nil.
func DetectWithKnowledge(analyses []models.ErrorAnalysisResult, store *knowledge.Store, minClusterSize int) []models.DetectedPattern {
	patterns := Detect(analyses, minClusterSize)
	if store != nil {
		patterns = append(patterns, findRecurringInKnowledge(analyses, store)...)
	}
	patterns = append(patterns, detectTransient(analyses)...)

	sortPatterns(patterns)
	return patterns
}

func sortPatterns(patterns []models.DetectedPattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Occurrences != patterns[j].Occurrences {
			return patterns[i].Occurrences > patterns[j].Occurrences
		}
		return patterns[i].Title < patterns[j].Title
	})
}

// detectModuleClusters finds directories touched by multiple errors, via
// proposed file changes and the transaction-name heuristic.
func detectModuleClusters(analyses []models.ErrorAnalysisResult, minSize int) []models.DetectedPattern {
	dirToErrors := make(map[string][]string)

	for _, result := range analyses {
		dirs := make(map[string]bool)
		for _, fc := range result.Analysis.FileChanges {
			if parent := path.Dir(fc.Path); parent != "" && parent != "." {
				dirs[parent] = true
			}
		}
		if txDir := TransactionToDirectory(result.Error.Transaction); txDir != "" {
			dirs[txDir] = true
		}
		for d := range dirs {
			dirToErrors[d] = append(dirToErrors[d], result.Error.ErrorClass)
		}
	}

	var patterns []models.DetectedPattern
	for directory, classes := range dirToErrors {
		if len(classes) < minSize {
			continue
		}
		unique := uniqueSorted(classes)
		patterns = append(patterns, models.DetectedPattern{
			Title: "Multiple errors in " + directory,
			Description: fmt.Sprintf("%d errors touch the `%s` module. Error classes: %s",
				len(classes), directory, strings.Join(unique, ", ")),
			ErrorClasses: unique,
			Modules:      []string{directory},
			Occurrences:  len(classes),
			Suggestion: fmt.Sprintf("Review `%s` for systemic issues — %d distinct error types in one module.",
				directory, len(unique)),
			PatternType: models.PatternSystemicIssue,
		})
	}
	return patterns
}

// detectClassClusters finds error classes appearing in multiple transactions.
func detectClassClusters(analyses []models.ErrorAnalysisResult, minSize int) []models.DetectedPattern {
	classToTxs := make(map[string][]string)
	for _, result := range analyses {
		classToTxs[result.Error.ErrorClass] = append(
			classToTxs[result.Error.ErrorClass], result.Error.Transaction)
	}

	var patterns []models.DetectedPattern
	for errorClass, txs := range classToTxs {
		if len(txs) < minSize {
			continue
		}
		uniqueTxs := uniqueSorted(txs)
		var modules []string
		for _, tx := range txs {
			if d := TransactionToDirectory(tx); d != "" {
				modules = append(modules, d)
			}
		}
		sort.Strings(modules)

		patterns = append(patterns, models.DetectedPattern{
			Title: fmt.Sprintf("%s across %d transactions", errorClass, len(uniqueTxs)),
			Description: fmt.Sprintf("`%s` appears in %d analyses across transactions: %s",
				errorClass, len(txs), strings.Join(uniqueTxs, ", ")),
			ErrorClasses: []string{errorClass},
			Modules:      modules,
			Occurrences:  len(txs),
			Suggestion: fmt.Sprintf("Investigate common root cause for `%s` — may be a shared dependency or pattern issue.",
				errorClass),
			PatternType: models.PatternRecurringError,
		})
	}
	return patterns
}

// detectFileHotspots finds files targeted by fix proposals from multiple
// analyses.
func detectFileHotspots(analyses []models.ErrorAnalysisResult, minSize int) []models.DetectedPattern {
	fileToErrors := make(map[string][]string)
	for _, result := range analyses {
		for _, fc := range result.Analysis.FileChanges {
			fileToErrors[fc.Path] = append(fileToErrors[fc.Path], result.Error.ErrorClass)
		}
	}

	var patterns []models.DetectedPattern
	for filePath, classes := range fileToErrors {
		if len(classes) < minSize {
			continue
		}
		unique := uniqueSorted(classes)
		var modules []string
		if parent := path.Dir(filePath); parent != "." {
			modules = []string{parent}
		}

		patterns = append(patterns, models.DetectedPattern{
			Title: "Hotspot: " + filePath,
			Description: fmt.Sprintf("`%s` is targeted by %d separate fix proposals. Error classes: %s",
				filePath, len(classes), strings.Join(unique, ", ")),
			ErrorClasses: unique,
			Modules:      modules,
			Occurrences:  len(classes),
			Suggestion: fmt.Sprintf("Consider a comprehensive review of `%s` — multiple errors point here.",
				filePath),
			PatternType: models.PatternSystemicIssue,
		})
	}
	return patterns
}

// findRecurringInKnowledge flags error classes from this run that already
// have solutions in the knowledge base.
func findRecurringInKnowledge(analyses []models.ErrorAnalysisResult, store *knowledge.Store) []models.DetectedPattern {
	counts := store.SolutionClassCounts()
	if len(counts) == 0 {
		return nil
	}

	currentClasses := make(map[string]bool)
	for _, result := range analyses {
		currentClasses[result.Error.ErrorClass] = true
	}

	var patterns []models.DetectedPattern
	for errorClass := range currentClasses {
		kbCount := counts[errorClass]
		if kbCount < 1 {
			continue
		}
		total := kbCount + 1
		patterns = append(patterns, models.DetectedPattern{
			Title: "Recurring: " + errorClass,
			Description: fmt.Sprintf("`%s` has appeared in %d runs (%d prior + current run).",
				errorClass, total, kbCount),
			ErrorClasses: []string{errorClass},
			Occurrences:  total,
			Suggestion:   "This error recurs across runs. Consider prioritizing a permanent fix.",
			PatternType:  models.PatternRecurringError,
		})
	}
	return patterns
}

// transientIndicators are substrings marking an error as likely transient
// infrastructure noise rather than an application bug.
var transientIndicators = []string{
	"timeout", "timed out",
	"rate limit", "rate_limit",
	"connection reset", "connection refused",
	"econnrefused", "econnreset",
	"ssl", "deadlock", "lock wait",
	"too many connections", "service unavailable",
	"502", "503", "504",
}

// detectTransient groups errors matching transient indicators into a
// single noise pattern.
func detectTransient(analyses []models.ErrorAnalysisResult) []models.DetectedPattern {
	var transientClasses []string
	for _, result := range analyses {
		if isTransient(result.Error) {
			transientClasses = append(transientClasses, result.Error.ErrorClass)
		}
	}
	if len(transientClasses) == 0 {
		return nil
	}

	unique := uniqueSorted(transientClasses)
	return []models.DetectedPattern{{
		Title: fmt.Sprintf("Transient noise: %d error types", len(unique)),
		Description: fmt.Sprintf("%d errors match transient/noise patterns: %s",
			len(transientClasses), strings.Join(unique, ", ")),
		ErrorClasses: unique,
		Occurrences:  len(transientClasses),
		Suggestion:   "Consider adding these to ignore.yml to reduce noise in future runs.",
		PatternType:  models.PatternTransientNoise,
	}}
}

func isTransient(e models.ErrorGroup) bool {
	text := strings.ToLower(e.ErrorClass + " " + e.Message)
	for _, indicator := range transientIndicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}

// TransactionToDirectory maps a transaction name to a likely source
// directory: Controller/orders/update becomes app/controllers/orders.
// Non-controller transactions are not mappable.
func TransactionToDirectory(transaction string) string {
	if !strings.HasPrefix(transaction, "Controller/") {
		return ""
	}
	parts := strings.Split(transaction, "/")
	if len(parts) < 3 {
		return ""
	}
	// Drop the "Controller" prefix and the trailing action.
	middle := parts[1 : len(parts)-1]
	return "app/controllers/" + strings.Join(middle, "/")
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
