package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/patterns"
)

func TestIgnoreSuggestions_ModerateOccurrencesQualify(t *testing.T) {
	analyses := []models.ErrorAnalysisResult{{
		Error: models.ErrorGroup{
			ErrorClass:  "StaleObjectError",
			Transaction: "orders/update",
			Occurrences: 10,
		},
		Analysis: models.Analysis{
			Confidence: models.ConfidenceLow,
			HasFix:     false,
			RootCause:  "Optimistic lock contention under concurrent updates",
		},
	}}

	got := patterns.SuggestIgnoreUpdates(analyses, IgnoreFile, ignoreMinOccur)

	require.Len(t, got, 1)
	assert.Equal(t, "StaleObjectError", got[0].Pattern)
	assert.Equal(t, models.MatchExact, got[0].Match)
}

func TestIgnoreSuggestions_RareErrorsSkipped(t *testing.T) {
	analyses := []models.ErrorAnalysisResult{{
		Error:    models.ErrorGroup{ErrorClass: "StaleObjectError", Occurrences: 2},
		Analysis: models.Analysis{Confidence: models.ConfidenceLow, HasFix: false},
	}}

	assert.Empty(t, patterns.SuggestIgnoreUpdates(analyses, IgnoreFile, ignoreMinOccur))
}

func TestCrossErrorSummary(t *testing.T) {
	result := models.ErrorAnalysisResult{
		Analysis: models.Analysis{
			RootCause: "Nil order total",
			FileChanges: []models.FileChange{
				{Path: "app/models/order.rb"},
				{Path: "app/services/checkout.rb"},
			},
		},
	}
	e := models.ErrorGroup{ErrorClass: "NoMethodError", Transaction: "orders/create"}

	summary := crossErrorSummary(2, e, result)

	assert.Contains(t, summary, "Error #2: NoMethodError in orders/create")
	assert.Contains(t, summary, "Root cause: Nil order total")
	assert.Contains(t, summary, "Files: app/models/order.rb, app/services/checkout.rb")
}
