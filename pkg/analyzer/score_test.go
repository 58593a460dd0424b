package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func TestQualityScore_FullAnalysisNearsOne(t *testing.T) {
	a := models.Analysis{
		Confidence: models.ConfidenceHigh,
		HasFix:     true,
		FileChanges: []models.FileChange{
			{Path: "app/models/order.rb", Action: models.FileActionModify, Content: "guard"},
		},
		RootCause:          "Order#total is called before line items load, so nil propagates into the tax calculation",
		Reasoning:          strings.Repeat("The trace shows the nil entering through the eager-load path. ", 5),
		SuggestedNextSteps: []string{"add regression test", "backfill orders", "audit callers"},
	}

	score := QualityScore(a)

	assert.InDelta(t, 1.0, score, 0.06)
}

func TestQualityScore_EmptyAnalysisScoresLow(t *testing.T) {
	score := QualityScore(models.Analysis{Confidence: models.ConfidenceLow})

	assert.InDelta(t, 0.15, score, 0.001)
}

func TestQualityScore_FixWithoutChangesWorthLess(t *testing.T) {
	base := models.Analysis{Confidence: models.ConfidenceMedium, HasFix: true}
	withChanges := base
	withChanges.FileChanges = []models.FileChange{{Path: "a.rb", Action: models.FileActionModify, Content: "x"}}

	assert.Greater(t, QualityScore(withChanges), QualityScore(base))
}

func TestQualityScore_UnknownRootCauseNotRewarded(t *testing.T) {
	a := models.Analysis{Confidence: models.ConfidenceLow, RootCause: "Unknown"}

	assert.Equal(t, QualityScore(models.Analysis{Confidence: models.ConfidenceLow}), QualityScore(a))
}

func TestIssueScore_ActionabilityOrdering(t *testing.T) {
	strong := models.ErrorAnalysisResult{
		Error: models.ErrorGroup{Occurrences: 100},
		Analysis: models.Analysis{
			HasFix:             true,
			Confidence:         models.ConfidenceHigh,
			FileChanges:        []models.FileChange{{Path: "a.rb"}},
			SuggestedNextSteps: []string{"test"},
		},
	}
	weak := models.ErrorAnalysisResult{
		Error:    models.ErrorGroup{Occurrences: 5},
		Analysis: models.Analysis{Confidence: models.ConfidenceLow},
	}

	assert.Greater(t, IssueScore(strong), IssueScore(weak))
	assert.InDelta(t, 1.05, IssueScore(strong), 0.001)
}

func TestIssueScore_OccurrenceBonusCapped(t *testing.T) {
	few := models.ErrorAnalysisResult{Error: models.ErrorGroup{Occurrences: 20}}
	flood := models.ErrorAnalysisResult{Error: models.ErrorGroup{Occurrences: 100000}}

	assert.Equal(t, 0.1, IssueScore(flood))
	assert.Equal(t, 0.1, IssueScore(few))
}
