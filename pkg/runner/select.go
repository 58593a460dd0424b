package runner

import (
	"sort"

	"github.com/nightwatchhq/nightwatch/pkg/analyzer"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// SelectForIssues picks the top analyses most likely to produce useful
// issues: actionable fixes and clear next steps outrank raw severity.
// Low-confidence results without a fix are dropped outright.
func SelectForIssues(analyses []models.ErrorAnalysisResult, maxIssues int) []models.ErrorAnalysisResult {
	var candidates []models.ErrorAnalysisResult
	for _, result := range analyses {
		a := result.Analysis
		if a.Confidence == models.ConfidenceLow && !a.HasFix {
			continue
		}
		result.IssueScore = analyzer.IssueScore(result)
		candidates = append(candidates, result)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].IssueScore > candidates[j].IssueScore
	})
	if len(candidates) > maxIssues {
		candidates = candidates[:maxIssues]
	}
	return candidates
}

// BestFixCandidate finds the one analysis worth a draft PR this run.
// It needs a concrete fix with file changes and a freshly created issue
// to anchor to; high confidence wins over earlier candidates.
func BestFixCandidate(analyses []models.ErrorAnalysisResult, issuesCreated []models.CreatedIssueResult) (*models.ErrorAnalysisResult, int) {
	issueNumbers := make(map[string]int)
	for _, issue := range issuesCreated {
		if issue.Action == models.IssueActionCreated {
			issueNumbers[issue.Error.ErrorClass+":"+issue.Error.Transaction] = issue.IssueNumber
		}
	}

	var best *models.ErrorAnalysisResult
	bestIssue := 0

	for i := range analyses {
		result := &analyses[i]
		a := result.Analysis
		if !a.HasFix || len(a.FileChanges) == 0 {
			continue
		}
		number := issueNumbers[result.Error.ErrorClass+":"+result.Error.Transaction]
		if number == 0 {
			continue
		}
		if best == nil || (a.Confidence == models.ConfidenceHigh && best.Analysis.Confidence != models.ConfidenceHigh) {
			best = result
			bestIssue = number
		}
	}
	return best, bestIssue
}
