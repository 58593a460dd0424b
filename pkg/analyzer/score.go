package analyzer

import "github.com/nightwatchhq/nightwatch/pkg/models"

// QualityScore rates a completed analysis in [0, 1]. Confidence carries
// half the weight; the rest rewards a concrete fix, a substantive root
// cause, detailed reasoning, and actionable next steps.
func QualityScore(a models.Analysis) float64 {
	score := 0.5 * a.Confidence.Float()

	if a.HasFix {
		if len(a.FileChanges) > 0 {
			score += 0.20
		} else {
			score += 0.10
		}
	}
	if len(a.RootCause) > 20 && a.RootCause != "Unknown" {
		score += 0.15
	}
	if len(a.Reasoning) > 200 {
		score += 0.10
	}

	steps := float64(len(a.SuggestedNextSteps)) / 3
	if steps > 1 {
		steps = 1
	}
	score += 0.05 * steps

	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// IssueScore rates how likely a result is to produce a useful issue.
// Distinct from error ranking: this rewards actionability.
func IssueScore(result models.ErrorAnalysisResult) float64 {
	a := result.Analysis
	score := 0.0
	if a.HasFix {
		score += 0.5
	}
	switch a.Confidence {
	case models.ConfidenceHigh:
		score += 0.3
	case models.ConfidenceMedium:
		score += 0.15
	}
	if len(a.FileChanges) > 0 {
		score += 0.1
	}
	if len(a.SuggestedNextSteps) > 0 {
		score += 0.05
	}
	occ := float64(result.Error.Occurrences) / 200
	if occ > 0.1 {
		occ = 0.1
	}
	return score + occ
}
