package models

// IssueAction distinguishes a freshly created issue from an occurrence
// comment on an existing one.
type IssueAction string

const (
	IssueActionCreated   IssueAction = "created"
	IssueActionCommented IssueAction = "commented"
)

// CreatedIssueResult is the outcome of creating or updating a tracker issue.
type CreatedIssueResult struct {
	Error       ErrorGroup
	Analysis    Analysis
	Action      IssueAction
	IssueNumber int
	IssueURL    string
}

// CreatedPRResult is the outcome of creating a draft PR.
type CreatedPRResult struct {
	IssueNumber  int
	PRNumber     int
	PRURL        string
	BranchName   string
	FilesChanged int
}

// RunReport summarizes an entire NightWatch run.
type RunReport struct {
	Timestamp            string
	Lookback             string
	TotalErrorsFound     int
	ErrorsFiltered       int
	ErrorsAnalyzed       int
	Analyses             []ErrorAnalysisResult
	IssuesCreated        []CreatedIssueResult
	PRCreated            *CreatedPRResult
	TotalTokensUsed      int
	TotalAPICalls        int
	RunDurationSeconds   float64
	MultiPassRetries     int
	PRValidationFailures int
	Patterns             []DetectedPattern
	IgnoreSuggestions    []IgnoreSuggestion
}

// FixesFound counts analyses that proposed a fix.
func (r *RunReport) FixesFound() int {
	n := 0
	for _, a := range r.Analyses {
		if a.Analysis.HasFix {
			n++
		}
	}
	return n
}

// HighConfidence counts analyses with a high-confidence fix.
func (r *RunReport) HighConfidence() int {
	n := 0
	for _, a := range r.Analyses {
		if a.Analysis.HasFix && a.Analysis.Confidence == ConfidenceHigh {
			n++
		}
	}
	return n
}
