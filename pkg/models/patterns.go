package models

// PatternType classifies a cross-error pattern.
type PatternType string

const (
	PatternRecurringError PatternType = "recurring_error"
	PatternSystemicIssue  PatternType = "systemic_issue"
	PatternTransientNoise PatternType = "transient_noise"
)

// MatchType is how an ignore pattern is matched against errors.
type MatchType string

const (
	MatchContains MatchType = "contains"
	MatchExact    MatchType = "exact"
	MatchPrefix   MatchType = "prefix"
)

// DetectedPattern is a systemic pattern detected across multiple errors.
type DetectedPattern struct {
	Title        string
	Description  string
	ErrorClasses []string
	Modules      []string
	Occurrences  int
	Suggestion   string
	PatternType  PatternType
}

// IgnoreSuggestion is a suggested addition to the ignore configuration.
// Unique by (Match, Pattern).
type IgnoreSuggestion struct {
	Pattern  string
	Match    MatchType
	Reason   string
	Evidence string
}

// PriorAnalysis is a projection of a knowledge base document used as a
// prompt seed for new analyses.
type PriorAnalysis struct {
	ErrorClass    string
	Transaction   string
	RootCause     string
	FixConfidence string
	HasFix        bool
	Summary       string
	MatchScore    float64
	SourceFile    string
	FirstDetected string
}

// CorrelatedPR is a recently merged PR that may have caused an error.
type CorrelatedPR struct {
	Number       int
	Title        string
	URL          string
	MergedAt     string
	ChangedFiles []string
	OverlapScore float64
}

// ResearchContext holds pre-fetched material assembled before analysis.
type ResearchContext struct {
	PriorAnalyses []PriorAnalysis
	LikelyFiles   []string
	CorrelatedPRs []CorrelatedPR
	FilePreviews  map[string]string // path -> first lines of content
}
