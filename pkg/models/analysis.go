package models

import "strings"

// Confidence is the LLM's stated confidence in an analysis.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidence levels for comparison: low=0, medium=1, high=2.
// Unknown values rank as low.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceMedium:
		return 1
	case ConfidenceHigh:
		return 2
	default:
		return 0
	}
}

// Float maps confidence to the score used by analysis-adjacent agents.
func (c Confidence) Float() float64 {
	switch c {
	case ConfidenceHigh:
		return 0.9
	case ConfidenceMedium:
		return 0.6
	case ConfidenceLow:
		return 0.3
	default:
		return 0.5
	}
}

// ParseConfidence normalizes a raw string to a Confidence, defaulting to low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceMedium:
		return ConfidenceMedium
	case ConfidenceHigh:
		return ConfidenceHigh
	default:
		return ConfidenceLow
	}
}

// FileAction is the kind of change proposed for a file.
type FileAction string

const (
	FileActionModify FileAction = "modify"
	FileActionCreate FileAction = "create"
	FileActionDelete FileAction = "delete"
)

// FileChange is one proposed file edit in an Analysis.
type FileChange struct {
	Path        string     `json:"path"`
	Action      FileAction `json:"action"`
	Content     string     `json:"content,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Analysis is the LLM's structured verdict for a single error.
// Invariant: when HasFix and an action is modify/create, Content is non-empty.
type Analysis struct {
	Title              string       `json:"title"`
	Reasoning          string       `json:"reasoning"`
	RootCause          string       `json:"root_cause"`
	HasFix             bool         `json:"has_fix"`
	Confidence         Confidence   `json:"confidence"`
	FileChanges        []FileChange `json:"file_changes,omitempty"`
	SuggestedNextSteps []string     `json:"suggested_next_steps,omitempty"`
}

// TokenBreakdown splits token usage by category for cost accounting.
type TokenBreakdown struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
}

// Total returns input + output tokens.
func (b TokenBreakdown) Total() int {
	return b.InputTokens + b.OutputTokens
}

// ErrorAnalysisResult pairs an ErrorGroup with its Analysis and the
// resources spent producing it.
type ErrorAnalysisResult struct {
	Error          ErrorGroup
	Analysis       Analysis
	Iterations     int
	TokensUsed     int
	APICalls       int
	PassCount      int
	QualityScore   float64
	IssueScore     float64
	TokenBreakdown *TokenBreakdown
}
