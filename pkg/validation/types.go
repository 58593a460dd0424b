// Package validation gates proposed file changes before PR creation.
// Five layers run in sequence: path safety, content, syntax, semantic
// consistency, and analysis quality.
package validation

// Layer identifies which validator produced an issue.
type Layer string

const (
	LayerPathSafety Layer = "path_safety"
	LayerContent    Layer = "content"
	LayerSyntax     Layer = "syntax"
	LayerSemantic   Layer = "semantic"
	LayerQuality    Layer = "quality"
)

// Severity of a validation issue. Errors block PR creation, warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one problem found by a validation layer.
type Issue struct {
	Layer    Layer
	Severity Severity
	Message  string
	FilePath string
}

// LayerResult is the outcome of one validation layer.
type LayerResult struct {
	Layer  Layer
	Passed bool
	Issues []Issue
}

// Result aggregates all layers. Valid means no blocking errors.
type Result struct {
	Valid          bool
	Layers         []LayerResult
	BlockingErrors []Issue
	Warnings       []Issue
}

// ErrorMessages returns the blocking error messages.
func (r Result) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.BlockingErrors))
	for _, issue := range r.BlockingErrors {
		msgs = append(msgs, issue.Message)
	}
	return msgs
}

// WarningMessages returns the warning messages.
func (r Result) WarningMessages() []string {
	msgs := make([]string, 0, len(r.Warnings))
	for _, issue := range r.Warnings {
		msgs = append(msgs, issue.Message)
	}
	return msgs
}
