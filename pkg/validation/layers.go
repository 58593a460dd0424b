package validation

import (
	"fmt"
	"strings"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Context carries the analysis fields the semantic and quality layers
// check file changes against.
type Context struct {
	Confidence models.Confidence
	RootCause  string
	Reasoning  string
}

// Validator is one layer of the quality gate.
type Validator interface {
	Validate(changes []models.FileChange, ctx *Context) LayerResult
}

// PathSafetyValidator rejects absolute paths and path traversal.
type PathSafetyValidator struct{}

func (PathSafetyValidator) Validate(changes []models.FileChange, _ *Context) LayerResult {
	var issues []Issue
	for _, change := range changes {
		if strings.HasPrefix(change.Path, "/") {
			issues = append(issues, Issue{
				Layer:    LayerPathSafety,
				Severity: SeverityError,
				Message:  "Absolute path not allowed: " + change.Path,
				FilePath: change.Path,
			})
		}
		if strings.Contains(change.Path, "..") {
			issues = append(issues, Issue{
				Layer:    LayerPathSafety,
				Severity: SeverityError,
				Message:  "Path traversal not allowed: " + change.Path,
				FilePath: change.Path,
			})
		}
	}
	return layerResult(LayerPathSafety, issues)
}

// ContentValidator checks change content is present and reasonable.
type ContentValidator struct{}

func (ContentValidator) Validate(changes []models.FileChange, _ *Context) LayerResult {
	var issues []Issue
	for _, change := range changes {
		stripped := strings.TrimSpace(change.Content)
		writes := change.Action == models.FileActionModify || change.Action == models.FileActionCreate

		if writes && stripped == "" {
			issues = append(issues, Issue{
				Layer:    LayerContent,
				Severity: SeverityError,
				Message:  fmt.Sprintf("Empty content for %s action: %s", change.Action, change.Path),
				FilePath: change.Path,
			})
		}
		if stripped != "" && len(stripped) < 20 && change.Action == models.FileActionModify {
			issues = append(issues, Issue{
				Layer:    LayerContent,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Suspiciously short content (%d chars): %s", len(stripped), change.Path),
				FilePath: change.Path,
			})
		}
	}
	return layerResult(LayerContent, issues)
}

// SyntaxValidator runs basic language checks, currently Ruby block balance.
type SyntaxValidator struct{}

func (SyntaxValidator) Validate(changes []models.FileChange, _ *Context) LayerResult {
	var issues []Issue
	for _, change := range changes {
		if strings.HasSuffix(change.Path, ".rb") && change.Content != "" {
			issues = append(issues, checkRubySyntax(change.Content, change.Path)...)
		}
	}
	return layerResult(LayerSyntax, issues)
}

var rubyOpeners = []string{"def ", "class ", "module ", "do", "if ", "unless ", "begin"}

// checkRubySyntax counts block openers against end keywords. Not a parser,
// just a balance check tolerant to abs difference of 2.
func checkRubySyntax(content, path string) []Issue {
	openers, enders := 0, 0
	for _, line := range strings.Split(content, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "#") {
			continue
		}
		for _, keyword := range rubyOpeners {
			if strings.HasPrefix(stripped, keyword) || strings.Contains(stripped, " "+keyword) {
				openers++
				break
			}
		}
		if stripped == "end" || strings.HasPrefix(stripped, "end ") || strings.HasPrefix(stripped, "end#") {
			enders++
		}
	}

	switch {
	case openers > 0 && enders == 0:
		return []Issue{{
			Layer:    LayerSyntax,
			Severity: SeverityError,
			Message:  "Ruby syntax: no 'end' keywords found (likely incomplete)",
			FilePath: path,
		}}
	case abs(openers-enders) > 2:
		return []Issue{{
			Layer:    LayerSyntax,
			Severity: SeverityError,
			Message:  fmt.Sprintf("Ruby syntax: imbalanced blocks (%d openers vs %d ends)", openers, enders),
			FilePath: path,
		}}
	}
	return nil
}

// SemanticValidator checks changes are consistent with the analysis text.
type SemanticValidator struct{}

func (SemanticValidator) Validate(changes []models.FileChange, ctx *Context) LayerResult {
	if ctx == nil {
		return LayerResult{Layer: LayerSemantic, Passed: true}
	}

	var issues []Issue
	if len(changes) > 5 {
		issues = append(issues, Issue{
			Layer:    LayerSemantic,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Large number of file changes (%d) -- verify all are necessary", len(changes)),
		})
	}

	analysisText := strings.ToLower(ctx.RootCause + " " + ctx.Reasoning)
	if strings.TrimSpace(analysisText) != "" && len(changes) > 0 {
		modules := make(map[string]bool)
		for _, change := range changes {
			parts := strings.Split(strings.ReplaceAll(change.Path, "\\", "/"), "/")
			for _, part := range parts[:max(len(parts)-1, 0)] {
				if part != "" {
					modules[strings.ToLower(part)] = true
				}
			}
		}

		mentioned := false
		for mod := range modules {
			if len(mod) > 2 && strings.Contains(analysisText, mod) {
				mentioned = true
				break
			}
		}
		if !mentioned && len(modules) > 0 {
			issues = append(issues, Issue{
				Layer:    LayerSemantic,
				Severity: SeverityWarning,
				Message:  "Modified files don't appear related to the root cause analysis",
			})
		}
	}
	return layerResult(LayerSemantic, issues)
}

// QualityValidator enforces minimum analysis quality for PR creation.
type QualityValidator struct {
	MinConfidence models.Confidence
	MaxFiles      int
}

// NewQualityValidator uses the default thresholds: medium confidence,
// at most 5 files.
func NewQualityValidator() QualityValidator {
	return QualityValidator{MinConfidence: models.ConfidenceMedium, MaxFiles: 5}
}

func (v QualityValidator) Validate(changes []models.FileChange, ctx *Context) LayerResult {
	if ctx == nil {
		return LayerResult{Layer: LayerQuality, Passed: true}
	}

	var issues []Issue
	if ctx.Confidence.Rank() < v.MinConfidence.Rank() {
		issues = append(issues, Issue{
			Layer:    LayerQuality,
			Severity: SeverityError,
			Message: fmt.Sprintf("Analysis confidence '%s' below minimum '%s'",
				ctx.Confidence, v.MinConfidence),
		})
	}
	if len(changes) > v.MaxFiles {
		issues = append(issues, Issue{
			Layer:    LayerQuality,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("File change count (%d) exceeds maximum (%d)",
				len(changes), v.MaxFiles),
		})
	}
	if strings.TrimSpace(ctx.RootCause) == "" {
		issues = append(issues, Issue{
			Layer:    LayerQuality,
			Severity: SeverityError,
			Message:  "Analysis has empty root_cause -- cannot validate fix",
		})
	}
	if strings.TrimSpace(ctx.Reasoning) == "" {
		issues = append(issues, Issue{
			Layer:    LayerQuality,
			Severity: SeverityWarning,
			Message:  "Analysis has empty reasoning",
		})
	}
	return layerResult(LayerQuality, issues)
}

func layerResult(layer Layer, issues []Issue) LayerResult {
	passed := true
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			passed = false
			break
		}
	}
	return LayerResult{Layer: layer, Passed: passed, Issues: issues}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
