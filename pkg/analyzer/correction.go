package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/validation"
)

// AttemptCorrection runs the one-shot correction round-trip: a fresh
// conversation carrying the original analysis and the validation errors,
// asking for corrected file changes. Returns the corrected result or an
// error; the caller decides whether to skip the PR.
func (a *Analyzer) AttemptCorrection(ctx context.Context, result models.ErrorAnalysisResult, v validation.Result) (models.ErrorAnalysisResult, error) {
	prompt := BuildCorrectionPrompt(result.Analysis, v)

	msg, err := a.llm.CreateMessage(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.llm.Model()),
		MaxTokens: 8192,
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return models.ErrorAnalysisResult{}, fmt.Errorf("correction call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	corrected := ParseAnalysisText(text.String())
	// Keep the original verdict where the correction left fields blank.
	if corrected.Title == "" || corrected.Title == "Analysis Complete" {
		corrected.Title = result.Analysis.Title
	}
	if corrected.RootCause == "" || corrected.RootCause == "See reasoning" {
		corrected.RootCause = result.Analysis.RootCause
	}
	if len(corrected.SuggestedNextSteps) == 0 {
		corrected.SuggestedNextSteps = result.Analysis.SuggestedNextSteps
	}

	out := result
	out.Analysis = corrected
	out.APICalls++
	out.TokensUsed += int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	if out.TokenBreakdown != nil {
		out.TokenBreakdown.InputTokens += int(msg.Usage.InputTokens)
		out.TokenBreakdown.OutputTokens += int(msg.Usage.OutputTokens)
	}
	return out, nil
}

// BuildCorrectionPrompt renders the correction request: the original
// analysis, the proposed changes, and the validation findings that must
// be fixed.
func BuildCorrectionPrompt(a models.Analysis, v validation.Result) string {
	var changes []string
	for _, fc := range a.FileChanges {
		changes = append(changes, fmt.Sprintf("- %s %s: %s", fc.Action, fc.Path, fc.Description))
	}

	var errorList []string
	for _, msg := range v.ErrorMessages() {
		errorList = append(errorList, "- "+msg)
	}
	warningList := "None"
	if warnings := v.WarningMessages(); len(warnings) > 0 {
		var lines []string
		for _, msg := range warnings {
			lines = append(lines, "- "+msg)
		}
		warningList = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`## Correction Request

Your previous analysis proposed file changes that failed validation.

### Original Analysis
**Title**: %s
**Root Cause**: %s

### Proposed File Changes
%s

### Validation Errors (MUST FIX)
%s

### Validation Warnings
%s

Please provide corrected file changes that fix all validation errors.
Respond with the same JSON structure as the original analysis, but with corrected file_changes.

`+"```json"+`
{
    "title": "...",
    "reasoning": "...",
    "root_cause": "...",
    "has_fix": true,
    "confidence": "...",
    "file_changes": [
        {"path": "...", "action": "modify|create", "content": "...", "description": "..."}
    ],
    "suggested_next_steps": []
}
`+"```",
		a.Title, a.RootCause,
		strings.Join(changes, "\n"),
		strings.Join(errorList, "\n"),
		warningList)
}
