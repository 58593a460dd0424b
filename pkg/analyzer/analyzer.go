// Package analyzer runs the iterative LLM analysis loop for one error:
// adaptive iteration and thinking budgets, tool execution against the
// repository, conversation compression, and a low-confidence retry pass.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

const maxOutputTokens = 16384

// LLMClient is the slice of the LLM wrapper the analyzer needs.
type LLMClient interface {
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
	Model() string
}

// Analyzer drives the agentic analysis loop.
type Analyzer struct {
	llm      LLMClient
	repo     RepoReader
	settings *config.Settings
	logger   *slog.Logger

	// sleep is swappable in tests to avoid real pacing waits.
	sleep func(time.Duration)
}

// New creates an analyzer bound to an LLM client and a repository reader.
func New(llm LLMClient, repo RepoReader, settings *config.Settings) *Analyzer {
	return &Analyzer{
		llm:      llm,
		repo:     repo,
		settings: settings,
		logger:   slog.Default().With("component", "analyzer"),
		sleep:    time.Sleep,
	}
}

// Options carries the optional context an analysis starts from.
type Options struct {
	RunContext   *models.RunContext
	Prior        []models.PriorAnalysis
	Research     *models.ResearchContext
	PriorContext string
}

// AnalyzeError analyzes a single error, retrying once with seed knowledge
// when the first pass comes back low confidence and multi-pass is enabled.
// The returned result always carries the combined token and call counts.
func (a *Analyzer) AnalyzeError(ctx context.Context, e models.ErrorGroup, traces models.TraceData, opts Options) (models.ErrorAnalysisResult, error) {
	var contextSeed string
	if opts.RunContext != nil && a.settings.RunContextEnabled {
		contextSeed = opts.RunContext.ToPromptSection(a.settings.RunContextMaxChars)
	}
	if opts.PriorContext != "" {
		if contextSeed != "" {
			contextSeed += "\n\n" + opts.PriorContext
		} else {
			contextSeed = opts.PriorContext
		}
	}

	result, err := a.singlePass(ctx, e, traces, contextSeed, opts)
	if err != nil {
		return models.ErrorAnalysisResult{}, err
	}

	if a.settings.MultiPassEnabled &&
		result.Analysis.Confidence == models.ConfidenceLow &&
		a.settings.MaxPasses > 1 {
		a.logger.Info("Pass 1 returned low confidence, retrying with seed knowledge",
			"pass", 2, "max_passes", a.settings.MaxPasses)

		retrySeed := buildRetrySeed(result)
		if contextSeed != "" {
			retrySeed += "\n\n" + contextSeed
		}

		pass1 := result
		result, err = a.singlePass(ctx, e, traces, retrySeed, opts)
		if err != nil {
			// Keep the pass 1 result rather than losing the whole analysis.
			a.logger.Warn("Retry pass failed, keeping pass 1 result", "error", err)
			result = pass1
		} else {
			result.TokensUsed += pass1.TokensUsed
			result.APICalls += pass1.APICalls
			result.Iterations += pass1.Iterations
			result.PassCount = 2
			if result.TokenBreakdown != nil && pass1.TokenBreakdown != nil {
				result.TokenBreakdown.InputTokens += pass1.TokenBreakdown.InputTokens
				result.TokenBreakdown.OutputTokens += pass1.TokenBreakdown.OutputTokens
				result.TokenBreakdown.CacheReadTokens += pass1.TokenBreakdown.CacheReadTokens
				result.TokenBreakdown.CacheCreationTokens += pass1.TokenBreakdown.CacheCreationTokens
			}

			if result.Analysis.Confidence.Rank() < pass1.Analysis.Confidence.Rank() {
				result.Analysis = pass1.Analysis
			}
		}
	}

	result.QualityScore = QualityScore(result.Analysis)

	if opts.RunContext != nil && a.settings.RunContextEnabled {
		opts.RunContext.RecordAnalysis(e.ErrorClass, e.Transaction, clip(result.Analysis.RootCause, 200))
	}

	return result, nil
}

// singlePass runs one agentic loop to completion, iteration cap, or token
// budget exhaustion.
func (a *Analyzer) singlePass(ctx context.Context, e models.ErrorGroup, traces models.TraceData, seedContext string, opts Options) (models.ErrorAnalysisResult, error) {
	initial := BuildAnalysisPrompt(e, SummarizeTraces(traces, 3), opts.Prior, opts.Research)
	if seedContext != "" {
		initial += "\n\n" + seedContext
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(initial)),
	}

	maxIterations := maxIterationsFor(e.ErrorClass, a.settings.MaxIterations)
	a.logger.Info("Starting analysis pass",
		"error_class", e.ErrorClass,
		"max_iterations", maxIterations,
		"ceiling", a.settings.MaxIterations)

	iteration := 0
	apiCalls := 0
	breakdown := models.TokenBreakdown{}

	for iteration < maxIterations {
		iteration++
		if iteration > 1 {
			a.sleep(1500 * time.Millisecond)
		}

		if breakdown.Total() > a.settings.TokenBudgetPerError {
			a.logger.Warn("Token budget reached, forcing wrap-up",
				"tokens", breakdown.Total(), "budget", a.settings.TokenBudgetPerError)
			break
		}

		thinkingBudget := thinkingBudgetFor(iteration, maxIterations, e.ErrorClass)
		a.logger.Info("Analysis iteration",
			"iteration", iteration, "max", maxIterations, "thinking_budget", thinkingBudget)

		msg, err := a.llm.CreateMessage(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.llm.Model()),
			MaxTokens: maxOutputTokens,
			System: []anthropic.TextBlockParam{{
				Text:         SystemPrompt,
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			}},
			Tools:    Tools(),
			Messages: messages,
			Thinking: anthropic.ThinkingConfigParamOfEnabled(int64(thinkingBudget)),
		})
		if err != nil {
			return models.ErrorAnalysisResult{}, fmt.Errorf("analysis call failed on iteration %d: %w", iteration, err)
		}
		apiCalls++
		breakdown.InputTokens += int(msg.Usage.InputTokens)
		breakdown.OutputTokens += int(msg.Usage.OutputTokens)
		breakdown.CacheReadTokens += int(msg.Usage.CacheReadInputTokens)
		breakdown.CacheCreationTokens += int(msg.Usage.CacheCreationInputTokens)

		if msg.StopReason == anthropic.StopReasonToolUse {
			toolResults := a.executeTools(ctx, msg, e, traces)
			messages = append(messages, msg.ToParam(), anthropic.NewUserMessage(toolResults...))

			if iteration > 6 && len(messages) > 8 {
				messages = compressConversation(messages, a.logger)
			}
			continue
		}

		analysis := parseAnalysis(msg)
		a.logger.Info("Analysis complete",
			"iterations", iteration,
			"tokens", breakdown.Total(),
			"has_fix", analysis.HasFix,
			"confidence", analysis.Confidence)
		return models.ErrorAnalysisResult{
			Error:          e,
			Analysis:       analysis,
			Iterations:     iteration,
			TokensUsed:     breakdown.Total(),
			APICalls:       apiCalls,
			PassCount:      1,
			TokenBreakdown: &breakdown,
		}, nil
	}

	a.logger.Warn("Hit iteration limit", "max_iterations", maxIterations)
	return models.ErrorAnalysisResult{
		Error: e,
		Analysis: models.Analysis{
			Title:              fmt.Sprintf("%s in %s", e.ErrorClass, e.Transaction),
			Reasoning:          "Analysis incomplete — hit iteration limit",
			RootCause:          "Unknown — analysis did not complete",
			HasFix:             false,
			Confidence:         models.ConfidenceLow,
			SuggestedNextSteps: []string{"Manual investigation required"},
		},
		Iterations:     iteration,
		TokensUsed:     breakdown.Total(),
		APICalls:       apiCalls,
		PassCount:      1,
		TokenBreakdown: &breakdown,
	}, nil
}

// buildRetrySeed condenses a completed pass into seed context for the
// retry, so pass 2 starts from pass 1's findings without the full
// conversation history.
func buildRetrySeed(result models.ErrorAnalysisResult) string {
	parts := []string{
		"## Previous Analysis Attempt (Confidence: LOW)",
		"**Root cause hypothesis**: " + result.Analysis.RootCause,
		"**Reasoning so far**: " + clip(result.Analysis.Reasoning, 500),
	}
	if len(result.Analysis.FileChanges) > 0 {
		changes := result.Analysis.FileChanges
		if len(changes) > 5 {
			changes = changes[:5]
		}
		paths := make([]string, 0, len(changes))
		for _, fc := range changes {
			paths = append(paths, fc.Path)
		}
		parts = append(parts, "**Files examined**: "+strings.Join(paths, ", "))
	}
	if len(result.Analysis.SuggestedNextSteps) > 0 {
		steps := result.Analysis.SuggestedNextSteps
		if len(steps) > 3 {
			steps = steps[:3]
		}
		parts = append(parts, "**Suggested next steps**: "+strings.Join(steps, "; "))
	}
	parts = append(parts,
		"\nThis analysis had LOW confidence. Please investigate more deeply, "+
			"using different search strategies or examining additional code paths.")
	return strings.Join(parts, "\n")
}

// rawAnalysis is the JSON shape the model is asked to emit.
type rawAnalysis struct {
	Title              string              `json:"title"`
	Reasoning          string              `json:"reasoning"`
	RootCause          string              `json:"root_cause"`
	HasFix             bool                `json:"has_fix"`
	Confidence         string              `json:"confidence"`
	FileChanges        []models.FileChange `json:"file_changes"`
	SuggestedNextSteps []string            `json:"suggested_next_steps"`
}

// parseAnalysis extracts the structured verdict from the final response:
// a ```json fence first, then the raw text as JSON. Unparseable responses
// degrade to a low-confidence analysis carrying the raw text.
func parseAnalysis(msg *anthropic.Message) models.Analysis {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseAnalysisText(text.String())
}

// ParseAnalysisText parses a model response body into an Analysis.
func ParseAnalysisText(text string) models.Analysis {
	jsonStr := extractJSONBlock(text)

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return models.Analysis{
			Title:              "Analysis Complete",
			Reasoning:          text,
			RootCause:          "See reasoning",
			HasFix:             false,
			Confidence:         models.ConfidenceLow,
			SuggestedNextSteps: []string{"Review the analysis manually"},
		}
	}

	analysis := models.Analysis{
		Title:              raw.Title,
		Reasoning:          raw.Reasoning,
		RootCause:          raw.RootCause,
		HasFix:             raw.HasFix,
		Confidence:         models.ParseConfidence(raw.Confidence),
		FileChanges:        raw.FileChanges,
		SuggestedNextSteps: raw.SuggestedNextSteps,
	}
	if analysis.Title == "" {
		analysis.Title = "Unknown Error"
	}
	if analysis.Reasoning == "" {
		analysis.Reasoning = text
	}
	for i := range analysis.FileChanges {
		if analysis.FileChanges[i].Action == "" {
			analysis.FileChanges[i].Action = models.FileActionModify
		}
	}
	return analysis
}

// extractJSONBlock returns the contents of a ```json fence if present,
// otherwise the whole text.
func extractJSONBlock(text string) string {
	start := strings.Index(text, "```json")
	if start == -1 {
		return text
	}
	rest := text[start+7:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return text
	}
	return strings.TrimSpace(rest[:end])
}

// compressConversation keeps the first message and the last four, replacing
// the middle with a summary of the tool calls it contained.
func compressConversation(messages []anthropic.MessageParam, logger *slog.Logger) []anthropic.MessageParam {
	if len(messages) <= 6 {
		return messages
	}

	first := messages[0]
	recent := messages[len(messages)-4:]
	middle := messages[1 : len(messages)-4]

	var toolCalls []string
	for _, msg := range middle {
		for _, block := range msg.Content {
			if block.OfToolUse != nil {
				toolCalls = append(toolCalls,
					fmt.Sprintf("- %s: %v", block.OfToolUse.Name, block.OfToolUse.Input))
			}
		}
	}

	summary := fmt.Sprintf("[COMPRESSED — %d messages summarized]\n", len(middle))
	if len(toolCalls) > 0 {
		summary += fmt.Sprintf("Tools used (%d calls):\n", len(toolCalls))
		shown := toolCalls
		if len(shown) > 5 {
			shown = shown[:5]
		}
		summary += strings.Join(shown, "\n")
		if len(toolCalls) > 5 {
			summary += fmt.Sprintf("\n... and %d more", len(toolCalls)-5)
		}
	}

	logger.Info("Compressed conversation", "from", len(messages), "to", 6)

	compressed := make([]anthropic.MessageParam, 0, 6)
	compressed = append(compressed, first, anthropic.NewUserMessage(anthropic.NewTextBlock(summary)))
	compressed = append(compressed, recent...)
	return compressed
}
