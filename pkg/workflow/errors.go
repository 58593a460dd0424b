package workflow

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// ErrorAnalysisWorkflow presents the main error triage pipeline as a
// workflow. The runner does the heavy lifting; this adapter exposes its
// inputs and outcomes through the workflow reporting surface.
type ErrorAnalysisWorkflow struct {
	Base
	errors    []models.ErrorGroup
	analyses  []models.ErrorAnalysisResult
	maxErrors int
}

// NewErrorAnalysisWorkflow wraps an already-executed triage run.
func NewErrorAnalysisWorkflow(errors []models.ErrorGroup, analyses []models.ErrorAnalysisResult, maxErrors int) *ErrorAnalysisWorkflow {
	return &ErrorAnalysisWorkflow{
		Base: NewBase("errors",
			"Analyze production errors from New Relic and create GitHub issues/PRs",
			OutputCreateIssue, OutputCreatePR, OutputSendSlack),
		errors:    errors,
		analyses:  analyses,
		maxErrors: maxErrors,
	}
}

func (w *ErrorAnalysisWorkflow) Fetch(context.Context) ([]Item, error) {
	items := make([]Item, len(w.errors))
	for i, e := range w.errors {
		items[i] = Item{
			ID:      fmt.Sprintf("%d", i),
			Title:   fmt.Sprintf("%s in %s", e.ErrorClass, e.Transaction),
			RawData: e,
		}
	}
	return items, nil
}

func (w *ErrorAnalysisWorkflow) Filter(items []Item) []Item {
	if w.maxErrors > 0 && len(items) > w.maxErrors {
		return items[:w.maxErrors]
	}
	return items
}

func (w *ErrorAnalysisWorkflow) Analyze(_ context.Context, items []Item) []Analysis {
	var analyses []Analysis
	for i, item := range items {
		if i >= len(w.analyses) {
			break
		}
		a := w.analyses[i]
		analyses = append(analyses, Analysis{
			Item:       item,
			Summary:    a.Analysis.RootCause,
			Confidence: a.Analysis.Confidence.Float(),
			TokensUsed: a.TokensUsed,
		})
	}
	return analyses
}

func (w *ErrorAnalysisWorkflow) Act(_ context.Context, _ []Analysis, dryRun bool) []Action {
	// Issue and PR creation happen in the runner; nothing to re-run here.
	return nil
}

func (w *ErrorAnalysisWorkflow) ReportSection(result Result) []goslack.Block {
	blocks := []goslack.Block{
		section(fmt.Sprintf("*Error Analysis* — %d errors analyzed", result.ItemsAnalyzed)),
	}
	shown := result.Analyses
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, a := range shown {
		blocks = append(blocks, section(fmt.Sprintf("• %s: %s", a.Item.Title, clip(a.Summary, 100))))
	}
	return blocks
}

func section(text string) goslack.Block {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
