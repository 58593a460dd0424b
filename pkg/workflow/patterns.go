package workflow

import (
	"context"
	"fmt"
	"sort"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatchhq/nightwatch/pkg/history"
)

// PatternAnalysisWorkflow detects error classes that keep coming back
// across the accumulated run history.
type PatternAnalysisWorkflow struct {
	Base
	history        *history.Recorder
	minOccurrences int
}

// NewPatternAnalysisWorkflow creates the pattern workflow over the given
// run history. minOccurrences below 1 defaults to 3.
func NewPatternAnalysisWorkflow(recorder *history.Recorder, minOccurrences int) *PatternAnalysisWorkflow {
	if minOccurrences < 1 {
		minOccurrences = 3
	}
	return &PatternAnalysisWorkflow{
		Base: NewBase("patterns",
			"Detect recurring error patterns across NightWatch run history",
			OutputCreateIssue, OutputSendSlack),
		history:        recorder,
		minOccurrences: minOccurrences,
	}
}

func (w *PatternAnalysisWorkflow) Fetch(context.Context) ([]Item, error) {
	runs := w.history.LoadHistory(30, 100)
	if len(runs) == 0 {
		return nil, nil
	}

	counts := make(map[string]int)
	for _, run := range runs {
		for _, e := range run.ErrorsAnalyzed {
			class := e.ErrorClass
			if class == "" {
				class = "Unknown"
			}
			counts[class]++
		}
	}

	type classCount struct {
		class string
		count int
	}
	ranked := make([]classCount, 0, len(counts))
	for class, count := range counts {
		ranked = append(ranked, classCount{class, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].class < ranked[j].class
	})
	if len(ranked) > 20 {
		ranked = ranked[:20]
	}

	items := make([]Item, len(ranked))
	for i, cc := range ranked {
		items[i] = Item{
			ID:       cc.class,
			Title:    fmt.Sprintf("%s (%d occurrences)", cc.class, cc.count),
			Metadata: map[string]string{"count": fmt.Sprintf("%d", cc.count), "error_class": cc.class},
		}
	}
	return items, nil
}

func (w *PatternAnalysisWorkflow) Filter(items []Item) []Item {
	var out []Item
	for _, item := range items {
		if metaInt(item, "count") >= w.minOccurrences {
			out = append(out, item)
		}
	}
	return out
}

func (w *PatternAnalysisWorkflow) Analyze(_ context.Context, items []Item) []Analysis {
	var analyses []Analysis
	for _, item := range items {
		count := metaInt(item, "count")
		severity := "medium"
		switch {
		case count >= 10:
			severity = "critical"
		case count >= 5:
			severity = "high"
		}

		confidence := 0.5 + float64(count)*0.05
		if confidence > 0.95 {
			confidence = 0.95
		}
		analyses = append(analyses, Analysis{
			Item:    item,
			Summary: fmt.Sprintf("Recurring %s (%d occurrences)", item.Metadata["error_class"], count),
			Details: map[string]string{
				"severity":    severity,
				"error_class": item.Metadata["error_class"],
			},
			Confidence: confidence,
		})
	}
	return analyses
}

func (w *PatternAnalysisWorkflow) Act(_ context.Context, analyses []Analysis, dryRun bool) []Action {
	var actions []Action
	for _, a := range analyses {
		if a.Confidence > 0.6 && w.CheckSafeOutput(OutputCreateIssue) {
			actions = append(actions, Action{
				Type:   OutputCreateIssue,
				Target: "Pattern: " + a.Details["error_class"],
				Details: map[string]string{
					"severity": a.Details["severity"],
				},
				Success: !dryRun,
			})
		}
	}
	return actions
}

var severityEmoji = map[string]string{
	"critical": "🔴",
	"high":     "🟠",
	"medium":   "🟡",
	"low":      "🟢",
}

func (w *PatternAnalysisWorkflow) ReportSection(result Result) []goslack.Block {
	if len(result.Analyses) == 0 {
		return nil
	}
	blocks := []goslack.Block{
		section(fmt.Sprintf("*Pattern Analysis* — %d systemic patterns detected", len(result.Analyses))),
	}
	shown := result.Analyses
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, a := range shown {
		emoji := severityEmoji[a.Details["severity"]]
		if emoji == "" {
			emoji = "⚪"
		}
		blocks = append(blocks, section(fmt.Sprintf("%s %s (confidence: %.0f%%)",
			emoji, a.Summary, a.Confidence*100)))
	}
	return blocks
}

func metaInt(item Item, key string) int {
	n := 0
	fmt.Sscanf(item.Metadata[key], "%d", &n)
	return n
}
