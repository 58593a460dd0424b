// Package workflow generalizes NightWatch beyond error triage: each
// workflow fetches items from a source, analyzes them, and takes only the
// output actions it has declared safe.
package workflow

import (
	"context"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// SafeOutput is an output action a workflow may be allowed to take.
type SafeOutput string

const (
	OutputCreateIssue SafeOutput = "create_issue"
	OutputCreatePR    SafeOutput = "create_pr"
	OutputAddComment  SafeOutput = "add_comment"
	OutputAddLabel    SafeOutput = "add_label"
	OutputSendSlack   SafeOutput = "send_slack"
	OutputWriteFile   SafeOutput = "write_file"
)

// Item is a single unit of work for a workflow.
type Item struct {
	ID       string
	Title    string
	RawData  any
	Metadata map[string]string
}

// Analysis is the verdict for one item.
type Analysis struct {
	Item       Item
	Summary    string
	Details    map[string]string
	Transient  bool
	Confidence float64
	TokensUsed int
}

// Action records an output action a workflow took (or would take).
type Action struct {
	Type    SafeOutput
	Target  string
	Details map[string]string
	Success bool
}

// Result is the complete outcome of one workflow run.
type Result struct {
	WorkflowName  string
	ItemsFetched  int
	ItemsAnalyzed int
	Analyses      []Analysis
	Actions       []Action
	Errors        []string
}

// Workflow is one self-contained fetch/filter/analyze/act cycle.
type Workflow interface {
	Name() string
	Description() string
	SafeOutputs() []SafeOutput

	Fetch(ctx context.Context) ([]Item, error)
	Filter(items []Item) []Item
	Analyze(ctx context.Context, items []Item) []Analysis
	Act(ctx context.Context, analyses []Analysis, dryRun bool) []Action
	ReportSection(result Result) []goslack.Block
}

// Base carries the shared safety check embedded by every workflow.
type Base struct {
	name        string
	description string
	safeOutputs []SafeOutput
	logger      *slog.Logger
}

// NewBase creates the shared workflow core.
func NewBase(name, description string, safeOutputs ...SafeOutput) Base {
	return Base{
		name:        name,
		description: description,
		safeOutputs: safeOutputs,
		logger:      slog.Default().With("component", "workflow", "workflow", name),
	}
}

// Name returns the workflow's registry name.
func (b *Base) Name() string { return b.name }

// Description returns the human-readable summary.
func (b *Base) Description() string { return b.description }

// SafeOutputs returns the declared allowed actions.
func (b *Base) SafeOutputs() []SafeOutput { return b.safeOutputs }

// CheckSafeOutput reports whether the action is allowed, logging refusals.
func (b *Base) CheckSafeOutput(action SafeOutput) bool {
	for _, allowed := range b.safeOutputs {
		if allowed == action {
			return true
		}
	}
	b.logger.Warn("Workflow attempted unauthorized action",
		"action", action, "allowed", b.safeOutputs)
	return false
}

// Run drives a workflow through its full cycle.
func Run(ctx context.Context, w Workflow, dryRun bool) Result {
	result := Result{WorkflowName: w.Name()}

	items, err := w.Fetch(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.ItemsFetched = len(items)

	filtered := w.Filter(items)
	result.Analyses = w.Analyze(ctx, filtered)
	result.ItemsAnalyzed = len(result.Analyses)
	result.Actions = w.Act(ctx, result.Analyses, dryRun)
	return result
}
