package main

import (
	"context"
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/nightwatchhq/nightwatch/pkg/cleanup"
	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/pipeline"
	"github.com/nightwatchhq/nightwatch/pkg/runner"
	"github.com/nightwatchhq/nightwatch/pkg/workflow"
)

func newRunCmd() *cobra.Command {
	var opts runner.Options
	var workflows, guardrailsOutput string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze production errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := config.Load()
			if opts.Model != "" {
				settings.Model = opts.Model
			}
			if workflows != "" {
				settings.Workflows = workflows
			}
			if guardrailsOutput != "" {
				settings.GuardrailsOutput = guardrailsOutput
			}
			if issues := settings.Validate(); len(issues) > 0 {
				return fmt.Errorf("configuration invalid: %s", strings.Join(issues, "; "))
			}

			ctx := cmd.Context()
			deps := runner.BuildDeps(settings)

			cleanup.NewService(cleanup.Config{HistoryDir: settings.HistoryDir}).Run(ctx)

			var report *models.RunReport
			var err error
			if settings.PipelineV2 {
				report, err = pipeline.New(settings, deps).Execute(ctx, opts)
			} else {
				report, err = runner.NewWithDeps(settings, deps).Run(ctx, opts)
			}
			if err != nil {
				return err
			}

			runAuxWorkflows(ctx, settings, deps, report, opts.DryRun)

			if opts.DryRun {
				printDryRunSummary(report)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Since, "since", "", "lookback period (e.g. 24h, 12h)")
	f.IntVar(&opts.MaxErrors, "max-errors", 0, "max errors to analyze")
	f.IntVar(&opts.MaxIssues, "max-issues", 0, "max GitHub issues to create")
	f.BoolVar(&opts.DryRun, "dry-run", false, "analyze only, no issues/PRs/Slack")
	f.StringVar(&opts.Model, "model", "", "override Claude model")
	f.StringVar(&opts.AgentName, "agent", "base-analyzer", "agent config name")
	f.StringVar(&workflows, "workflows", "", "comma-separated workflow names (default: errors)")
	f.StringVar(&guardrailsOutput, "guardrails-output", "", "path to write guardrails.md")
	return cmd
}

// runAuxWorkflows executes the enabled workflows beyond the core errors
// pipeline (patterns, ci_doctor) and DMs their report sections.
func runAuxWorkflows(ctx context.Context, settings *config.Settings, deps runner.Deps, report *models.RunReport, dryRun bool) {
	registry := workflow.NewRegistry()
	registry.Register("errors", func() workflow.Workflow {
		errs := make([]models.ErrorGroup, len(report.Analyses))
		for i, a := range report.Analyses {
			errs[i] = a.Error
		}
		return workflow.NewErrorAnalysisWorkflow(errs, report.Analyses, settings.MaxErrors)
	})
	registry.Register("patterns", func() workflow.Workflow {
		return workflow.NewPatternAnalysisWorkflow(deps.History, 3)
	})
	registry.Register("ci_doctor", func() workflow.Workflow {
		return workflow.NewCIDoctorWorkflow(deps.GH)
	})

	var blocks []goslack.Block
	for _, w := range registry.Enabled(settings.WorkflowNames()) {
		if w.Name() == "errors" {
			// The core pipeline already ran and reported this one.
			continue
		}
		result := workflow.Run(ctx, w, dryRun)
		blocks = append(blocks, w.ReportSection(result)...)
	}
	if len(blocks) > 0 && deps.Slack != nil && !dryRun {
		deps.Slack.SendBlocks(ctx, "NightWatch workflow report", blocks)
	}
}

func printDryRunSummary(report *models.RunReport) {
	line := strings.Repeat("=", 60)
	fmt.Println()
	fmt.Println(line)
	fmt.Println("  NightWatch Dry Run Summary")
	fmt.Println(line)
	fmt.Printf("  Errors found:    %d\n", report.TotalErrorsFound)
	fmt.Printf("  Errors filtered: %d\n", report.ErrorsFiltered)
	fmt.Printf("  Errors analyzed: %d\n", report.ErrorsAnalyzed)
	fmt.Printf("  Fixes found:     %d\n", report.FixesFound())
	fmt.Printf("  High confidence: %d\n", report.HighConfidence())
	fmt.Printf("  Tokens used:     %d\n", report.TotalTokensUsed)
	fmt.Printf("  API calls:       %d\n", report.TotalAPICalls)
	fmt.Printf("  Duration:        %.1fs\n", report.RunDurationSeconds)
	if report.MultiPassRetries > 0 {
		fmt.Printf("  Multi-pass:      %d retries\n", report.MultiPassRetries)
	}
	if report.PRValidationFailures > 0 {
		fmt.Printf("  PR gate fails:   %d\n", report.PRValidationFailures)
	}
	fmt.Println(line)
}
