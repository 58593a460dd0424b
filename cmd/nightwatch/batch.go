package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nightwatchhq/nightwatch/pkg/batch"
	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/newrelic"
	"github.com/nightwatchhq/nightwatch/pkg/runner"
)

// Batch triage runs at half the streaming cost but results arrive
// asynchronously, so submit and collect are separate invocations.
func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Triage errors through the Message Batches API",
	}
	cmd.AddCommand(newBatchSubmitCmd(), newBatchCollectCmd())
	return cmd
}

func newBatchSubmitCmd() *cobra.Command {
	var since string
	var maxErrors int

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a triage batch for recent errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := config.Load()
			if issues := settings.Validate(); len(issues) > 0 {
				return fmt.Errorf("configuration invalid: %s", strings.Join(issues, "; "))
			}
			if since == "" {
				since = settings.Since
			}
			if maxErrors <= 0 {
				maxErrors = settings.MaxErrors
			}

			ctx := cmd.Context()
			deps := runner.BuildDeps(settings)

			allErrors, err := deps.NR.FetchErrors(ctx, since)
			if err != nil {
				return fmt.Errorf("fetch errors: %w", err)
			}
			ignorePatterns, err := config.LoadIgnorePatterns(runner.IgnoreFile)
			if err == nil {
				allErrors = newrelic.FilterErrors(allErrors, ignorePatterns)
			}
			errs := newrelic.RankErrors(allErrors)
			if len(errs) > maxErrors {
				errs = errs[:maxErrors]
			}
			if len(errs) == 0 {
				fmt.Println("No errors to triage.")
				return nil
			}

			traces := make([]models.TraceData, len(errs))
			for i, e := range errs {
				t, err := deps.NR.FetchTraces(ctx, e, since)
				if err == nil {
					traces[i] = t
				}
			}

			analyzer := batch.NewAnalyzer(deps.LLM, filepath.Join(settings.HistoryDir, "batches"))
			batchID, err := analyzer.SubmitBatch(ctx, errs, traces)
			if err != nil {
				return err
			}
			fmt.Printf("Batch %s submitted with %d errors. Collect with:\n", batchID, len(errs))
			fmt.Println("  nightwatch batch collect")
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "lookback period (e.g. 24h, 12h)")
	cmd.Flags().IntVar(&maxErrors, "max-errors", 0, "max errors to triage")
	return cmd
}

func newBatchCollectCmd() *cobra.Command {
	var batchID string
	var maxWait time.Duration

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect triage results for a submitted batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := config.Load()
			deps := runner.BuildDeps(settings)
			analyzer := batch.NewAnalyzer(deps.LLM, filepath.Join(settings.HistoryDir, "batches"))

			if batchID == "" {
				batchID = analyzer.LatestBatchID()
			}
			if batchID == "" {
				return fmt.Errorf("no submitted batch found; run `nightwatch batch submit` first")
			}

			results, err := analyzer.PollResults(cmd.Context(), batchID, 30*time.Second, maxWait)
			if err != nil {
				return err
			}
			if results == nil {
				fmt.Printf("Batch %s still processing. Try again later.\n", batchID)
				return nil
			}

			deep := 0
			for _, r := range results {
				marker := " "
				if r.NeedsDeepInvestigation {
					marker = "*"
					deep++
				}
				fmt.Printf("  %s [%s] %s in %s: %s\n",
					marker, r.Severity, r.Error.ErrorClass, r.Error.Transaction, r.LikelyRootCause)
			}
			fmt.Printf("\n%d of %d errors need deep investigation (*).\n", deep, len(results))
			if deep > 0 {
				fmt.Println("Run `nightwatch run` to analyze them in full.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&batchID, "batch-id", "", "batch to collect (default: most recent)")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 10*time.Minute, "how long to wait for completion")
	return cmd
}
