// NightWatch CLI — autonomous production error triage. Run once, analyze
// everything, report, done.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nightwatchhq/nightwatch/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode maps the command error to a process exit code: 130 with an
// "Interrupted." line on cancellation, 1 on any other failure.
func exitCode(err error, w io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "Interrupted.")
		return 130
	default:
		slog.Error("Fatal error", "error", err)
		return 1
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "nightwatch",
		Version:       version.Full(),
		Short:         "Autonomous production error analysis",
		Long:          "NightWatch pulls production errors from New Relic, analyzes each one\nagainst the codebase, and turns the findings into issues, draft PRs,\nand Slack reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show iteration details")

	runCmd := newRunCmd()
	root.AddCommand(runCmd, newCheckCmd(), newBatchCmd())

	// Bare `nightwatch` behaves as `nightwatch run`.
	root.RunE = runCmd.RunE
	root.Flags().AddFlagSet(runCmd.Flags())
	return root
}
