package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/github"
	"github.com/nightwatchhq/nightwatch/pkg/llm"
	"github.com/nightwatchhq/nightwatch/pkg/newrelic"
	"github.com/nightwatchhq/nightwatch/pkg/slack"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate config and API connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ok := color.New(color.FgGreen).Sprint("✓")
			fail := color.New(color.FgRed).Sprint("✗")
			warn := color.New(color.FgYellow).Sprint("!")

			fmt.Println("NightWatch config check")
			fmt.Println()

			settings := config.Load()
			if issues := settings.Validate(); len(issues) > 0 {
				for _, issue := range issues {
					fmt.Printf("  %s Config: %s\n", fail, issue)
				}
				return fmt.Errorf("configuration invalid")
			}
			fmt.Printf("  %s Config loaded\n", ok)

			// Check all services concurrently, then print in a stable order.
			lines := make([]string, 4)
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				nr := newrelic.NewClient(settings.NewRelicAPIKey, settings.NewRelicAccountID, settings.NewRelicAppName)
				rows, err := nr.QueryNRQL(gctx, "SELECT count(*) FROM TransactionError SINCE 1 hour ago")
				if err != nil {
					lines[0] = fmt.Sprintf("  %s New Relic: %v", fail, err)
					return nil
				}
				count := 0
				if len(rows) > 0 {
					if n, isFloat := rows[0]["count"].(float64); isFloat {
						count = int(n)
					}
				}
				lines[0] = fmt.Sprintf("  %s New Relic: %d errors in last hour", ok, count)
				return nil
			})

			g.Go(func() error {
				gh := github.NewClient(settings.GitHubToken, settings.GitHubRepo, settings.GitHubBaseBranch)
				info, err := gh.GetRepoInfo(gctx)
				if err != nil {
					lines[1] = fmt.Sprintf("  %s GitHub: %v", fail, err)
					return nil
				}
				lines[1] = fmt.Sprintf("  %s GitHub: %s (%s)", ok, info.FullName, info.DefaultBranch)
				return nil
			})

			g.Go(func() error {
				if settings.SlackBotToken == "" {
					lines[2] = fmt.Sprintf("  %s Slack: SLACK_BOT_TOKEN not set, reporting disabled", warn)
					return nil
				}
				sc := slack.NewClient(settings.SlackBotToken, settings.SlackNotifyUser)
				if uid := sc.LookupUser(gctx, settings.SlackNotifyUser); uid != "" {
					lines[2] = fmt.Sprintf("  %s Slack: user %q found (%s)", ok, settings.SlackNotifyUser, uid)
				} else {
					lines[2] = fmt.Sprintf("  %s Slack: user %q not found", warn, settings.SlackNotifyUser)
				}
				return nil
			})

			g.Go(func() error {
				claude := llm.NewClient(settings.AnthropicAPIKey, settings.Model)
				if err := claude.Ping(gctx); err != nil {
					lines[3] = fmt.Sprintf("  %s Claude: %v", fail, err)
					return nil
				}
				lines[3] = fmt.Sprintf("  %s Claude: %s", ok, settings.Model)
				return nil
			})

			_ = g.Wait()
			for _, line := range lines {
				fmt.Println(line)
			}

			fmt.Println()
			fmt.Println("Done.")
			return nil
		},
	}
}
