package slack

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

var confidenceEmoji = map[models.Confidence]string{
	models.ConfidenceHigh:   ":large_green_circle:",
	models.ConfidenceMedium: ":large_yellow_circle:",
	models.ConfidenceLow:    ":red_circle:",
}

var patternTypeEmoji = map[models.PatternType]string{
	models.PatternRecurringError: ":repeat:",
	models.PatternSystemicIssue:  ":warning:",
	models.PatternTransientNoise: ":cloud:",
}

// BuildReportBlocks renders the daily summary report as Block Kit blocks.
func BuildReportBlocks(report *models.RunReport) []goslack.Block {
	fields := []*goslack.TextBlockObject{
		mrkdwn(fmt.Sprintf("*Errors Found:* %d groups", report.TotalErrorsFound)),
		mrkdwn(fmt.Sprintf("*Filtered:* %d", report.ErrorsFiltered)),
		mrkdwn(fmt.Sprintf("*Analyzed:* %d", report.ErrorsAnalyzed)),
		mrkdwn(fmt.Sprintf("*Fixes Found:* %d", report.FixesFound())),
	}
	if report.MultiPassRetries > 0 {
		fields = append(fields, mrkdwn(fmt.Sprintf("*Retried:* %d", report.MultiPassRetries)))
	}
	if report.PRValidationFailures > 0 {
		fields = append(fields, mrkdwn(fmt.Sprintf("*PR Gate Fails:* %d", report.PRValidationFailures)))
	}

	blocks := []goslack.Block{
		goslack.NewHeaderBlock(plain("NightWatch Daily Report")),
		goslack.NewSectionBlock(nil, fields, nil),
		goslack.NewDividerBlock(),
	}

	for i, result := range report.Analyses {
		e := result.Error
		a := result.Analysis
		emoji := confidenceEmoji[a.Confidence]
		if emoji == "" {
			emoji = ":white_circle:"
		}
		status := "Needs investigation"
		if a.HasFix {
			status = "Fix found"
		}
		text := fmt.Sprintf("*%d. %s %s*\n`%s` · %d occurrences\n%s\nConfidence: *%s* · %s",
			i+1, emoji, e.ErrorClass,
			e.Transaction, e.Occurrences,
			clip(a.Reasoning, 200),
			strings.ToUpper(string(a.Confidence)), status)
		blocks = append(blocks, section(text))
	}

	if len(report.Patterns) > 0 {
		blocks = append(blocks, goslack.NewDividerBlock(),
			section(fmt.Sprintf(":mag: *Cross-Error Patterns (%d detected)*", len(report.Patterns))))
		shown := report.Patterns
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, p := range shown {
			emoji := patternTypeEmoji[p.PatternType]
			if emoji == "" {
				emoji = ":pushpin:"
			}
			blocks = append(blocks, section(fmt.Sprintf("%s *%s*\n%s\n_%s_",
				emoji, p.Title, clip(p.Description, 200), p.Suggestion)))
		}
	}

	if len(report.IgnoreSuggestions) > 0 {
		shown := report.IgnoreSuggestions
		if len(shown) > 3 {
			shown = shown[:3]
		}
		var lines []string
		for _, s := range shown {
			lines = append(lines, fmt.Sprintf("• `%s` (%s) — %s", s.Pattern, s.Match, s.Reason))
		}
		blocks = append(blocks, goslack.NewDividerBlock(),
			section(fmt.Sprintf(":no_entry_sign: *Ignore Suggestions (%d)*\n%s",
				len(report.IgnoreSuggestions), strings.Join(lines, "\n"))))
	}

	footer := fmt.Sprintf(":stopwatch: %.0fs · %d API calls · %d tokens",
		report.RunDurationSeconds, report.TotalAPICalls, report.TotalTokensUsed)
	blocks = append(blocks, goslack.NewDividerBlock(),
		goslack.NewContextBlock("", mrkdwn(footer)))

	return blocks
}

// BuildFollowupBlocks renders the created issue and PR links.
func BuildFollowupBlocks(issues []models.CreatedIssueResult, pr *models.CreatedPRResult) []goslack.Block {
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(plain("NightWatch: Issues Created")),
	}

	for _, issue := range issues {
		actionText := "Updated"
		if issue.Action == models.IssueActionCreated {
			actionText = "Created"
		}
		blocks = append(blocks, section(fmt.Sprintf("*%s:* <%s|#%d> — `%s` in `%s`",
			actionText, issue.IssueURL, issue.IssueNumber,
			issue.Error.ErrorClass, issue.Error.Transaction)))
	}

	if pr != nil {
		blocks = append(blocks, goslack.NewDividerBlock(),
			section(fmt.Sprintf(":hammer_and_wrench: *Draft PR:* <%s|#%d> — %d files changed",
				pr.PRURL, pr.PRNumber, pr.FilesChanged)))
	}

	return blocks
}

func section(text string) goslack.Block {
	return goslack.NewSectionBlock(mrkdwn(text), nil, nil)
}

func mrkdwn(text string) *goslack.TextBlockObject {
	return goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false)
}

func plain(text string) *goslack.TextBlockObject {
	return goslack.NewTextBlockObject(goslack.PlainTextType, text, false, false)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
