// Package health tracks NightWatch's own operational metrics during a run
// and derives an overall status from them.
package health

import (
	"fmt"
	"math"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatchhq/nightwatch/pkg/config"
)

// Status is the overall health verdict for a run.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var statusEmoji = map[Status]string{
	StatusHealthy:   "✅",
	StatusWarning:   "⚠️",
	StatusDegraded:  "🟡",
	StatusUnhealthy: "🔴",
}

// Report accumulates self-health metrics over one run.
type Report struct {
	startTime time.Time
	now       func() time.Time

	ErrorsAttempted int
	ErrorsAnalyzed  int
	ErrorsFailed    int
	IssuesCreated   int
	PRsCreated      int
	TotalTokens     int

	APIErrors    []string
	Warnings     []string
	ConfigIssues []string
}

// NewReport starts a health report. The clock starts now.
func NewReport() *Report {
	r := &Report{now: time.Now}
	r.startTime = r.now()
	return r
}

// CheckConfiguration records missing credentials. Missing required keys
// become config issues; a missing Slack token is only a warning.
func (r *Report) CheckConfiguration(settings *config.Settings) {
	if settings.AnthropicAPIKey == "" {
		r.ConfigIssues = append(r.ConfigIssues, "ANTHROPIC_API_KEY not set")
	}
	if settings.GitHubToken == "" {
		r.ConfigIssues = append(r.ConfigIssues, "GITHUB_TOKEN not set")
	}
	if settings.NewRelicAPIKey == "" {
		r.ConfigIssues = append(r.ConfigIssues, "NEW_RELIC_API_KEY not set")
	}
	if settings.SlackBotToken == "" {
		r.Warnings = append(r.Warnings, "SLACK_BOT_TOKEN not set — Slack reporting disabled")
	}
}

// RecordAnalysis records one analysis attempt.
func (r *Report) RecordAnalysis(success bool, tokensUsed int, errMsg string) {
	r.ErrorsAttempted++
	if success {
		r.ErrorsAnalyzed++
	} else {
		r.ErrorsFailed++
		if errMsg != "" {
			r.APIErrors = append(r.APIErrors, errMsg)
		}
	}
	r.TotalTokens += tokensUsed
}

// RecordIssue records a successful issue creation.
func (r *Report) RecordIssue() { r.IssuesCreated++ }

// RecordPR records a successful PR creation.
func (r *Report) RecordPR() { r.PRsCreated++ }

// EstimateCost estimates API spend in USD assuming Sonnet pricing with a
// 70/30 input/output token split.
func (r *Report) EstimateCost() float64 {
	input := float64(r.TotalTokens) * 0.7
	output := float64(r.TotalTokens) * 0.3
	cost := input*3.0/1_000_000 + output*15.0/1_000_000
	return math.Round(cost*10000) / 10000
}

// ComputeStatus derives the overall verdict. Config issues dominate, then
// a failure majority, then any warnings.
func (r *Report) ComputeStatus() Status {
	switch {
	case len(r.ConfigIssues) > 0:
		return StatusDegraded
	case r.ErrorsFailed > r.ErrorsAnalyzed:
		return StatusUnhealthy
	case len(r.Warnings) > 0:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// SuccessRate is the analyzed/attempted percentage, 0 when nothing ran.
func (r *Report) SuccessRate() float64 {
	if r.ErrorsAttempted == 0 {
		return 0
	}
	rate := float64(r.ErrorsAnalyzed) / float64(r.ErrorsAttempted) * 100
	return math.Round(rate*10) / 10
}

// AvgTokensPerError is the mean token spend per successful analysis.
func (r *Report) AvgTokensPerError() int {
	if r.ErrorsAnalyzed == 0 {
		return 0
	}
	return int(math.Round(float64(r.TotalTokens) / float64(r.ErrorsAnalyzed)))
}

// Duration is the elapsed wall-clock time since the report started.
func (r *Report) Duration() time.Duration {
	return r.now().Sub(r.startTime)
}

// RecentAPIErrors returns the last five recorded API errors.
func (r *Report) RecentAPIErrors() []string {
	if len(r.APIErrors) <= 5 {
		return r.APIErrors
	}
	return r.APIErrors[len(r.APIErrors)-5:]
}

// FormatSlackBlocks renders the health report as Block Kit blocks.
func (r *Report) FormatSlackBlocks() []goslack.Block {
	status := r.ComputeStatus()
	emoji := statusEmoji[status]
	if emoji == "" {
		emoji = "❓"
	}

	header := fmt.Sprintf("%s *NightWatch Health Report*\nStatus: %s | Duration: %.1fs | Cost: $%.4f",
		emoji, status, r.Duration().Seconds(), r.EstimateCost())
	body := fmt.Sprintf("*Analysis*: %d/%d (%.1f%% success)\n*Actions*: %d issues, %d PRs\n*Tokens*: %d (avg %d/error)",
		r.ErrorsAnalyzed, r.ErrorsAttempted, r.SuccessRate(),
		r.IssuesCreated, r.PRsCreated,
		r.TotalTokens, r.AvgTokensPerError())

	blocks := []goslack.Block{
		section(header),
		section(body),
	}
	if len(r.ConfigIssues) > 0 {
		text := "*Config Issues*: "
		for i, issue := range r.ConfigIssues {
			if i > 0 {
				text += ", "
			}
			text += issue
		}
		blocks = append(blocks, section(text))
	}
	return blocks
}

func section(text string) goslack.Block {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)
}
