package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// TrackingLabel marks every issue this service manages.
const TrackingLabel = "nightwatch"

// Issue is the subset of issue fields the service works with.
type Issue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
}

// ListOpenTracked returns open issues carrying the tracking label.
func (c *Client) ListOpenTracked(ctx context.Context) ([]Issue, error) {
	var issues []Issue
	q := url.Values{
		"state":    {"open"},
		"labels":   {TrackingLabel},
		"per_page": {"100"},
	}
	if err := c.get(ctx, "/repos/"+c.repo+"/issues", q, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// OpenTrackedCount counts open issues with the tracking label. Feeds the
// work-in-progress limit.
func (c *Client) OpenTrackedCount(ctx context.Context) (int, error) {
	issues, err := c.ListOpenTracked(ctx)
	if err != nil {
		return 0, err
	}
	return len(issues), nil
}

// FindExistingIssue looks for an open tracked issue already covering this
// error. Match precedence: title mentioning both error class and
// transaction (or its action suffix) wins outright; class-only beats
// action-only.
func (c *Client) FindExistingIssue(ctx context.Context, errGroup models.ErrorGroup) (*Issue, error) {
	issues, err := c.ListOpenTracked(ctx)
	if err != nil {
		return nil, err
	}

	action := actionName(errGroup.Transaction)
	var good, best *Issue
	for i := range issues {
		issue := &issues[i]
		hasClass := errGroup.ErrorClass != "" && strings.Contains(issue.Title, errGroup.ErrorClass)
		hasTx := errGroup.Transaction != "" && strings.Contains(issue.Title, errGroup.Transaction)
		hasAction := action != "" && strings.Contains(issue.Title, action)

		switch {
		case hasClass && (hasTx || hasAction):
			return issue, nil
		case hasClass && good == nil:
			good = issue
		case (hasTx || hasAction) && best == nil:
			best = issue
		}
	}
	if good != nil {
		return good, nil
	}
	return best, nil
}

// actionName keeps the last two segments of a transaction name, enough to
// recognize "users/show" in an issue title without the controller prefix.
func actionName(transaction string) string {
	parts := strings.Split(transaction, "/")
	if len(parts) <= 2 {
		return transaction
	}
	return strings.Join(parts[len(parts)-2:], "/")
}

// CreateIssue opens a new tracked issue for an analyzed error.
func (c *Client) CreateIssue(ctx context.Context, result models.ErrorAnalysisResult, correlated []models.CorrelatedPR) (*Issue, error) {
	labels := []string{TrackingLabel}
	if result.Analysis.HasFix {
		labels = append(labels, "has-fix")
	} else {
		labels = append(labels, "needs-investigation")
	}
	labels = append(labels, "confidence:"+string(result.Analysis.Confidence))

	body := map[string]any{
		"title":  IssueTitle(result),
		"body":   IssueBody(result, correlated),
		"labels": labels,
	}

	var issue Issue
	if err := c.do(ctx, "POST", "/repos/"+c.repo+"/issues", nil, body, &issue); err != nil {
		return nil, err
	}
	c.logger.Info("Created issue", "number", issue.Number, "title", issue.Title)
	return &issue, nil
}

// AddOccurrenceComment records a new occurrence on an existing issue.
func (c *Client) AddOccurrenceComment(ctx context.Context, issue *Issue, result models.ErrorAnalysisResult) error {
	path := "/repos/" + c.repo + "/issues/" + strconv.Itoa(issue.Number) + "/comments"
	body := map[string]string{"body": OccurrenceComment(result)}
	if err := c.do(ctx, "POST", path, nil, body, nil); err != nil {
		return err
	}
	c.logger.Info("Added occurrence comment", "issue", issue.Number)
	return nil
}

// AddLabels appends labels to an issue.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	path := "/repos/" + c.repo + "/issues/" + strconv.Itoa(number) + "/labels"
	return c.do(ctx, "POST", path, nil, map[string][]string{"labels": labels}, nil)
}

// CreateComment posts a plain comment on an issue or pull request.
func (c *Client) CreateComment(ctx context.Context, number int, comment string) error {
	path := "/repos/" + c.repo + "/issues/" + strconv.Itoa(number) + "/comments"
	return c.do(ctx, "POST", path, nil, map[string]string{"body": comment}, nil)
}

// IssueTitle renders "{class} in {action}: {message}" with the message
// trimmed to its first line and at most 60 characters.
func IssueTitle(result models.ErrorAnalysisResult) string {
	e := result.Error
	msg := e.Message
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	if len(msg) > 60 {
		msg = msg[:57] + "..."
	}
	return fmt.Sprintf("%s in %s: %s", e.ErrorClass, actionName(e.Transaction), msg)
}

// IssueBody renders the full issue body: error details, possible-cause
// PRs, analysis, root cause, proposed fix, and next-step checkboxes.
func IssueBody(result models.ErrorAnalysisResult, correlated []models.CorrelatedPR) string {
	e := result.Error
	a := result.Analysis

	var b strings.Builder
	b.WriteString("## Error Details\n\n")
	fmt.Fprintf(&b, "- **Exception:** `%s`\n", e.ErrorClass)
	fmt.Fprintf(&b, "- **Transaction:** `%s`\n", e.Transaction)
	fmt.Fprintf(&b, "- **Occurrences:** %d\n", e.Occurrences)
	fmt.Fprintf(&b, "- **Message:** %s\n", clipRunes(e.Message, 500))
	fmt.Fprintf(&b, "- **Impact Score:** %.2f\n", e.Score)

	if len(correlated) > 0 {
		b.WriteString("\n## Possibly Caused By\n\n")
		b.WriteString("Recently merged PRs touching related files:\n\n")
		for _, pr := range correlated {
			fmt.Fprintf(&b, "- #%d %s (merged %s)\n", pr.Number, pr.Title, pr.MergedAt)
		}
	}

	if a.Reasoning != "" {
		b.WriteString("\n## Analysis\n\n")
		b.WriteString(clipRunes(a.Reasoning, 3000))
		b.WriteString("\n")
	}
	if a.RootCause != "" {
		b.WriteString("\n## Root Cause\n\n")
		b.WriteString(a.RootCause)
		b.WriteString("\n")
	}
	if a.HasFix && len(a.FileChanges) > 0 {
		b.WriteString("\n## Proposed Fix\n\n")
		for _, fc := range a.FileChanges {
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", fc.Path, fc.Action, fc.Description)
		}
	}
	if len(a.SuggestedNextSteps) > 0 {
		b.WriteString("\n## Next Steps\n\n")
		for _, step := range a.SuggestedNextSteps {
			fmt.Fprintf(&b, "- [ ] %s\n", step)
		}
	}

	fmt.Fprintf(&b, "\n---\n*Filed automatically by NightWatch. Confidence: %s.*\n", a.Confidence)
	return b.String()
}

// OccurrenceComment renders the recurring-error comment body.
func OccurrenceComment(result models.ErrorAnalysisResult) string {
	e := result.Error
	var b strings.Builder
	b.WriteString("## New Occurrence\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Occurrences | %d |\n", e.Occurrences)
	fmt.Fprintf(&b, "| Transaction | `%s` |\n", e.Transaction)
	fmt.Fprintf(&b, "| Message | %s |\n", strings.ReplaceAll(clipRunes(e.Message, 200), "\n", " "))
	fmt.Fprintf(&b, "| Impact Score | %.2f |\n", e.Score)

	if result.Analysis.Reasoning != "" {
		b.WriteString("\n### Quick Analysis\n\n")
		b.WriteString(clipRunes(result.Analysis.Reasoning, 500))
		b.WriteString("\n")
	}
	b.WriteString("\n*Logged by NightWatch*\n")
	return b.String()
}

func clipRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
