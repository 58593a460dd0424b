package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// PullRequest is the subset of PR fields the service works with.
type PullRequest struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	HTMLURL    string `json:"html_url"`
	State      string `json:"state"`
	BranchName string `json:"-"`
}

// CreateFixPR creates a branch off the base branch, commits the proposed
// file changes to it, and opens a draft pull request referencing the issue.
func (c *Client) CreateFixPR(ctx context.Context, result models.ErrorAnalysisResult, issueNumber int) (*PullRequest, error) {
	a := result.Analysis
	if len(a.FileChanges) == 0 {
		return nil, errors.New("no file changes to commit")
	}

	branch := FixBranchName(result.Error.ErrorClass, time.Now())
	if err := c.createBranch(ctx, branch); err != nil {
		return nil, fmt.Errorf("create branch %s: %w", branch, err)
	}

	commitMsg := "fix: " + a.Title
	for _, fc := range a.FileChanges {
		if err := c.commitChange(ctx, branch, commitMsg, fc); err != nil {
			return nil, fmt.Errorf("commit %s: %w", fc.Path, err)
		}
	}

	body := map[string]any{
		"title": "fix: " + a.Title + " [NO-JIRA]",
		"head":  branch,
		"base":  c.baseBranch,
		"body":  PRBody(result, issueNumber),
		"draft": true,
	}
	var pr PullRequest
	if err := c.do(ctx, "POST", "/repos/"+c.repo+"/pulls", nil, body, &pr); err != nil {
		return nil, err
	}
	pr.BranchName = branch
	c.logger.Info("Created draft PR", "number", pr.Number, "branch", branch)
	return &pr, nil
}

// FixBranchName builds "nightwatch/fix-{class}-{timestamp}" using the last
// namespace segment of the error class, lowercased and length-capped.
func FixBranchName(errorClass string, now time.Time) string {
	parts := strings.Split(errorClass, "::")
	safe := parts[len(parts)-1]
	if len(safe) > 30 {
		safe = safe[:30]
	}
	safe = strings.ReplaceAll(strings.ToLower(safe), " ", "-")
	return fmt.Sprintf("nightwatch/fix-%s-%s", safe, now.Format("20060102150405"))
}

// createBranch points a new ref at the tip of the base branch.
func (c *Client) createBranch(ctx context.Context, branch string) error {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.get(ctx, "/repos/"+c.repo+"/git/ref/heads/"+c.baseBranch, nil, &ref); err != nil {
		return fmt.Errorf("resolve base branch %s: %w", c.baseBranch, err)
	}

	body := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": ref.Object.SHA,
	}
	return c.do(ctx, "POST", "/repos/"+c.repo+"/git/refs", nil, body, nil)
}

// commitChange applies one file change on the branch via the contents API.
// A modify of a file that no longer exists degrades to a create.
func (c *Client) commitChange(ctx context.Context, branch, message string, fc models.FileChange) error {
	path := "/repos/" + c.repo + "/contents/" + escapePath(fc.Path)

	if fc.Action == models.FileActionDelete {
		sha, err := c.fileSHA(ctx, fc.Path, branch)
		if err != nil {
			return err
		}
		body := map[string]string{"message": message, "sha": sha, "branch": branch}
		return c.do(ctx, "DELETE", path, nil, body, nil)
	}

	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(fc.Content)),
		"branch":  branch,
	}
	sha, err := c.fileSHA(ctx, fc.Path, branch)
	switch {
	case err == nil:
		body["sha"] = sha
	case errors.Is(err, ErrNotFound):
		// new file
	default:
		return err
	}
	return c.do(ctx, "PUT", path, nil, body, nil)
}

// PRBody renders the draft PR description.
func PRBody(result models.ErrorAnalysisResult, issueNumber int) string {
	a := result.Analysis
	var b strings.Builder
	if issueNumber > 0 {
		fmt.Fprintf(&b, "## Fixes #%d\n\n", issueNumber)
	}
	if a.Reasoning != "" {
		b.WriteString("## Analysis\n\n")
		b.WriteString(clipRunes(a.Reasoning, 2000))
		b.WriteString("\n\n")
	}
	if a.RootCause != "" {
		b.WriteString("## Root Cause\n\n")
		b.WriteString(a.RootCause)
		b.WriteString("\n\n")
	}
	b.WriteString("## Changes\n\n")
	for _, fc := range a.FileChanges {
		fmt.Fprintf(&b, "- `%s` (%s): %s\n", fc.Path, fc.Action, fc.Description)
	}
	fmt.Fprintf(&b, "\n**Confidence:** %s\n", a.Confidence)
	b.WriteString("\n*Draft PR opened automatically by NightWatch. Review before merging.*\n")
	return b.String()
}

// RecentMerged returns PRs merged within the lookback window, newest
// first, capped at 10, each with its changed file paths.
func (c *Client) RecentMerged(ctx context.Context, window time.Duration) ([]models.CorrelatedPR, error) {
	var raw []struct {
		Number   int    `json:"number"`
		Title    string `json:"title"`
		MergedAt string `json:"merged_at"`
	}
	q := url.Values{
		"state":     {"closed"},
		"sort":      {"updated"},
		"direction": {"desc"},
		"per_page":  {"30"},
		"base":      {c.baseBranch},
	}
	if err := c.get(ctx, "/repos/"+c.repo+"/pulls", q, &raw); err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-window)
	var merged []models.CorrelatedPR
	for _, pr := range raw {
		if pr.MergedAt == "" {
			continue
		}
		mergedAt, err := time.Parse(time.RFC3339, pr.MergedAt)
		if err != nil || mergedAt.Before(cutoff) {
			continue
		}
		files, err := c.prChangedFiles(ctx, pr.Number)
		if err != nil {
			c.logger.Warn("Failed to list PR files", "pr", pr.Number, "error", err)
			files = nil
		}
		merged = append(merged, models.CorrelatedPR{
			Number:       pr.Number,
			Title:        pr.Title,
			MergedAt:     pr.MergedAt,
			ChangedFiles: files,
		})
		if len(merged) >= 10 {
			break
		}
	}
	return merged, nil
}

func (c *Client) prChangedFiles(ctx context.Context, number int) ([]string, error) {
	var files []struct {
		Filename string `json:"filename"`
	}
	q := url.Values{"per_page": {"100"}}
	path := "/repos/" + c.repo + "/pulls/" + strconv.Itoa(number) + "/files"
	if err := c.get(ctx, path, q, &files); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Filename)
	}
	return paths, nil
}
