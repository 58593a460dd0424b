package github

import (
	"context"
	"net/url"
	"strconv"
)

// WorkflowRun is one GitHub Actions run.
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	RunNumber  int    `json:"run_number"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
	Conclusion string `json:"conclusion"`
	CreatedAt  string `json:"created_at"`
	HTMLURL    string `json:"html_url"`
}

// ListFailedRuns returns the most recent failed Actions runs, newest first.
func (c *Client) ListFailedRuns(ctx context.Context, limit int) ([]WorkflowRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var resp struct {
		WorkflowRuns []WorkflowRun `json:"workflow_runs"`
	}
	q := url.Values{
		"status":   {"failure"},
		"per_page": {strconv.Itoa(limit)},
	}
	if err := c.get(ctx, "/repos/"+c.repo+"/actions/runs", q, &resp); err != nil {
		return nil, err
	}
	return resp.WorkflowRuns, nil
}

// RunJobSummary concatenates the names of failed steps of a run's jobs.
// Job logs need a separate download token, so step names are the cheap
// diagnostic signal available over plain REST.
func (c *Client) RunJobSummary(ctx context.Context, runID int64) (string, error) {
	var resp struct {
		Jobs []struct {
			Name       string `json:"name"`
			Conclusion string `json:"conclusion"`
			Steps      []struct {
				Name       string `json:"name"`
				Conclusion string `json:"conclusion"`
			} `json:"steps"`
		} `json:"jobs"`
	}
	path := "/repos/" + c.repo + "/actions/runs/" + strconv.FormatInt(runID, 10) + "/jobs"
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return "", err
	}

	summary := ""
	for _, job := range resp.Jobs {
		if job.Conclusion != "failure" {
			continue
		}
		summary += job.Name + "\n"
		for _, step := range job.Steps {
			if step.Conclusion == "failure" {
				summary += "  failed step: " + step.Name + "\n"
			}
		}
	}
	return summary, nil
}
