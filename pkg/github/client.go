// Package github provides the code-host capabilities: repository reading
// tools for the analysis loop, issue and draft PR creation with duplicate
// detection, merged-PR listing, and CI run inspection.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/version"
)

const defaultAPIBase = "https://api.github.com"

// ErrNotFound is returned for missing files, directories, or resources.
var ErrNotFound = errors.New("github: not found")

// Client is a REST client bound to a single repository.
type Client struct {
	httpClient *http.Client
	apiBase    string
	token      string
	repo       string // "owner/name"
	baseBranch string
	files      *Cache
	logger     *slog.Logger
}

// NewClient creates a client for one repository. token may be empty
// (public repos only, lower rate limits).
func NewClient(token, repo, baseBranch string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiBase:    defaultAPIBase,
		token:      token,
		repo:       repo,
		baseBranch: baseBranch,
		files:      NewCache(15 * time.Minute),
		logger:     slog.Default().With("component", "github"),
	}
}

// NewClientWithAPIBase targets a custom API URL. Useful for testing with a
// mock server.
func NewClientWithAPIBase(token, repo, baseBranch, apiBase string) *Client {
	c := NewClient(token, repo, baseBranch)
	c.apiBase = apiBase
	return c
}

// Repo returns the bound "owner/name" repository identifier.
func (c *Client) Repo() string { return c.repo }

// BaseBranch returns the branch reads and PRs are based on.
func (c *Client) BaseBranch() string { return c.baseBranch }

// RepoInfo describes the bound repository. Used by the check command.
type RepoInfo struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// GetRepoInfo fetches repository metadata, verifying token and repo access.
func (c *Client) GetRepoInfo(ctx context.Context) (*RepoInfo, error) {
	var info RepoInfo
	if err := c.get(ctx, "/repos/"+c.repo, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// get issues a GET request against the API and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// do issues a request with an optional JSON body and decodes the response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

// newRequest builds an API request with auth and JSON headers set.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", version.Full())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// send executes a request and decodes the JSON response into out. 404 maps
// to ErrNotFound; other non-2xx statuses become errors carrying the status
// code and a body excerpt.
func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GitHub returned HTTP %d for %s %s: %s", resp.StatusCode, req.Method, req.URL.Path, excerpt)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response for %s %s: %w", req.Method, req.URL.Path, err)
		}
	}
	return nil
}
