package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ReadFile fetches one file from the base branch. Results are cached for
// the lifetime of a run since the analysis loop re-reads files often.
// Returns ErrNotFound when the path does not exist.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if content, ok := c.files.Get(path); ok {
		return content, nil
	}

	var resp struct {
		Type     string `json:"type"`
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
		SHA      string `json:"sha"`
	}
	q := url.Values{"ref": {c.baseBranch}}
	if err := c.get(ctx, "/repos/"+c.repo+"/contents/"+escapePath(path), q, &resp); err != nil {
		return "", err
	}
	if resp.Type != "" && resp.Type != "file" {
		return "", fmt.Errorf("%s is a %s, not a file", path, resp.Type)
	}

	content := resp.Content
	if resp.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decode content of %s: %w", path, err)
		}
		content = string(decoded)
	}

	c.files.Set(path, content)
	return content, nil
}

// fileSHA returns the blob SHA of path on the given branch, or "" with
// ErrNotFound when the file does not exist there.
func (c *Client) fileSHA(ctx context.Context, path, branch string) (string, error) {
	var resp struct {
		SHA string `json:"sha"`
	}
	q := url.Values{"ref": {branch}}
	if err := c.get(ctx, "/repos/"+c.repo+"/contents/"+escapePath(path), q, &resp); err != nil {
		return "", err
	}
	return resp.SHA, nil
}

// SearchHit is one code search result with its matched fragments.
type SearchHit struct {
	Path      string
	Fragments []string
}

// SearchCode searches the repository for query, optionally restricted to a
// file extension, returning up to 20 hits with matched text fragments.
func (c *Client) SearchCode(ctx context.Context, query, extension string) ([]SearchHit, error) {
	q := query + " repo:" + c.repo
	if extension != "" {
		q += " extension:" + strings.TrimPrefix(extension, ".")
	}

	req, err := c.newRequest(ctx, "GET", "/search/code", url.Values{
		"q":        {q},
		"per_page": {"20"},
	}, nil)
	if err != nil {
		return nil, err
	}
	// text-match media type adds matched fragments to each result
	req.Header.Set("Accept", "application/vnd.github.text-match+json")

	var resp struct {
		Items []struct {
			Path        string `json:"path"`
			TextMatches []struct {
				Fragment string `json:"fragment"`
			} `json:"text_matches"`
		} `json:"items"`
	}
	if err := c.send(req, &resp); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(resp.Items))
	for _, item := range resp.Items {
		hit := SearchHit{Path: item.Path}
		for _, m := range item.TextMatches {
			hit.Fragments = append(hit.Fragments, m.Fragment)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DirEntry is one entry of a repository directory listing.
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "file" or "dir"
	Size int    `json:"size"`
}

// ListDirectory lists the entries of a directory on the base branch.
// Returns ErrNotFound for missing paths.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]DirEntry, error) {
	path = strings.Trim(path, "/")
	endpoint := "/repos/" + c.repo + "/contents"
	if path != "" {
		endpoint += "/" + escapePath(path)
	}

	req, err := c.newRequest(ctx, "GET", endpoint, url.Values{"ref": {c.baseBranch}}, nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.send(req, &raw); err != nil {
		return nil, err
	}

	var entries []DirEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		// A single object means the path is a file, not a directory.
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return entries, nil
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
