package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nightwatchhq/nightwatch/pkg/github"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// RepoReader is the slice of the GitHub client the analysis tools need.
type RepoReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
	SearchCode(ctx context.Context, query, extension string) ([]github.SearchHit, error)
	ListDirectory(ctx context.Context, path string) ([]github.DirEntry, error)
}

// executeTools runs every tool_use block of a response and returns the
// tool results as the next user turn. Tool failures become is_error
// results so the model can route around them.
func (a *Analyzer) executeTools(ctx context.Context, msg *anthropic.Message, e models.ErrorGroup, traces models.TraceData) []anthropic.ContentBlockParamUnion {
	var results []anthropic.ContentBlockParamUnion

	for _, block := range msg.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}

		raw := toolUse.JSON.Input.Raw()
		a.logger.Info("Tool call", "tool", toolUse.Name, "input", clip(raw, 120))

		result, err := a.executeSingleTool(ctx, toolUse.Name, []byte(raw), e, traces)
		if err != nil {
			a.logger.Error("Tool failed", "tool", toolUse.Name, "error", err)
			results = append(results, anthropic.NewToolResultBlock(toolUse.ID, "Error: "+err.Error(), true))
			continue
		}
		results = append(results, anthropic.NewToolResultBlock(toolUse.ID, result, false))
	}
	return results
}

func (a *Analyzer) executeSingleTool(ctx context.Context, name string, input []byte, e models.ErrorGroup, traces models.TraceData) (string, error) {
	limit, ok := toolResultLimits[name]
	if !ok {
		limit = 8000
	}

	switch name {
	case ToolReadFile:
		var args struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("bad read_file input: %w", err)
		}
		content, err := a.repo.ReadFile(ctx, args.Path)
		if errors.Is(err, github.ErrNotFound) {
			return "File not found: " + args.Path, nil
		}
		if err != nil {
			return "", err
		}
		return truncateToolResult(content, limit), nil

	case ToolSearchCode:
		var args struct {
			Query         string `json:"query"`
			FileExtension string `json:"file_extension"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("bad search_code input: %w", err)
		}
		hits, err := a.repo.SearchCode(ctx, args.Query, args.FileExtension)
		if err != nil {
			return "", err
		}
		if len(hits) == 0 {
			return "No matches found", nil
		}
		encoded, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return "", err
		}
		return truncateToolResult(string(encoded), limit), nil

	case ToolListDirectory:
		var args struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("bad list_directory input: %w", err)
		}
		entries, err := a.repo.ListDirectory(ctx, args.Path)
		if errors.Is(err, github.ErrNotFound) {
			return "Directory not found: " + args.Path, nil
		}
		if err != nil {
			return "", err
		}
		encoded, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return "", err
		}
		return truncateToolResult(string(encoded), limit), nil

	case ToolGetErrorTraces:
		payload := map[string]any{
			"transaction_errors": traces.TransactionErrors,
			"error_traces":       traces.ErrorTraces,
		}
		encoded, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", err
		}
		return truncateToolResult(string(encoded), limit), nil

	default:
		return "Unknown tool: " + name, nil
	}
}
