package analyzer

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// SystemPrompt instructs the model to investigate Rails errors against the
// real codebase instead of guessing.
const SystemPrompt = `You are NightWatch, an AI agent that analyzes Ruby on Rails production errors.

Given error data from New Relic, you MUST:
1. Search and read the actual codebase using your tools
2. Identify the root cause from source code
3. Propose a concrete fix if possible

MANDATORY: Always use search_code and read_file to examine the actual code. Never guess.

Investigation steps:
1. Extract controller/action from transactionName
   (e.g. "Controller/products/show" → search for "ProductsController")
2. search_code to find the file
3. read_file to examine it
4. Search for related models, services, concerns
5. Read files referenced in error messages

If one search fails, try variations: action name, error class, keywords from the message.

The codebase is a Ruby on Rails application:
- Controllers: app/controllers/**/*_controller.rb
- Models: app/models/**/*.rb
- Services: app/services/**/*.rb
- Jobs: app/jobs/**/*.rb
- Concerns: app/controllers/concerns/*.rb, app/models/concerns/*.rb

Understanding New Relic trace data:
- transaction_errors[].error.class: Ruby exception class
- transaction_errors[].error.message: Error message with details
- transaction_errors[].transactionName: Rails controller/action (KEY — use to find code)
- transaction_errors[].path: HTTP path
- error_traces[]: Detailed traces with stack traces and fingerprints`

// Tool names exposed to the model.
const (
	ToolReadFile       = "read_file"
	ToolSearchCode     = "search_code"
	ToolListDirectory  = "list_directory"
	ToolGetErrorTraces = "get_error_traces"
)

// Tools returns the tool definitions for the analysis loop.
func Tools() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        ToolReadFile,
				Description: anthropic.String("Read a file from the GitHub repository. Use this to examine source code."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "File path relative to repo root (e.g. 'app/models/user.rb')",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        ToolSearchCode,
				Description: anthropic.String("Search for code patterns in the repository. Returns file paths and matched lines."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Search query — method name, class name, error message, etc.",
						},
						"file_extension": map[string]any{
							"type":        "string",
							"description": "Optional file extension filter (e.g. 'rb', 'erb')",
						},
					},
					Required: []string{"query"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        ToolListDirectory,
				Description: anthropic.String("List files and subdirectories in a directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "Directory path relative to repo root (e.g. 'app/models')",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        ToolGetErrorTraces,
				Description: anthropic.String("Fetch additional error traces from New Relic for the current error."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]any{
						"limit": map[string]any{
							"type":        "integer",
							"description": "Number of trace samples to fetch (default 5)",
						},
					},
				},
			},
		},
	}
}

// BuildAnalysisPrompt assembles the initial user message: error details,
// trace summary, then optional prior knowledge and pre-fetched research.
func BuildAnalysisPrompt(e models.ErrorGroup, traceSummary string, prior []models.PriorAnalysis, research *models.ResearchContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Analyze this production error and propose a fix:

## Error Information
- **Exception Class**: `+"`%s`"+`
- **Transaction**: `+"`%s`"+`
- **Message**: `+"`%s`"+`
- **Occurrences**: %d

## Trace Data
%s

**Instructions**: The `+"`transactionName`"+` tells you which controller/action is failing. Use search_code to find the relevant code, then read_file to examine it. Search for related models and services.`,
		e.ErrorClass, e.Transaction, clip(e.Message, 500), e.Occurrences, traceSummary)

	if len(prior) > 0 {
		b.WriteString("\n\n## Prior Knowledge\n\n")
		b.WriteString("NightWatch has analyzed similar errors before. " +
			"Use this as context but verify independently — " +
			"the root cause may differ this time.\n\n")
		for i, p := range prior {
			fmt.Fprintf(&b, "### Prior Analysis #%d (match: %.0f%%)\n", i+1, p.MatchScore*100)
			fmt.Fprintf(&b, "- **Error**: `%s` in `%s`\n", p.ErrorClass, p.Transaction)
			fmt.Fprintf(&b, "- **Root cause**: %s\n", p.RootCause)
			fmt.Fprintf(&b, "- **Confidence**: %s\n", p.FixConfidence)
			fmt.Fprintf(&b, "- **Had fix**: %s\n", yesNo(p.HasFix))
			fmt.Fprintf(&b, "- **Summary**: %s\n\n", p.Summary)
		}
	}

	if research != nil {
		if len(research.FilePreviews) > 0 {
			b.WriteString("\n\n## Pre-Fetched Source Files\n\n")
			b.WriteString("These files were identified as likely relevant based on the " +
				"transaction name and stack traces. You can read_file for full " +
				"content or search_code for related files.\n\n")
			for _, path := range research.LikelyFiles {
				content, ok := research.FilePreviews[path]
				if !ok {
					continue
				}
				fmt.Fprintf(&b, "### `%s` (first 100 lines)\n```ruby\n%s\n```\n\n", path, content)
			}
		}
		if len(research.CorrelatedPRs) > 0 {
			b.WriteString("\n\n## Recently Merged PRs (Possible Cause)\n\n")
			prs := research.CorrelatedPRs
			if len(prs) > 3 {
				prs = prs[:3]
			}
			for _, pr := range prs {
				changed := "N/A"
				if len(pr.ChangedFiles) > 0 {
					files := pr.ChangedFiles
					if len(files) > 5 {
						files = files[:5]
					}
					changed = strings.Join(files, ", ")
				}
				fmt.Fprintf(&b, "- **PR #%d**: %s (merged %s, overlap: %.0f%%)\n  Changed: %s\n",
					pr.Number, pr.Title, pr.MergedAt, pr.OverlapScore*100, changed)
			}
		}
	}

	return b.String()
}

// SummarizeTraces renders trace data as a compact prompt section: the
// first few transaction errors and stack traces, with long fields clipped.
func SummarizeTraces(traces models.TraceData, maxErrors int) string {
	var parts []string

	if len(traces.TransactionErrors) > 0 {
		parts = append(parts, fmt.Sprintf("### Transaction Errors (%d total)", len(traces.TransactionErrors)))
		for i, row := range traces.TransactionErrors {
			if i >= maxErrors {
				break
			}
			parts = append(parts, fmt.Sprintf(
				"**Error %d**: `%s` — `%s`\n  Transaction: `%s` | Path: `%s` | Host: `%s`",
				i+1,
				attr(row, "error.class", "Unknown"),
				clip(attr(row, "error.message", ""), 300),
				attr(row, "transactionName", "N/A"),
				attr(row, "path", "N/A"),
				attr(row, "host", "N/A")))
		}
	}

	if len(traces.ErrorTraces) > 0 {
		parts = append(parts, fmt.Sprintf("\n### Stack Traces (%d total)", len(traces.ErrorTraces)))
		for i, row := range traces.ErrorTraces {
			if i >= maxErrors {
				break
			}
			stack := attr(row, "error.stack_trace", "")
			if stack == "" {
				stack = attr(row, "stackTrace", "N/A")
			}
			if len(stack) > 500 {
				stack = stack[:500] + "..."
			}
			message := attr(row, "error.message", "")
			if message == "" {
				message = attr(row, "message", "N/A")
			}
			parts = append(parts, fmt.Sprintf(
				"**Trace %d**: `%s`\n```\n%s\n```",
				i+1, clip(message, 200), stack))
		}
	}

	if len(parts) == 0 {
		return "No trace data available."
	}
	return strings.Join(parts, "\n")
}

func attr(row map[string]any, key, def string) string {
	if v, ok := row[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return def
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
