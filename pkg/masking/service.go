// Package masking scrubs secret-looking material from error messages and
// trace payloads before they reach prompts, reports, or the knowledge base.
package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns are the secret shapes that show up in production error
// messages: API keys, bearer tokens, passwords in URLs or assignments.
var builtinPatterns = []struct {
	name        string
	pattern     string
	replacement string
}{
	{"anthropic_key", `sk-ant-[A-Za-z0-9\-_]{20,}`, "***MASKED_API_KEY***"},
	{"generic_api_key", `(?i)(api[_-]?key|apikey)["'\s:=]+[A-Za-z0-9\-_]{16,}`, "$1=***MASKED_API_KEY***"},
	{"bearer_token", `(?i)bearer\s+[A-Za-z0-9\-_.~+/]{16,}=*`, "Bearer ***MASKED_TOKEN***"},
	{"github_token", `gh[pousr]_[A-Za-z0-9]{36,}`, "***MASKED_TOKEN***"},
	{"slack_token", `xox[baprs]-[A-Za-z0-9\-]{10,}`, "***MASKED_TOKEN***"},
	{"url_credentials", `(?i)([a-z][a-z0-9+.\-]*://[^:/\s]+):[^@/\s]+@`, "$1:***MASKED***@"},
	{"password_assignment", `(?i)(password|passwd|secret)["'\s:=]+\S{6,}`, "$1=***MASKED***"},
}

// Service applies masking patterns. Created once at startup; thread-safe
// and stateless aside from compiled patterns.
type Service struct {
	patterns []*CompiledPattern
	logger   *slog.Logger
}

// NewService compiles the built-in patterns plus any extras. Invalid extra
// patterns are logged and skipped.
func NewService(extra ...CompiledPattern) *Service {
	s := &Service{logger: slog.Default().With("component", "masking")}

	for _, p := range builtinPatterns {
		re, err := regexp.Compile(p.pattern)
		if err != nil {
			s.logger.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", p.name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, &CompiledPattern{
			Name:        p.name,
			Regex:       re,
			Replacement: p.replacement,
		})
	}
	for i := range extra {
		p := extra[i]
		s.patterns = append(s.patterns, &p)
	}
	return s
}

// Mask applies every pattern to the text. Fail-open: unmatchable input
// passes through unchanged.
func (s *Service) Mask(text string) string {
	if text == "" {
		return text
	}
	for _, p := range s.patterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// MaskTraceRow masks every string value of a trace attribute map in place
// on a copy, returning the copy.
func (s *Service) MaskTraceRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if str, ok := v.(string); ok {
			out[k] = s.Mask(str)
		} else {
			out[k] = v
		}
	}
	return out
}
