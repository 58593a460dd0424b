package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AgentDef configures one analysis agent. Agents are defined as Markdown
// files with YAML frontmatter under an agents directory; the Markdown body
// becomes the system prompt.
type AgentDef struct {
	Name           string   `yaml:"name"`
	Model          string   `yaml:"model"`
	ThinkingBudget int      `yaml:"thinking_budget"`
	MaxTokens      int      `yaml:"max_tokens"`
	MaxIterations  int      `yaml:"max_iterations"`
	Tools          []string `yaml:"tools"`
	Description    string   `yaml:"description"`
	SystemPrompt   string   `yaml:"-"`
}

// DefaultAgentDef returns the built-in analysis agent configuration.
// The system prompt is supplied by the analyzer package at wiring time.
func DefaultAgentDef() AgentDef {
	return AgentDef{
		Name:           "base-analyzer",
		Model:          "claude-sonnet-4-5-20250929",
		ThinkingBudget: 8000,
		MaxTokens:      16384,
		MaxIterations:  15,
		Tools:          []string{"read_file", "search_code", "list_directory", "get_error_traces"},
		Description:    "Default NightWatch error analysis agent",
	}
}

// LoadAgentDef loads an agent definition from <dir>/<name>.md, merging the
// file's frontmatter over the built-in defaults. A missing or unreadable
// file falls back to the defaults.
func LoadAgentDef(dir, name string) AgentDef {
	log := slog.Default().With("component", "config")
	def := DefaultAgentDef()

	path := filepath.Join(dir, name+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug("Agent definition not found, using defaults", "path", path)
		def.Name = name
		return def
	}

	front, body := SplitFrontmatter(string(data))

	var fromFile AgentDef
	if front != "" {
		if err := yaml.Unmarshal([]byte(front), &fromFile); err != nil {
			log.Warn("Failed to parse agent frontmatter, using defaults", "path", path, "error", err)
			def.Name = name
			return def
		}
	}
	if fromFile.Name != "" && fromFile.Name != name {
		log.Warn("Agent definition name mismatch", "file", name, "frontmatter_name", fromFile.Name)
	}

	// File values override defaults; zero values fall through to defaults.
	if err := mergo.Merge(&def, fromFile, mergo.WithOverride); err != nil {
		log.Warn("Failed to merge agent definition", "path", path, "error", err)
	}
	if def.Name == "" {
		def.Name = name
	}
	def.SystemPrompt = strings.TrimSpace(body)
	return def
}

// ListAgentDefs returns the agent names available under dir, sorted.
func ListAgentDefs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, strings.TrimSuffix(e.Name(), ".md"))
		}
	}
	sort.Strings(names)
	return names
}

// SplitFrontmatter separates a "---" delimited YAML frontmatter block from
// the Markdown body. Content without frontmatter returns ("", content).
func SplitFrontmatter(content string) (front, body string) {
	if !strings.HasPrefix(content, "---") {
		return "", content
	}
	end := strings.Index(content[3:], "---")
	if end == -1 {
		return "", content
	}
	front = strings.TrimSpace(content[3 : 3+end])
	body = strings.TrimLeft(content[3+end+3:], "\n")
	return front, body
}

// RenderFrontmatter renders a YAML frontmatter block followed by a blank line.
func RenderFrontmatter(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	return "---\n" + string(data) + "---\n\n", nil
}
