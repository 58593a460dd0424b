// Package config loads NightWatch configuration from the environment and
// from YAML files (ignore rules, agent definitions).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all NightWatch configuration. Populated from environment
// variables by Load; .env loading happens in main via godotenv.
type Settings struct {
	// Required credentials and identifiers
	AnthropicAPIKey    string
	GitHubToken        string
	GitHubRepo         string // "owner/name"
	GitHubBaseBranch   string
	NewRelicAPIKey     string
	NewRelicAccountID  string
	NewRelicAppName    string
	SlackBotToken      string
	SlackNotifyUser    string

	// Ingestion window and selection limits
	MaxErrors     int
	MaxIssues     int
	Since         string
	MaxOpenIssues int

	// LLM call parameters
	Model          string
	MaxIterations  int
	ThinkingBudget int

	// Multi-pass retry
	MultiPassEnabled bool
	MaxPasses        int

	// Cross-error seeding
	RunContextEnabled  bool
	RunContextMaxChars int

	// Pre-PR validation
	QualityGateEnabled    bool
	QualityGateCorrection bool

	// Knowledge persistence
	CompoundEnabled bool
	KnowledgeDir    string

	// Hard ceilings
	TokenBudgetPerError int
	TotalTokenBudget    int

	// LLM context-management beta
	ContextEditing bool

	// Batch triage path
	BatchMode bool

	// Orchestrator path
	PipelineV2       bool
	PipelineFallback bool

	// Workflows
	Workflows        string // comma-separated names
	GuardrailsOutput string

	// Recording
	HistoryDir      string
	HealthReport    bool
	QualityTracking bool

	// Agent execution
	AgentTimeout time.Duration
}

// Load reads settings from the environment, applying defaults.
// Keys are recognized both bare (MAX_ERRORS) and NIGHTWATCH_-prefixed.
func Load() *Settings {
	return &Settings{
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		GitHubRepo:        os.Getenv("GITHUB_REPO"),
		GitHubBaseBranch:  getString("GITHUB_BASE_BRANCH", "main"),
		NewRelicAPIKey:    os.Getenv("NEW_RELIC_API_KEY"),
		NewRelicAccountID: os.Getenv("NEW_RELIC_ACCOUNT_ID"),
		NewRelicAppName:   os.Getenv("NEW_RELIC_APP_NAME"),
		SlackBotToken:     os.Getenv("SLACK_BOT_TOKEN"),
		SlackNotifyUser:   os.Getenv("SLACK_NOTIFY_USER"),

		MaxErrors:     getInt("MAX_ERRORS", 5),
		MaxIssues:     getInt("MAX_ISSUES", 3),
		Since:         getString("SINCE", "24 hours"),
		MaxOpenIssues: getInt("MAX_OPEN_ISSUES", 10),

		Model:          getString("MODEL", "claude-sonnet-4-5-20250929"),
		MaxIterations:  getInt("MAX_ITERATIONS", 15),
		ThinkingBudget: getInt("THINKING_BUDGET", 8000),

		MultiPassEnabled: getBool("MULTI_PASS_ENABLED", true),
		MaxPasses:        getInt("MAX_PASSES", 2),

		RunContextEnabled:  getBool("RUN_CONTEXT_ENABLED", true),
		RunContextMaxChars: getInt("RUN_CONTEXT_MAX_CHARS", 1500),

		QualityGateEnabled:    getBool("QUALITY_GATE_ENABLED", true),
		QualityGateCorrection: getBool("QUALITY_GATE_CORRECTION", true),

		CompoundEnabled: getBool("COMPOUND_ENABLED", true),
		KnowledgeDir:    getString("KNOWLEDGE_DIR", "nightwatch/knowledge"),

		TokenBudgetPerError: getInt("TOKEN_BUDGET_PER_ERROR", 30000),
		TotalTokenBudget:    getInt("TOTAL_TOKEN_BUDGET", 200000),

		ContextEditing: getBool("CONTEXT_EDITING", true),
		BatchMode:      getBool("BATCH_MODE", false),

		PipelineV2:       getBool("PIPELINE_V2", true),
		PipelineFallback: getBool("PIPELINE_FALLBACK", true),

		Workflows:        getString("WORKFLOWS", "errors"),
		GuardrailsOutput: getString("GUARDRAILS_OUTPUT", ""),

		HistoryDir:      getString("HISTORY_DIR", defaultHistoryDir()),
		HealthReport:    getBool("HEALTH_REPORT", true),
		QualityTracking: getBool("QUALITY_TRACKING", true),

		AgentTimeout: getDuration("AGENT_TIMEOUT", 5*time.Minute),
	}
}

// Validate returns a list of configuration problems. Empty means valid.
func (s *Settings) Validate() []string {
	var issues []string
	if s.AnthropicAPIKey == "" {
		issues = append(issues, "ANTHROPIC_API_KEY not set")
	}
	if s.GitHubToken == "" {
		issues = append(issues, "GITHUB_TOKEN not set")
	}
	if s.GitHubRepo == "" {
		issues = append(issues, "GITHUB_REPO not set")
	}
	if s.NewRelicAPIKey == "" {
		issues = append(issues, "NEW_RELIC_API_KEY not set")
	}
	if s.NewRelicAccountID == "" {
		issues = append(issues, "NEW_RELIC_ACCOUNT_ID not set")
	}
	if s.NewRelicAppName == "" {
		issues = append(issues, "NEW_RELIC_APP_NAME not set")
	}
	return issues
}

// WorkflowNames splits the configured workflow list.
func (s *Settings) WorkflowNames() []string {
	var names []string
	for _, n := range strings.Split(s.Workflows, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func defaultHistoryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nightwatch"
	}
	return home + "/.nightwatch"
}

// lookup checks NIGHTWATCH_<key> first, then the bare key.
func lookup(key string) (string, bool) {
	if v := os.Getenv("NIGHTWATCH_" + key); v != "" {
		return v, true
	}
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	return "", false
}

func getString(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Redacted returns a copy safe for logging, with credentials blanked.
func (s *Settings) Redacted() Settings {
	out := *s
	for _, p := range []*string{
		&out.AnthropicAPIKey, &out.GitHubToken, &out.NewRelicAPIKey, &out.SlackBotToken,
	} {
		if *p != "" {
			*p = fmt.Sprintf("<set:%d chars>", len(*p))
		}
	}
	return out
}
