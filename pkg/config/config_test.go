package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s := Load()

	assert.Equal(t, 5, s.MaxErrors)
	assert.Equal(t, 3, s.MaxIssues)
	assert.Equal(t, "24 hours", s.Since)
	assert.Equal(t, 10, s.MaxOpenIssues)
	assert.Equal(t, 15, s.MaxIterations)
	assert.Equal(t, 8000, s.ThinkingBudget)
	assert.True(t, s.MultiPassEnabled)
	assert.True(t, s.QualityGateEnabled)
	assert.True(t, s.CompoundEnabled)
	assert.True(t, s.PipelineV2)
	assert.Equal(t, "errors", s.Workflows)
	assert.Equal(t, 5*time.Minute, s.AgentTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAX_ERRORS", "7")
	t.Setenv("MULTI_PASS_ENABLED", "false")
	t.Setenv("AGENT_TIMEOUT", "90s")

	s := Load()

	assert.Equal(t, 7, s.MaxErrors)
	assert.False(t, s.MultiPassEnabled)
	assert.Equal(t, 90*time.Second, s.AgentTimeout)
}

func TestLoad_PrefixedKeysWin(t *testing.T) {
	t.Setenv("MAX_ERRORS", "7")
	t.Setenv("NIGHTWATCH_MAX_ERRORS", "12")

	s := Load()

	assert.Equal(t, 12, s.MaxErrors)
}

func TestLoad_BareSecondsDuration(t *testing.T) {
	t.Setenv("AGENT_TIMEOUT", "45")

	s := Load()

	assert.Equal(t, 45*time.Second, s.AgentTimeout)
}

func TestValidate_ReportsAllMissingKeys(t *testing.T) {
	s := &Settings{}

	issues := s.Validate()

	require.Len(t, issues, 6)
	assert.Contains(t, issues, "ANTHROPIC_API_KEY not set")
	assert.Contains(t, issues, "NEW_RELIC_APP_NAME not set")
}

func TestValidate_FullConfigPasses(t *testing.T) {
	s := &Settings{
		AnthropicAPIKey:   "sk-test",
		GitHubToken:       "ghp_test",
		GitHubRepo:        "acme/shop",
		NewRelicAPIKey:    "NRAK-test",
		NewRelicAccountID: "123",
		NewRelicAppName:   "shop-production",
	}

	assert.Empty(t, s.Validate())
}

func TestWorkflowNames_SplitsAndTrims(t *testing.T) {
	s := &Settings{Workflows: "errors, patterns ,ci_doctor,"}

	assert.Equal(t, []string{"errors", "patterns", "ci_doctor"}, s.WorkflowNames())
}

func TestRedacted_BlanksCredentials(t *testing.T) {
	s := &Settings{
		AnthropicAPIKey: "sk-ant-secret",
		GitHubToken:     "ghp_secret",
		GitHubRepo:      "acme/shop",
	}

	red := s.Redacted()

	assert.NotContains(t, red.AnthropicAPIKey, "secret")
	assert.NotContains(t, red.GitHubToken, "secret")
	assert.Equal(t, "acme/shop", red.GitHubRepo)
	// Original untouched.
	assert.Equal(t, "sk-ant-secret", s.AnthropicAPIKey)
}
