package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func TestSummarizeTraces_Empty(t *testing.T) {
	assert.Equal(t, "No trace data available.", SummarizeTraces(models.TraceData{}, 3))
}

func TestSummarizeTraces_TransactionErrors(t *testing.T) {
	traces := models.TraceData{
		TransactionErrors: []map[string]any{
			{
				"error.class":     "NoMethodError",
				"error.message":   "undefined method `total'",
				"transactionName": "Controller/orders/create",
				"path":            "/orders",
			},
		},
	}

	summary := SummarizeTraces(traces, 3)

	assert.Contains(t, summary, "### Transaction Errors (1 total)")
	assert.Contains(t, summary, "`NoMethodError`")
	assert.Contains(t, summary, "Controller/orders/create")
	// Missing host falls back to the placeholder.
	assert.Contains(t, summary, "Host: `N/A`")
}

func TestSummarizeTraces_CapsErrorCount(t *testing.T) {
	traces := models.TraceData{}
	for i := 0; i < 10; i++ {
		traces.TransactionErrors = append(traces.TransactionErrors,
			map[string]any{"error.class": "KeyError"})
	}

	summary := SummarizeTraces(traces, 2)

	assert.Contains(t, summary, "(10 total)")
	assert.Contains(t, summary, "**Error 2**")
	assert.NotContains(t, summary, "**Error 3**")
}

func TestSummarizeTraces_StackTraceClipped(t *testing.T) {
	traces := models.TraceData{
		ErrorTraces: []map[string]any{
			{
				"message":    "boom",
				"stackTrace": strings.Repeat("app/models/order.rb:12\n", 40),
			},
		},
	}

	summary := SummarizeTraces(traces, 3)

	assert.Contains(t, summary, "### Stack Traces (1 total)")
	assert.Contains(t, summary, "...")
	assert.Less(t, len(summary), 1000)
}

func TestBuildAnalysisPrompt_Basic(t *testing.T) {
	e := models.ErrorGroup{
		ErrorClass:  "NoMethodError",
		Transaction: "Controller/orders/create",
		Message:     "undefined method `total' for nil",
		Occurrences: 42,
	}

	prompt := BuildAnalysisPrompt(e, "No trace data available.", nil, nil)

	assert.Contains(t, prompt, "**Exception Class**: `NoMethodError`")
	assert.Contains(t, prompt, "**Occurrences**: 42")
	assert.NotContains(t, prompt, "Prior Knowledge")
	assert.NotContains(t, prompt, "Recently Merged PRs")
}

func TestBuildAnalysisPrompt_PriorKnowledge(t *testing.T) {
	prior := []models.PriorAnalysis{{
		ErrorClass:    "NoMethodError",
		Transaction:   "orders",
		RootCause:     "nil order total",
		FixConfidence: "high",
		HasFix:        true,
		Summary:       "Fixed by guarding nil line items",
		MatchScore:    0.8,
	}}

	prompt := BuildAnalysisPrompt(models.ErrorGroup{ErrorClass: "NoMethodError"}, "", prior, nil)

	assert.Contains(t, prompt, "## Prior Knowledge")
	assert.Contains(t, prompt, "Prior Analysis #1 (match: 80%)")
	assert.Contains(t, prompt, "**Had fix**: Yes")
}

func TestBuildAnalysisPrompt_ResearchSections(t *testing.T) {
	research := &models.ResearchContext{
		LikelyFiles: []string{"app/models/order.rb"},
		FilePreviews: map[string]string{
			"app/models/order.rb": "class Order < ApplicationRecord\nend",
		},
		CorrelatedPRs: []models.CorrelatedPR{
			{Number: 101, Title: "Refactor order totals", MergedAt: "2026-08-20", OverlapScore: 0.5,
				ChangedFiles: []string{"app/models/order.rb"}},
		},
	}

	prompt := BuildAnalysisPrompt(models.ErrorGroup{ErrorClass: "NoMethodError"}, "", nil, research)

	assert.Contains(t, prompt, "## Pre-Fetched Source Files")
	assert.Contains(t, prompt, "### `app/models/order.rb`")
	assert.Contains(t, prompt, "**PR #101**: Refactor order totals")
}

func TestMaxIterationsFor(t *testing.T) {
	assert.Equal(t, 7, maxIterationsFor("NoMethodError", 15))
	assert.Equal(t, 5, maxIterationsFor("Pundit::NotAuthorizedError", 15))
	assert.Equal(t, 10, maxIterationsFor("ActiveRecord::StatementInvalid", 15))
	assert.Equal(t, 15, maxIterationsFor("Net::OpenTimeout", 15))
	assert.Equal(t, 10, maxIterationsFor("SomethingElse", 15))
	// Ceiling wins over the family budget.
	assert.Equal(t, 4, maxIterationsFor("NoMethodError", 4))
}

func TestThinkingBudgetFor(t *testing.T) {
	// Full budget for the first two iterations.
	assert.Equal(t, 8000, thinkingBudgetFor(1, 10, "SomeError"))
	assert.Equal(t, 8000, thinkingBudgetFor(2, 10, "SomeError"))
	// Simple errors start lower, complex ones higher.
	assert.Equal(t, 4000, thinkingBudgetFor(1, 10, "KeyError"))
	assert.Equal(t, 12000, thinkingBudgetFor(1, 10, "Net::OpenTimeout"))
	// Decays with progress but never below the floor.
	assert.Equal(t, 5000, thinkingBudgetFor(6, 10, "SomeError"))
	assert.Equal(t, 2000, thinkingBudgetFor(10, 10, "KeyError"))
}

func TestTruncateToolResult(t *testing.T) {
	short := "small output"
	assert.Equal(t, short, truncateToolResult(short, 100))

	long := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	got := truncateToolResult(long, 200)
	assert.Contains(t, got, "[... 800 chars truncated ...]")
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("z", 100)))
}
