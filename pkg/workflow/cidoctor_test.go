package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnose_KnownSignatures(t *testing.T) {
	tests := []struct {
		name     string
		logText  string
		summary  string
		category string
	}{
		{"network", "connect ETIMEDOUT 10.0.0.1:443", "Network timeout or connection refused", "infrastructure"},
		{"rate limit", "403 API rate limit exceeded for installation", "API rate limit exceeded", "rate_limit"},
		{"disk", "write /tmp/cache: no space left on device", "Disk space exhausted on runner", "resource_limit"},
		{"memory", "Process terminated: OOMKilled", "Out of memory on runner", "resource_limit"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			diag, matched := diagnose(tc.logText)
			require.True(t, matched)
			assert.Equal(t, tc.summary, diag.summary)
			assert.Equal(t, tc.category, diag.category)
		})
	}
}

func TestDiagnose_FirstMatchWins(t *testing.T) {
	diag, matched := diagnose("ECONNREFUSED while checking rate limit")

	require.True(t, matched)
	assert.Equal(t, "infrastructure", diag.category)
}

func TestDiagnose_UnknownFailure(t *testing.T) {
	_, matched := diagnose("expected 5 assertions, got 4")

	assert.False(t, matched)
}

func TestCIDoctorWorkflow_FilterMainBranchFirst(t *testing.T) {
	w := NewCIDoctorWorkflow(nil)
	items := []Item{
		{ID: "300", Metadata: map[string]string{"branch": "feature/x"}},
		{ID: "100", Metadata: map[string]string{"branch": "main"}},
		{ID: "200", Metadata: map[string]string{"branch": "master"}},
	}

	filtered := w.Filter(items)

	require.Len(t, filtered, 3)
	assert.Equal(t, "200", filtered[0].ID)
	assert.Equal(t, "100", filtered[1].ID)
	assert.Equal(t, "300", filtered[2].ID)
}

func TestCIDoctorWorkflow_FilterNumericIDOrderAndCap(t *testing.T) {
	w := NewCIDoctorWorkflow(nil)
	var items []Item
	// "9" is numerically smaller than "1000" even though it sorts later
	// as a string.
	for _, id := range []string{"9", "1000", "30", "500", "200", "70"} {
		items = append(items, Item{ID: id, Metadata: map[string]string{"branch": "dev"}})
	}

	filtered := w.Filter(items)

	require.Len(t, filtered, 5)
	assert.Equal(t, "1000", filtered[0].ID)
	assert.Equal(t, "500", filtered[1].ID)
	assert.Equal(t, "9", filtered[4].ID)
}

func TestCIDoctorWorkflow_AnalyzeUnknownNeedsDeeperAnalysis(t *testing.T) {
	w := NewCIDoctorWorkflow(nil)
	items := []Item{{
		Title:    "test-suite #12",
		Metadata: map[string]string{"log_text": "assertion failed in spec/models/order_spec.rb"},
	}}

	analyses := w.Analyze(context.Background(), items)

	require.Len(t, analyses, 1)
	assert.Equal(t, "Requires deeper analysis", analyses[0].Summary)
	assert.Equal(t, "unknown", analyses[0].Details["category"])
	assert.Zero(t, analyses[0].Confidence)
}

func TestCIDoctorWorkflow_AnalyzeMatchesTitleToo(t *testing.T) {
	w := NewCIDoctorWorkflow(nil)
	items := []Item{{Title: "deploy ETIMEDOUT retry #4", Metadata: map[string]string{}}}

	analyses := w.Analyze(context.Background(), items)

	require.Len(t, analyses, 1)
	assert.True(t, analyses[0].Transient)
	assert.InDelta(t, 0.95, analyses[0].Confidence, 0.001)
}

func TestCIDoctorWorkflow_ActSkipsLowConfidence(t *testing.T) {
	w := NewCIDoctorWorkflow(nil)
	analyses := []Analysis{
		{Item: Item{Title: "build #1", Metadata: map[string]string{"url": "https://example.test/1"}},
			Summary: "Out of memory on runner", Confidence: 0.9,
			Details: map[string]string{"category": "resource_limit", "suggested_fix": "larger runner"}},
		{Item: Item{Title: "build #2", Metadata: map[string]string{}},
			Summary: "Requires deeper analysis", Confidence: 0,
			Details: map[string]string{"category": "unknown"}},
	}

	actions := w.Act(context.Background(), analyses, false)

	require.Len(t, actions, 1)
	assert.Equal(t, OutputAddComment, actions[0].Type)
	assert.Equal(t, "build #1", actions[0].Target)
	assert.True(t, actions[0].Success)
}

func TestDiagnosisComment_Table(t *testing.T) {
	comment := diagnosisComment(Analysis{
		Summary:    "API rate limit exceeded",
		Transient:  true,
		Confidence: 0.95,
		Details: map[string]string{
			"category":      "rate_limit",
			"suggested_fix": "Wait and retry, or add rate limiting/caching",
		},
	})

	assert.Contains(t, comment, "NightWatch CI Diagnosis")
	assert.Contains(t, comment, "| Root Cause | API rate limit exceeded |")
	assert.Contains(t, comment, "| Confidence | 95% |")
	assert.Contains(t, comment, "| Transient | Yes |")
}
