package newrelic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func TestFilterErrors_NoPatternsPassesThrough(t *testing.T) {
	errors := []models.ErrorGroup{{ErrorClass: "RuntimeError"}}

	assert.Equal(t, errors, FilterErrors(errors, nil))
}

func TestFilterErrors_MatchModes(t *testing.T) {
	errors := []models.ErrorGroup{
		{ErrorClass: "HealthCheckError", Transaction: "health"},
		{ErrorClass: "ActiveRecord::RecordNotFound", Transaction: "orders"},
		{ErrorClass: "RuntimeError", Message: "redis connection lost", Transaction: "cache"},
		{ErrorClass: "NoMethodError", Transaction: "checkout"},
	}
	patterns := []config.IgnorePattern{
		{Pattern: "HealthCheckError", Match: "exact"},
		{Pattern: "ActiveRecord::", Match: "prefix"},
		{Pattern: "redis connection", Match: "contains"},
	}

	kept := FilterErrors(errors, patterns)

	require.Len(t, kept, 1)
	assert.Equal(t, "NoMethodError", kept[0].ErrorClass)
}

func TestFilterErrors_ContainsSearchesClassMessageTransaction(t *testing.T) {
	errors := []models.ErrorGroup{
		{ErrorClass: "RuntimeError", Transaction: "Admin/DebugController#show"},
	}
	patterns := []config.IgnorePattern{{Pattern: "DebugController", Match: "contains"}}

	assert.Empty(t, FilterErrors(errors, patterns))
}

func TestFilterErrors_ExactRequiresFullClassMatch(t *testing.T) {
	errors := []models.ErrorGroup{{ErrorClass: "RuntimeErrorSubclass"}}
	patterns := []config.IgnorePattern{{Pattern: "RuntimeError", Match: "exact"}}

	assert.Len(t, FilterErrors(errors, patterns), 1)
}
