package llm

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpBackoff(t *testing.T) {
	assert.Equal(t, 15*time.Second, expBackoff(0))
	assert.Equal(t, 30*time.Second, expBackoff(1))
	assert.Equal(t, 60*time.Second, expBackoff(2))
	assert.Equal(t, 120*time.Second, expBackoff(3))
	// Capped from here on.
	assert.Equal(t, 120*time.Second, expBackoff(6))
}

func TestClassify_ConnectionErrorRetries(t *testing.T) {
	c := NewClient("test-key", "claude-test")

	wait, retryable := c.classify(errors.New("connection reset by peer"), 1)

	assert.True(t, retryable)
	assert.Equal(t, 30*time.Second, wait)
}

func TestClassify_OverloadedRetriesWithJitter(t *testing.T) {
	c := NewClient("test-key", "claude-test")
	apiErr := &anthropic.Error{StatusCode: 529}

	wait, retryable := c.classify(apiErr, 0)

	assert.True(t, retryable)
	// expBackoff(0) plus 1-5s of jitter.
	assert.GreaterOrEqual(t, wait, 16*time.Second)
	assert.LessOrEqual(t, wait, 20*time.Second)
}

func TestClassify_RateLimitHonorsRetryAfter(t *testing.T) {
	c := NewClient("test-key", "claude-test")
	header := http.Header{}
	header.Set("retry-after", "45")
	apiErr := &anthropic.Error{
		StatusCode: 429,
		Response:   &http.Response{Header: header},
	}

	wait, retryable := c.classify(apiErr, 0)

	assert.True(t, retryable)
	assert.GreaterOrEqual(t, wait, 46*time.Second)
	assert.LessOrEqual(t, wait, 50*time.Second)
}

func TestClassify_ServerErrorDoesNotRetry(t *testing.T) {
	c := NewClient("test-key", "claude-test")
	apiErr := &anthropic.Error{StatusCode: 500}

	_, retryable := c.classify(apiErr, 0)

	assert.False(t, retryable)
}

func TestRetryAfter_ParsesPositiveSeconds(t *testing.T) {
	header := http.Header{}
	header.Set("retry-after", "30")
	apiErr := &anthropic.Error{Response: &http.Response{Header: header}}

	require.Equal(t, 30*time.Second, retryAfter(apiErr))
}

func TestRetryAfter_MissingOrInvalid(t *testing.T) {
	assert.Zero(t, retryAfter(&anthropic.Error{}))

	header := http.Header{}
	header.Set("retry-after", "soon")
	assert.Zero(t, retryAfter(&anthropic.Error{Response: &http.Response{Header: header}}))

	header = http.Header{}
	header.Set("retry-after", "-5")
	assert.Zero(t, retryAfter(&anthropic.Error{Response: &http.Response{Header: header}}))
}
