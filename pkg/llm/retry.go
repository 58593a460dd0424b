package llm

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

const (
	maxAttempts = 5

	backoffBase = 15 * time.Second
	backoffCap  = 120 * time.Second
)

// classify decides whether a failed call should be retried and how long to
// wait first. attempt is zero-based.
func (c *Client) classify(err error, attempt int) (wait time.Duration, retryable bool) {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		// No API response at all: treat as a connection error.
		return expBackoff(attempt), true
	}

	switch apiErr.StatusCode {
	case 429, 529:
		if ra := retryAfter(apiErr); ra > 0 {
			return ra + jitter(), true
		}
		return expBackoff(attempt) + jitter(), true
	case 400:
		if strings.Contains(strings.ToLower(apiErr.Error()), "credit balance") {
			return time.Second, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// retryAfter extracts the retry-after hint, if the response carried one.
func retryAfter(apiErr *anthropic.Error) time.Duration {
	if apiErr.Response == nil {
		return 0
	}
	raw := apiErr.Response.Header.Get("retry-after")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// expBackoff returns base*2^attempt capped at backoffCap.
func expBackoff(attempt int) time.Duration {
	wait := backoffBase << attempt
	if wait > backoffCap {
		wait = backoffCap
	}
	return wait
}

// jitter returns a uniform 1-5s pause to de-synchronize retry storms.
func jitter() time.Duration {
	return time.Duration(1+rand.Intn(5)) * time.Second
}
