// Package llm wraps the Anthropic SDK with the retry policy NightWatch
// applies to every model call.
package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client is the LLM access point for all NightWatch components.
type Client struct {
	api    anthropic.Client
	model  string
	logger *slog.Logger

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewClient creates a client for the given API key and default model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		api:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: slog.Default().With("component", "llm"),
		sleep:  time.Sleep,
	}
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// CreateMessage issues a messages.create call with retry per policy:
// rate limits back off honoring retry-after, credit-balance failures wait
// one second, connection errors back off exponentially. Up to 5 attempts;
// other failures propagate immediately.
func (c *Client) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if params.Model == "" {
		params.Model = anthropic.Model(c.model)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		msg, err := c.api.Messages.New(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err

		wait, retryable := c.classify(err, attempt)
		if !retryable {
			return nil, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		c.logger.Warn("LLM call failed, backing off",
			"attempt", attempt+1,
			"wait", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c.sleep(wait)
	}
	return nil, lastErr
}

// Ping issues a minimal call to verify credentials and connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 10,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	return err
}
