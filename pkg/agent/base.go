// Package agent defines the agent abstraction used by the pipeline: a
// registry of named agents, each running one concern with a timeout and
// reporting a uniform result.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/bus"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Agent runs one pipeline concern and reports a uniform result.
type Agent interface {
	Type() models.AgentType
	Name() string
	Execute(ctx context.Context, ac *models.AgentContext) models.AgentResult
}

// Base carries the shared lifecycle machinery embedded by every agent.
type Base struct {
	name    string
	timeout time.Duration
	status  models.AgentStatus
	bus     *bus.Bus
	logger  *slog.Logger
	now     func() time.Time
}

// NewBase creates the shared agent core. A nil bus disables messaging.
func NewBase(name string, timeout time.Duration, messageBus *bus.Bus) Base {
	return Base{
		name:    name,
		timeout: timeout,
		status:  models.AgentStatusIdle,
		bus:     messageBus,
		logger:  slog.Default().With("component", "agent", "agent", name),
		now:     time.Now,
	}
}

// Name returns the agent display name.
func (b *Base) Name() string { return b.name }

// Status returns the current lifecycle state.
func (b *Base) Status() models.AgentStatus { return b.status }

// ExecuteWithTimeout runs op under the configured timeout, handling
// timing, status transitions, and error wrapping. Timeouts and errors
// come back as failed results, never as panics up the pipeline.
func (b *Base) ExecuteWithTimeout(ctx context.Context, op func(context.Context) (models.AgentResult, error)) models.AgentResult {
	b.status = models.AgentStatusRunning
	start := b.now()

	opCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	result, err := op(opCtx)
	elapsed := float64(b.now().Sub(start).Milliseconds())

	if err != nil {
		b.status = models.AgentStatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			b.logger.Warn("Agent timed out", "elapsed_ms", elapsed, "limit", b.timeout)
			return models.AgentResult{
				Success:         false,
				ErrorMessage:    fmt.Sprintf("Agent %s timed out after %s", b.name, b.timeout),
				ErrorCode:       models.ErrorCodeTimeout,
				ExecutionTimeMS: elapsed,
				Recoverable:     true,
			}
		}
		b.logger.Error("Agent failed", "error", err)
		return models.AgentResult{
			Success:         false,
			ErrorMessage:    err.Error(),
			ErrorCode:       models.ErrorCodeExecutionError,
			ExecutionTimeMS: elapsed,
			Recoverable:     true,
		}
	}

	result.ExecutionTimeMS = elapsed
	b.status = models.AgentStatusCompleted
	return result
}

// SendMessage publishes to the bus. No-op when no bus is attached.
func (b *Base) SendMessage(from models.AgentType, msgType models.MessageType, payload any, to models.AgentType, sessionID string) {
	if b.bus == nil {
		b.logger.Debug("No message bus, dropping message", "type", msgType)
		return
	}
	b.bus.Publish(models.NewMessage(msgType, payload, from, to, sessionID, models.PriorityMedium))
}
