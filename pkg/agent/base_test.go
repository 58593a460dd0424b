package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/bus"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func TestExecuteWithTimeout_Success(t *testing.T) {
	b := NewBase("test-agent", time.Second, nil)

	result := b.ExecuteWithTimeout(context.Background(), func(context.Context) (models.AgentResult, error) {
		return models.AgentResult{Success: true, Data: map[string]any{"answer": 42}}, nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, models.AgentStatusCompleted, b.Status())
}

func TestExecuteWithTimeout_DeadlineBecomesTimeoutResult(t *testing.T) {
	b := NewBase("slow-agent", 10*time.Millisecond, nil)

	result := b.ExecuteWithTimeout(context.Background(), func(ctx context.Context) (models.AgentResult, error) {
		<-ctx.Done()
		return models.AgentResult{}, ctx.Err()
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorCodeTimeout, result.ErrorCode)
	assert.True(t, result.Recoverable)
	assert.Contains(t, result.ErrorMessage, "slow-agent timed out")
	assert.Equal(t, models.AgentStatusFailed, b.Status())
}

func TestExecuteWithTimeout_ErrorBecomesFailedResult(t *testing.T) {
	b := NewBase("flaky-agent", time.Second, nil)

	result := b.ExecuteWithTimeout(context.Background(), func(context.Context) (models.AgentResult, error) {
		return models.AgentResult{}, errors.New("backend unavailable")
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorCodeExecutionError, result.ErrorCode)
	assert.Equal(t, "backend unavailable", result.ErrorMessage)
	assert.True(t, result.Recoverable)
}

func TestSendMessage_NilBusIsNoop(t *testing.T) {
	b := NewBase("quiet-agent", time.Second, nil)

	// Must not panic without a bus attached.
	b.SendMessage(models.AgentAnalyzer, models.MessageAnalysisReady, nil, models.AgentReporter, "s1")
}

func TestSendMessage_PublishesToBus(t *testing.T) {
	mb := bus.New()
	received := make(chan models.AgentMessage, 1)
	mb.Subscribe(models.AgentReporter, models.MessageAnalysisReady, func(msg models.AgentMessage) {
		received <- msg
	})
	b := NewBase("chatty-agent", time.Second, mb)

	b.SendMessage(models.AgentAnalyzer, models.MessageAnalysisReady, "payload", models.AgentReporter, "s1")

	select {
	case msg := <-received:
		assert.Equal(t, models.AgentAnalyzer, msg.FromAgent)
		assert.Equal(t, "s1", msg.SessionID)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestRegistry_CreateRegisteredAgent(t *testing.T) {
	r := NewRegistry()
	r.Register(models.AgentAnalyzer, func() Agent {
		return NewAnalyzerAgent(nil, time.Second, nil)
	})

	a, err := r.Create(models.AgentAnalyzer)

	require.NoError(t, err)
	assert.Equal(t, models.AgentAnalyzer, a.Type())
}

func TestRegistry_UnknownTypeErrors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create(models.AgentValidator)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no agent registered")
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	r.Register(models.AgentAnalyzer, func() Agent { return nil })
	require.Len(t, r.Registered(), 1)

	r.Clear()

	assert.Empty(t, r.Registered())
}
