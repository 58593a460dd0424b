package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func message(msgType models.MessageType, to models.AgentType, priority models.MessagePriority) models.AgentMessage {
	return models.NewMessage(msgType, map[string]any{"key": "value"},
		models.AgentAnalyzer, to, "session-1", priority)
}

func TestPublish_DeliversToMatchingSubscriber(t *testing.T) {
	b := New()
	var got []models.AgentMessage
	b.Subscribe(models.AgentReporter, "", func(msg models.AgentMessage) {
		got = append(got, msg)
	})

	b.Publish(message(models.MessageAnalysisReady, models.AgentReporter, models.PriorityMedium))
	b.Publish(message(models.MessageAnalysisReady, models.AgentValidator, models.PriorityMedium))

	require.Len(t, got, 1)
	assert.Equal(t, models.MessageAnalysisReady, got[0].Type)
}

func TestPublish_TypeFilter(t *testing.T) {
	b := New()
	count := 0
	b.Subscribe(models.AgentReporter, models.MessagePatternsReady, func(models.AgentMessage) {
		count++
	})

	b.Publish(message(models.MessageAnalysisReady, models.AgentReporter, models.PriorityMedium))
	b.Publish(message(models.MessagePatternsReady, models.AgentReporter, models.PriorityMedium))

	assert.Equal(t, 1, count)
}

func TestPublish_DeliveredCopyIsIsolated(t *testing.T) {
	b := New()
	b.Subscribe(models.AgentReporter, "", func(msg models.AgentMessage) {
		payload := msg.Payload.(map[string]any)
		payload["key"] = "mutated"
	})

	b.Publish(message(models.MessageAnalysisReady, models.AgentReporter, models.PriorityMedium))

	stored := b.Messages("session-1")
	require.Len(t, stored, 1)
	assert.Equal(t, "value", stored[0].Payload.(map[string]any)["key"])
}

func TestPublish_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := New()
	delivered := false
	b.Subscribe(models.AgentReporter, "", func(models.AgentMessage) {
		panic("handler bug")
	})
	b.Subscribe(models.AgentReporter, "", func(models.AgentMessage) {
		delivered = true
	})

	b.Publish(message(models.MessageAnalysisReady, models.AgentReporter, models.PriorityMedium))

	assert.True(t, delivered)
}

func TestBroadcast_ReachesAllRecipients(t *testing.T) {
	b := New()
	var recipients []models.AgentType
	for _, agent := range []models.AgentType{models.AgentReporter, models.AgentValidator} {
		agent := agent
		b.Subscribe(agent, "", func(models.AgentMessage) {
			recipients = append(recipients, agent)
		})
	}

	b.Broadcast(message(models.MessagePhaseComplete, models.AgentReporter, models.PriorityHigh))

	assert.ElementsMatch(t, []models.AgentType{models.AgentReporter, models.AgentValidator}, recipients)
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	count := 0
	id := b.Subscribe(models.AgentReporter, "", func(models.AgentMessage) { count++ })

	b.Publish(message(models.MessageAnalysisReady, models.AgentReporter, models.PriorityMedium))
	b.Unsubscribe(id)
	b.Publish(message(models.MessageAnalysisReady, models.AgentReporter, models.PriorityMedium))

	assert.Equal(t, 1, count)
}

func TestMessagesByPriority_HighFirstStable(t *testing.T) {
	b := New()

	b.Publish(message(models.MessageTaskStarted, models.AgentReporter, models.PriorityLow))
	b.Publish(message(models.MessageTaskCompleted, models.AgentReporter, models.PriorityHigh))
	b.Publish(message(models.MessageTaskFailed, models.AgentReporter, models.PriorityHigh))

	ordered := b.MessagesByPriority("session-1")

	require.Len(t, ordered, 3)
	assert.Equal(t, models.MessageTaskCompleted, ordered[0].Type)
	assert.Equal(t, models.MessageTaskFailed, ordered[1].Type)
	assert.Equal(t, models.MessageTaskStarted, ordered[2].Type)
}

func TestClearSession(t *testing.T) {
	b := New()
	b.Publish(message(models.MessageTaskStarted, models.AgentReporter, models.PriorityMedium))
	require.Len(t, b.Messages("session-1"), 1)

	b.ClearSession("session-1")

	assert.Empty(t, b.Messages("session-1"))
}
