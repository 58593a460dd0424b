package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType tags the intent of an inter-agent message.
type MessageType string

const (
	MessageTaskAssigned       MessageType = "task_assigned"
	MessageTaskStarted        MessageType = "task_started"
	MessageTaskCompleted      MessageType = "task_completed"
	MessageTaskFailed         MessageType = "task_failed"
	MessageErrorsReady        MessageType = "errors_ready"
	MessageTracesReady        MessageType = "traces_ready"
	MessageAnalysisReady      MessageType = "analysis_ready"
	MessagePatternsReady      MessageType = "patterns_ready"
	MessageValidationComplete MessageType = "validation_complete"
	MessagePhaseComplete      MessageType = "phase_complete"
	MessageIterationNeeded    MessageType = "iteration_needed"
)

// MessagePriority orders messages when retrieved by priority. Lower is higher.
type MessagePriority int

const (
	PriorityHigh   MessagePriority = 0
	PriorityMedium MessagePriority = 1
	PriorityLow    MessagePriority = 2
)

// AgentMessage is a message passed between agents on the bus.
// ToAgent == "" means broadcast.
type AgentMessage struct {
	ID        string
	FromAgent AgentType
	ToAgent   AgentType
	Type      MessageType
	Payload   any
	Timestamp time.Time
	Priority  MessagePriority
	SessionID string
}

// NewMessage creates an AgentMessage with a fresh ID and current timestamp.
func NewMessage(msgType MessageType, payload any, from, to AgentType, sessionID string, priority MessagePriority) AgentMessage {
	return AgentMessage{
		ID:        uuid.NewString(),
		FromAgent: from,
		ToAgent:   to,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Priority:  priority,
		SessionID: sessionID,
	}
}
