// Package bus provides the single-process typed pub/sub used for
// inter-agent events. Messages are stored and delivered as deep copies so
// mutation by one consumer is invisible to others.
package bus

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Handler receives a delivered message. Handlers run synchronously on the
// publisher's goroutine and must not block on network I/O.
type Handler func(msg models.AgentMessage)

type subscription struct {
	id        string
	recipient models.AgentType
	msgType   models.MessageType // "" matches all types
	handler   Handler
}

// Bus is an in-memory message bus with per-session backlogs.
type Bus struct {
	mu            sync.Mutex
	subscriptions []subscription
	bySession     map[string][]models.AgentMessage
	logger        *slog.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		bySession: make(map[string][]models.AgentMessage),
		logger:    slog.Default().With("component", "bus"),
	}
}

// Subscribe registers a handler for messages addressed to recipient.
// msgType "" subscribes to all types. Returns a subscription ID.
func (b *Bus) Subscribe(recipient models.AgentType, msgType models.MessageType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subscriptions = append(b.subscriptions, subscription{
		id:        id,
		recipient: recipient,
		msgType:   msgType,
		handler:   handler,
	})
	return id
}

// Unsubscribe removes a subscription by ID.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscriptions {
		if sub.id == id {
			b.subscriptions = append(b.subscriptions[:i], b.subscriptions[i+1:]...)
			return
		}
	}
}

// Publish stores a deep copy of the message under its session and delivers
// deep copies to matching subscribers. A panicking handler does not prevent
// delivery to the remaining handlers.
func (b *Bus) Publish(msg models.AgentMessage) {
	stored := cloneMessage(msg)

	b.mu.Lock()
	b.bySession[msg.SessionID] = append(b.bySession[msg.SessionID], stored)
	subs := append([]subscription(nil), b.subscriptions...)
	b.mu.Unlock()

	for _, sub := range subs {
		if !matches(sub, msg) {
			continue
		}
		b.deliver(sub, cloneMessage(msg))
	}
}

// Broadcast publishes the message with its recipient cleared.
func (b *Bus) Broadcast(msg models.AgentMessage) {
	msg.ToAgent = ""
	b.Publish(msg)
}

// Messages returns deep copies of the session backlog in insertion order.
func (b *Bus) Messages(sessionID string) []models.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := b.bySession[sessionID]
	out := make([]models.AgentMessage, len(stored))
	for i, m := range stored {
		out[i] = cloneMessage(m)
	}
	return out
}

// MessagesByPriority returns deep copies sorted ascending by priority value
// (HIGH first); ties keep insertion order.
func (b *Bus) MessagesByPriority(sessionID string) []models.AgentMessage {
	out := b.Messages(sessionID)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// ClearSession drops the backlog for one session.
func (b *Bus) ClearSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bySession, sessionID)
}

// ClearAll drops every backlog.
func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bySession = make(map[string][]models.AgentMessage)
}

func matches(sub subscription, msg models.AgentMessage) bool {
	if msg.ToAgent != "" && msg.ToAgent != sub.recipient {
		return false
	}
	if sub.msgType != "" && sub.msgType != msg.Type {
		return false
	}
	return true
}

func (b *Bus) deliver(sub subscription, msg models.AgentMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Message handler panicked, continuing delivery",
				"subscription", sub.id,
				"recipient", sub.recipient,
				"type", msg.Type,
				"panic", r)
		}
	}()
	sub.handler(msg)
}
