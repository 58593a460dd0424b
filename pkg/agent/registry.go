package agent

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Factory creates a fresh agent instance.
type Factory func() Agent

// Registry maps agent types to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	factories map[models.AgentType]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[models.AgentType]Factory),
		logger:    slog.Default().With("component", "agent-registry"),
	}
}

// Register binds a factory to an agent type. Re-registering warns and
// replaces the previous binding.
func (r *Registry) Register(agentType models.AgentType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[agentType]; exists {
		r.logger.Warn("Overwriting agent registration", "type", agentType)
	}
	r.factories[agentType] = factory
}

// Create instantiates the registered agent for agentType.
func (r *Registry) Create(agentType models.AgentType) (Agent, error) {
	r.mu.Lock()
	factory, ok := r.factories[agentType]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no agent registered for type %q", agentType)
	}
	return factory(), nil
}

// Registered returns the currently bound agent types.
func (r *Registry) Registered() []models.AgentType {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]models.AgentType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}

// Clear removes all registrations. Intended for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[models.AgentType]Factory)
}
