// Package state manages per-session pipeline state as immutable snapshots.
// Every mutation clones the current snapshot, applies the change, bumps
// last_updated, and republishes; readers holding an older snapshot never
// observe partial updates.
package state

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// ErrSessionNotFound is returned when no state exists for a session.
var ErrSessionNotFound = errors.New("session state not found")

// Manager holds the current snapshot per session.
type Manager struct {
	mu     sync.Mutex
	states map[string]models.PipelineState
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates an empty state manager.
func NewManager() *Manager {
	return &Manager{
		states: make(map[string]models.PipelineState),
		logger: slog.Default().With("component", "state"),
		now:    time.Now,
	}
}

// Initialize creates a fresh snapshot in the INGESTION phase.
func (m *Manager) Initialize(sessionID string) models.PipelineState {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	s := models.PipelineState{
		SessionID:    sessionID,
		CurrentPhase: models.PhaseIngestion,
		AgentResults: make(map[string]any),
		Metadata:     make(map[string]any),
		Timestamps: models.PipelineTimestamps{
			Started:     now,
			LastUpdated: now,
		},
	}
	m.states[sessionID] = s
	return s.Clone()
}

// Get returns the current snapshot for a session.
func (m *Manager) Get(sessionID string) (models.PipelineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[sessionID]
	if !ok {
		return models.PipelineState{}, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Update clones the current snapshot, applies mutate, sets last_updated,
// and stores the result. Returns the new snapshot.
func (m *Manager) Update(sessionID string, mutate func(s *models.PipelineState)) (models.PipelineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.states[sessionID]
	if !ok {
		return models.PipelineState{}, ErrSessionNotFound
	}

	next := cur.Clone()
	mutate(&next)
	next.Timestamps.LastUpdated = m.now().UTC()
	m.states[sessionID] = next
	return next.Clone(), nil
}

// SetPhase transitions to a new phase and stamps phase_started.
func (m *Manager) SetPhase(sessionID string, phase models.ExecutionPhase) (models.PipelineState, error) {
	return m.Update(sessionID, func(s *models.PipelineState) {
		s.CurrentPhase = phase
		s.Timestamps.PhaseStarted = m.now().UTC()
	})
}

// IncrementIteration bumps the iteration counter by one.
func (m *Manager) IncrementIteration(sessionID string) (models.PipelineState, error) {
	return m.Update(sessionID, func(s *models.PipelineState) {
		s.IterationCount++
	})
}

// Complete transitions to the terminal COMPLETE phase.
func (m *Manager) Complete(sessionID string) (models.PipelineState, error) {
	return m.Update(sessionID, func(s *models.PipelineState) {
		s.CurrentPhase = models.PhaseComplete
		s.Timestamps.Completed = m.now().UTC()
	})
}

// Remove discards a session's snapshot.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
}
