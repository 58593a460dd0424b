package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func TestInitialize_StartsInIngestion(t *testing.T) {
	m := NewManager()

	s := m.Initialize("s1")

	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, models.PhaseIngestion, s.CurrentPhase)
	assert.False(t, s.Timestamps.Started.IsZero())
	assert.Equal(t, s.Timestamps.Started, s.Timestamps.LastUpdated)
}

func TestGet_UnknownSession(t *testing.T) {
	m := NewManager()

	_, err := m.Get("missing")

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdate_BumpsLastUpdated(t *testing.T) {
	m := NewManager()
	clock := time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	m.Initialize("s1")

	clock = clock.Add(time.Minute)
	s, err := m.Update("s1", func(s *models.PipelineState) {
		s.Metadata["model"] = "claude"
	})

	require.NoError(t, err)
	assert.Equal(t, clock, s.Timestamps.LastUpdated)
	assert.Equal(t, "claude", s.Metadata["model"])
}

func TestUpdate_UnknownSession(t *testing.T) {
	m := NewManager()

	_, err := m.Update("missing", func(*models.PipelineState) {})

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSnapshot_IsolatedFromLaterMutations(t *testing.T) {
	m := NewManager()
	m.Initialize("s1")

	before, err := m.Get("s1")
	require.NoError(t, err)

	_, err = m.Update("s1", func(s *models.PipelineState) {
		s.Metadata["key"] = "new"
		s.ErrorsData = append(s.ErrorsData, models.ErrorGroup{ErrorClass: "KeyError"})
	})
	require.NoError(t, err)

	assert.Empty(t, before.Metadata)
	assert.Empty(t, before.ErrorsData)
}

func TestSetPhase_StampsPhaseStarted(t *testing.T) {
	m := NewManager()
	m.Initialize("s1")

	s, err := m.SetPhase("s1", models.PhaseAnalysis)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseAnalysis, s.CurrentPhase)
	assert.False(t, s.Timestamps.PhaseStarted.IsZero())
}

func TestIncrementIteration(t *testing.T) {
	m := NewManager()
	m.Initialize("s1")

	_, err := m.IncrementIteration("s1")
	require.NoError(t, err)
	s, err := m.IncrementIteration("s1")

	require.NoError(t, err)
	assert.Equal(t, 2, s.IterationCount)
}

func TestComplete_TerminalPhase(t *testing.T) {
	m := NewManager()
	m.Initialize("s1")

	s, err := m.Complete("s1")

	require.NoError(t, err)
	assert.Equal(t, models.PhaseComplete, s.CurrentPhase)
	assert.False(t, s.Timestamps.Completed.IsZero())
}

func TestRemove(t *testing.T) {
	m := NewManager()
	m.Initialize("s1")

	m.Remove("s1")

	_, err := m.Get("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
