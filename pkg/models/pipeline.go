package models

import "time"

// ExecutionPhase is a stage of the orchestration pipeline.
type ExecutionPhase string

const (
	PhaseIngestion  ExecutionPhase = "ingestion"
	PhaseEnrichment ExecutionPhase = "enrichment"
	PhaseAnalysis   ExecutionPhase = "analysis"
	PhaseSynthesis  ExecutionPhase = "synthesis"
	PhaseReporting  ExecutionPhase = "reporting"
	PhaseAction     ExecutionPhase = "action"
	PhaseLearning   ExecutionPhase = "learning"
	PhaseComplete   ExecutionPhase = "complete"
)

// PipelineTimestamps records when pipeline milestones happened.
type PipelineTimestamps struct {
	Started      time.Time
	PhaseStarted time.Time
	LastUpdated  time.Time
	Completed    time.Time
}

// PipelineState is an immutable snapshot of pipeline execution state.
// Mutations go through the state manager, which clones and republishes;
// callers holding an older snapshot never observe later updates.
type PipelineState struct {
	SessionID      string
	CurrentPhase   ExecutionPhase
	IterationCount int
	AgentResults   map[string]any
	Timestamps     PipelineTimestamps
	ErrorsData     []ErrorGroup
	AnalysesData   []ErrorAnalysisResult
	Metadata       map[string]any
}

/// Clone returns a deep-enough copy: maps and slices are copied so that
// mutating the clone never affects the original snapshot.
func (s PipelineState) Clone() PipelineState {
	out := s
	out.AgentResults = make(map[string]any, len(s.AgentResults))
	for k, v := range s.AgentResults {
		out.AgentResults[k] = v
	}
	out.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	out.ErrorsData = append([]ErrorGroup(nil), s.ErrorsData...)
	out.AnalysesData = append([]ErrorAnalysisResult(nil), s.AnalysesData...)
	return out
}

// PhaseResult records the outcome of a single pipeline phase.
type PhaseResult struct {
	Phase           ExecutionPhase
	Success         bool
	AgentResults    map[AgentType]*AgentResult
	ExecutionTimeMS float64
	ErrorMessage    string
}
