package models

import "time"

// AgentType tags the registered kind of an agent.
type AgentType string

const (
	AgentAnalyzer        AgentType = "analyzer"
	AgentResearcher      AgentType = "researcher"
	AgentPatternDetector AgentType = "pattern_detector"
	AgentReporter        AgentType = "reporter"
	AgentValidator       AgentType = "validator"
)

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	AgentStatusIdle      AgentStatus = "idle"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusWaiting   AgentStatus = "waiting"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
)

// Agent error codes surfaced in AgentResult.ErrorCode.
const (
	ErrorCodeTimeout        = "TIMEOUT"
	ErrorCodeExecutionError = "EXECUTION_ERROR"
)

// AgentExecConfig holds per-agent execution parameters.
type AgentExecConfig struct {
	Name           string
	Model          string
	ThinkingBudget int
	MaxTokens      int
	MaxIterations  int
	Timeout        time.Duration
	Retries        int
	Tools          []string
}

// AgentResult is the outcome of one agent execution.
type AgentResult struct {
	Success         bool
	Data            any
	Confidence      float64
	ExecutionTimeMS float64
	ErrorMessage    string
	ErrorCode       string
	Recoverable     bool
	Suggestions     []string
	Metadata        map[string]any
}

// AgentContext carries runtime state into an agent execution. State holds
// the dependencies and inputs the concrete agent expects (wired by the
// pipeline), keyed by well-known names.
type AgentContext struct {
	SessionID string
	RunID     string
	State     map[string]any
	DryRun    bool
}

// NewAgentContext creates an AgentContext with an initialized state map.
func NewAgentContext(sessionID, runID string) *AgentContext {
	return &AgentContext{
		SessionID: sessionID,
		RunID:     runID,
		State:     make(map[string]any),
	}
}
