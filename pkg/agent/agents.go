package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/analyzer"
	"github.com/nightwatchhq/nightwatch/pkg/bus"
	"github.com/nightwatchhq/nightwatch/pkg/knowledge"
	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/patterns"
	"github.com/nightwatchhq/nightwatch/pkg/research"
	"github.com/nightwatchhq/nightwatch/pkg/slack"
	"github.com/nightwatchhq/nightwatch/pkg/validation"
)

// Well-known AgentContext.State keys used to pass inputs to agents.
const (
	StateError           = "error"
	StateTraces          = "traces"
	StateRunContext      = "run_context"
	StatePriorAnalyses   = "prior_analyses"
	StateResearchContext = "research_context"
	StatePriorContext    = "prior_context"
	StateCorrelatedPRs   = "correlated_prs"
	StateAnalyses        = "analyses"
	StateAnalysis        = "analysis"
	StateReport          = "report"
)

// AnalyzerAgent wraps the analysis loop as a pipeline agent.
type AnalyzerAgent struct {
	Base
	analyzer *analyzer.Analyzer
}

// NewAnalyzerAgent creates the analyzer agent.
func NewAnalyzerAgent(a *analyzer.Analyzer, timeout time.Duration, messageBus *bus.Bus) *AnalyzerAgent {
	return &AnalyzerAgent{Base: NewBase("analyzer", timeout, messageBus), analyzer: a}
}

func (a *AnalyzerAgent) Type() models.AgentType { return models.AgentAnalyzer }

func (a *AnalyzerAgent) Execute(ctx context.Context, ac *models.AgentContext) models.AgentResult {
	return a.ExecuteWithTimeout(ctx, func(opCtx context.Context) (models.AgentResult, error) {
		e, ok := ac.State[StateError].(models.ErrorGroup)
		if !ok {
			return models.AgentResult{}, fmt.Errorf("analyzer agent: missing %q in state", StateError)
		}
		traces, _ := ac.State[StateTraces].(models.TraceData)

		opts := analyzer.Options{}
		if rc, ok := ac.State[StateRunContext].(*models.RunContext); ok {
			opts.RunContext = rc
		}
		if prior, ok := ac.State[StatePriorAnalyses].([]models.PriorAnalysis); ok {
			opts.Prior = prior
		}
		if rctx, ok := ac.State[StateResearchContext].(*models.ResearchContext); ok {
			opts.Research = rctx
		}
		if pc, ok := ac.State[StatePriorContext].(string); ok {
			opts.PriorContext = pc
		}

		result, err := a.analyzer.AnalyzeError(opCtx, e, traces, opts)
		if err != nil {
			return models.AgentResult{}, err
		}
		return models.AgentResult{
			Success:    true,
			Data:       result,
			Confidence: result.Analysis.Confidence.Float(),
		}, nil
	})
}

// ResearcherAgent wraps pre-analysis research as a pipeline agent.
type ResearcherAgent struct {
	Base
	reader research.FileReader
}

// NewResearcherAgent creates the researcher agent.
func NewResearcherAgent(reader research.FileReader, timeout time.Duration, messageBus *bus.Bus) *ResearcherAgent {
	return &ResearcherAgent{Base: NewBase("researcher", timeout, messageBus), reader: reader}
}

func (a *ResearcherAgent) Type() models.AgentType { return models.AgentResearcher }

func (a *ResearcherAgent) Execute(ctx context.Context, ac *models.AgentContext) models.AgentResult {
	return a.ExecuteWithTimeout(ctx, func(opCtx context.Context) (models.AgentResult, error) {
		e, ok := ac.State[StateError].(models.ErrorGroup)
		if !ok {
			return models.AgentResult{}, fmt.Errorf("researcher agent: missing %q in state", StateError)
		}
		traces, _ := ac.State[StateTraces].(models.TraceData)
		correlated, _ := ac.State[StateCorrelatedPRs].([]models.CorrelatedPR)
		prior, _ := ac.State[StatePriorAnalyses].([]models.PriorAnalysis)

		rctx := research.ResearchError(opCtx, e, traces, a.reader, correlated, prior)
		return models.AgentResult{Success: true, Data: rctx}, nil
	})
}

// PatternDetectorAgent wraps cross-error pattern detection.
type PatternDetectorAgent struct {
	Base
	store          *knowledge.Store
	minClusterSize int
}

// NewPatternDetectorAgent creates the pattern detector agent.
func NewPatternDetectorAgent(store *knowledge.Store, minClusterSize int, timeout time.Duration, messageBus *bus.Bus) *PatternDetectorAgent {
	return &PatternDetectorAgent{
		Base:           NewBase("pattern_detector", timeout, messageBus),
		store:          store,
		minClusterSize: minClusterSize,
	}
}

func (a *PatternDetectorAgent) Type() models.AgentType { return models.AgentPatternDetector }

func (a *PatternDetectorAgent) Execute(ctx context.Context, ac *models.AgentContext) models.AgentResult {
	return a.ExecuteWithTimeout(ctx, func(context.Context) (models.AgentResult, error) {
		analyses, ok := ac.State[StateAnalyses].([]models.ErrorAnalysisResult)
		if !ok {
			return models.AgentResult{}, fmt.Errorf("pattern detector agent: missing %q in state", StateAnalyses)
		}
		detected := patterns.DetectWithKnowledge(analyses, a.store, a.minClusterSize)
		return models.AgentResult{Success: true, Data: detected}, nil
	})
}

// ReporterAgent delivers run reports through Slack when configured.
type ReporterAgent struct {
	Base
	slack *slack.Client // nil when Slack is not configured
}

// NewReporterAgent creates the reporter agent. A nil Slack client makes
// report delivery a no-op.
func NewReporterAgent(slackClient *slack.Client, timeout time.Duration, messageBus *bus.Bus) *ReporterAgent {
	return &ReporterAgent{Base: NewBase("reporter", timeout, messageBus), slack: slackClient}
}

func (a *ReporterAgent) Type() models.AgentType { return models.AgentReporter }

func (a *ReporterAgent) Execute(ctx context.Context, ac *models.AgentContext) models.AgentResult {
	return a.ExecuteWithTimeout(ctx, func(opCtx context.Context) (models.AgentResult, error) {
		sent := false
		if report, ok := ac.State[StateReport].(*models.RunReport); ok && a.slack != nil && !ac.DryRun {
			sent = a.slack.SendReport(opCtx, report)
		}
		return models.AgentResult{
			Success: true,
			Data:    map[string]any{"slack_sent": sent},
		}, nil
	})
}

// ValidatorAgent wraps fix validation.
type ValidatorAgent struct {
	Base
	orchestrator *validation.Orchestrator
}

// NewValidatorAgent creates the validator agent.
func NewValidatorAgent(timeout time.Duration, messageBus *bus.Bus) *ValidatorAgent {
	return &ValidatorAgent{
		Base:         NewBase("validator", timeout, messageBus),
		orchestrator: validation.NewOrchestrator(),
	}
}

func (a *ValidatorAgent) Type() models.AgentType { return models.AgentValidator }

func (a *ValidatorAgent) Execute(ctx context.Context, ac *models.AgentContext) models.AgentResult {
	return a.ExecuteWithTimeout(ctx, func(context.Context) (models.AgentResult, error) {
		analysis, ok := ac.State[StateAnalysis].(models.Analysis)
		if !ok {
			return models.AgentResult{}, fmt.Errorf("validator agent: missing %q in state", StateAnalysis)
		}
		result := a.orchestrator.Validate(analysis.FileChanges, &validation.Context{
			Confidence: analysis.Confidence,
			RootCause:  analysis.RootCause,
			Reasoning:  analysis.Reasoning,
		})
		confidence := 0.0
		if result.Valid {
			confidence = 1.0
		}
		return models.AgentResult{Success: true, Data: result, Confidence: confidence}, nil
	})
}
