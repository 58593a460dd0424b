// Package pipeline runs NightWatch as explicit phases coordinated through
// the message bus and state manager, with automatic fallback to the
// sequential runner when a critical phase fails.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nightwatchhq/nightwatch/pkg/agent"
	"github.com/nightwatchhq/nightwatch/pkg/analyzer"
	"github.com/nightwatchhq/nightwatch/pkg/bus"
	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/correlation"
	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/newrelic"
	"github.com/nightwatchhq/nightwatch/pkg/runner"
	"github.com/nightwatchhq/nightwatch/pkg/state"
)

// Metadata keys used in pipeline state.
const (
	metaTotalErrors    = "total_errors_found"
	metaErrorsFiltered = "errors_filtered"
	metaTraces         = "traces"
	metaCorrelatedPRs  = "correlated_prs"
	metaResearch       = "research"
	metaPatterns       = "patterns"
	metaReportSent     = "report_sent"
	metaValidation     = "validation_result"
)

// Phase defines one pipeline stage: either a custom handler or a set of
// agents, optionally fanned out per error.
type Phase struct {
	Name       models.ExecutionPhase
	AgentTypes []models.AgentType
	PerError   bool
	Custom     func(ctx context.Context, sessionID string) models.PhaseResult
}

// Pipeline executes NightWatch through explicit phases.
type Pipeline struct {
	settings *config.Settings
	deps     runner.Deps
	runner   *runner.Runner
	registry *agent.Registry
	bus      *bus.Bus
	state    *state.Manager
	logger   *slog.Logger
	now      func() time.Time

	opts       runner.Options
	phases     []Phase
	runContext *models.RunContext
}

// New assembles a pipeline sharing the runner's clients. The runner is
// both the fallback path and the source of client wiring.
func New(settings *config.Settings, deps runner.Deps) *Pipeline {
	p := &Pipeline{
		settings: settings,
		deps:     deps,
		runner:   runner.NewWithDeps(settings, deps),
		registry: agent.NewRegistry(),
		bus:      bus.New(),
		state:    state.NewManager(),
		logger:   slog.Default().With("component", "pipeline"),
		now:      time.Now,
	}
	p.registerAgents()
	p.phases = p.buildPhases()
	return p
}

func (p *Pipeline) registerAgents() {
	timeout := p.settings.AgentTimeout
	an := analyzer.New(p.deps.LLM, p.deps.GH, p.settings)

	p.registry.Register(models.AgentAnalyzer, func() agent.Agent {
		return agent.NewAnalyzerAgent(an, timeout, p.bus)
	})
	p.registry.Register(models.AgentResearcher, func() agent.Agent {
		return agent.NewResearcherAgent(p.deps.GH, timeout, p.bus)
	})
	p.registry.Register(models.AgentPatternDetector, func() agent.Agent {
		return agent.NewPatternDetectorAgent(p.deps.Store, 2, timeout, p.bus)
	})
	p.registry.Register(models.AgentReporter, func() agent.Agent {
		return agent.NewReporterAgent(p.deps.Slack, timeout, p.bus)
	})
	p.registry.Register(models.AgentValidator, func() agent.Agent {
		return agent.NewValidatorAgent(timeout, p.bus)
	})
}

func (p *Pipeline) buildPhases() []Phase {
	return []Phase{
		{Name: models.PhaseIngestion, Custom: p.runIngestion},
		{Name: models.PhaseEnrichment, AgentTypes: []models.AgentType{models.AgentResearcher}, PerError: true},
		{Name: models.PhaseAnalysis, AgentTypes: []models.AgentType{models.AgentAnalyzer}, PerError: true},
		{Name: models.PhaseSynthesis, AgentTypes: []models.AgentType{models.AgentPatternDetector}},
		{Name: models.PhaseReporting, AgentTypes: []models.AgentType{models.AgentReporter}},
		{Name: models.PhaseAction, AgentTypes: []models.AgentType{models.AgentValidator, models.AgentReporter}},
		{Name: models.PhaseLearning, Custom: p.runLearning},
	}
}

// criticalPhase reports whether a failure in the phase aborts the run.
func criticalPhase(phase models.ExecutionPhase) bool {
	return phase == models.PhaseIngestion || phase == models.PhaseAnalysis
}

// Execute runs all phases and returns a RunReport assembled from the
// final state. On critical failure it falls back to the sequential runner
// when enabled.
func (p *Pipeline) Execute(ctx context.Context, opts runner.Options) (*models.RunReport, error) {
	p.opts = opts
	p.runContext = models.NewRunContext()
	sessionID := uuid.NewString()
	start := p.now()

	defer func() {
		p.bus.ClearSession(sessionID)
		p.state.Remove(sessionID)
	}()

	p.state.Initialize(sessionID)

	for _, phase := range p.phases {
		if _, err := p.state.SetPhase(sessionID, phase.Name); err != nil {
			return p.fallback(ctx, opts, err)
		}
		p.bus.Broadcast(models.NewMessage(models.MessagePhaseComplete,
			map[string]any{"phase": phase.Name, "status": "starting"},
			"", "", sessionID, models.PriorityMedium))

		result := p.executePhase(ctx, phase, sessionID)
		if !result.Success {
			p.logger.Error("Phase failed", "phase", phase.Name, "error", result.ErrorMessage)
			if criticalPhase(phase.Name) {
				return p.fallback(ctx, opts,
					fmt.Errorf("critical phase %s failed: %s", phase.Name, result.ErrorMessage))
			}
		}
	}

	p.state.Complete(sessionID)
	final, err := p.state.Get(sessionID)
	if err != nil {
		return p.fallback(ctx, opts, err)
	}
	return p.buildReport(final, start), nil
}

func (p *Pipeline) fallback(ctx context.Context, opts runner.Options, cause error) (*models.RunReport, error) {
	if !p.settings.PipelineFallback {
		return nil, fmt.Errorf("pipeline failed and fallback is disabled: %w", cause)
	}
	p.logger.Warn("Pipeline failed, falling back to sequential runner", "error", cause)
	return p.runner.Run(ctx, opts)
}

func (p *Pipeline) executePhase(ctx context.Context, phase Phase, sessionID string) models.PhaseResult {
	start := p.now()
	if phase.Custom != nil {
		return phase.Custom(ctx, sessionID)
	}

	result := p.runAgentPhase(ctx, phase, sessionID)
	result.ExecutionTimeMS = float64(p.now().Sub(start).Milliseconds())
	return result
}

func (p *Pipeline) runAgentPhase(ctx context.Context, phase Phase, sessionID string) models.PhaseResult {
	agentResults := make(map[models.AgentType]*models.AgentResult)

	snapshot, err := p.state.Get(sessionID)
	if err != nil {
		return models.PhaseResult{Phase: phase.Name, ErrorMessage: err.Error()}
	}

	if phase.PerError {
		var analyses []models.ErrorAnalysisResult
		var research []*models.ResearchContext

		for i := range snapshot.ErrorsData {
			for _, agentType := range phase.AgentTypes {
				a, err := p.registry.Create(agentType)
				if err != nil {
					return models.PhaseResult{Phase: phase.Name, ErrorMessage: err.Error()}
				}
				ac := models.NewAgentContext(sessionID, sessionID)
				ac.DryRun = p.opts.DryRun
				p.buildAgentState(ac, phase.Name, agentType, snapshot, i)

				result := a.Execute(ctx, ac)
				agentResults[agentType] = &result

				if result.Success && result.Data != nil {
					switch data := result.Data.(type) {
					case models.ErrorAnalysisResult:
						analyses = append(analyses, data)
					case *models.ResearchContext:
						research = append(research, data)
					}
				} else if phase.Name == models.PhaseEnrichment {
					research = append(research, nil)
				}
			}
		}

		p.state.Update(sessionID, func(s *models.PipelineState) {
			if len(analyses) > 0 {
				s.AnalysesData = analyses
			}
			if phase.Name == models.PhaseEnrichment {
				s.Metadata[metaResearch] = research
			}
		})
	} else {
		for _, agentType := range phase.AgentTypes {
			a, err := p.registry.Create(agentType)
			if err != nil {
				return models.PhaseResult{Phase: phase.Name, ErrorMessage: err.Error()}
			}
			ac := models.NewAgentContext(sessionID, sessionID)
			ac.DryRun = p.opts.DryRun
			p.buildAgentState(ac, phase.Name, agentType, snapshot, -1)

			result := a.Execute(ctx, ac)
			agentResults[agentType] = &result
			p.storeAgentResult(sessionID, phase.Name, agentType, result)

			// Later agents in the same phase see earlier results.
			snapshot, _ = p.state.Get(sessionID)
		}
	}

	success := true
	for _, r := range agentResults {
		if !r.Success {
			success = false
		}
	}
	return models.PhaseResult{Phase: phase.Name, Success: success, AgentResults: agentResults}
}

// buildAgentState wires phase inputs into the agent context.
func (p *Pipeline) buildAgentState(ac *models.AgentContext, phase models.ExecutionPhase, agentType models.AgentType, snapshot models.PipelineState, errorIndex int) {
	traces, _ := snapshot.Metadata[metaTraces].([]models.TraceData)

	switch {
	case phase == models.PhaseEnrichment && agentType == models.AgentResearcher:
		if errorIndex >= 0 && errorIndex < len(snapshot.ErrorsData) {
			ac.State[agent.StateError] = snapshot.ErrorsData[errorIndex]
			if errorIndex < len(traces) {
				ac.State[agent.StateTraces] = traces[errorIndex]
			}
		}
		if prs, ok := snapshot.Metadata[metaCorrelatedPRs].([]models.CorrelatedPR); ok {
			e, _ := ac.State[agent.StateError].(models.ErrorGroup)
			ac.State[agent.StateCorrelatedPRs] = correlation.Correlate(e, prs)
		}

	case phase == models.PhaseAnalysis && agentType == models.AgentAnalyzer:
		if p.runContext != nil {
			ac.State[agent.StateRunContext] = p.runContext
		}
		if errorIndex >= 0 && errorIndex < len(snapshot.ErrorsData) {
			ac.State[agent.StateError] = snapshot.ErrorsData[errorIndex]
			if errorIndex < len(traces) {
				ac.State[agent.StateTraces] = traces[errorIndex]
			}
			if research, ok := snapshot.Metadata[metaResearch].([]*models.ResearchContext); ok {
				if errorIndex < len(research) && research[errorIndex] != nil {
					ac.State[agent.StateResearchContext] = research[errorIndex]
				}
			}
		}

	case phase == models.PhaseSynthesis && agentType == models.AgentPatternDetector:
		ac.State[agent.StateAnalyses] = snapshot.AnalysesData

	case (phase == models.PhaseReporting || phase == models.PhaseAction) && agentType == models.AgentReporter:
		ac.State[agent.StateReport] = p.interimReport(snapshot)

	case phase == models.PhaseAction && agentType == models.AgentValidator:
		for _, result := range snapshot.AnalysesData {
			if len(result.Analysis.FileChanges) > 0 {
				ac.State[agent.StateAnalysis] = result.Analysis
				break
			}
		}
	}
}

func (p *Pipeline) storeAgentResult(sessionID string, phase models.ExecutionPhase, agentType models.AgentType, result models.AgentResult) {
	if !result.Success || result.Data == nil {
		return
	}
	p.state.Update(sessionID, func(s *models.PipelineState) {
		switch {
		case phase == models.PhaseSynthesis && agentType == models.AgentPatternDetector:
			s.Metadata[metaPatterns] = result.Data
		case phase == models.PhaseReporting && agentType == models.AgentReporter:
			s.Metadata[metaReportSent] = true
		case phase == models.PhaseAction && agentType == models.AgentValidator:
			s.Metadata[metaValidation] = result.Data
		}
	})
}

// runIngestion fetches, filters, ranks, and traces errors, storing them
// in pipeline state.
func (p *Pipeline) runIngestion(ctx context.Context, sessionID string) models.PhaseResult {
	start := p.now()
	fail := func(err error) models.PhaseResult {
		return models.PhaseResult{
			Phase:           models.PhaseIngestion,
			ErrorMessage:    err.Error(),
			ExecutionTimeMS: float64(p.now().Sub(start).Milliseconds()),
		}
	}

	since := p.opts.Since
	if since == "" {
		since = p.settings.Since
	}
	maxErrors := p.opts.MaxErrors
	if maxErrors <= 0 {
		maxErrors = p.settings.MaxErrors
	}

	allErrors, err := p.deps.NR.FetchErrors(ctx, since)
	if err != nil {
		return fail(err)
	}
	ignorePatterns, err := config.LoadIgnorePatterns(runner.IgnoreFile)
	if err != nil {
		p.logger.Warn("Failed to load ignore patterns", "error", err)
	}
	filtered := newrelic.FilterErrors(allErrors, ignorePatterns)
	ranked := newrelic.RankErrors(filtered)
	topErrors := ranked
	if len(topErrors) > maxErrors {
		topErrors = topErrors[:maxErrors]
	}

	traces := make([]models.TraceData, len(topErrors))
	for i, e := range topErrors {
		t, err := p.deps.NR.FetchTraces(ctx, e, since)
		if err != nil {
			p.logger.Warn("Trace fetch failed", "class", e.ErrorClass, "error", err)
		}
		traces[i] = t
	}

	correlated, err := p.deps.GH.RecentMerged(ctx, 24*time.Hour)
	if err != nil {
		p.logger.Warn("PR correlation fetch failed", "error", err)
	}

	_, err = p.state.Update(sessionID, func(s *models.PipelineState) {
		s.ErrorsData = topErrors
		s.Metadata[metaTotalErrors] = len(allErrors)
		s.Metadata[metaErrorsFiltered] = len(allErrors) - len(filtered)
		s.Metadata[metaTraces] = traces
		s.Metadata[metaCorrelatedPRs] = correlated
	})
	if err != nil {
		return fail(err)
	}

	p.bus.Broadcast(models.NewMessage(models.MessageErrorsReady,
		map[string]any{"count": len(topErrors)}, "", "", sessionID, models.PriorityHigh))

	return models.PhaseResult{
		Phase:           models.PhaseIngestion,
		Success:         true,
		ExecutionTimeMS: float64(p.now().Sub(start).Milliseconds()),
	}
}

// runLearning persists analyses to the knowledge base.
func (p *Pipeline) runLearning(_ context.Context, sessionID string) models.PhaseResult {
	start := p.now()
	done := func(success bool, errMsg string) models.PhaseResult {
		return models.PhaseResult{
			Phase:           models.PhaseLearning,
			Success:         success,
			ErrorMessage:    errMsg,
			ExecutionTimeMS: float64(p.now().Sub(start).Milliseconds()),
		}
	}

	if p.opts.DryRun || !p.settings.CompoundEnabled {
		return done(true, "")
	}

	snapshot, err := p.state.Get(sessionID)
	if err != nil {
		return done(false, err.Error())
	}

	for _, result := range snapshot.AnalysesData {
		if _, err := p.deps.Store.CompoundResult(result); err != nil {
			p.logger.Warn("Knowledge compounding failed", "class", result.Error.ErrorClass, "error", err)
		}
		if result.QualityScore >= 0.7 && result.Analysis.RootCause != "" {
			desc := result.Analysis.RootCause
			if len(desc) > 500 {
				desc = desc[:500]
			}
			if _, err := p.deps.Store.SaveErrorPattern(result.Error.ErrorClass,
				result.Error.Transaction, desc, string(result.Analysis.Confidence)); err != nil {
				p.logger.Warn("Error pattern save failed", "error", err)
			}
		}
	}
	if err := p.deps.Store.RebuildIndex(); err != nil {
		p.logger.Warn("Index rebuild failed", "error", err)
	}
	return done(true, "")
}

func (p *Pipeline) buildReport(final models.PipelineState, start time.Time) *models.RunReport {
	analyses := final.AnalysesData
	totalTokens, totalCalls := 0, 0
	for _, a := range analyses {
		totalTokens += a.TokensUsed
		totalCalls += a.APICalls
	}

	report := &models.RunReport{
		Timestamp:          p.now().UTC().Format(time.RFC3339),
		Lookback:           p.opts.Since,
		ErrorsAnalyzed:     len(analyses),
		Analyses:           analyses,
		TotalTokensUsed:    totalTokens,
		TotalAPICalls:      totalCalls,
		RunDurationSeconds: p.now().Sub(start).Seconds(),
	}
	if n, ok := final.Metadata[metaTotalErrors].(int); ok {
		report.TotalErrorsFound = n
	}
	if n, ok := final.Metadata[metaErrorsFiltered].(int); ok {
		report.ErrorsFiltered = n
	}
	if patterns, ok := final.Metadata[metaPatterns].([]models.DetectedPattern); ok {
		report.Patterns = patterns
	}
	return report
}

func (p *Pipeline) interimReport(snapshot models.PipelineState) *models.RunReport {
	report := p.buildReport(snapshot, snapshot.Timestamps.Started)
	report.Lookback = p.opts.Since
	return report
}
