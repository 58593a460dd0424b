package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/agent"
	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/newrelic"
	"github.com/nightwatchhq/nightwatch/pkg/runner"
)

func testSettings() *config.Settings {
	return &config.Settings{AgentTimeout: time.Minute}
}

func passPhase(name models.ExecutionPhase) Phase {
	return Phase{Name: name, Custom: func(context.Context, string) models.PhaseResult {
		return models.PhaseResult{Phase: name, Success: true}
	}}
}

func failPhase(name models.ExecutionPhase, msg string) Phase {
	return Phase{Name: name, Custom: func(context.Context, string) models.PhaseResult {
		return models.PhaseResult{Phase: name, ErrorMessage: msg}
	}}
}

func TestNew_PhaseOrder(t *testing.T) {
	p := New(testSettings(), runner.Deps{})

	var names []models.ExecutionPhase
	for _, phase := range p.phases {
		names = append(names, phase.Name)
	}

	assert.Equal(t, []models.ExecutionPhase{
		models.PhaseIngestion,
		models.PhaseEnrichment,
		models.PhaseAnalysis,
		models.PhaseSynthesis,
		models.PhaseReporting,
		models.PhaseAction,
		models.PhaseLearning,
	}, names)
}

func TestCriticalPhase(t *testing.T) {
	assert.True(t, criticalPhase(models.PhaseIngestion))
	assert.True(t, criticalPhase(models.PhaseAnalysis))
	assert.False(t, criticalPhase(models.PhaseEnrichment))
	assert.False(t, criticalPhase(models.PhaseReporting))
	assert.False(t, criticalPhase(models.PhaseLearning))
}

func TestExecute_NonCriticalFailureContinues(t *testing.T) {
	p := New(testSettings(), runner.Deps{})
	p.phases = []Phase{
		passPhase(models.PhaseIngestion),
		failPhase(models.PhaseSynthesis, "detector crashed"),
		passPhase(models.PhaseLearning),
	}

	report, err := p.Execute(context.Background(), runner.Options{DryRun: true})

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.ErrorsAnalyzed)
}

func TestExecute_CriticalFailureAbortsWithoutFallback(t *testing.T) {
	settings := testSettings()
	settings.PipelineFallback = false
	p := New(settings, runner.Deps{})
	p.phases = []Phase{failPhase(models.PhaseIngestion, "no errors fetched")}

	_, err := p.Execute(context.Background(), runner.Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback is disabled")
	assert.Contains(t, err.Error(), "critical phase ingestion failed")
}

func TestExecute_CriticalFailureFallsBackToRunner(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	settings := testSettings()
	settings.PipelineFallback = true
	settings.Since = "24 hours"
	settings.MaxErrors = 5
	deps := runner.Deps{NR: newrelic.NewClientWithEndpoint("key", "1", "app", server.URL)}
	p := New(settings, deps)

	_, err := p.Execute(context.Background(), runner.Options{})

	// Both the pipeline ingestion and the fallback runner hit the failing
	// endpoint, so the runner's error surfaces.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch errors")
}

func TestBuildAgentState_SeedsAnalysisInputs(t *testing.T) {
	p := New(testSettings(), runner.Deps{})
	p.runContext = models.NewRunContext()
	snapshot := models.PipelineState{
		ErrorsData: []models.ErrorGroup{{ErrorClass: "KeyError", Transaction: "sync"}},
		Metadata: map[string]any{
			metaTraces:   []models.TraceData{{}},
			metaResearch: []*models.ResearchContext{{LikelyFiles: []string{"app/jobs/sync.rb"}}},
		},
	}
	ac := models.NewAgentContext("s1", "s1")

	p.buildAgentState(ac, models.PhaseAnalysis, models.AgentAnalyzer, snapshot, 0)

	assert.Same(t, p.runContext, ac.State[agent.StateRunContext])
	e, ok := ac.State[agent.StateError].(models.ErrorGroup)
	require.True(t, ok)
	assert.Equal(t, "KeyError", e.ErrorClass)
	rctx, ok := ac.State[agent.StateResearchContext].(*models.ResearchContext)
	require.True(t, ok)
	assert.Equal(t, []string{"app/jobs/sync.rb"}, rctx.LikelyFiles)
}
