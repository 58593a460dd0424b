// Package runner drives the sequential NightWatch pipeline:
// fetch, rank, trace, analyze, report, issues, PR, notify, compound.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nightwatchhq/nightwatch/pkg/analyzer"
	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/correlation"
	"github.com/nightwatchhq/nightwatch/pkg/github"
	"github.com/nightwatchhq/nightwatch/pkg/guardrails"
	"github.com/nightwatchhq/nightwatch/pkg/health"
	"github.com/nightwatchhq/nightwatch/pkg/history"
	"github.com/nightwatchhq/nightwatch/pkg/knowledge"
	"github.com/nightwatchhq/nightwatch/pkg/llm"
	"github.com/nightwatchhq/nightwatch/pkg/masking"
	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/newrelic"
	"github.com/nightwatchhq/nightwatch/pkg/patterns"
	"github.com/nightwatchhq/nightwatch/pkg/quality"
	"github.com/nightwatchhq/nightwatch/pkg/research"
	"github.com/nightwatchhq/nightwatch/pkg/slack"
	"github.com/nightwatchhq/nightwatch/pkg/validation"
)

// IgnoreFile is the default path for ingestion ignore patterns.
const IgnoreFile = "ignore.yml"

const (
	minClusterSize    = 2
	ignoreMinOccur    = 3
	correlationWindow = 24 * time.Hour
	errorPause        = 5 * time.Second
)

// Runner executes the full pipeline with injected clients.
type Runner struct {
	settings *config.Settings
	nr       *newrelic.Client
	gh       *github.Client
	llm      *llm.Client
	analyzer *analyzer.Analyzer
	slack    *slack.Client // nil disables Slack delivery
	store    *knowledge.Store
	history  *history.Recorder
	quality  *quality.Tracker
	mask     *masking.Service
	logger   *slog.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

// Deps holds the injectable clients for a Runner. Nil Slack disables
// notifications; everything else is required.
type Deps struct {
	NR      *newrelic.Client
	GH      *github.Client
	LLM     *llm.Client
	Slack   *slack.Client
	Store   *knowledge.Store
	History *history.Recorder
	Quality *quality.Tracker
}

// BuildDeps constructs real clients from settings. Slack stays nil unless
// both the bot token and the notify user are configured.
func BuildDeps(settings *config.Settings) Deps {
	var slackClient *slack.Client
	if settings.SlackBotToken != "" && settings.SlackNotifyUser != "" {
		slackClient = slack.NewClient(settings.SlackBotToken, settings.SlackNotifyUser)
	}
	return Deps{
		NR:      newrelic.NewClient(settings.NewRelicAPIKey, settings.NewRelicAccountID, settings.NewRelicAppName),
		GH:      github.NewClient(settings.GitHubToken, settings.GitHubRepo, settings.GitHubBaseBranch),
		LLM:     llm.NewClient(settings.AnthropicAPIKey, settings.Model),
		Slack:   slackClient,
		Store:   knowledge.NewStore(settings.KnowledgeDir),
		History: history.NewRecorder(settings.HistoryDir),
		Quality: quality.NewTracker(filepath.Join(settings.HistoryDir, "quality")),
	}
}

// New assembles a Runner with real clients built from settings.
func New(settings *config.Settings) *Runner {
	return NewWithDeps(settings, BuildDeps(settings))
}

// NewWithDeps assembles a Runner from pre-built clients.
func NewWithDeps(settings *config.Settings, deps Deps) *Runner {
	return &Runner{
		settings: settings,
		nr:       deps.NR,
		gh:       deps.GH,
		llm:      deps.LLM,
		analyzer: analyzer.New(deps.LLM, deps.GH, settings),
		slack:    deps.Slack,
		store:    deps.Store,
		history:  deps.History,
		quality:  deps.Quality,
		mask:     masking.NewService(),
		logger:   slog.Default().With("component", "runner"),
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// Options are per-run overrides. Zero values fall back to settings.
type Options struct {
	Since     string
	MaxErrors int
	MaxIssues int
	DryRun    bool
	Model     string
	AgentName string
}

func (o Options) resolve(s *config.Settings) Options {
	if o.Since == "" {
		o.Since = s.Since
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = s.MaxErrors
	}
	if o.MaxIssues <= 0 {
		o.MaxIssues = s.MaxIssues
	}
	if o.AgentName == "" {
		o.AgentName = "base-analyzer"
	}
	return o
}

// Run executes the full pipeline and returns the run report.
func (r *Runner) Run(ctx context.Context, opts Options) (*models.RunReport, error) {
	opts = opts.resolve(r.settings)
	start := r.now()

	r.logger.Info("NightWatch starting", "since", opts.Since)
	if opts.DryRun {
		r.logger.Info("DRY RUN: no issues, PRs, or Slack messages will be created")
	}

	// Fetch and rank errors.
	allErrors, err := r.nr.FetchErrors(ctx, opts.Since)
	if err != nil {
		return nil, fmt.Errorf("fetch errors: %w", err)
	}

	ignorePatterns, err := config.LoadIgnorePatterns(IgnoreFile)
	if err != nil {
		r.logger.Warn("Failed to load ignore patterns", "error", err)
	}
	filtered := newrelic.FilterErrors(allErrors, ignorePatterns)
	errorsFiltered := len(allErrors) - len(filtered)

	ranked := newrelic.RankErrors(filtered)
	topErrors := ranked
	if len(topErrors) > opts.MaxErrors {
		topErrors = topErrors[:opts.MaxErrors]
	}
	r.logger.Info("Errors selected for analysis",
		"selected", len(topErrors), "filtered", errorsFiltered)

	// Fetch traces concurrently, masking secrets before anything
	// reaches a prompt. Failures leave empty trace data for that error.
	tracesByIndex := make([]models.TraceData, len(topErrors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, e := range topErrors {
		g.Go(func() error {
			r.logger.Info("Fetching traces", "index", i+1, "total", len(topErrors), "class", e.ErrorClass)
			traces, err := r.nr.FetchTraces(gctx, e, opts.Since)
			if err != nil {
				r.logger.Warn("Trace fetch failed", "class", e.ErrorClass, "error", err)
			}
			tracesByIndex[i] = r.maskTraces(traces)
			return nil
		})
	}
	_ = g.Wait()

	// Prior knowledge per error.
	priorByIndex := make([][]models.PriorAnalysis, len(topErrors))
	if r.settings.CompoundEnabled {
		r.logger.Info("Searching knowledge base for prior analyses")
		for i, e := range topErrors {
			prior := r.store.SearchPrior(e, 3)
			if len(prior) > 0 {
				priorByIndex[i] = prior
				r.logger.Info("Found prior analyses", "class", e.ErrorClass, "count", len(prior))
			}
		}
	}

	// Pre-analysis research with PR correlation.
	correlatedEarly, err := r.gh.RecentMerged(ctx, correlationWindow)
	if err != nil {
		r.logger.Warn("PR correlation fetch failed", "error", err)
	}
	researchByIndex := make([]*models.ResearchContext, len(topErrors))
	for i, e := range topErrors {
		rctx := research.ResearchError(ctx, e, tracesByIndex[i], r.gh,
			correlation.Correlate(e, correlatedEarly), priorByIndex[i])
		if len(rctx.LikelyFiles) > 0 || len(rctx.FilePreviews) > 0 {
			researchByIndex[i] = rctx
			r.logger.Info("Research complete", "class", e.ErrorClass,
				"files", len(rctx.LikelyFiles), "previews", len(rctx.FilePreviews))
		}
	}

	// Analyze each error with cross-error context sharing.
	runContext := models.NewRunContext()
	healthReport := health.NewReport()
	healthReport.CheckConfiguration(r.settings)

	var analyses []models.ErrorAnalysisResult
	var crossErrorContext []string
	multiPassRetries := 0

	for i, e := range topErrors {
		r.logger.Info("Analyzing error", "index", i+1, "total", len(topErrors),
			"class", e.ErrorClass, "transaction", e.Transaction, "occurrences", e.Occurrences)

		var priorText string
		if len(crossErrorContext) > 0 {
			recent := crossErrorContext
			if len(recent) > 4 {
				recent = recent[len(recent)-4:]
			}
			priorText = "Previously Analyzed Errors:\n" + strings.Join(recent, "\n")
		}

		result, err := r.analyzer.AnalyzeError(ctx, e, tracesByIndex[i], analyzer.Options{
			RunContext:   runContext,
			Prior:        priorByIndex[i],
			Research:     researchByIndex[i],
			PriorContext: priorText,
		})
		if err != nil {
			r.logger.Error("Analysis failed", "class", e.ErrorClass, "error", err)
			healthReport.RecordAnalysis(false, 0, err.Error())
		} else {
			analyses = append(analyses, result)
			crossErrorContext = append(crossErrorContext, crossErrorSummary(i+1, e, result))
			if result.PassCount > 1 {
				multiPassRetries++
			}
			healthReport.RecordAnalysis(true, result.TokensUsed, "")
			r.quality.RecordSignal(quality.Signal{
				ErrorClass:     e.ErrorClass,
				Transaction:    e.Transaction,
				Confidence:     result.Analysis.Confidence.Float(),
				IterationsUsed: result.Iterations,
				TokensUsed:     result.TokensUsed,
				HadFileChanges: len(result.Analysis.FileChanges) > 0,
				HadRootCause:   result.Analysis.RootCause != "",
			})
		}

		if i < len(topErrors)-1 {
			r.sleep(errorPause)
		}
	}

	if err := r.quality.Save(); err != nil {
		r.logger.Warn("Failed to save quality signals", "error", err)
	}
	r.logger.Info("Health",
		"status", healthReport.ComputeStatus(),
		"success_rate", healthReport.SuccessRate(),
		"cost_usd", healthReport.EstimateCost())

	// Build the report.
	totalTokens, totalCalls := 0, 0
	for _, a := range analyses {
		totalTokens += a.TokensUsed
		totalCalls += a.APICalls
	}
	report := &models.RunReport{
		Timestamp:          r.now().UTC().Format(time.RFC3339),
		Lookback:           opts.Since,
		TotalErrorsFound:   len(allErrors),
		ErrorsFiltered:     errorsFiltered,
		ErrorsAnalyzed:     len(analyses),
		Analyses:           analyses,
		TotalTokensUsed:    totalTokens,
		TotalAPICalls:      totalCalls,
		RunDurationSeconds: r.now().Sub(start).Seconds(),
		MultiPassRetries:   multiPassRetries,
	}

	// Cross-error patterns and ignore suggestions.
	report.Patterns = patterns.DetectWithKnowledge(analyses, r.store, minClusterSize)
	if len(report.Patterns) > 0 {
		r.logger.Info("Detected cross-error patterns", "count", len(report.Patterns))
	}
	ignores := patterns.SuggestIgnoreUpdates(analyses, IgnoreFile, ignoreMinOccur)
	if len(ignores) > 0 {
		report.IgnoreSuggestions = ignores
		r.logger.Info("Generated ignore suggestions", "count", len(ignores))
	}

	r.logger.Info("Analysis complete",
		"analyzed", report.ErrorsAnalyzed,
		"fixes", report.FixesFound(),
		"high_confidence", report.HighConfidence())

	if opts.DryRun {
		return report, nil
	}

	// Slack summary.
	if r.slack != nil {
		r.slack.SendReport(ctx, report)
	}

	// Issue creation under the WIP limit.
	candidates := SelectForIssues(analyses, opts.MaxIssues)
	openCount, err := r.gh.OpenTrackedCount(ctx)
	if err != nil {
		r.logger.Warn("Open issue count failed", "error", err)
	}
	slots := r.settings.MaxOpenIssues - openCount
	if slots < 0 {
		slots = 0
	}
	switch {
	case slots == 0:
		r.logger.Warn("WIP limit reached, skipping issue creation",
			"open", openCount, "max", r.settings.MaxOpenIssues)
		candidates = nil
	case slots < len(candidates):
		r.logger.Info("WIP limit reduces issue candidates",
			"slots", slots, "candidates", len(candidates))
		candidates = candidates[:slots]
	}

	correlatedPRs, _ := r.gh.RecentMerged(ctx, correlationWindow)
	issuesCreated := r.createIssues(ctx, candidates, correlatedPRs)
	report.IssuesCreated = issuesCreated

	// One draft PR per run, gated on validation.
	prResult, prSource, prValidationFailures := r.createDraftPR(ctx, analyses, issuesCreated)
	report.PRCreated = prResult
	report.PRValidationFailures = prValidationFailures

	// Follow-up with links.
	if r.slack != nil && (len(issuesCreated) > 0 || prResult != nil) {
		r.slack.SendFollowup(ctx, issuesCreated, prResult)
	}

	// Compound: persist knowledge.
	if r.settings.CompoundEnabled {
		r.compound(analyses, report, issuesCreated, prResult, prSource)
	}

	// Run history and guardrails.
	entry := buildHistoryEntry(analyses, report, len(issuesCreated), prResult != nil)
	if err := r.history.SaveRun(entry); err != nil {
		r.logger.Warn("Failed to save run history", "error", err)
	}
	if path := r.settings.GuardrailsOutput; path != "" {
		if err := guardrails.Generate(entry, path); err != nil {
			r.logger.Warn("Guardrails generation failed", "error", err)
		} else {
			r.logger.Info("Guardrails written", "path", path)
		}
	}

	report.RunDurationSeconds = r.now().Sub(start).Seconds()
	r.logger.Info("NightWatch complete",
		"issues", len(issuesCreated),
		"pr", prResult != nil,
		"duration_s", report.RunDurationSeconds)
	return report, nil
}

func (r *Runner) maskTraces(traces models.TraceData) models.TraceData {
	out := models.TraceData{
		TransactionErrors: make([]map[string]any, len(traces.TransactionErrors)),
		ErrorTraces:       make([]map[string]any, len(traces.ErrorTraces)),
	}
	for i, row := range traces.TransactionErrors {
		out.TransactionErrors[i] = r.mask.MaskTraceRow(row)
	}
	for i, row := range traces.ErrorTraces {
		out.ErrorTraces[i] = r.mask.MaskTraceRow(row)
	}
	return out
}

func (r *Runner) createIssues(ctx context.Context, candidates []models.ErrorAnalysisResult, correlatedPRs []models.CorrelatedPR) []models.CreatedIssueResult {
	var created []models.CreatedIssueResult
	for _, result := range candidates {
		existing, err := r.gh.FindExistingIssue(ctx, result.Error)
		if err != nil {
			r.logger.Error("Issue lookup failed", "class", result.Error.ErrorClass, "error", err)
			continue
		}
		if existing != nil {
			if err := r.gh.AddOccurrenceComment(ctx, existing, result); err != nil {
				r.logger.Error("Occurrence comment failed", "issue", existing.Number, "error", err)
				continue
			}
			created = append(created, models.CreatedIssueResult{
				Error:       result.Error,
				Analysis:    result.Analysis,
				Action:      models.IssueActionCommented,
				IssueNumber: existing.Number,
				IssueURL:    existing.HTMLURL,
			})
			continue
		}

		related := correlation.Correlate(result.Error, correlatedPRs)
		issue, err := r.gh.CreateIssue(ctx, result, related)
		if err != nil {
			r.logger.Error("Issue creation failed", "class", result.Error.ErrorClass, "error", err)
			continue
		}
		created = append(created, models.CreatedIssueResult{
			Error:       result.Error,
			Analysis:    result.Analysis,
			Action:      models.IssueActionCreated,
			IssueNumber: issue.Number,
			IssueURL:    issue.HTMLURL,
		})
	}
	return created
}

// createDraftPR validates the best fix candidate and opens a single draft
// PR. Returns the PR, the result it came from, and the gate failure count.
func (r *Runner) createDraftPR(ctx context.Context, analyses []models.ErrorAnalysisResult, issuesCreated []models.CreatedIssueResult) (*models.CreatedPRResult, *models.ErrorAnalysisResult, int) {
	best, issueNumber := BestFixCandidate(analyses, issuesCreated)
	if best == nil {
		return nil, nil, 0
	}

	failures := 0
	if r.settings.QualityGateEnabled && len(best.Analysis.FileChanges) > 0 {
		v := r.validate(best.Analysis)
		if !v.Valid {
			r.logger.Warn("Quality gate failed", "errors", len(v.BlockingErrors))
			if !r.settings.QualityGateCorrection {
				r.logger.Warn("Skipping PR (correction disabled)")
				return nil, nil, 1
			}
			r.logger.Info("Attempting correction")
			corrected, err := r.analyzer.AttemptCorrection(ctx, *best, v)
			if err != nil {
				r.logger.Warn("Correction attempt failed, skipping PR", "error", err)
				return nil, nil, 1
			}
			rv := r.validate(corrected.Analysis)
			if !rv.Valid {
				r.logger.Warn("Correction failed re-validation, skipping PR")
				return nil, nil, 1
			}
			r.logger.Info("Correction succeeded, quality gate passed")
			best = &corrected
			v = rv
		}
		for _, warn := range v.WarningMessages() {
			r.logger.Info("Validation warning", "warning", warn)
		}
	}

	pr, err := r.gh.CreateFixPR(ctx, *best, issueNumber)
	if err != nil {
		r.logger.Error("PR creation failed", "error", err)
		return nil, nil, failures
	}
	r.logger.Info("Created draft PR", "number", pr.Number)
	return &models.CreatedPRResult{
		IssueNumber:  issueNumber,
		PRNumber:     pr.Number,
		PRURL:        pr.HTMLURL,
		BranchName:   pr.BranchName,
		FilesChanged: len(best.Analysis.FileChanges),
	}, best, failures
}

func (r *Runner) validate(a models.Analysis) validation.Result {
	return validation.NewOrchestrator().Validate(a.FileChanges, &validation.Context{
		Confidence: a.Confidence,
		RootCause:  a.RootCause,
		Reasoning:  a.Reasoning,
	})
}

// compound persists this run's knowledge: per-error docs, high-quality
// error patterns, detected pattern docs, metadata backfill, and the index.
func (r *Runner) compound(analyses []models.ErrorAnalysisResult, report *models.RunReport, issuesCreated []models.CreatedIssueResult, prResult *models.CreatedPRResult, prSource *models.ErrorAnalysisResult) {
	r.logger.Info("Persisting analysis results to knowledge base")

	for _, result := range analyses {
		if _, err := r.store.CompoundResult(result); err != nil {
			r.logger.Warn("Knowledge persistence failed", "class", result.Error.ErrorClass, "error", err)
		}
	}
	for _, result := range analyses {
		if result.QualityScore >= 0.7 && result.Analysis.RootCause != "" {
			desc := result.Analysis.RootCause
			if len(desc) > 500 {
				desc = desc[:500]
			}
			if _, err := r.store.SaveErrorPattern(result.Error.ErrorClass, result.Error.Transaction,
				desc, string(result.Analysis.Confidence)); err != nil {
				r.logger.Warn("Error pattern save failed", "error", err)
			}
		}
	}
	for _, pattern := range report.Patterns {
		if _, err := patterns.WritePatternDoc(pattern, r.store.Dir()); err != nil {
			r.logger.Warn("Pattern doc failed", "error", err)
		}
	}

	for _, issue := range issuesCreated {
		n := issue.IssueNumber
		if _, err := r.store.UpdateResultMetadata(issue.Error.ErrorClass, issue.Error.Transaction, &n, nil); err != nil {
			r.logger.Warn("Metadata backfill failed", "issue", n, "error", err)
		}
	}
	if prResult != nil && prSource != nil {
		n := prResult.PRNumber
		if _, err := r.store.UpdateResultMetadata(prSource.Error.ErrorClass, prSource.Error.Transaction, nil, &n); err != nil {
			r.logger.Warn("Metadata backfill failed", "pr", n, "error", err)
		}
	}

	if err := r.store.RebuildIndex(); err != nil {
		r.logger.Warn("Index rebuild failed", "error", err)
	}
}

func crossErrorSummary(index int, e models.ErrorGroup, result models.ErrorAnalysisResult) string {
	root := result.Analysis.RootCause
	if root == "" {
		root = "Unknown"
	}
	if len(root) > 200 {
		root = root[:200]
	}
	summary := fmt.Sprintf("Error #%d: %s in %s — Root cause: %s", index, e.ErrorClass, e.Transaction, root)

	if len(result.Analysis.FileChanges) > 0 {
		var files []string
		for _, fc := range result.Analysis.FileChanges {
			files = append(files, fc.Path)
			if len(files) == 3 {
				break
			}
		}
		summary += ". Files: " + strings.Join(files, ", ")
	}
	return summary
}

func buildHistoryEntry(analyses []models.ErrorAnalysisResult, report *models.RunReport, issuesCreated int, prCreated bool) history.Entry {
	entry := history.Entry{
		IssuesCreated:   issuesCreated,
		PRCreated:       prCreated,
		TotalTokensUsed: report.TotalTokensUsed,
	}
	for _, a := range analyses {
		root := a.Analysis.RootCause
		if len(root) > 200 {
			root = root[:200]
		}
		entry.ErrorsAnalyzed = append(entry.ErrorsAnalyzed, history.AnalyzedError{
			ErrorClass:  a.Error.ErrorClass,
			Transaction: a.Error.Transaction,
			Confidence:  string(a.Analysis.Confidence),
			HasFix:      a.Analysis.HasFix,
			RootCause:   root,
		})
	}
	for _, p := range report.Patterns {
		entry.PatternsDetected = append(entry.PatternsDetected, history.PatternSummary{
			Title:        p.Title,
			ErrorClasses: p.ErrorClasses,
			Occurrences:  p.Occurrences,
		})
	}
	return entry
}
