// Package batch triages errors through the Anthropic Message Batches API
// at half the streaming cost. Errors classified as needing deep
// investigation proceed to the full analysis loop; the rest stop here.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nightwatchhq/nightwatch/pkg/analyzer"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

const triagePromptTemplate = `Analyze this production error and provide a quick triage classification.
Respond with ONLY a JSON object (no markdown, no explanation):

{
    "severity": "critical|high|medium|low",
    "likely_root_cause": "1-2 sentence description",
    "needs_deep_investigation": true|false,
    "fix_category": "code_bug|config|dependency|infra|unknown"
}

Error details:
- Error class: %s
- Transaction: %s
- Message: %s
- Occurrences: %d

%s`

// TriageResult is the quick classification for one error.
type TriageResult struct {
	Error                  models.ErrorGroup
	Severity               string
	LikelyRootCause        string
	NeedsDeepInvestigation bool
	FixCategory            string
	RawResponse            string
}

// submission is the on-disk record of a submitted batch.
type submission struct {
	BatchID     string               `json:"batch_id"`
	SubmittedAt string               `json:"submitted_at"`
	ErrorCount  int                  `json:"error_count"`
	CustomIDMap map[string]errorInfo `json:"custom_id_map"`
}

type errorInfo struct {
	ErrorClass  string `json:"error_class"`
	Transaction string `json:"transaction"`
	Index       int    `json:"index"`
}

// BatchClient is the LLM surface the triage path needs.
type BatchClient interface {
	CreateBatch(ctx context.Context, requests []anthropic.MessageBatchNewParamsRequest) (string, error)
	GetBatch(ctx context.Context, batchID string) (*anthropic.MessageBatch, error)
	BatchResults(ctx context.Context, batchID string) ([]anthropic.MessageBatchIndividualResponse, error)
	Model() string
}

// Analyzer submits triage batches and collects their results, persisting
// submission state so collection can happen in a later process.
type Analyzer struct {
	llm      BatchClient
	stateDir string
	logger   *slog.Logger
	sleep    func(time.Duration)
	now      func() time.Time
}

// NewAnalyzer creates a batch analyzer storing state under stateDir.
func NewAnalyzer(llm BatchClient, stateDir string) *Analyzer {
	return &Analyzer{
		llm:      llm,
		stateDir: stateDir,
		logger:   slog.Default().With("component", "batch"),
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// SubmitBatch sends all errors for triage in one batch request. The
// traces argument is indexed parallel to errors; missing entries are fine.
func (a *Analyzer) SubmitBatch(ctx context.Context, errors []models.ErrorGroup, traces []models.TraceData) (string, error) {
	var requests []anthropic.MessageBatchNewParamsRequest
	idMap := make(map[string]errorInfo, len(errors))

	for i, e := range errors {
		class := e.ErrorClass
		if len(class) > 30 {
			class = class[:30]
		}
		customID := fmt.Sprintf("triage-%d-%s", i, class)

		var traceSummary string
		if i < len(traces) {
			traceSummary = analyzer.SummarizeTraces(traces[i], 2)
		}
		prompt := fmt.Sprintf(triagePromptTemplate,
			e.ErrorClass, e.Transaction, e.Message, e.Occurrences, traceSummary)

		requests = append(requests, anthropic.MessageBatchNewParamsRequest{
			CustomID: customID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:     anthropic.Model(a.llm.Model()),
				MaxTokens: 512,
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
				},
			},
		})
		idMap[customID] = errorInfo{ErrorClass: e.ErrorClass, Transaction: e.Transaction, Index: i}
	}

	batchID, err := a.llm.CreateBatch(ctx, requests)
	if err != nil {
		return "", fmt.Errorf("submit triage batch: %w", err)
	}
	a.logger.Info("Batch submitted", "batch_id", batchID, "errors", len(requests))

	if err := a.saveState(submission{
		BatchID:     batchID,
		SubmittedAt: a.now().UTC().Format(time.RFC3339),
		ErrorCount:  len(requests),
		CustomIDMap: idMap,
	}); err != nil {
		a.logger.Warn("Failed to save batch state", "batch_id", batchID, "error", err)
	}
	return batchID, nil
}

// PollResults waits for the batch to end and returns triage results.
// Failed individual results default to needing deep investigation.
func (a *Analyzer) PollResults(ctx context.Context, batchID string, pollInterval, maxWait time.Duration) ([]TriageResult, error) {
	sub, err := a.loadState(batchID)
	if err != nil {
		return nil, err
	}

	var elapsed time.Duration
	for {
		batch, err := a.llm.GetBatch(ctx, batchID)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Batch status", "batch_id", batchID,
			"status", batch.ProcessingStatus,
			"succeeded", batch.RequestCounts.Succeeded,
			"errored", batch.RequestCounts.Errored)
		if batch.ProcessingStatus == "ended" {
			break
		}
		if elapsed >= maxWait {
			a.logger.Warn("Batch did not complete in time", "batch_id", batchID, "waited", elapsed)
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		a.sleep(pollInterval)
		elapsed += pollInterval
	}

	raw, err := a.llm.BatchResults(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var results []TriageResult
	needInvestigation := 0
	for _, r := range raw {
		info := sub.CustomIDMap[r.CustomID]
		e := models.ErrorGroup{ErrorClass: info.ErrorClass, Transaction: info.Transaction}
		if e.ErrorClass == "" {
			e.ErrorClass = "Unknown"
			e.Transaction = "Unknown"
		}

		switch res := r.Result.AsAny().(type) {
		case anthropic.MessageBatchSucceededResult:
			results = append(results, parseTriage(e, &res.Message, a.logger))
		default:
			a.logger.Warn("Batch result failed", "custom_id", r.CustomID, "type", fmt.Sprintf("%T", res))
			results = append(results, TriageResult{
				Error:                  e,
				Severity:               "medium",
				NeedsDeepInvestigation: true,
				FixCategory:            "unknown",
			})
		}
	}
	for _, r := range results {
		if r.NeedsDeepInvestigation {
			needInvestigation++
		}
	}
	a.logger.Info("Batch results collected",
		"total", len(results), "need_investigation", needInvestigation)
	return results, nil
}

// LatestBatchID returns the most recently submitted batch ID, or "".
func (a *Analyzer) LatestBatchID() string {
	matches, err := filepath.Glob(filepath.Join(a.stateDir, "*.json"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Slice(matches, func(i, j int) bool {
		fi, erri := os.Stat(matches[i])
		fj, errj := os.Stat(matches[j])
		if erri != nil || errj != nil {
			return matches[i] > matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return ""
	}
	var sub submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return ""
	}
	return sub.BatchID
}

var triageJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

func parseTriage(e models.ErrorGroup, msg *anthropic.Message, logger *slog.Logger) TriageResult {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	raw := strings.TrimSpace(text.String())

	var parsed struct {
		Severity               string `json:"severity"`
		LikelyRootCause        string `json:"likely_root_cause"`
		NeedsDeepInvestigation bool   `json:"needs_deep_investigation"`
		FixCategory            string `json:"fix_category"`
	}
	payload := raw
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		if m := triageJSONRe.FindStringSubmatch(raw); m != nil {
			payload = m[1]
		}
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			logger.Warn("Could not parse triage response", "excerpt", clip(raw, 200))
			return TriageResult{
				Error:                  e,
				Severity:               "medium",
				NeedsDeepInvestigation: true,
				FixCategory:            "unknown",
				RawResponse:            raw,
			}
		}
	}

	result := TriageResult{
		Error:                  e,
		Severity:               parsed.Severity,
		LikelyRootCause:        parsed.LikelyRootCause,
		NeedsDeepInvestigation: parsed.NeedsDeepInvestigation,
		FixCategory:            parsed.FixCategory,
		RawResponse:            raw,
	}
	if result.Severity == "" {
		result.Severity = "medium"
	}
	if result.FixCategory == "" {
		result.FixCategory = "unknown"
	}
	return result
}

func (a *Analyzer) saveState(sub submission) error {
	if err := os.MkdirAll(a.stateDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return err
	}

	// Temp + rename so a crash mid-write never leaves a corrupt record.
	path := filepath.Join(a.stateDir, sub.BatchID+".json")
	tmp, err := os.CreateTemp(a.stateDir, ".batch-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (a *Analyzer) loadState(batchID string) (*submission, error) {
	data, err := os.ReadFile(filepath.Join(a.stateDir, batchID+".json"))
	if err != nil {
		return nil, fmt.Errorf("no saved state for batch %s: %w", batchID, err)
	}
	var sub submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("parse batch state %s: %w", batchID, err)
	}
	return &sub, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
