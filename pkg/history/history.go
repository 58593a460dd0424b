// Package history persists per-run summaries as JSON lines for cross-run
// analysis. Writes are best-effort: a failed append never fails the run.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const historyFileName = "run_history.jsonl"

// AnalyzedError is the per-error summary kept in run history.
type AnalyzedError struct {
	ErrorClass  string `json:"error_class"`
	Transaction string `json:"transaction"`
	Confidence  string `json:"confidence"`
	HasFix      bool   `json:"has_fix"`
	RootCause   string `json:"root_cause"`
}

// PatternSummary is the per-pattern summary kept in run history.
type PatternSummary struct {
	Title        string   `json:"title"`
	ErrorClasses []string `json:"error_classes"`
	Occurrences  int      `json:"occurrences"`
}

// Entry is one run's summary in the history file.
type Entry struct {
	Timestamp        string           `json:"timestamp"`
	ErrorsAnalyzed   []AnalyzedError  `json:"errors_analyzed"`
	PatternsDetected []PatternSummary `json:"patterns_detected"`
	IssuesCreated    int              `json:"issues_created"`
	PRCreated        bool             `json:"pr_created"`
	TotalTokensUsed  int              `json:"total_tokens_used"`
}

// Recorder appends and loads run history rooted at one directory.
type Recorder struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder for dir, typically ~/.nightwatch.
func NewRecorder(dir string) *Recorder {
	return &Recorder{
		dir:    dir,
		logger: slog.Default().With("component", "history"),
		now:    time.Now,
	}
}

// SaveRun appends a run entry. The timestamp is set here.
func (r *Recorder) SaveRun(entry Entry) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	entry.Timestamp = r.now().Format(time.RFC3339)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	path := filepath.Join(r.dir, historyFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	r.logger.Info("Saved run to history", "file", path)
	return nil
}

// LoadHistory returns entries newer than the day cutoff, capped at
// maxEntries most recent. Malformed lines are skipped.
func (r *Recorder) LoadHistory(days, maxEntries int) []Entry {
	path := filepath.Join(r.dir, historyFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	cutoff := r.now().AddDate(0, 0, -days)
	var entries []Entry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil || ts.Before(cutoff) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("Failed to read run history", "error", err)
	}

	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	return entries
}
