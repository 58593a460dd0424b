// Package quality records per-analysis quality signals so later runs can
// be compared against earlier ones. Signals accumulate in memory during a
// run and are flushed to a timestamped JSON file at the end.
package quality

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Signal is one analysis outcome worth of quality data.
type Signal struct {
	Timestamp      string  `json:"timestamp"`
	ErrorClass     string  `json:"error_class"`
	Transaction    string  `json:"transaction"`
	Confidence     float64 `json:"confidence"`
	IterationsUsed int     `json:"iterations_used"`
	TokensUsed     int     `json:"tokens_used"`
	HadFileChanges bool    `json:"had_file_changes"`
	HadRootCause   bool    `json:"had_root_cause"`
	QualityScore   float64 `json:"quality_score"`
}

// Summary aggregates the signals recorded in one run.
type Summary struct {
	Count            int     `json:"count"`
	AvgQuality       float64 `json:"avg_quality"`
	AvgConfidence    float64 `json:"avg_confidence"`
	AvgTokens        int     `json:"avg_tokens"`
	HighQualityCount int     `json:"high_quality_count"`
	LowQualityCount  int     `json:"low_quality_count"`
}

// Tracker collects quality signals for one run.
type Tracker struct {
	dir     string
	signals []Signal
	logger  *slog.Logger
	now     func() time.Time
}

// NewTracker creates a tracker storing signal files under dir.
func NewTracker(dir string) *Tracker {
	return &Tracker{
		dir:    dir,
		logger: slog.Default().With("component", "quality"),
		now:    time.Now,
	}
}

// RecordSignal appends one signal, computing its quality score.
func (t *Tracker) RecordSignal(s Signal) {
	s.Timestamp = t.now().Format(time.RFC3339)
	s.QualityScore = computeQualityScore(s.Confidence, s.HadFileChanges, s.HadRootCause)
	t.signals = append(t.signals, s)
}

// computeQualityScore weighs confidence at half, with flat bonuses for a
// proposed fix and an identified root cause. Capped at 1.0.
func computeQualityScore(confidence float64, hadFileChanges, hadRootCause bool) float64 {
	score := confidence * 0.5
	if hadFileChanges {
		score += 0.25
	}
	if hadRootCause {
		score += 0.25
	}
	return math.Min(score, 1.0)
}

// Save flushes recorded signals to a timestamped file. No-op when no
// signals were recorded.
func (t *Tracker) Save() error {
	if len(t.signals) == 0 {
		return nil
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create quality dir: %w", err)
	}

	name := fmt.Sprintf("signals_%s.json", t.now().Format("20060102_150405"))
	path := filepath.Join(t.dir, name)

	data, err := json.MarshalIndent(t.signals, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quality signals: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write quality signals: %w", err)
	}
	t.logger.Info("Saved quality signals", "count", len(t.signals), "file", path)
	return nil
}

// GetSummary aggregates this run's signals. Zero value when empty.
func (t *Tracker) GetSummary() Summary {
	if len(t.signals) == 0 {
		return Summary{}
	}

	var quality, confidence float64
	var tokens, high, low int
	for _, s := range t.signals {
		quality += s.QualityScore
		confidence += s.Confidence
		tokens += s.TokensUsed
		if s.QualityScore >= 0.7 {
			high++
		}
		if s.QualityScore < 0.3 {
			low++
		}
	}
	n := float64(len(t.signals))
	return Summary{
		Count:            len(t.signals),
		AvgQuality:       round3(quality / n),
		AvgConfidence:    round3(confidence / n),
		AvgTokens:        int(math.Round(float64(tokens) / n)),
		HighQualityCount: high,
		LowQualityCount:  low,
	}
}

// LoadHistorical reads every saved signal file, oldest first.
func (t *Tracker) LoadHistorical() []Signal {
	matches, err := filepath.Glob(filepath.Join(t.dir, "signals_*.json"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	var all []Signal
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			t.logger.Warn("Failed to read signal file", "file", path, "error", err)
			continue
		}
		var signals []Signal
		if err := json.Unmarshal(data, &signals); err != nil {
			t.logger.Warn("Failed to parse signal file", "file", path, "error", err)
			continue
		}
		all = append(all, signals...)
	}
	return all
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
