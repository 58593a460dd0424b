// Package cleanup provides data retention for NightWatch's on-disk state.
package cleanup

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config holds the retention policy.
type Config struct {
	// HistoryDir is the root state directory. Run history, quality
	// signals, and batch submission records all live under it.
	HistoryDir string
	// HistoryRetentionDays bounds how far back run history is kept.
	HistoryRetentionDays int
	// StateFileTTL bounds the age of batch and quality signal files.
	StateFileTTL time.Duration
}

// Service enforces retention policies:
//   - Drops run history entries past the retention window
//   - Removes stale batch submission records and quality signal files
//
// All operations are idempotent and fail open: a cleanup error never
// blocks a triage run.
type Service struct {
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a cleanup service. Zero retention values get
// defaults of 30 days and 7 days respectively.
func NewService(cfg Config) *Service {
	if cfg.HistoryRetentionDays <= 0 {
		cfg.HistoryRetentionDays = 30
	}
	if cfg.StateFileTTL <= 0 {
		cfg.StateFileTTL = 7 * 24 * time.Hour
	}
	return &Service{
		config: cfg,
		logger: slog.Default().With("component", "cleanup"),
		now:    time.Now,
	}
}

// Run applies all retention policies once.
func (s *Service) Run(ctx context.Context) {
	s.pruneHistory()
	s.pruneStateFiles(ctx, filepath.Join(s.config.HistoryDir, "batches"))
	s.pruneStateFiles(ctx, filepath.Join(s.config.HistoryDir, "quality"))
}

// pruneHistory rewrites the run history file keeping only entries inside
// the retention window.
func (s *Service) pruneHistory() {
	path := filepath.Join(s.config.HistoryDir, "run_history.jsonl")
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Retention: open run history failed", "error", err)
		}
		return
	}
	defer f.Close()

	cutoff := s.now().AddDate(0, 0, -s.config.HistoryRetentionDays)
	var kept []string
	dropped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var entry struct {
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			dropped++
			continue
		}
		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil || ts.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, line)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("Retention: read run history failed", "error", err)
		return
	}
	if dropped == 0 {
		return
	}

	// Temp + rename so a crash mid-write never loses the history file.
	tmp, err := os.CreateTemp(s.config.HistoryDir, ".history-*")
	if err != nil {
		s.logger.Error("Retention: rewrite run history failed", "error", err)
		return
	}
	w := bufio.NewWriter(tmp)
	for _, line := range kept {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err == nil {
		err = tmp.Close()
		if err == nil {
			err = os.Rename(tmp.Name(), path)
		}
	} else {
		tmp.Close()
	}
	if err != nil {
		os.Remove(tmp.Name())
		s.logger.Error("Retention: rewrite run history failed", "error", err)
		return
	}
	s.logger.Info("Retention: pruned run history", "dropped", dropped, "kept", len(kept))
}

// pruneStateFiles removes regular files in dir older than the TTL.
func (s *Service) pruneStateFiles(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Retention: read state dir failed", "dir", dir, "error", err)
		}
		return
	}

	cutoff := s.now().Add(-s.config.StateFileTTL)
	removed := 0
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			s.logger.Error("Retention: remove state file failed", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("Retention: removed stale state files", "dir", dir, "count", removed)
	}
}
