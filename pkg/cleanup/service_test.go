package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHistory(t *testing.T, dir string, timestamps ...time.Time) {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(dir, "run_history.jsonl"), os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	for _, ts := range timestamps {
		line, err := json.Marshal(map[string]string{"timestamp": ts.Format(time.RFC3339)})
		require.NoError(t, err)
		_, err = f.Write(append(line, '\n'))
		require.NoError(t, err)
	}
}

func countHistoryLines(t *testing.T, dir string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "run_history.jsonl"))
	require.NoError(t, err)
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	return count
}

func TestRun_PrunesOldHistoryEntries(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeHistory(t, dir,
		now.AddDate(0, 0, -45),
		now.AddDate(0, 0, -10),
		now.AddDate(0, 0, -1),
	)

	s := NewService(Config{HistoryDir: dir, HistoryRetentionDays: 30})
	s.Run(context.Background())

	assert.Equal(t, 2, countHistoryLines(t, dir))
}

func TestRun_DropsMalformedHistoryLines(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, time.Now())
	f, err := os.OpenFile(filepath.Join(dir, "run_history.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{broken\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	NewService(Config{HistoryDir: dir}).Run(context.Background())

	assert.Equal(t, 1, countHistoryLines(t, dir))
}

func TestRun_UntouchedWhenNothingToDrop(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, time.Now())
	before, err := os.Stat(filepath.Join(dir, "run_history.jsonl"))
	require.NoError(t, err)

	NewService(Config{HistoryDir: dir}).Run(context.Background())

	after, err := os.Stat(filepath.Join(dir, "run_history.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestRun_MissingHistoryFileIsFine(t *testing.T) {
	NewService(Config{HistoryDir: t.TempDir()}).Run(context.Background())
}

func TestRun_RemovesStaleStateFiles(t *testing.T) {
	dir := t.TempDir()
	batchDir := filepath.Join(dir, "batches")
	require.NoError(t, os.MkdirAll(batchDir, 0o755))

	stale := filepath.Join(batchDir, "old.json")
	fresh := filepath.Join(batchDir, "new.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("{}"), 0o644))
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	s := NewService(Config{HistoryDir: dir, StateFileTTL: 7 * 24 * time.Hour})
	s.Run(context.Background())

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(Config{HistoryDir: "x"})

	assert.Equal(t, 30, s.config.HistoryRetentionDays)
	assert.Equal(t, 7*24*time.Hour, s.config.StateFileTTL)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	batchDir := filepath.Join(dir, "batches")
	require.NoError(t, os.MkdirAll(batchDir, 0o755))
	old := time.Now().Add(-30 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		p := filepath.Join(batchDir, fmt.Sprintf("b%d.json", i))
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
		require.NoError(t, os.Chtimes(p, old, old))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewService(Config{HistoryDir: dir}).Run(ctx)

	entries, err := os.ReadDir(batchDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
