package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	return NewRecorder(t.TempDir())
}

func TestSaveRun_AppendsJSONLines(t *testing.T) {
	r := newTestRecorder(t)

	require.NoError(t, r.SaveRun(Entry{
		ErrorsAnalyzed: []AnalyzedError{
			{ErrorClass: "NoMethodError", Transaction: "orders", Confidence: "high", HasFix: true},
		},
		IssuesCreated: 2,
	}))
	require.NoError(t, r.SaveRun(Entry{TotalTokensUsed: 12345}))

	entries := r.LoadHistory(30, 100)
	require.Len(t, entries, 2)
	assert.Equal(t, "NoMethodError", entries[0].ErrorsAnalyzed[0].ErrorClass)
	assert.Equal(t, 2, entries[0].IssuesCreated)
	assert.Equal(t, 12345, entries[1].TotalTokensUsed)
	assert.NotEmpty(t, entries[0].Timestamp)
}

func TestLoadHistory_NoFileIsEmpty(t *testing.T) {
	assert.Empty(t, newTestRecorder(t).LoadHistory(30, 100))
}

func TestLoadHistory_DayCutoff(t *testing.T) {
	r := newTestRecorder(t)

	base := time.Now()
	r.now = func() time.Time { return base.AddDate(0, 0, -40) }
	require.NoError(t, r.SaveRun(Entry{IssuesCreated: 1}))

	r.now = func() time.Time { return base }
	require.NoError(t, r.SaveRun(Entry{IssuesCreated: 2}))

	entries := r.LoadHistory(30, 100)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].IssuesCreated)
}

func TestLoadHistory_CapsAtMostRecent(t *testing.T) {
	r := newTestRecorder(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.SaveRun(Entry{IssuesCreated: i}))
	}

	entries := r.LoadHistory(30, 2)

	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].IssuesCreated)
	assert.Equal(t, 4, entries[1].IssuesCreated)
}

func TestLoadHistory_SkipsMalformedLines(t *testing.T) {
	r := newTestRecorder(t)
	require.NoError(t, r.SaveRun(Entry{IssuesCreated: 7}))

	path := filepath.Join(r.dir, historyFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json}\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries := r.LoadHistory(30, 100)
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].IssuesCreated)
}
