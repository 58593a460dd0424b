package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeQualityScore_WeightsAndCap(t *testing.T) {
	assert.Equal(t, 0.0, computeQualityScore(0, false, false))
	assert.Equal(t, 0.45, computeQualityScore(0.9, false, false))
	assert.InDelta(t, 0.95, computeQualityScore(0.9, true, true), 0.0001)
	assert.Equal(t, 1.0, computeQualityScore(1.0, true, true))
}

func TestRecordSignal_StampsAndScores(t *testing.T) {
	tr := NewTracker(t.TempDir())

	tr.RecordSignal(Signal{ErrorClass: "TypeError", Confidence: 0.6, HadRootCause: true})

	require.Len(t, tr.signals, 1)
	assert.NotEmpty(t, tr.signals[0].Timestamp)
	assert.InDelta(t, 0.55, tr.signals[0].QualityScore, 0.0001)
}

func TestSave_NoSignalsIsNoop(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir)

	require.NoError(t, tr.Save())
	assert.Empty(t, tr.LoadHistorical())
}

func TestSaveAndLoadHistorical_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir)
	tr.RecordSignal(Signal{ErrorClass: "NoMethodError", Confidence: 0.9, HadFileChanges: true, TokensUsed: 1000})
	tr.RecordSignal(Signal{ErrorClass: "KeyError", Confidence: 0.3, TokensUsed: 500})
	require.NoError(t, tr.Save())

	loaded := NewTracker(dir).LoadHistorical()

	require.Len(t, loaded, 2)
	assert.Equal(t, "NoMethodError", loaded[0].ErrorClass)
}

func TestGetSummary_Aggregates(t *testing.T) {
	tr := NewTracker(t.TempDir())
	tr.RecordSignal(Signal{Confidence: 0.9, HadFileChanges: true, HadRootCause: true, TokensUsed: 1000}) // 0.95
	tr.RecordSignal(Signal{Confidence: 0.2, TokensUsed: 2000})                                           // 0.10

	s := tr.GetSummary()

	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 0.525, s.AvgQuality, 0.0001)
	assert.InDelta(t, 0.55, s.AvgConfidence, 0.0001)
	assert.Equal(t, 1500, s.AvgTokens)
	assert.Equal(t, 1, s.HighQualityCount)
	assert.Equal(t, 1, s.LowQualityCount)
}

func TestGetSummary_EmptyIsZero(t *testing.T) {
	assert.Equal(t, Summary{}, NewTracker(t.TempDir()).GetSummary())
}
