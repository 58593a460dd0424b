package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func sampleResult() models.ErrorAnalysisResult {
	return models.ErrorAnalysisResult{
		Error: models.ErrorGroup{
			ErrorClass:  "NoMethodError",
			Transaction: "Api/OrdersController#create",
			Message:     "undefined method `total' for nil",
			Occurrences: 42,
		},
		Analysis: models.Analysis{
			Title:              "Nil total in order creation",
			RootCause:          "Order#total invoked before line items load",
			Reasoning:          "The stack trace points at the serializer touching total eagerly.",
			HasFix:             true,
			Confidence:         models.ConfidenceHigh,
			FileChanges:        []models.FileChange{{Path: "app/models/order.rb", Action: models.FileActionModify, Description: "guard nil"}},
			SuggestedNextSteps: []string{"add regression test"},
		},
		Iterations: 6,
		TokensUsed: 9000,
	}
}

func TestCompoundResult_WritesDocWithFrontmatter(t *testing.T) {
	store := NewStore(t.TempDir())

	path, err := store.CompoundResult(sampleResult())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "---\n"))
	assert.Contains(t, filepath.Base(path), "nomethoderror")

	var meta errorDocMeta
	require.NoError(t, ParseFrontmatterInto(content, &meta))
	assert.Equal(t, "NoMethodError", meta.ErrorClass)
	assert.Equal(t, "high", meta.FixConfidence)
	assert.True(t, meta.HasFix)
	assert.Equal(t, 42, meta.Occurrences)

	assert.Contains(t, content, "# Nil total in order creation")
	assert.Contains(t, content, "## Root Cause")
	assert.Contains(t, content, "## Next Steps")
	assert.Contains(t, content, "`app/models/order.rb`")
}

func TestSaveErrorPattern_WritesPatternDoc(t *testing.T) {
	store := NewStore(t.TempDir())

	path, err := store.SaveErrorPattern("TypeError", "checkout", "keeps recurring weekly", "high")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var meta patternDocMeta
	require.NoError(t, ParseFrontmatterInto(string(data), &meta))
	assert.Equal(t, "Pattern: TypeError in checkout", meta.Title)
	assert.Equal(t, []string{"TypeError"}, meta.ErrorClasses)
}

func TestUpdateResultMetadata_BackfillsMostRecentDoc(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.CompoundResult(sampleResult())
	require.NoError(t, err)

	issue, pr := 101, 202
	updated, err := store.UpdateResultMetadata("NoMethodError", "Api/OrdersController#create", &issue, &pr)
	require.NoError(t, err)
	assert.True(t, updated)

	require.NoError(t, store.RebuildIndex())
	prior := store.SearchPrior(models.ErrorGroup{
		ErrorClass:  "NoMethodError",
		Transaction: "Api/OrdersController#create",
	}, 3)
	require.Len(t, prior, 1)
}

func TestUpdateResultMetadata_NoMatchReturnsFalse(t *testing.T) {
	store := NewStore(t.TempDir())

	updated, err := store.UpdateResultMetadata("KeyError", "nowhere", nil, nil)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestSearchPrior_RanksExactClassMatchFirst(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.CompoundResult(sampleResult())
	require.NoError(t, err)

	other := sampleResult()
	other.Error.ErrorClass = "TypeError"
	other.Error.Transaction = "CheckoutController#pay"
	_, err = store.CompoundResult(other)
	require.NoError(t, err)
	require.NoError(t, store.RebuildIndex())

	prior := store.SearchPrior(models.ErrorGroup{
		ErrorClass:  "NoMethodError",
		Transaction: "Api/OrdersController#create",
	}, 3)

	require.NotEmpty(t, prior)
	assert.Equal(t, "NoMethodError", prior[0].ErrorClass)
	assert.Greater(t, prior[0].MatchScore, 0.7)
}

func TestSearchPrior_EmptyStoreIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())

	assert.Empty(t, store.SearchPrior(models.ErrorGroup{ErrorClass: "KeyError"}, 3))
}

func TestBuildContext_TruncatesWithMarker(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.CompoundResult(sampleResult())
	require.NoError(t, err)
	require.NoError(t, store.RebuildIndex())

	ctx := store.BuildContext(models.ErrorGroup{
		ErrorClass:  "NoMethodError",
		Transaction: "Api/OrdersController#create",
	}, 3, 150)

	assert.LessOrEqual(t, len(ctx), 150)
	assert.Contains(t, ctx, "[...truncated]")
}

func TestRebuildIndex_CountsDocs(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.CompoundResult(sampleResult())
	require.NoError(t, err)
	_, err = store.SaveErrorPattern("TypeError", "checkout", "desc", "medium")
	require.NoError(t, err)

	require.NoError(t, store.RebuildIndex())

	index, ok := store.loadIndex()
	require.True(t, ok)
	assert.Equal(t, 1, index.TotalSolutions)
	assert.Equal(t, 1, index.TotalPatterns)
}

func TestLoadIndex_CorruptIndexFallsBackToScan(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	_, err := store.CompoundResult(sampleResult())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.yml"), []byte("{{{not yaml"), 0o644))

	index, ok := store.loadIndex()

	require.True(t, ok)
	assert.Len(t, index.Solutions, 1)
}
