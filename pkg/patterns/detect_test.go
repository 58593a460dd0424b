package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/knowledge"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func result(class, tx string, changes ...string) models.ErrorAnalysisResult {
	r := models.ErrorAnalysisResult{
		Error: models.ErrorGroup{ErrorClass: class, Transaction: tx},
	}
	for _, p := range changes {
		r.Analysis.FileChanges = append(r.Analysis.FileChanges,
			models.FileChange{Path: p, Action: models.FileActionModify})
	}
	return r
}

func TestDetect_BelowMinClusterSizeIsEmpty(t *testing.T) {
	analyses := []models.ErrorAnalysisResult{result("KeyError", "a")}

	assert.Empty(t, Detect(analyses, 2))
}

func TestDetect_ClassCluster(t *testing.T) {
	analyses := []models.ErrorAnalysisResult{
		result("NoMethodError", "OrdersController#create"),
		result("NoMethodError", "CheckoutController#pay"),
		result("KeyError", "jobs/sync"),
	}

	patterns := Detect(analyses, 2)

	require.NotEmpty(t, patterns)
	found := false
	for _, p := range patterns {
		if p.PatternType == models.PatternRecurringError {
			found = true
			assert.Equal(t, "NoMethodError across 2 transactions", p.Title)
			assert.Equal(t, 2, p.Occurrences)
		}
	}
	assert.True(t, found)
}

func TestDetect_FileHotspot(t *testing.T) {
	analyses := []models.ErrorAnalysisResult{
		result("NoMethodError", "a", "app/models/order.rb"),
		result("TypeError", "b", "app/models/order.rb"),
	}

	patterns := Detect(analyses, 2)

	var hotspot *models.DetectedPattern
	for i := range patterns {
		if patterns[i].Title == "Hotspot: app/models/order.rb" {
			hotspot = &patterns[i]
		}
	}
	require.NotNil(t, hotspot)
	assert.ElementsMatch(t, []string{"NoMethodError", "TypeError"}, hotspot.ErrorClasses)
	assert.Equal(t, []string{"app/models"}, hotspot.Modules)
}

func TestDetect_ModuleClusterFromTransactions(t *testing.T) {
	analyses := []models.ErrorAnalysisResult{
		result("NoMethodError", "Controller/orders/create"),
		result("TypeError", "Controller/orders/update"),
	}

	patterns := Detect(analyses, 2)

	found := false
	for _, p := range patterns {
		if p.Title == "Multiple errors in app/controllers/orders" {
			found = true
			assert.Equal(t, 2, p.Occurrences)
		}
	}
	assert.True(t, found)
}

func TestDetect_SortedByOccurrencesThenTitle(t *testing.T) {
	analyses := []models.ErrorAnalysisResult{
		result("NoMethodError", "a", "app/models/order.rb"),
		result("NoMethodError", "b", "app/models/order.rb"),
		result("NoMethodError", "c", "app/models/order.rb"),
		result("TypeError", "d", "lib/util.rb"),
		result("TypeError", "e", "lib/util.rb"),
	}

	patterns := Detect(analyses, 2)

	require.True(t, len(patterns) >= 2)
	for i := 1; i < len(patterns); i++ {
		if patterns[i-1].Occurrences == patterns[i].Occurrences {
			assert.LessOrEqual(t, patterns[i-1].Title, patterns[i].Title)
		} else {
			assert.Greater(t, patterns[i-1].Occurrences, patterns[i].Occurrences)
		}
	}
}

func TestDetectWithKnowledge_CrossRunRecurrence(t *testing.T) {
	store := knowledge.NewStore(t.TempDir())
	_, err := store.CompoundResult(models.ErrorAnalysisResult{
		Error:    models.ErrorGroup{ErrorClass: "NoMethodError", Transaction: "old"},
		Analysis: models.Analysis{Title: "old analysis"},
	})
	require.NoError(t, err)
	require.NoError(t, store.RebuildIndex())

	analyses := []models.ErrorAnalysisResult{
		result("NoMethodError", "OrdersController#create"),
		result("KeyError", "jobs/sync"),
	}

	patterns := DetectWithKnowledge(analyses, store, 2)

	found := false
	for _, p := range patterns {
		if p.Title == "Recurring: NoMethodError" {
			found = true
			assert.Equal(t, 2, p.Occurrences)
		}
	}
	assert.True(t, found)
}

func TestDetectWithKnowledge_TransientNoise(t *testing.T) {
	analyses := []models.ErrorAnalysisResult{
		{Error: models.ErrorGroup{ErrorClass: "Net::ReadTimeout", Message: "request timed out"}},
		{Error: models.ErrorGroup{ErrorClass: "Faraday::ConnectionFailed", Message: "ECONNREFUSED"}},
	}

	patterns := DetectWithKnowledge(analyses, nil, 2)

	var noise *models.DetectedPattern
	for i := range patterns {
		if patterns[i].PatternType == models.PatternTransientNoise {
			noise = &patterns[i]
		}
	}
	require.NotNil(t, noise)
	assert.Equal(t, 2, noise.Occurrences)
	assert.Contains(t, noise.Suggestion, "ignore.yml")
}

func TestTransactionToDirectory(t *testing.T) {
	assert.Equal(t, "app/controllers/orders", TransactionToDirectory("Controller/orders/update"))
	assert.Equal(t, "app/controllers/admin/orders", TransactionToDirectory("Controller/admin/orders/show"))
	assert.Empty(t, TransactionToDirectory("OtherTransaction/task"))
	assert.Empty(t, TransactionToDirectory("Controller/short"))
}
