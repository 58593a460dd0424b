package newrelic

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

func TestRankErrors_FrequentCriticalFirst(t *testing.T) {
	recent := fmt.Sprintf("%d", time.Now().UnixMilli())
	errors := []models.ErrorGroup{
		{ErrorClass: "ActionController::RoutingError", Transaction: "background_job", Occurrences: 2, LastSeen: recent},
		{ErrorClass: "NoMemoryError", Transaction: "Api/OrdersController#create", Occurrences: 150, LastSeen: recent},
		{ErrorClass: "ArgumentError", Transaction: "CheckoutController#pay", Occurrences: 40, LastSeen: recent},
	}

	ranked := RankErrors(errors)

	assert.Equal(t, "NoMemoryError", ranked[0].ErrorClass)
	assert.Equal(t, "ActionController::RoutingError", ranked[2].ErrorClass)
	for _, e := range ranked {
		assert.Greater(t, e.Score, 0.0)
	}
}

func TestRankErrors_FrequencyCapsAtHundred(t *testing.T) {
	a := RankErrors([]models.ErrorGroup{{ErrorClass: "RuntimeError", Occurrences: 100}})
	b := RankErrors([]models.ErrorGroup{{ErrorClass: "RuntimeError", Occurrences: 100000}})

	assert.InDelta(t, a[0].Score, b[0].Score, 0.0001)
}

func TestRankErrors_StableForEqualScores(t *testing.T) {
	errors := []models.ErrorGroup{
		{ErrorClass: "RuntimeError", Transaction: "first", Occurrences: 10},
		{ErrorClass: "RuntimeError", Transaction: "second", Occurrences: 10},
	}

	ranked := RankErrors(errors)

	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].Transaction)
	assert.Equal(t, "second", ranked[1].Transaction)
}

func TestSeverityWeight_ClassTiers(t *testing.T) {
	assert.Equal(t, 1.0, severityWeight("NoMemoryError"))
	assert.Equal(t, 0.7, severityWeight("NoMethodError"))
	assert.Equal(t, 0.5, severityWeight("ArgumentError"))
	assert.Equal(t, 0.3, severityWeight("Pundit::NotAuthorizedError"))
	assert.Equal(t, 0.5, severityWeight("SomeCustomError"))
}

func TestRecencyWeight_Bounds(t *testing.T) {
	now := time.Now()

	justNow := fmt.Sprintf("%d", now.UnixMilli())
	assert.InDelta(t, 1.0, recencyWeight(justNow, now), 0.01)

	twoDaysOld := fmt.Sprintf("%d", now.Add(-48*time.Hour).UnixMilli())
	assert.Equal(t, 0.0, recencyWeight(twoDaysOld, now))

	assert.Equal(t, 0.5, recencyWeight("", now))
	assert.Equal(t, 0.5, recencyWeight("not-a-timestamp", now))
}

func TestUserFacingWeight_TransactionKinds(t *testing.T) {
	assert.Equal(t, 1.0, userFacingWeight("Api/OrdersController#create"))
	assert.Equal(t, 0.3, userFacingWeight("SidekiqJobWrapper"))
	assert.Equal(t, 0.5, userFacingWeight("OrderMailer#receipt"))
	assert.Equal(t, 0.6, userFacingWeight("rake_task"))
}
