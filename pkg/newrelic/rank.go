package newrelic

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// RankErrors scores each error by impact and returns the slice sorted
// descending by score. Weights: frequency 0.4, severity 0.3, recency 0.2,
// user-facing 0.1. Each error's Score is set exactly once here.
func RankErrors(errors []models.ErrorGroup) []models.ErrorGroup {
	for i := range errors {
		e := &errors[i]
		freq := float64(e.Occurrences) / 100
		if freq > 1.0 {
			freq = 1.0
		}
		e.Score = freq*0.4 +
			severityWeight(e.ErrorClass)*0.3 +
			recencyWeight(e.LastSeen, time.Now())*0.2 +
			userFacingWeight(e.Transaction)*0.1
	}
	sort.SliceStable(errors, func(i, j int) bool {
		return errors[i].Score > errors[j].Score
	})
	return errors
}

var (
	criticalClasses = []string{"SystemStackError", "NoMemoryError", "SecurityError", "SignalException"}
	highClasses     = []string{
		"NoMethodError", "NameError", "TypeError",
		"ActiveRecord::RecordNotFound", "ActiveRecord::StatementInvalid",
	}
	mediumClasses = []string{"ArgumentError", "KeyError", "RuntimeError", "StandardError"}
	lowClasses    = []string{
		"NotAuthorizedError", "CanCan::AccessDenied",
		"Pundit::NotAuthorizedError", "ActionController::RoutingError",
	}
)

func severityWeight(errorClass string) float64 {
	switch {
	case containsAny(errorClass, criticalClasses):
		return 1.0
	case containsAny(errorClass, highClasses):
		return 0.7
	case containsAny(errorClass, mediumClasses):
		return 0.5
	case containsAny(errorClass, lowClasses):
		return 0.3
	default:
		return 0.5
	}
}

// recencyWeight maps error age to 0.0-1.0: just now scores 1.0, a day old
// scores 0.0. Unparseable timestamps score 0.5.
func recencyWeight(lastSeen string, now time.Time) float64 {
	if lastSeen == "" {
		return 0.5
	}
	millis, err := strconv.ParseFloat(lastSeen, 64)
	if err != nil {
		return 0.5
	}
	ageHours := now.Sub(time.UnixMilli(int64(millis))).Hours()
	w := 1.0 - ageHours/24
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

func userFacingWeight(transaction string) float64 {
	tx := strings.ToLower(transaction)
	switch {
	case strings.Contains(tx, "controller") || strings.Contains(tx, "api/"):
		return 1.0
	case strings.Contains(tx, "job") || strings.Contains(tx, "worker") || strings.Contains(tx, "sidekiq"):
		return 0.3
	case strings.Contains(tx, "mailer") || strings.Contains(tx, "notifier"):
		return 0.5
	default:
		return 0.6
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
