package newrelic

import (
	"log/slog"
	"strings"

	"github.com/nightwatchhq/nightwatch/pkg/config"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// FilterErrors removes errors matching any ignore pattern.
func FilterErrors(errors []models.ErrorGroup, patterns []config.IgnorePattern) []models.ErrorGroup {
	if len(patterns) == 0 {
		return errors
	}

	log := slog.Default().With("component", "newrelic")
	filtered := errors[:0:0]
	for _, e := range errors {
		if matchesIgnore(e, patterns) {
			log.Debug("Filtered ignored error", "error_class", e.ErrorClass, "transaction", e.Transaction)
			continue
		}
		filtered = append(filtered, e)
	}

	if removed := len(errors) - len(filtered); removed > 0 {
		log.Info("Filtered known/ignored errors", "removed", removed)
	}
	return filtered
}

func matchesIgnore(e models.ErrorGroup, patterns []config.IgnorePattern) bool {
	target := e.ErrorClass + " " + e.Message + " " + e.Transaction
	for _, p := range patterns {
		switch p.Match {
		case "contains":
			if strings.Contains(target, p.Pattern) {
				return true
			}
		case "exact":
			if p.Pattern == e.ErrorClass {
				return true
			}
		case "prefix":
			if strings.HasPrefix(e.ErrorClass, p.Pattern) {
				return true
			}
		}
	}
	return false
}
