package validation

import (
	"log/slog"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Orchestrator runs validation layers in sequence. A path-safety failure
// short-circuits: there is no point syntax-checking a traversal attempt.
type Orchestrator struct {
	layers []Validator
	logger *slog.Logger
}

// NewOrchestrator builds the default layer stack.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		layers: []Validator{
			PathSafetyValidator{},
			ContentValidator{},
			SyntaxValidator{},
			SemanticValidator{},
			NewQualityValidator(),
		},
		logger: slog.Default().With("component", "validation"),
	}
}

// NewOrchestratorWithLayers builds an orchestrator with a custom stack.
func NewOrchestratorWithLayers(layers ...Validator) *Orchestrator {
	o := NewOrchestrator()
	o.layers = layers
	return o
}

// Validate runs every layer over the changes. ctx may be nil, in which
// case the semantic and quality layers pass trivially.
func (o *Orchestrator) Validate(changes []models.FileChange, ctx *Context) Result {
	var (
		layers   []LayerResult
		blocking []Issue
		warnings []Issue
	)

	for _, validator := range o.layers {
		result := validator.Validate(changes, ctx)
		layers = append(layers, result)

		for _, issue := range result.Issues {
			switch issue.Severity {
			case SeverityError:
				blocking = append(blocking, issue)
			case SeverityWarning:
				warnings = append(warnings, issue)
			}
		}

		if result.Layer == LayerPathSafety && !result.Passed {
			break
		}
	}

	valid := len(blocking) == 0
	if valid {
		o.logger.Info("Quality gate passed", "files", len(changes))
	} else {
		o.logger.Warn("Quality gate failed", "errors", len(blocking), "warnings", len(warnings))
		for _, issue := range blocking {
			o.logger.Warn("Validation error", "layer", issue.Layer, "message", issue.Message)
		}
	}

	return Result{
		Valid:          valid,
		Layers:         layers,
		BlockingErrors: blocking,
		Warnings:       warnings,
	}
}
