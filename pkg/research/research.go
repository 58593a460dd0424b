// Package research gathers context before the main analysis loop: likely
// relevant files inferred from transaction names and stack traces, with
// pre-fetched previews. Cuts several iterations off a typical analysis.
package research

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// FileReader reads repository files. Satisfied by the GitHub client.
type FileReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

const (
	previewMaxLines = 100
	previewMaxFiles = 5
)

// ResearchError assembles the pre-analysis context for one error.
// Prior analyses and correlated PRs are gathered elsewhere and passed in.
func ResearchError(ctx context.Context, e models.ErrorGroup, traces models.TraceData, reader FileReader, correlated []models.CorrelatedPR, prior []models.PriorAnalysis) *models.ResearchContext {
	likely := dedupe(append(
		InferFilesFromTransaction(e.Transaction),
		inferFilesFromTraces(traces)...))

	return &models.ResearchContext{
		PriorAnalyses: prior,
		LikelyFiles:   likely,
		CorrelatedPRs: correlated,
		FilePreviews:  preFetchFiles(ctx, likely, reader),
	}
}

// InferFilesFromTransaction maps a Rails transaction name to likely source
// files: the controller and its model for Controller transactions, the job
// file for Sidekiq ones.
func InferFilesFromTransaction(transaction string) []string {
	parts := strings.Split(transaction, "/")
	if len(parts) == 0 {
		return nil
	}

	var files []string
	switch parts[0] {
	case "Controller":
		if len(parts) < 3 {
			return nil
		}
		namespaceParts := parts[1 : len(parts)-1]
		resource := namespaceParts[len(namespaceParts)-1]
		namespace := strings.Join(namespaceParts[:len(namespaceParts)-1], "/")

		if resource != "" {
			if namespace != "" {
				files = append(files, "app/controllers/"+namespace+"/"+resource+"_controller.rb")
			} else {
				files = append(files, "app/controllers/"+resource+"_controller.rb")
			}
			model := strings.TrimRight(resource, "s")
			files = append(files, "app/models/"+model+".rb")
		}

	case "Sidekiq":
		if len(parts) >= 2 {
			files = append(files, "app/jobs/"+CamelToSnake(parts[1])+".rb")
		}
	}
	return files
}

// Relative app/ and lib/ frames only; absolute gem paths carry a leading
// slash and are skipped.
var appPathRe = regexp.MustCompile(`(^|[^/\w])((?:app|lib)/[\w/]+\.rb)`)

// inferFilesFromTraces pulls app-relative paths out of stack trace text,
// ignoring gem paths, capped at 5 unique files.
func inferFilesFromTraces(traces models.TraceData) []string {
	var files []string
	seen := make(map[string]bool)

	for _, trace := range traces.ErrorTraces {
		stack, _ := trace["error.stack_trace"].(string)
		if stack == "" {
			stack, _ = trace["stackTrace"].(string)
		}
		for _, groups := range appPathRe.FindAllStringSubmatch(stack, -1) {
			match := groups[2]
			if !seen[match] {
				seen[match] = true
				files = append(files, match)
			}
			if len(files) >= 5 {
				return files
			}
		}
	}
	return files
}

// preFetchFiles reads the first lines of each likely file. Missing files
// are skipped silently; the analysis loop can still read_file later.
func preFetchFiles(ctx context.Context, files []string, reader FileReader) map[string]string {
	log := slog.Default().With("component", "research")
	previews := make(map[string]string)

	count := 0
	for _, path := range files {
		if count >= previewMaxFiles {
			break
		}
		count++

		content, err := reader.ReadFile(ctx, path)
		if err != nil {
			log.Debug("Could not pre-fetch file", "path", path, "error", err)
			continue
		}
		lines := strings.Split(content, "\n")
		if len(lines) > previewMaxLines {
			content = strings.Join(lines[:previewMaxLines], "\n") + "\n# ... truncated"
		}
		previews[path] = content
	}
	return previews
}

var (
	camelBoundary1 = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	camelBoundary2 = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// CamelToSnake converts CamelCase to snake_case.
func CamelToSnake(name string) string {
	s := camelBoundary1.ReplaceAllString(name, "${1}_${2}")
	s = camelBoundary2.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
