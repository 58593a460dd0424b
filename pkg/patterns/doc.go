package patterns

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/knowledge"
	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// patternFrontmatter is the frontmatter of a detected-pattern document.
type patternFrontmatter struct {
	Title         string   `yaml:"title"`
	PatternType   string   `yaml:"pattern_type"`
	ErrorClasses  []string `yaml:"error_classes"`
	Modules       []string `yaml:"modules"`
	Occurrences   int      `yaml:"occurrences"`
	FirstDetected string   `yaml:"first_detected"`
}

// WritePatternDoc persists a detected pattern under
// <knowledgeDir>/patterns/YYYY-MM-DD_<slug>.md and returns the path.
func WritePatternDoc(pattern models.DetectedPattern, knowledgeDir string) (string, error) {
	patternsDir := filepath.Join(knowledgeDir, "patterns")
	if err := os.MkdirAll(patternsDir, 0o755); err != nil {
		return "", fmt.Errorf("create patterns dir: %w", err)
	}

	dateStr := time.Now().UTC().Format("2006-01-02")
	slug := knowledge.Slugify(pattern.Title)
	docPath := filepath.Join(patternsDir, dateStr+"_"+slug+".md")

	front, err := knowledge.RenderFrontmatter(patternFrontmatter{
		Title:         pattern.Title,
		PatternType:   string(pattern.PatternType),
		ErrorClasses:  pattern.ErrorClasses,
		Modules:       pattern.Modules,
		Occurrences:   pattern.Occurrences,
		FirstDetected: dateStr,
	})
	if err != nil {
		return "", err
	}

	body := fmt.Sprintf("# %s\n\n## Description\n\n%s\n\n## Suggestion\n\n%s\n",
		pattern.Title, pattern.Description, pattern.Suggestion)

	if err := os.WriteFile(docPath, []byte(front+body), 0o644); err != nil {
		return "", fmt.Errorf("write pattern doc: %w", err)
	}
	slog.Default().With("component", "patterns").Info("Pattern doc written",
		"file", filepath.Base(docPath))
	return docPath, nil
}
