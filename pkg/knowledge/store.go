// Package knowledge persists analysis results as YAML-frontmatter Markdown
// documents and serves them back to later runs. Documents accumulate under
// errors/ and patterns/ with a small index.yml for cheap search.
package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Store reads and writes knowledge base documents rooted at one directory.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a store rooted at dir. The directory is created lazily
// on first write.
func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		logger: slog.Default().With("component", "knowledge"),
		now:    time.Now,
	}
}

// Dir returns the knowledge base root directory.
func (s *Store) Dir() string { return s.dir }

// errorDocMeta is the frontmatter of an error document. Field order is the
// order keys appear in the rendered YAML.
type errorDocMeta struct {
	ErrorClass     string   `yaml:"error_class"`
	Transaction    string   `yaml:"transaction"`
	Message        string   `yaml:"message"`
	Occurrences    int      `yaml:"occurrences"`
	RootCause      string   `yaml:"root_cause"`
	FixConfidence  string   `yaml:"fix_confidence"`
	HasFix         bool     `yaml:"has_fix"`
	IssueNumber    *int     `yaml:"issue_number"`
	PRNumber       *int     `yaml:"pr_number"`
	Tags           []string `yaml:"tags"`
	FirstDetected  string   `yaml:"first_detected"`
	RunID          string   `yaml:"run_id"`
	IterationsUsed int      `yaml:"iterations_used"`
	TokensUsed     int      `yaml:"tokens_used"`
}

// patternDocMeta is the frontmatter of a pattern document.
type patternDocMeta struct {
	Title         string   `yaml:"title"`
	ErrorClasses  []string `yaml:"error_classes"`
	PatternType   string   `yaml:"pattern_type"`
	Confidence    string   `yaml:"confidence"`
	FirstDetected string   `yaml:"first_detected"`
	Transaction   string   `yaml:"transaction"`
}

// CompoundResult persists an analysis result as
// errors/YYYY-MM-DD_<slug>.md and returns the document path.
func (s *Store) CompoundResult(result models.ErrorAnalysisResult) (string, error) {
	errorsDir := filepath.Join(s.dir, "errors")
	if err := os.MkdirAll(errorsDir, 0o755); err != nil {
		return "", fmt.Errorf("create knowledge errors dir: %w", err)
	}

	now := s.now().UTC()
	dateStr := now.Format("2006-01-02")
	slug := Slugify(result.Error.ErrorClass + "_" + result.Error.Transaction)
	docPath := filepath.Join(errorsDir, dateStr+"_"+slug+".md")

	tags := ExtractTags(result.Error)
	sort.Strings(tags)

	meta := errorDocMeta{
		ErrorClass:     result.Error.ErrorClass,
		Transaction:    result.Error.Transaction,
		Message:        clip(result.Error.Message, 300),
		Occurrences:    result.Error.Occurrences,
		RootCause:      result.Analysis.RootCause,
		FixConfidence:  string(result.Analysis.Confidence),
		HasFix:         result.Analysis.HasFix,
		Tags:           tags,
		FirstDetected:  dateStr,
		RunID:          now.Format(time.RFC3339),
		IterationsUsed: result.Iterations,
		TokensUsed:     result.TokensUsed,
	}

	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n\n", result.Analysis.Title)
	body.WriteString("## Root Cause\n\n")
	body.WriteString(result.Analysis.RootCause)
	body.WriteString("\n\n## Analysis\n\n")
	body.WriteString(result.Analysis.Reasoning)
	body.WriteString("\n")
	if len(result.Analysis.SuggestedNextSteps) > 0 {
		body.WriteString("\n## Next Steps\n\n")
		for _, step := range result.Analysis.SuggestedNextSteps {
			fmt.Fprintf(&body, "- %s\n", step)
		}
	}
	if len(result.Analysis.FileChanges) > 0 {
		body.WriteString("\n## File Changes\n\n")
		for _, fc := range result.Analysis.FileChanges {
			fmt.Fprintf(&body, "- `%s`: %s — %s\n", fc.Path, fc.Action, fc.Description)
		}
	}

	front, err := RenderFrontmatter(meta)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(docPath, []byte(front+body.String()), 0o644); err != nil {
		return "", fmt.Errorf("write knowledge doc: %w", err)
	}
	s.logger.Info("Compounded analysis", "file", filepath.Base(docPath))
	return docPath, nil
}

// SaveErrorPattern persists a detected pattern as
// patterns/YYYY-MM-DD_<slug>.md. Fail-open: errors are logged, never fatal.
func (s *Store) SaveErrorPattern(errorClass, transaction, description, confidence string) (string, error) {
	patternsDir := filepath.Join(s.dir, "patterns")
	if err := os.MkdirAll(patternsDir, 0o755); err != nil {
		return "", fmt.Errorf("create knowledge patterns dir: %w", err)
	}

	dateStr := s.now().UTC().Format("2006-01-02")
	slug := Slugify(errorClass + "_" + transaction)
	docPath := filepath.Join(patternsDir, dateStr+"_"+slug+".md")

	meta := patternDocMeta{
		Title:         fmt.Sprintf("Pattern: %s in %s", errorClass, transaction),
		ErrorClasses:  []string{errorClass},
		PatternType:   string(models.PatternRecurringError),
		Confidence:    confidence,
		FirstDetected: dateStr,
		Transaction:   transaction,
	}

	body := fmt.Sprintf(
		"# Pattern: %s\n\n## Description\n\n%s\n\n## Transaction\n\n`%s`\n",
		errorClass, description, transaction)

	front, err := RenderFrontmatter(meta)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(docPath, []byte(front+body), 0o644); err != nil {
		return "", fmt.Errorf("write pattern doc: %w", err)
	}
	s.logger.Info("Saved error pattern", "file", filepath.Base(docPath))
	return docPath, nil
}

// UpdateResultMetadata backfills issue/PR numbers into the most recent
// error doc matching the class and transaction. Returns false when no doc
// matches. The rewrite is atomic: temp file plus rename.
func (s *Store) UpdateResultMetadata(errorClass, transaction string, issueNumber, prNumber *int) (bool, error) {
	errorsDir := filepath.Join(s.dir, "errors")
	entries, err := os.ReadDir(errorsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	var matching []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		docPath := filepath.Join(errorsDir, entry.Name())
		content, err := os.ReadFile(docPath)
		if err != nil {
			continue
		}
		var meta errorDocMeta
		if err := ParseFrontmatterInto(string(content), &meta); err != nil {
			continue
		}
		if meta.ErrorClass == errorClass && meta.Transaction == transaction {
			matching = append(matching, docPath)
		}
	}
	if len(matching) == 0 {
		return false, nil
	}

	// Names start with a date prefix, so the lexicographic max is the
	// most recent document.
	sort.Strings(matching)
	target := matching[len(matching)-1]

	content, err := os.ReadFile(target)
	if err != nil {
		return false, err
	}
	var meta errorDocMeta
	if err := ParseFrontmatterInto(string(content), &meta); err != nil {
		return false, fmt.Errorf("parse frontmatter of %s: %w", target, err)
	}
	_, body := SplitFrontmatter(string(content))

	if issueNumber != nil {
		meta.IssueNumber = issueNumber
	}
	if prNumber != nil {
		meta.PRNumber = prNumber
	}

	front, err := RenderFrontmatter(meta)
	if err != nil {
		return false, err
	}
	if err := atomicWrite(target, []byte(front+body)); err != nil {
		return false, err
	}
	s.logger.Info("Updated knowledge metadata", "file", filepath.Base(target))
	return true, nil
}

// atomicWrite writes via a temp file in the same directory, then renames.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
