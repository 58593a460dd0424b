package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Index is the structured summary of every knowledge document, kept small
// so search can score entries without opening the full documents.
type Index struct {
	LastUpdated    string         `yaml:"last_updated"`
	TotalSolutions int            `yaml:"total_solutions"`
	TotalPatterns  int            `yaml:"total_patterns"`
	Solutions      []IndexEntry   `yaml:"solutions"`
	Patterns       []PatternEntry `yaml:"patterns"`
}

// IndexEntry summarizes one error document.
type IndexEntry struct {
	File          string   `yaml:"file"`
	ErrorClass    string   `yaml:"error_class"`
	Transaction   string   `yaml:"transaction"`
	FixConfidence string   `yaml:"fix_confidence"`
	HasFix        bool     `yaml:"has_fix"`
	Tags          []string `yaml:"tags"`
}

// PatternEntry summarizes one pattern document.
type PatternEntry struct {
	File         string   `yaml:"file"`
	Title        string   `yaml:"title"`
	PatternType  string   `yaml:"pattern_type"`
	ErrorClasses []string `yaml:"error_classes"`
}

// SearchPrior finds prior analyses of similar errors. Index-first: scores
// index entries, then reads only the top maxResults full documents.
func (s *Store) SearchPrior(e models.ErrorGroup, maxResults int) []models.PriorAnalysis {
	index, ok := s.loadIndex()
	if !ok || len(index.Solutions) == 0 {
		return nil
	}

	errorTags := ExtractTags(e)

	type scored struct {
		score float64
		entry IndexEntry
	}
	var candidates []scored
	for _, entry := range index.Solutions {
		if score := MatchScore(e, entry, errorTags); score > 0 {
			candidates = append(candidates, scored{score, entry})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	var results []models.PriorAnalysis
	for _, c := range candidates {
		docPath := filepath.Join(s.dir, filepath.FromSlash(c.entry.File))
		content, err := os.ReadFile(docPath)
		if err != nil {
			continue
		}
		var meta errorDocMeta
		if err := ParseFrontmatterInto(string(content), &meta); err != nil {
			continue
		}
		_, body := SplitFrontmatter(string(content))
		summary := body
		if len(summary) > 500 {
			summary = summary[:500]
		}
		fixConfidence := meta.FixConfidence
		if fixConfidence == "" {
			fixConfidence = "low"
		}
		results = append(results, models.PriorAnalysis{
			ErrorClass:    meta.ErrorClass,
			Transaction:   meta.Transaction,
			RootCause:     meta.RootCause,
			FixConfidence: fixConfidence,
			HasFix:        meta.HasFix,
			Summary:       summary,
			MatchScore:    c.score,
			SourceFile:    docPath,
			FirstDetected: meta.FirstDetected,
		})
	}
	return results
}

// MatchScore scores how well an index entry matches an error: exact class
// 0.5, exact transaction 0.3, plus 0.1 per overlapping tag, capped at 1.0.
func MatchScore(e models.ErrorGroup, entry IndexEntry, errorTags []string) float64 {
	score := 0.0
	if e.ErrorClass == entry.ErrorClass {
		score += 0.5
	}
	if e.Transaction == entry.Transaction {
		score += 0.3
	}

	tagSet := make(map[string]bool, len(entry.Tags))
	for _, t := range entry.Tags {
		tagSet[t] = true
	}
	for _, t := range errorTags {
		if tagSet[t] {
			score += 0.1
		}
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// BuildContext searches prior knowledge and renders it as a prompt
// section, truncated to maxChars. Returns "" when nothing matches.
func (s *Store) BuildContext(e models.ErrorGroup, maxResults, maxChars int) string {
	prior := s.SearchPrior(e, maxResults)
	if len(prior) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Prior Knowledge from NightWatch Knowledge Base")
	for i, p := range prior {
		fmt.Fprintf(&b, "\n\n### Prior Analysis #%d (match: %.1f%%)", i+1, p.MatchScore*100)
		fmt.Fprintf(&b, "\n- **Error**: `%s` in `%s`", p.ErrorClass, p.Transaction)
		fmt.Fprintf(&b, "\n- **Root Cause**: %s", clip(p.RootCause, 200))
		fmt.Fprintf(&b, "\n- **Had Fix**: %t (confidence: %s)", p.HasFix, p.FixConfidence)
		if p.Summary != "" {
			fmt.Fprintf(&b, "\n- **Summary**: %s", clip(p.Summary, 200))
		}
	}

	result := b.String()
	if len(result) > maxChars {
		result = result[:maxChars-20] + "\n\n[...truncated]"
	}
	return result
}

// SolutionClassCounts returns how many stored solutions exist per error
// class. Feeds cross-run recurrence detection.
func (s *Store) SolutionClassCounts() map[string]int {
	index, ok := s.loadIndex()
	if !ok {
		return nil
	}
	counts := make(map[string]int, len(index.Solutions))
	for _, entry := range index.Solutions {
		if entry.ErrorClass != "" {
			counts[entry.ErrorClass]++
		}
	}
	return counts
}

// loadIndex reads index.yml. A missing index means an empty knowledge
// base; a corrupt one falls back to rescanning the document directories.
func (s *Store) loadIndex() (Index, bool) {
	indexPath := filepath.Join(s.dir, "index.yml")
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return Index{}, false
	}
	var index Index
	if err := yaml.Unmarshal(data, &index); err != nil {
		s.logger.Warn("Knowledge index unreadable, rescanning documents", "error", err)
		return s.scanIndex(), true
	}
	return index, true
}

// RebuildIndex rescans errors/ and patterns/ and atomically rewrites
// index.yml.
func (s *Store) RebuildIndex() error {
	index := s.scanIndex()
	data, err := yaml.Marshal(index)
	if err != nil {
		return fmt.Errorf("marshal knowledge index: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	if err := atomicWrite(filepath.Join(s.dir, "index.yml"), data); err != nil {
		return fmt.Errorf("write knowledge index: %w", err)
	}
	s.logger.Info("Knowledge index rebuilt",
		"solutions", index.TotalSolutions, "patterns", index.TotalPatterns)
	return nil
}

func (s *Store) scanIndex() Index {
	index := Index{LastUpdated: s.now().UTC().Format(time.RFC3339)}

	for _, name := range sortedDocs(filepath.Join(s.dir, "errors")) {
		content, err := os.ReadFile(filepath.Join(s.dir, "errors", name))
		if err != nil {
			continue
		}
		var meta errorDocMeta
		if err := ParseFrontmatterInto(string(content), &meta); err != nil {
			s.logger.Warn("Failed to index knowledge doc", "file", name, "error", err)
			continue
		}
		fixConfidence := meta.FixConfidence
		if fixConfidence == "" {
			fixConfidence = "low"
		}
		index.Solutions = append(index.Solutions, IndexEntry{
			File:          "errors/" + name,
			ErrorClass:    meta.ErrorClass,
			Transaction:   meta.Transaction,
			FixConfidence: fixConfidence,
			HasFix:        meta.HasFix,
			Tags:          meta.Tags,
		})
	}

	for _, name := range sortedDocs(filepath.Join(s.dir, "patterns")) {
		content, err := os.ReadFile(filepath.Join(s.dir, "patterns", name))
		if err != nil {
			continue
		}
		var meta patternDocMeta
		if err := ParseFrontmatterInto(string(content), &meta); err != nil {
			s.logger.Warn("Failed to index pattern doc", "file", name, "error", err)
			continue
		}
		index.Patterns = append(index.Patterns, PatternEntry{
			File:         "patterns/" + name,
			Title:        meta.Title,
			PatternType:  meta.PatternType,
			ErrorClasses: meta.ErrorClasses,
		})
	}

	index.TotalSolutions = len(index.Solutions)
	index.TotalPatterns = len(index.Patterns)
	return index
}

func sortedDocs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}
