package knowledge

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// SplitFrontmatter separates a "---\n...\n---\n" YAML block from the
// Markdown body. Content without a frontmatter block comes back with an
// empty YAML part and the full text as body.
func SplitFrontmatter(content string) (yamlPart, body string) {
	if !strings.HasPrefix(content, "---") {
		return "", content
	}
	end := strings.Index(content[3:], "---")
	if end == -1 {
		return "", content
	}
	end += 3
	yamlPart = strings.TrimSpace(content[3:end])
	body = strings.TrimLeft(content[end+3:], "\n")
	return yamlPart, body
}

// ParseFrontmatterInto unmarshals a document's frontmatter into out.
func ParseFrontmatterInto(content string, out any) error {
	yamlPart, _ := SplitFrontmatter(content)
	if yamlPart == "" {
		return fmt.Errorf("no frontmatter block")
	}
	return yaml.Unmarshal([]byte(yamlPart), out)
}

// RenderFrontmatter marshals meta as a "---\n...\n---\n\n" block.
func RenderFrontmatter(meta any) (string, error) {
	encoded, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	return "---\n" + string(encoded) + "---\n\n", nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases text, collapses non-alphanumeric runs to hyphens,
// and caps the result at 60 characters.
func Slugify(text string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(text), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return slug
}

var (
	classSeparators = regexp.MustCompile(`[:./]+`)
	txSeparators    = regexp.MustCompile(`/+`)
	tagNoise        = map[string]bool{
		"controller":       true,
		"action":           true,
		"othertransaction": true,
		"rake":             true,
		"n/a":              true,
		"":                 true,
	}
)

// ExtractTags derives searchable tags from an error's class and
// transaction: namespace segments, lowercased, noise words dropped.
func ExtractTags(e models.ErrorGroup) []string {
	parts := classSeparators.Split(e.ErrorClass, -1)
	parts = append(parts, txSeparators.Split(e.Transaction, -1)...)

	seen := make(map[string]bool, len(parts))
	var tags []string
	for _, p := range parts {
		tag := strings.ToLower(strings.TrimSpace(p))
		if tagNoise[tag] || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
