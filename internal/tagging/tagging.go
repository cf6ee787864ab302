// Package tagging assigns domain tags to incoming articles.
package tagging

import (
	"context"
	"sort"
	"strings"
)

// Classifier returns the tags that apply to an article.
type Classifier interface {
	Classify(ctx context.Context, title, summary string) ([]string, error)
}

// Rules maps a tag to the keywords that trigger it.
type Rules map[string][]string

// DefaultRules returns the built-in finance, geopolitics and religion rules.
func DefaultRules() map[string][]string {
	return map[string][]string{
		"finance":     {"economy", "deal", "oil", "money"},
		"geopolitics": {"war", "peace", "border", "conflict"},
		"religion":    {"faith", "church", "mosque", "religion"},
	}
}

// Tags returns the rule names in sorted order.
func (r Rules) Tags() []string {
	tags := make([]string, 0, len(r))
	for tag := range r {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// KeywordClassifier tags text by case-insensitive keyword containment.
type KeywordClassifier struct {
	rules Rules
	tags  []string
}

// NewKeywordClassifier builds a classifier from rules; nil rules fall back
// to DefaultRules.
func NewKeywordClassifier(rules map[string][]string) *KeywordClassifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	normalized := make(Rules, len(rules))
	for tag, words := range rules {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				normalized[tag] = append(normalized[tag], w)
			}
		}
	}
	return &KeywordClassifier{rules: normalized, tags: normalized.Tags()}
}

// Classify never fails; the error is there to satisfy Classifier.
func (k *KeywordClassifier) Classify(_ context.Context, title, summary string) ([]string, error) {
	return k.Match(summary + " " + title), nil
}

// Match returns every tag with at least one keyword in text.
func (k *KeywordClassifier) Match(text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, tag := range k.tags {
		for _, w := range k.rules[tag] {
			if strings.Contains(lower, w) {
				matched = append(matched, tag)
				break
			}
		}
	}
	return matched
}

// Tags lists the tags this classifier can produce.
func (k *KeywordClassifier) Tags() []string {
	return k.tags
}

// Join renders tags in the comma-separated form stored in domain_tags.
// No tags yields nil so the column stays NULL.
func Join(tags []string) *string {
	if len(tags) == 0 {
		return nil
	}
	s := strings.Join(tags, ",")
	return &s
}
