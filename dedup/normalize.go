// Package dedup removes duplicate and near-duplicate scenarios and test
// cases. Two independent modes exist: lexical title comparison, and optional
// embedding-based semantic comparison that degrades to a passthrough when no
// embedding backend is configured.
package dedup

import (
	"regexp"
	"strings"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// scenarioFillerPhrases are stripped before embedding scenario titles so
// that phrasing variants ("verify that X" vs "ensure X") embed close together.
var scenarioFillerPhrases = []string{
	"validate that",
	"ensure that",
	"verify that",
	"check that",
	"confirm that",
	"make sure that",
	"ensure ",
	"validate ",
	"verify ",
	"check ",
}

// NormalizeTitle lowercases a title and collapses internal whitespace.
func NormalizeTitle(title string) string {
	return whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), " ")
}

// NormalizeScenario lowercases a scenario title, strips filler phrases, and
// collapses whitespace. Used as the embedding cache key.
func NormalizeScenario(scenario string) string {
	s := strings.ToLower(strings.TrimSpace(scenario))
	for _, phrase := range scenarioFillerPhrases {
		s = strings.ReplaceAll(s, phrase, " ")
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// titlesNearDuplicate reports whether two normalized titles are equal or one
// contains the other.
func titlesNearDuplicate(a, b string) bool {
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}
