// Package privacy removes caller-marked private spans before text leaves the
// process for the embedding backend or the vector index.
package privacy

import (
	"regexp"
	"strings"
)

// privateBlock matches <private>...</private> spans, non-greedy across lines.
var privateBlock = regexp.MustCompile(`(?is)<private>.*?</private>`)

// Strip removes every private span and trims surrounding whitespace.
func Strip(text string) string {
	if !strings.Contains(strings.ToLower(text), "<private>") {
		return text
	}
	return strings.TrimSpace(privateBlock.ReplaceAllString(text, ""))
}

// OnlyPrivate reports whether nothing but private spans and whitespace remain
// once the text is stripped. Text without any private span is never
// "only private", even when blank.
func OnlyPrivate(text string) bool {
	if !privateBlock.MatchString(text) {
		return false
	}
	return Strip(text) == ""
}
