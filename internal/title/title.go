// Package title derives short display titles from first-message text.
package title

import (
	"strings"
	"unicode"
)

const (
	longCutoff = 7
	longWords  = 5
	ellipsis   = "..."
)

// Generate maps first-message text to a short display title. It strips
// punctuation, collapses whitespace, keeps the first 5 words when the
// message has more than 7 words (appending an ellipsis marker), otherwise
// up to 8 words. Pure and total: any input, including empty, is fine.
func Generate(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, text)

	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}

	if len(words) > longCutoff {
		return strings.Join(words[:longWords], " ") + ellipsis
	}
	return strings.Join(words, " ")
}
