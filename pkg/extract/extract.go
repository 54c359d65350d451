// Package extract pulls executable action snippets out of model replies.
// Extraction is purely textual: it never inspects or executes the content.
package extract

import (
	"regexp"
	"strings"
)

// Fenced block with an optional language tag on the opening fence.
var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*[ \t]*\r?\n(.*?)\r?\n?```")

// Snippets returns the fenced blocks of text in source order, trimmed of
// surrounding whitespace. Empty blocks are dropped. The function is
// stateless: the same text always yields the same sequence.
func Snippets(text string) []string {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	snippets := make([]string, 0, len(matches))
	for _, match := range matches {
		snippet := strings.TrimSpace(match[1])
		if snippet == "" {
			continue
		}
		snippets = append(snippets, snippet)
	}
	return snippets
}
