// Package index builds and persists the semantic vector index: paragraph
// chunking, word-vector aggregation, SIF principal-component correction,
// and the JSON index store.
package index

import (
	"regexp"
	"strings"
)

// blankLine matches one or more newlines separated only by whitespace,
// i.e. a paragraph boundary.
var blankLine = regexp.MustCompile(`\n\s*\n`)

// SplitChunks splits document text on blank-line boundaries into non-empty
// trimmed paragraphs. Order follows source position and is stable across
// runs, so rebuilt indexes are reproducible.
func SplitChunks(text string) []string {
	parts := blankLine.Split(text, -1)
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks
}
