package index

import (
	"regexp"
	"strings"
)

// wordPattern matches word-boundary token runs of letters, digits, and
// inner apostrophes.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:'[\p{L}\p{N}]+)*`)

// stopwords are excluded from tokenization; they carry no semantic weight
// and would dominate frequency statistics.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "been": true, "but": true, "by": true, "can": true,
	"do": true, "does": true, "for": true, "from": true, "had": true,
	"has": true, "have": true, "he": true, "her": true, "his": true,
	"i": true, "if": true, "in": true, "into": true, "is": true, "it": true,
	"its": true, "me": true, "my": true, "no": true, "not": true, "of": true,
	"on": true, "or": true, "our": true, "she": true, "so": true,
	"that": true, "the": true, "their": true, "them": true, "then": true,
	"there": true, "these": true, "they": true, "this": true, "to": true,
	"was": true, "we": true, "were": true, "which": true, "will": true,
	"with": true, "would": true, "you": true, "your": true,
}

// Tokenize splits text into lowercase word tokens with stopwords removed.
// The result preserves source order and may contain duplicates.
func Tokenize(text string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(matches) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if stopwords[m] {
			continue
		}
		tokens = append(tokens, m)
	}
	return tokens
}

// IsStopword reports whether word is in the stopword set.
func IsStopword(word string) bool {
	return stopwords[strings.ToLower(word)]
}
