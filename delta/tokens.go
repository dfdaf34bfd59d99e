// Package delta interprets aligned clause pairs: change direction, token and
// numeric diffs, materiality scoring and review flags.
package delta

import (
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// minTokenLen drops short function-word fragments from diffs.
const minTokenLen = 3

// stopwords excluded from token diffs.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "any": true, "can": true,
	"our": true, "was": true, "will": true, "with": true,
	"this": true, "that": true, "from": true, "have": true, "has": true,
	"been": true, "were": true, "which": true, "their": true,
	"your": true, "such": true, "under": true,
}

// Tokenize lowercases text, strips punctuation and drops short tokens and
// stopwords. The result is a set.
func Tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) < minTokenLen || stopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}

// diffTokens returns the alphabetically sorted one-sided tokens.
func diffTokens(a, b map[string]bool) (added, removed []string) {
	for tok := range b {
		if !a[tok] {
			added = append(added, tok)
		}
	}
	for tok := range a {
		if !b[tok] {
			removed = append(removed, tok)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
