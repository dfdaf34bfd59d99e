// Package definitions finds defined terms in a policy and expands their
// occurrences so that documents using different defined names for the same
// concept embed close together.
package definitions

import (
	"regexp"
	"sort"
	"strings"

	"github.com/c360studio/ucc/clause"
)

var (
	definitionsHeading = regexp.MustCompile(`(?i)definition`)

	// "Term" means expansion.  /  Term means expansion.
	quotedTermMeans  = regexp.MustCompile(`"([^"]{1,60})"\s+(?:shall\s+)?means?\s+([^.]+)\.`)
	capitalTermMeans = regexp.MustCompile(`^([A-Z][A-Za-z' -]{0,59}?)\s+(?:shall\s+)?means?\s+([^.]+)\.`)

	looseTermMeans = regexp.MustCompile(`(?i)^(.{1,60}?)\s+means\s+([^.]+)\.`)

	punctStrip = regexp.MustCompile(`[^\w\s-]`)
)

// Resolve scans blocks for defined terms. A block contributes definitions when
// its section path ends in a definitions heading, or when its text carries an
// explicit `"Term" means ...` pattern or starts with a capitalized
// `Term means ...`.
func Resolve(blocks []clause.Block) []clause.Definition {
	var defs []clause.Definition
	seen := make(map[string]bool)

	add := func(term, expansion, blockID string) {
		norm := NormalizeTerm(term)
		if norm == "" || seen[norm] {
			return
		}
		seen[norm] = true
		defs = append(defs, clause.Definition{
			Term:          norm,
			Expansion:     strings.TrimSpace(expansion),
			SourceBlockID: blockID,
		})
	}

	for _, b := range blocks {
		inDefSection := len(b.SectionPath) > 0 &&
			definitionsHeading.MatchString(b.SectionPath[len(b.SectionPath)-1])

		for _, m := range quotedTermMeans.FindAllStringSubmatch(b.Text, -1) {
			add(m[1], m[2], b.ID)
		}
		if m := capitalTermMeans.FindStringSubmatch(b.Text); m != nil {
			add(m[1], m[2], b.ID)
		} else if inDefSection {
			// In a definitions section, accept "<term> means <expansion>."
			// even without the leading capital.
			if m := looseTermMeans.FindStringSubmatch(b.Text); m != nil {
				add(m[1], m[2], b.ID)
			}
		}
	}
	return defs
}

// NormalizeTerm lowercases a term and strips punctuation so lookups are
// whole-word and case-insensitive.
func NormalizeTerm(term string) string {
	term = punctStrip.ReplaceAllString(term, "")
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// Expander substitutes defined terms into block text before embedding.
type Expander struct {
	expansions map[string]string
	pattern    *regexp.Regexp
}

// NewExpander compiles one whole-word matcher over all definitions. Longer
// terms come first in the alternation so "business interruption" wins over
// "business".
func NewExpander(defs []clause.Definition) *Expander {
	if len(defs) == 0 {
		return &Expander{}
	}
	ordered := make([]clause.Definition, len(defs))
	copy(ordered, defs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Term) > len(ordered[j].Term)
	})

	e := &Expander{expansions: make(map[string]string, len(ordered))}
	alternatives := make([]string, 0, len(ordered))
	for _, d := range ordered {
		e.expansions[d.Term] = d.Expansion
		alternatives = append(alternatives, regexp.QuoteMeta(d.Term))
	}
	e.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)
	return e
}

// Expand appends "(= expansion)" after each whole-word occurrence of a
// defined term. The substitution is a single pass over the original text, so
// terms inside an inserted expansion are never expanded again.
func (e *Expander) Expand(text string) string {
	if e.pattern == nil {
		return text
	}
	return e.pattern.ReplaceAllStringFunc(text, func(match string) string {
		expansion, ok := e.expansions[NormalizeTerm(match)]
		if !ok {
			return match
		}
		return match + " (= " + expansion + ")"
	})
}
