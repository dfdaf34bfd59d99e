package dna

import (
	"regexp"
	"sort"
	"strings"

	"github.com/c360studio/ucc/clause"
)

var (
	sentenceEnd  = regexp.MustCompile(`[.;]`)
	temporalSpan = regexp.MustCompile(`(?i)\bwithin\s+(\d+)\s+(hours?|days?|months?|years?)\b`)
	wordBoundary = func(phrase string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
	}
	mayPattern = wordBoundary("may")
)

// Enrich computes DNA for every non-admin clause in place and returns the
// slice for chaining.
func Enrich(clauses []clause.Clause) []clause.Clause {
	for i := range clauses {
		if clauses[i].IsAdmin {
			continue
		}
		clauses[i].DNA = Extract(clauses[i].Text)
	}
	return clauses
}

// Extract computes the DNA of a single clause text.
func Extract(text string) clause.DNA {
	lowered := strings.ToLower(text)

	d := clause.DNA{
		Polarity:        extractPolarity(lowered),
		Strictness:      extractStrictness(lowered),
		Entities:        matchLexicon(lowered, entityLexicon),
		CarveOuts:       extractCarveOuts(lowered),
		ScopeConnectors: matchLexicon(lowered, scopeConnectors),
		BurdenShift:     containsAny(lowered, burdenShiftCues),
		Temporal:        extractTemporal(text),
		Numerics:        ExtractNumerics(text),
	}
	return d
}

func extractPolarity(lowered string) clause.Polarity {
	grants := countAny(lowered, grantCues)
	removes := countAny(lowered, removeCues)
	switch {
	case grants > 0 && removes == 0:
		return clause.PolarityGrant
	case removes > grants:
		return clause.PolarityRemove
	default:
		return clause.PolarityNeutral
	}
}

func extractStrictness(lowered string) clause.Strictness {
	if mayPattern.MatchString(lowered) ||
		strings.Contains(lowered, "at our discretion") ||
		strings.Contains(lowered, "we reserve") {
		return clause.StrictnessDiscretionary
	}
	for _, cue := range conditionalCues {
		if wordBoundary(cue).MatchString(lowered) {
			return clause.StrictnessConditional
		}
	}
	return clause.StrictnessAbsolute
}

// extractCarveOuts captures the span after each carve-out trigger up to the
// next sentence boundary, lowercased and whitespace-normalized.
func extractCarveOuts(lowered string) []string {
	var outs []string
	seen := make(map[string]bool)
	for _, trigger := range carveOutTriggers {
		idx := 0
		for {
			rel := strings.Index(lowered[idx:], trigger+" ")
			if rel < 0 {
				break
			}
			start := idx + rel + len(trigger) + 1
			rest := lowered[start:]
			end := len(rest)
			if loc := sentenceEnd.FindStringIndex(rest); loc != nil {
				end = loc[0]
			}
			span := strings.Join(strings.Fields(rest[:end]), " ")
			if span != "" && !seen[span] {
				seen[span] = true
				outs = append(outs, span)
			}
			idx = start + end
		}
	}
	sort.Strings(outs)
	return outs
}

func extractTemporal(text string) *clause.TemporalRange {
	m := temporalSpan.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	value := atoiSafe(m[1])
	unit := strings.ToLower(strings.TrimSuffix(m[2], "s")) + "s"
	return &clause.TemporalRange{Value: value, Unit: unit}
}

func matchLexicon(lowered string, lexicon []string) []string {
	var hits []string
	for _, item := range lexicon {
		if strings.Contains(lowered, item) {
			hits = append(hits, item)
		}
	}
	sort.Strings(hits)
	return hits
}

func containsAny(lowered string, phrases []string) bool {
	return countAny(lowered, phrases) > 0
}

func countAny(lowered string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += strings.Count(lowered, p)
	}
	return n
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
