// Package classify assigns a clause type to each block using deterministic
// trigger-phrase cues with a fixed tie-break order.
package classify

import (
	"regexp"
	"strings"

	"github.com/c360studio/ucc/clause"
)

// cue lexicon: phrase occurrences score one point each for their type.
var cues = map[clause.ClauseType][]string{
	clause.TypeExclusion:    {"we will not pay", "excluded", "does not cover", "exclusion"},
	clause.TypeCondition:    {"you must", "it is a condition", "provided that"},
	clause.TypeWarranty:     {"warranted that"},
	clause.TypeDefinition:   {"means", "shall mean"},
	clause.TypeCoverage:     {"we will pay", "we will indemnify", "cover is provided"},
	clause.TypeDeductible:   {"excess", "deductible"},
	clause.TypeSubjectivity: {"subject to", "subjectivity"},
}

var (
	extensionSection   = regexp.MustCompile(`(?i)extension`)
	endorsementSection = regexp.MustCompile(`(?i)endorsement`)
)

// tieBreak orders types by preference when cue scores tie.
var tieBreak = []clause.ClauseType{
	clause.TypeExclusion,
	clause.TypeCondition,
	clause.TypeCoverage,
	clause.TypeExtension,
	clause.TypeEndorsement,
	clause.TypeWarranty,
	clause.TypeSubjectivity,
	clause.TypeDeductible,
	clause.TypeDefinition,
}

// Classify tags each block with its clause type. Blocks with no cue hits are
// tagged admin and have IsAdmin set. The input slice is not mutated.
func Classify(blocks []clause.Block) []clause.Clause {
	out := make([]clause.Clause, 0, len(blocks))
	for _, b := range blocks {
		c := clause.Clause{Block: b}
		if b.IsAdmin {
			c.Type = clause.TypeAdmin
			out = append(out, c)
			continue
		}
		c.Type = classifyBlock(b)
		if c.Type == clause.TypeAdmin {
			c.IsAdmin = true
		}
		out = append(out, c)
	}
	return out
}

func classifyBlock(b clause.Block) clause.ClauseType {
	lowered := strings.ToLower(b.Text)

	scores := make(map[clause.ClauseType]int)
	for typ, phrases := range cues {
		for _, phrase := range phrases {
			scores[typ] += strings.Count(lowered, phrase)
		}
	}
	// Section-scoped cues.
	for _, seg := range b.SectionPath {
		if extensionSection.MatchString(seg) {
			scores[clause.TypeExtension]++
		}
		if endorsementSection.MatchString(seg) {
			scores[clause.TypeEndorsement]++
		}
	}

	best := clause.TypeAdmin
	bestScore := 0
	for _, typ := range tieBreak {
		if s := scores[typ]; s > bestScore {
			best = typ
			bestScore = s
		}
	}
	return best
}
