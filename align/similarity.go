// Package align pairs clauses across two documents by combining embedding,
// DNA and section similarity, then solving a one-to-one assignment greedily.
package align

import (
	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/embed"
)

// Similarity component weights.
const (
	weightEmbedding = 0.6
	weightDNA       = 0.2
	weightSection   = 0.2

	// crossTypeGate halves the score of pairs whose clause types differ.
	crossTypeGate = 0.5
)

// dna_sim component weights.
const (
	dnaWeightPolarity   = 0.4
	dnaWeightStrictness = 0.3
	dnaWeightEntities   = 0.3
)

// similarity computes the blended score for one candidate pair given the
// documents' embedding vectors.
func similarity(a, b *clause.Clause, vecA, vecB []float64) float64 {
	sim := weightEmbedding*embed.Cosine(vecA, vecB) +
		weightDNA*dnaSimilarity(a.DNA, b.DNA) +
		weightSection*sectionSimilarity(a.SectionPath, b.SectionPath)

	if a.Type != b.Type && a.Type != clause.TypeAdmin && b.Type != clause.TypeAdmin &&
		!polarityFlipPair(a.Type, b.Type) {
		sim *= crossTypeGate
	}
	return sim
}

// polarityFlipPair exempts coverage/exclusion pairings from the cross-type
// gate: a clause whose polarity flipped between documents classifies to
// opposite types, and that flip is exactly the change the interpreter must
// surface rather than dissolve into an add/remove pair.
func polarityFlipPair(a, b clause.ClauseType) bool {
	return (a == clause.TypeCoverage && b == clause.TypeExclusion) ||
		(a == clause.TypeExclusion && b == clause.TypeCoverage)
}

func dnaSimilarity(a, b clause.DNA) float64 {
	var polarity float64
	if a.Polarity == b.Polarity {
		polarity = 1
	}
	rankGap := a.Strictness.Rank() - b.Strictness.Rank()
	if rankGap < 0 {
		rankGap = -rankGap
	}
	strictness := 1 - float64(rankGap)/2

	return dnaWeightPolarity*polarity +
		dnaWeightStrictness*strictness +
		dnaWeightEntities*Jaccard(a.Entities, b.Entities)
}

// sectionSimilarity is the longest common prefix of the two section paths
// over the longer path's length.
func sectionSimilarity(a, b []string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	common := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			break
		}
		common++
	}
	return float64(common) / float64(maxLen)
}

// Jaccard returns |a∩b| / |a∪b| for two string sets. Two empty sets are
// identical.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}
	union := make(map[string]bool, len(a)+len(b))
	intersection := 0
	for s := range setA {
		union[s] = true
	}
	for _, s := range b {
		if setA[s] {
			intersection++
			setA[s] = false // count each shared member once
		}
		union[s] = true
	}
	return float64(intersection) / float64(len(union))
}
