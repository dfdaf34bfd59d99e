package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/dna"
)

func makeClause(id, text string, typ clause.ClauseType) *clause.Clause {
	c := &clause.Clause{
		Block: clause.Block{ID: id, Text: text, PageStart: 1, PageEnd: 1, SectionPath: []string{clause.RootSection}},
		Type:  typ,
	}
	c.DNA = dna.Extract(text)
	return c
}

func pairMatch(a, b *clause.Clause, sim float64) clause.Match {
	status := clause.StatusModified
	if sim >= 1-1e-4 {
		status = clause.StatusUnchanged
	}
	s := sim
	return clause.Match{
		AID: a.ID, BID: b.ID, Status: status, Similarity: &s, ClauseType: b.Type,
		Evidence: clause.Evidence{
			A: &clause.PageRange{PageStart: a.PageStart, PageEnd: a.PageEnd},
			B: &clause.PageRange{PageStart: b.PageStart, PageEnd: b.PageEnd},
		},
	}
}

func interpretPair(t *testing.T, a, b *clause.Clause, sim float64) clause.Match {
	t.Helper()
	in := NewInterpreter(clause.DefaultOptions())
	out := in.Interpret([]clause.Match{pairMatch(a, b, sim)},
		map[string]*clause.Clause{a.ID: a}, map[string]*clause.Clause{b.ID: b})
	require.Len(t, out, 1)
	return out[0]
}

func TestStrictnessTighten(t *testing.T) {
	a := makeClause("a0", "We will pay for theft.", clause.TypeCoverage)
	b := makeClause("b0", "We will pay for theft, provided a police report is filed within 48 hours.", clause.TypeCoverage)

	m := interpretPair(t, a, b, 0.80)

	assert.Equal(t, -1, m.StrictnessDelta, "ABSOLUTE(2) to CONDITIONAL(1)")
	assert.GreaterOrEqual(t, m.MaterialityScore, 0.25)
	assert.True(t, m.ReviewRequired, "burden shifted onto the insured")
	require.NotNil(t, m.TokenDiff)
	assert.Contains(t, m.TokenDiff.Added, "police")
	assert.Empty(t, m.TokenDiff.Removed)
}

func TestPolarityFlip(t *testing.T) {
	a := makeClause("a0", "We will pay for flood damage to the insured property.", clause.TypeCoverage)
	b := makeClause("b0", "We will not pay for flood damage to the insured property.", clause.TypeExclusion)

	m := interpretPair(t, a, b, 0.80)

	assert.GreaterOrEqual(t, m.MaterialityScore, 0.35, "polarity change alone contributes 0.35")
	assert.True(t, m.ReviewRequired)
}

func TestNumericChange(t *testing.T) {
	a := makeClause("a0", "We will pay up to the limit of liability of $10,000,000.", clause.TypeCoverage)
	b := makeClause("b0", "We will pay up to the limit of liability of $5,000,000.", clause.TypeCoverage)

	m := interpretPair(t, a, b, 0.95)

	require.Contains(t, m.NumericDelta, clause.FieldLimit)
	fd := m.NumericDelta[clause.FieldLimit]
	require.NotNil(t, fd.AValue)
	require.NotNil(t, fd.BValue)
	require.NotNil(t, fd.DeltaPct)
	assert.InDelta(t, 10000000, *fd.AValue, 1e-6)
	assert.InDelta(t, 5000000, *fd.BValue, 1e-6)
	assert.InDelta(t, -50.0, *fd.DeltaPct, 1e-6)
	assert.True(t, m.ReviewRequired, "a 50% limit cut needs review")
}

func TestUnchangedMatchScoresZero(t *testing.T) {
	a := makeClause("a0", "We will pay for theft of contents.", clause.TypeCoverage)
	b := makeClause("b0", "We will pay for theft of contents.", clause.TypeCoverage)

	m := interpretPair(t, a, b, 1.0)

	assert.Equal(t, clause.StatusUnchanged, m.Status)
	assert.Equal(t, 0.0, m.MaterialityScore)
	assert.Equal(t, 0, m.StrictnessDelta)
	assert.False(t, m.ReviewRequired)
	assert.Nil(t, m.TokenDiff)
}

func TestAddedAndRemovedScoring(t *testing.T) {
	in := NewInterpreter(clause.DefaultOptions())
	b := makeClause("b0", "We will not pay for cyber losses unless the firewall is maintained.", clause.TypeExclusion)
	added := clause.Match{
		BID: b.ID, Status: clause.StatusAdded, ClauseType: b.Type,
		Evidence: clause.Evidence{B: &clause.PageRange{PageStart: 3, PageEnd: 3}},
	}
	out := in.Interpret([]clause.Match{added}, map[string]*clause.Clause{}, map[string]*clause.Clause{b.ID: b})
	require.Len(t, out, 1)
	m := out[0]

	// Added CONDITIONAL clause: +rank(b) = +1.
	assert.Equal(t, 1, m.StrictnessDelta)
	// polarity 0.35 + strictness 0.125 + carve-out 0.2 + token 0.1.
	assert.GreaterOrEqual(t, m.MaterialityScore, 0.7)
	assert.True(t, m.ReviewRequired)
	assert.Nil(t, m.Similarity)

	a := makeClause("a0", "We will pay for theft.", clause.TypeCoverage)
	removed := clause.Match{
		AID: a.ID, Status: clause.StatusRemoved, ClauseType: a.Type,
		Evidence: clause.Evidence{A: &clause.PageRange{PageStart: 2, PageEnd: 2}},
	}
	out = in.Interpret([]clause.Match{removed}, map[string]*clause.Clause{a.ID: a}, map[string]*clause.Clause{})
	require.Len(t, out, 1)
	assert.Equal(t, -2, out[0].StrictnessDelta, "removed ABSOLUTE clause: -rank(a)")
}

func TestLowConfidenceBandRequiresReview(t *testing.T) {
	a := makeClause("a0", "We will pay for glass breakage at the premises.", clause.TypeCoverage)
	b := makeClause("b0", "We will pay for glass breakage at the situation.", clause.TypeCoverage)

	m := interpretPair(t, a, b, 0.60)
	assert.True(t, m.ReviewRequired, "similarity in [0.55, threshold) is a low-confidence edge")

	m = interpretPair(t, a, b, 0.90)
	assert.False(t, m.ReviewRequired)
}

func TestMaterialityBounds(t *testing.T) {
	texts := []string{
		"We will pay for theft.",
		"We will not pay for anything except losses under $1,000 unless notified within 7 days.",
		"We may at our discretion pay 80% of the loss.",
	}
	in := NewInterpreter(clause.DefaultOptions())
	for _, ta := range texts {
		for _, tb := range texts {
			a := makeClause("a0", ta, clause.TypeCoverage)
			b := makeClause("b0", tb, clause.TypeExclusion)
			out := in.Interpret([]clause.Match{pairMatch(a, b, 0.8)},
				map[string]*clause.Clause{a.ID: a}, map[string]*clause.Clause{b.ID: b})
			m := out[0]
			assert.GreaterOrEqual(t, m.MaterialityScore, 0.0)
			assert.LessOrEqual(t, m.MaterialityScore, 1.0)
			assert.GreaterOrEqual(t, m.StrictnessDelta, -2)
			assert.LessOrEqual(t, m.StrictnessDelta, 2)
		}
	}
}

func TestTokenizeDropsShortAndStopwords(t *testing.T) {
	tokens := Tokenize("We will pay for the theft of contents!")
	assert.NotContains(t, tokens, "we")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "of")
	assert.Contains(t, tokens, "theft")
	assert.Contains(t, tokens, "contents")
}
