package align

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/dna"
	"github.com/c360studio/ucc/embed"
	"github.com/c360studio/ucc/retry"
)

func makeClause(id string, seq int, text string, typ clause.ClauseType, path ...string) clause.Clause {
	if len(path) == 0 {
		path = []string{clause.RootSection}
	}
	c := clause.Clause{
		Block: clause.Block{
			ID:          id,
			Sequence:    seq,
			Text:        text,
			PageStart:   1,
			PageEnd:     1,
			SectionPath: path,
		},
		Type: typ,
	}
	c.DNA = dna.Extract(text)
	return c
}

func newTestAligner(opts clause.Options) *Aligner {
	return New(embed.NewLexicalEmbedder(), opts, WithRetryConfig(retry.Config{
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        time.Millisecond,
	}))
}

func TestAlignIdenticalClauses(t *testing.T) {
	a := []clause.Clause{makeClause("a0", 0, "We will pay for theft of contents.", clause.TypeCoverage)}
	b := []clause.Clause{makeClause("b0", 0, "We will pay for theft of contents.", clause.TypeCoverage)}

	res, err := newTestAligner(clause.DefaultOptions()).Align(context.Background(), a, b, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)

	m := res.Matches[0]
	assert.Equal(t, clause.StatusUnchanged, m.Status)
	require.NotNil(t, m.Similarity)
	assert.InDelta(t, 1.0, *m.Similarity, 1e-3)
	assert.Equal(t, "a0", m.AID)
	assert.Equal(t, "b0", m.BID)
}

func TestAlignAddedAndRemoved(t *testing.T) {
	a := []clause.Clause{
		makeClause("a0", 0, "We will pay for theft of contents from the premises.", clause.TypeCoverage),
		makeClause("a1", 1, "We will not pay for loss caused by flood or rising water.", clause.TypeExclusion),
	}
	b := []clause.Clause{
		makeClause("b0", 0, "We will pay for theft of contents from the premises.", clause.TypeCoverage),
	}

	res, err := newTestAligner(clause.DefaultOptions()).Align(context.Background(), a, b, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)

	byStatus := map[clause.MatchStatus]clause.Match{}
	for _, m := range res.Matches {
		byStatus[m.Status] = m
	}
	assert.Equal(t, "a1", byStatus[clause.StatusRemoved].AID)
	assert.Empty(t, byStatus[clause.StatusRemoved].BID)
	assert.Nil(t, byStatus[clause.StatusRemoved].Similarity)
	assert.Equal(t, clause.StatusUnchanged, byStatus[clause.StatusUnchanged].Status)
}

func TestAlignExcludesAdminBlocks(t *testing.T) {
	admin := makeClause("a0", 0, "Thank you for insuring with us.", clause.TypeAdmin)
	admin.IsAdmin = true
	a := []clause.Clause{admin, makeClause("a1", 1, "We will pay for theft.", clause.TypeCoverage)}
	b := []clause.Clause{makeClause("b0", 0, "We will pay for theft.", clause.TypeCoverage)}

	res, err := newTestAligner(clause.DefaultOptions()).Align(context.Background(), a, b, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a0"}, res.UnmappedA)
	for _, m := range res.Matches {
		assert.NotEqual(t, "a0", m.AID)
	}
}

func TestAlignCrossTypeGate(t *testing.T) {
	// Identical wording but different non-polarity clause types: the gate
	// halves the score below the floor and the pair dissolves.
	a := []clause.Clause{makeClause("a0", 0, "Notice of claims must be given promptly to the insurer office.", clause.TypeCondition)}
	b := []clause.Clause{makeClause("b0", 0, "Notice of claims must be given promptly to the insurer office.", clause.TypeWarranty)}

	res, err := newTestAligner(clause.DefaultOptions()).Align(context.Background(), a, b, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	statuses := []clause.MatchStatus{res.Matches[0].Status, res.Matches[1].Status}
	assert.Contains(t, statuses, clause.StatusRemoved)
	assert.Contains(t, statuses, clause.StatusAdded)
}

func TestAlignPolarityFlipSurvivesGate(t *testing.T) {
	a := []clause.Clause{makeClause("a0", 0, "We will pay for flood damage to the insured property.", clause.TypeCoverage)}
	b := []clause.Clause{makeClause("b0", 0, "We will not pay for flood damage to the insured property.", clause.TypeExclusion)}

	res, err := newTestAligner(clause.DefaultOptions()).Align(context.Background(), a, b, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, clause.StatusModified, res.Matches[0].Status)
}

func TestAlignDeterministic(t *testing.T) {
	a := []clause.Clause{
		makeClause("a0", 0, "We will pay for theft of contents.", clause.TypeCoverage),
		makeClause("a1", 1, "We will pay for theft of stock.", clause.TypeCoverage),
	}
	b := []clause.Clause{
		makeClause("b0", 0, "We will pay for theft of contents.", clause.TypeCoverage),
		makeClause("b1", 1, "We will pay for theft of stock.", clause.TypeCoverage),
	}

	al := newTestAligner(clause.DefaultOptions())
	first, err := al.Align(context.Background(), a, b, nil, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := al.Align(context.Background(), a, b, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, first.Matches, again.Matches)
	}
}

// failingEmbedder always fails with a transient error.
type failingEmbedder struct{}

func (f *failingEmbedder) ModelID() string { return "failing/test" }

func (f *failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, retry.Transient(errors.New("backend down"))
}

func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float64, error) {
	return nil, retry.Transient(errors.New("backend down"))
}

func TestAlignFallsBackToLexical(t *testing.T) {
	al := New(&failingEmbedder{}, clause.DefaultOptions(), WithRetryConfig(retry.Config{
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        time.Millisecond,
	}))

	a := []clause.Clause{makeClause("a0", 0, "We will pay for theft of contents.", clause.TypeCoverage)}
	b := []clause.Clause{makeClause("b0", 0, "We will pay for theft of contents.", clause.TypeCoverage)}

	res, err := al.Align(context.Background(), a, b, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, FallbackWarning)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, clause.StatusUnchanged, res.Matches[0].Status)
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard(nil, nil))
	assert.Equal(t, 1.0, Jaccard([]string{"x"}, []string{"x"}))
	assert.Equal(t, 0.5, Jaccard([]string{"x", "y"}, []string{"x"}))
	assert.Equal(t, 0.0, Jaccard([]string{"x"}, []string{"y"}))
}
