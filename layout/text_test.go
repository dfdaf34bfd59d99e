package layout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ucc/clause"
)

const policyFixture = `Policy Schedule

Sum insured: $1,000,000.

1. Coverage

We will pay for loss or damage to the insured property caused by fire.

1.1 Theft

We will pay for theft of contents from the premises.
` + "\f" + `2. Exclusions

We will not pay for loss caused by flood.
`

func TestTextExtractorBlocks(t *testing.T) {
	x := NewTextExtractor()
	docID := clause.DocID([]byte(policyFixture))
	blocks, err := x.Extract(context.Background(), docID, []byte(policyFixture))
	require.NoError(t, err)
	require.Len(t, blocks, 4)

	admin := blocks[0]
	assert.Equal(t, []string{"Policy Schedule"}, admin.SectionPath)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, 1, admin.PageStart)

	fire := blocks[1]
	assert.Equal(t, []string{"1. Coverage"}, fire.SectionPath)
	assert.False(t, fire.IsAdmin)
	assert.Contains(t, fire.Text, "caused by fire")

	theft := blocks[2]
	assert.Equal(t, []string{"1. Coverage", "1.1 Theft"}, theft.SectionPath)

	flood := blocks[3]
	assert.Equal(t, []string{"2. Exclusions"}, flood.SectionPath)
	assert.Equal(t, 2, flood.PageStart)
	assert.Equal(t, 2, flood.PageEnd)

	// Ordering and id stability.
	for i, b := range blocks {
		assert.Equal(t, i, b.Sequence)
		assert.Equal(t, clause.BlockID(docID, i), b.ID)
		assert.LessOrEqual(t, b.PageStart, b.PageEnd)
		assert.NotEmpty(t, b.SectionPath)
	}
}

func TestTextExtractorParseErrors(t *testing.T) {
	x := NewTextExtractor()

	t.Run("binary input", func(t *testing.T) {
		_, err := x.Extract(context.Background(), "doc", []byte{0xff, 0xfe, 0x00, 0x01})
		require.Error(t, err)
		assert.True(t, IsParseError(err))
	})

	t.Run("blank input", func(t *testing.T) {
		_, err := x.Extract(context.Background(), "doc", []byte("   \n\n  "))
		require.Error(t, err)
		assert.True(t, IsParseError(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := x.Extract(ctx, "doc", []byte("Some text"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
