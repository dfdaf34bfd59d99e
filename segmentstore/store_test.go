package segmentstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ucc/clause"
)

func TestKeyString(t *testing.T) {
	assert.Equal(t, "abc123.4", DocKey("abc123", 4).String())
	assert.Equal(t, "job-9.11", JobKey("job-9", 11).String())
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	blocks := []clause.Block{
		{ID: "d-0", Sequence: 0, Text: "We will pay for theft.", PageStart: 1, PageEnd: 1, SectionPath: []string{"(root)"}},
	}
	key := DocKey("doc-hash", 1)

	ok, err := s.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, key, blocks))

	ok, err = s.Has(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	var got []clause.Block
	require.NoError(t, s.Get(ctx, key, &got))
	assert.Equal(t, blocks, got)
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	var out []clause.Block
	assert.ErrorIs(t, s.Get(context.Background(), DocKey("nope", 1), &out), ErrNotFound)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := JobKey("job-1", 10)

	require.NoError(t, s.Put(ctx, key, []string{"first"}))
	require.NoError(t, s.Put(ctx, key, []string{"second"}))

	var got []string
	require.NoError(t, s.Get(ctx, key, &got))
	assert.Equal(t, []string{"second"}, got)
}

func TestMemoryStoreDeleteOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, DocKey("doc-1", 1), "a"))
	require.NoError(t, s.Put(ctx, DocKey("doc-1", 2), "b"))
	require.NoError(t, s.Put(ctx, DocKey("doc-2", 1), "c"))

	require.NoError(t, s.DeleteOwner(ctx, "doc-1"))

	ok, _ := s.Has(ctx, DocKey("doc-1", 1))
	assert.False(t, ok)
	ok, _ = s.Has(ctx, DocKey("doc-2", 1))
	assert.True(t, ok, "other owners are untouched")
}
