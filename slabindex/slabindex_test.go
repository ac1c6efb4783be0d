package slabindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/fmstephe/nvmalloc/slab"
	"github.com/fmstephe/nvmalloc/tunables"
)

func newSlab(t *testing.T, baseOffset uint64) *slab.Slab {
	t.Helper()
	s, err := slab.NewSlab(0, baseOffset)
	require.NoError(t, err)
	return s
}

func TestInsertLookupRemove(t *testing.T) {
	idx := New(0)

	s := newSlab(t, tunables.SlabSize*3)

	require.NoError(t, idx.Insert(tunables.SlabSize*3, s))
	assert.Same(t, s, idx.Lookup(tunables.SlabSize*3))
	assert.Nil(t, idx.Lookup(tunables.SlabSize*4))

	assert.Same(t, s, idx.Remove(tunables.SlabSize*3))
	assert.Nil(t, idx.Lookup(tunables.SlabSize*3))
	assert.Nil(t, idx.Remove(tunables.SlabSize*3))
}

func TestInsertDuplicate(t *testing.T) {
	idx := New(0)

	s1 := newSlab(t, 0)
	s2 := newSlab(t, 0)

	require.NoError(t, idx.Insert(0, s1))

	err := idx.Insert(0, s2)
	require.ErrorIs(t, err, ErrDuplicate)

	// Table unchanged on failure: lookup still returns the original.
	assert.Same(t, s1, idx.Lookup(0))
}

func TestCollidingBuckets(t *testing.T) {
	idx := New(1) // force every key into bucket 0

	s1 := newSlab(t, 0)
	s2 := newSlab(t, tunables.SlabSize)
	s3 := newSlab(t, tunables.SlabSize*2)

	require.NoError(t, idx.Insert(0, s1))
	require.NoError(t, idx.Insert(tunables.SlabSize, s2))
	require.NoError(t, idx.Insert(tunables.SlabSize*2, s3))

	assert.Equal(t, 3, idx.Len())
	assert.Same(t, s2, idx.Lookup(tunables.SlabSize))

	assert.Same(t, s2, idx.Remove(tunables.SlabSize))
	assert.Equal(t, 2, idx.Len())
	assert.Same(t, s1, idx.Lookup(0))
	assert.Same(t, s3, idx.Lookup(tunables.SlabSize*2))
}
