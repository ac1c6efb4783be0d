package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRejectsTooSmall(t *testing.T) {
	_, err := Create(0, SlabSize-1)
	require.ErrorIs(t, err, ErrTooSmall)
}

func TestCreateTruncatesToMultiple(t *testing.T) {
	m, err := Create(0, SlabSize*3+17)
	require.NoError(t, err)
	assert.Equal(t, uint64(SlabSize*3), m.TotalSize())
}

func TestAllocSlabExactFit(t *testing.T) {
	m, err := Create(0, SlabSize)
	require.NoError(t, err)

	off, err := m.AllocSlab()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off)

	assert.Empty(t, m.Segments())

	_, err = m.AllocSlab()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestAllocSlabShrinksFromFront(t *testing.T) {
	m, err := Create(0, SlabSize*3)
	require.NoError(t, err)

	off, err := m.AllocSlab()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off)

	assert.Equal(t, []Extent{{Offset: SlabSize, Size: SlabSize * 2}}, m.Segments())
}

func TestAllocSlabFreeSlabRoundTrip(t *testing.T) {
	m, err := Create(0, SlabSize*20)
	require.NoError(t, err)

	before := m.Segments()

	off, err := m.AllocSlab()
	require.NoError(t, err)

	require.NoError(t, m.FreeSlab(off))

	assert.Equal(t, before, m.Segments())
}

// Scenario 4 from spec.md §8: coalescing on free_slab, allocating three
// slabs then freeing them in middle/first/last order.
func TestFreeSlabCoalescing(t *testing.T) {
	m, err := Create(0, SlabSize*3)
	require.NoError(t, err)

	first, err := m.AllocSlab()
	require.NoError(t, err)
	second, err := m.AllocSlab()
	require.NoError(t, err)
	third, err := m.AllocSlab()
	require.NoError(t, err)

	require.NoError(t, m.FreeSlab(second))
	assert.Equal(t, []Extent{{Offset: second, Size: SlabSize}}, m.Segments())

	require.NoError(t, m.FreeSlab(first))
	assert.Equal(t, []Extent{{Offset: first, Size: SlabSize * 2}}, m.Segments())

	require.NoError(t, m.FreeSlab(third))
	assert.Equal(t, []Extent{{Offset: 0, Size: SlabSize * 3}}, m.Segments())
}

func TestFreeSlabRejectsUnaligned(t *testing.T) {
	m, err := Create(0, SlabSize*2)
	require.NoError(t, err)

	err = m.FreeSlab(1)
	require.ErrorIs(t, err, ErrUnaligned)
}

func TestFreeSlabRejectsOverlap(t *testing.T) {
	m, err := Create(0, SlabSize*2)
	require.NoError(t, err)

	_, err = m.AllocSlab()
	require.NoError(t, err)

	// The second slab [SlabSize, 2*SlabSize) is still free; freeing it
	// again must be rejected as an overlap with the existing free segment.
	err = m.FreeSlab(SlabSize)
	require.ErrorIs(t, err, ErrOverlap)
}

// Scenario 5 from spec.md §8: recovery carving space out of the middle
// of the free list.
func TestAllocAtInteriorSplit(t *testing.T) {
	m, err := Create(0, SlabSize*10)
	require.NoError(t, err)

	require.NoError(t, m.AllocAt(SlabSize*2))

	assert.Equal(t, []Extent{
		{Offset: 0, Size: SlabSize * 2},
		{Offset: SlabSize * 3, Size: SlabSize * 7},
	}, m.Segments())
}

func TestAllocAtHeadAndTailMatch(t *testing.T) {
	m, err := Create(0, SlabSize*4)
	require.NoError(t, err)

	require.NoError(t, m.AllocAt(0))
	assert.Equal(t, []Extent{{Offset: SlabSize, Size: SlabSize * 3}}, m.Segments())

	require.NoError(t, m.AllocAt(SlabSize*3))
	assert.Equal(t, []Extent{{Offset: SlabSize, Size: SlabSize * 2}}, m.Segments())
}

func TestAllocAtExactMatch(t *testing.T) {
	m, err := Create(0, SlabSize)
	require.NoError(t, err)

	require.NoError(t, m.AllocAt(0))
	assert.Empty(t, m.Segments())
}

func TestAllocAtFailsWhenUnavailable(t *testing.T) {
	m, err := Create(0, SlabSize*2)
	require.NoError(t, err)

	_, err = m.AllocSlab()
	require.NoError(t, err)

	err = m.AllocAt(0)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestFreeBytesInvariant(t *testing.T) {
	m, err := Create(0, SlabSize*5)
	require.NoError(t, err)

	indexed := 0
	for i := 0; i < 3; i++ {
		_, err := m.AllocSlab()
		require.NoError(t, err)
		indexed++
	}

	assert.Equal(t, m.TotalSize()-uint64(indexed)*SlabSize, m.FreeBytes())
}
