package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtendibleHashTable_FindInsertRemove(t *testing.T) {
	h := NewExtendibleHashTable[int, string](4)

	h.Insert(1, "a")
	h.Insert(2, "b")

	v, ok := h.Find(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	h.Insert(1, "a-updated")
	v, ok = h.Find(1)
	require.True(t, ok)
	assert.Equal(t, "a-updated", v)

	assert.True(t, h.Remove(2))
	_, ok = h.Find(2)
	assert.False(t, ok)

	assert.False(t, h.Remove(2))
}

func TestExtendibleHashTable_SplitsAndGrowsDirectory(t *testing.T) {
	h := NewExtendibleHashTable[int, string](2)

	assert.Equal(t, 0, h.GlobalDepth())

	h.Insert(1, "a")
	h.Insert(5, "b")
	assert.Equal(t, 0, h.GlobalDepth())

	// Third insert overflows the single bucket and forces at least one
	// split; directory doubling continues until the target bucket has
	// room, per the design's while-loop.
	h.Insert(9, "c")

	assert.GreaterOrEqual(t, h.GlobalDepth(), 1)
	assert.Equal(t, 1<<h.GlobalDepth(), len(h.dir))

	for k, want := range map[int]string{1: "a", 5: "b", 9: "c"} {
		got, ok := h.Find(k)
		require.True(t, ok, "key %d should be found", k)
		assert.Equal(t, want, got)
	}
}

func TestExtendibleHashTable_DirectoryInvariant(t *testing.T) {
	h := NewExtendibleHashTable[int, int](2)

	for i := 0; i < 200; i++ {
		h.Insert(i, i*i)
	}

	for i, b := range h.dir {
		assert.LessOrEqual(t, b.depth, h.globalDepth)
		localMask := uint64((1 << b.depth) - 1)
		for _, it := range b.items {
			assert.Equal(t, uint64(i)&localMask, hashKey(it.key)&localMask)
		}
	}

	for i := 0; i < 200; i++ {
		got, ok := h.Find(i)
		require.True(t, ok)
		assert.Equal(t, i*i, got)
	}
}
