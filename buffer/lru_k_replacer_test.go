package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLrukReplacer_RecordAccess(t *testing.T) {
	t.Run("new accesses queue up in history until k is reached", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		replacer.recordAccess(1)
		node := replacer.nodeStore[1]
		assert.Equal(t, 1, node.accessCount)
		assert.False(t, node.isEvictable)

		replacer.recordAccess(1)
		assert.Equal(t, 2, node.accessCount)
	})

	t.Run("out of range frame id panics", func(t *testing.T) {
		replacer := NewLrukReplacer(3, 2)
		assert.Panics(t, func() { replacer.recordAccess(3) })
		assert.Panics(t, func() { replacer.recordAccess(-1) })
	})
}

// Scenario from spec.md §8.1: K=2, pool of 3 frames, access pattern A A B C.
func TestLrukReplacer_EvictionOrder(t *testing.T) {
	replacer := NewLrukReplacer(3, 2)

	replacer.recordAccess(0) // A
	replacer.recordAccess(0) // A again: reaches k=2, promoted to cache
	replacer.recordAccess(1) // B: first access, history
	replacer.recordAccess(2) // C: first access, history

	replacer.setEvictable(0, true)
	replacer.setEvictable(1, true)
	replacer.setEvictable(2, true)

	assert.Equal(t, 3, replacer.size())

	// History list (back to front): B, C. B sits further back (older),
	// so B is the first victim even though A has been accessed more.
	frame, ok := replacer.evict()
	assert.True(t, ok)
	assert.Equal(t, 1, frame)

	// Next history victim is C.
	frame, ok = replacer.evict()
	assert.True(t, ok)
	assert.Equal(t, 2, frame)

	// Only A (in cache) remains.
	frame, ok = replacer.evict()
	assert.True(t, ok)
	assert.Equal(t, 0, frame)

	assert.Equal(t, 0, replacer.size())
}

func TestLrukReplacer_EvictSkipsNonEvictable(t *testing.T) {
	replacer := NewLrukReplacer(3, 2)

	replacer.recordAccess(0)
	replacer.recordAccess(1)
	replacer.recordAccess(2)

	replacer.setEvictable(1, true)

	frame, ok := replacer.evict()
	assert.True(t, ok)
	assert.Equal(t, 1, frame)
}

func TestLrukReplacer_EvictEmptyReturnsFalse(t *testing.T) {
	replacer := NewLrukReplacer(3, 2)
	_, ok := replacer.evict()
	assert.False(t, ok)
}

func TestLrukReplacer_SetEvictableIsNoopBeforeFirstAccess(t *testing.T) {
	replacer := NewLrukReplacer(3, 2)

	replacer.setEvictable(0, true)
	assert.Equal(t, 0, replacer.size())
}

func TestLrukReplacer_Remove(t *testing.T) {
	replacer := NewLrukReplacer(3, 2)

	replacer.recordAccess(0)
	replacer.setEvictable(0, true)
	assert.Equal(t, 1, replacer.size())

	replacer.remove(0)
	assert.Equal(t, 0, replacer.size())

	// Re-accessing after removal starts the frame fresh in history.
	replacer.recordAccess(0)
	assert.Equal(t, 1, replacer.nodeStore[0].accessCount)

	// Removing a frame that was never accessed is a no-op, not a panic.
	replacer.remove(1)
}

func TestLrukReplacer_SizeTracksEvictableCount(t *testing.T) {
	replacer := NewLrukReplacer(3, 2)

	replacer.recordAccess(0)
	replacer.recordAccess(1)
	assert.Equal(t, 0, replacer.size())

	replacer.setEvictable(0, true)
	assert.Equal(t, 1, replacer.size())

	replacer.setEvictable(0, true) // idempotent
	assert.Equal(t, 1, replacer.size())

	replacer.setEvictable(0, false)
	assert.Equal(t, 0, replacer.size())
}
