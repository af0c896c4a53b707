package index

import (
	"cmp"

	"github.com/jobala/petro/buffer"
	"github.com/jobala/petro/storage/disk"
	"github.com/jobala/petro/util"
)

// IndexIterator walks a leaf chain left to right over decoded copies of
// the leaves. It holds no pin or latch between calls: each leaf is read
// under a reader latch, decoded, and released before the iterator moves
// on, so changes a writer makes to a leaf after it was read are not seen.
type IndexIterator[K cmp.Ordered, V any] struct {
	tree *bplusTree[K, V]
	leaf *bplusLeafPage[K, V]
	pos  int
}

// Begin returns an iterator positioned at the first entry of the leftmost
// leaf.
func (b *bplusTree[K, V]) Begin() (*IndexIterator[K, V], error) {
	guard, err := b.findLeftmostLeaf()
	if err != nil {
		return nil, err
	}
	defer guard.Drop()

	leaf, err := decodeLeaf[K, V](guard.GetData())
	if err != nil {
		return nil, err
	}
	return &IndexIterator[K, V]{tree: b, leaf: leaf, pos: 0}, nil
}

// BeginAt returns an iterator positioned at the first entry whose key is
// >= key. If key sorts after every entry in the leaf it lands on, the
// iterator advances to the next leaf in the chain until it finds one, or
// runs off the end.
func (b *bplusTree[K, V]) BeginAt(key K) (*IndexIterator[K, V], error) {
	guard, err := b.findLeafForRead(key)
	if err != nil {
		return nil, err
	}
	defer guard.Drop()

	leaf, err := decodeLeaf[K, V](guard.GetData())
	if err != nil {
		return nil, err
	}

	it := &IndexIterator[K, V]{tree: b, leaf: leaf, pos: leaf.findInsertIdx(key)}
	if err := it.skipExhaustedLeaves(); err != nil {
		return nil, err
	}
	return it, nil
}

func (b *bplusTree[K, V]) findLeftmostLeaf() (*buffer.ReadPageGuard, error) {
	rootId := b.getRootPageId()
	if rootId == disk.INVALID_PAGE_ID {
		return nil, util.NewError(util.ErrNotFound, "index is empty")
	}
	guard, err := b.bpm.ReadPage(rootId)
	if err != nil {
		return nil, err
	}
	cur := guard
	for {
		if peekPageType(cur.GetData()) == LEAF_PAGE {
			return cur, nil
		}
		internal, err := decodeInternal[K](cur.GetData())
		if err != nil {
			cur.Drop()
			return nil, err
		}
		childGuard, err := b.bpm.ReadPage(internal.Values[0])
		if err != nil {
			cur.Drop()
			return nil, err
		}
		cur.Drop()
		cur = childGuard
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *IndexIterator[K, V]) Valid() bool {
	return it.leaf != nil && it.pos < int(it.leaf.Size)
}

// Key and Value return the entry at the iterator's current position. Call
// only when Valid reports true.
func (it *IndexIterator[K, V]) Key() K { return it.leaf.Keys[it.pos] }
func (it *IndexIterator[K, V]) Value() V { return it.leaf.Values[it.pos] }

// Next advances the iterator by one entry, fetching the next leaf when
// the current one is exhausted.
func (it *IndexIterator[K, V]) Next() error {
	it.pos++
	return it.skipExhaustedLeaves()
}

// skipExhaustedLeaves follows the leaf chain forward while the iterator's
// position has run off the end of its current leaf, landing on the next
// leaf with an entry at pos or past the end of the chain. A single `pos++`
// can only run off the end of one leaf, but BeginAt may also land past the
// end of its leaf directly (its key sorts after every entry there), so this
// loops rather than advancing just once.
func (it *IndexIterator[K, V]) skipExhaustedLeaves() error {
	for it.leaf != nil && it.pos >= int(it.leaf.Size) {
		if it.leaf.NextPageId == disk.INVALID_PAGE_ID {
			it.leaf = nil
			return nil
		}

		guard, err := it.tree.bpm.ReadPage(it.leaf.NextPageId)
		if err != nil {
			return err
		}
		next, err := decodeLeaf[K, V](guard.GetData())
		guard.Drop()
		if err != nil {
			return err
		}
		it.leaf = next
		it.pos = 0
	}
	return nil
}
