package index

import (
	"cmp"
	"errors"
	"fmt"
	"sync"

	"github.com/jobala/petro/buffer"
	"github.com/jobala/petro/storage/disk"
	"github.com/jobala/petro/util"
)

// accessMode is the operation a traversal is latching pages for; it
// determines which safety predicate findLeafForWrite applies while
// crabbing down to the target leaf.
type accessMode int

const (
	modeInsert accessMode = iota
	modeDelete
)

// bplusTree is a concurrent, disk-backed B+tree. mu ("the tree latch")
// guards only swaps of rootPageId; every other access is serialized by
// the per-page latches the buffer pool hands out through its guards.
type bplusTree[K cmp.Ordered, V any] struct {
	mu              sync.Mutex
	bpm             *buffer.BufferpoolManager
	indexName       string
	leafMaxSize     int32
	internalMaxSize int32
	rootPageId      int64
}

// NewBplusTree opens (or creates) the named index against bpm. leafMaxSize
// and internalMaxSize bound how many entries a page of each kind holds
// before it splits.
func NewBplusTree[K cmp.Ordered, V any](name string, bpm *buffer.BufferpoolManager, leafMaxSize, internalMaxSize int32) (*bplusTree[K, V], error) {
	rootId, err := readRootPageId(bpm, name)
	if err != nil {
		return nil, err
	}

	return &bplusTree[K, V]{
		bpm:             bpm,
		indexName:       name,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageId:      rootId,
	}, nil
}

func (b *bplusTree[K, V]) getRootPageId() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rootPageId
}

func (b *bplusTree[K, V]) setRootPageId(id int64) error {
	b.mu.Lock()
	b.rootPageId = id
	b.mu.Unlock()
	return writeRootPageId(b.bpm, b.indexName, id)
}

func (b *bplusTree[K, V]) IsEmpty() bool {
	return b.getRootPageId() == disk.INVALID_PAGE_ID
}

// finish releases every latch still held by txn and reclaims every page
// id it marked for deletion. Deletion happens last and only after every
// latch is gone, matching the "unlatch and unpin before delete" rule.
func (b *bplusTree[K, V]) finish(txn *transaction) {
	txn.releaseAll()
	for _, id := range txn.deletedPageSet {
		b.bpm.DeletePage(id)
	}
}

// --- search -----------------------------------------------------------

func (b *bplusTree[K, V]) findLeafForRead(key K) (*buffer.ReadPageGuard, error) {
	for {
		rootId := b.getRootPageId()
		if rootId == disk.INVALID_PAGE_ID {
			return nil, util.NewError(util.ErrNotFound, "index is empty")
		}

		guard, err := b.bpm.ReadPage(rootId)
		if err != nil {
			return nil, err
		}
		if b.getRootPageId() != rootId {
			guard.Drop()
			continue
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

			childGuard, err := b.bpm.ReadPage(internal.childForKey(key))
			if err != nil {
				cur.Drop()
				return nil, err
			}
			cur.Drop()
			cur = childGuard
		}
	}
}

// GetValue returns the values stored under key, or ErrNotFound.
func (b *bplusTree[K, V]) GetValue(key K) ([]V, error) {
	guard, err := b.findLeafForRead(key)
	if err != nil {
		return nil, err
	}
	defer guard.Drop()

	leaf, err := decodeLeaf[K, V](guard.GetData())
	if err != nil {
		return nil, err
	}

	idx := leaf.findInsertIdx(key)
	if idx >= int(leaf.Size) || leaf.Keys[idx] != key {
		return nil, util.NewError(util.ErrNotFound, fmt.Sprintf("key %v not found", key))
	}
	return []V{leaf.Values[idx]}, nil
}

// --- write traversal (latch crabbing) ----------------------------------

func isSafeLeaf(mode accessMode, isRoot bool, size, leafMaxSize int32) bool {
	if mode == modeInsert {
		return size < leafMaxSize-1
	}
	if isRoot {
		return true
	}
	minSize := (leafMaxSize + 1) / 2
	return size > minSize
}

func isSafeInternal(mode accessMode, isRoot bool, size, internalMaxSize int32) bool {
	if mode == modeInsert {
		return size < internalMaxSize
	}
	if isRoot {
		return size > 2
	}
	minSize := (internalMaxSize + 1) / 2
	return size > minSize
}

// findLeafForWrite crabs down to key's leaf under writer latches. Each
// time a safe child is latched, every ancestor above it is released, so
// txn ends up holding the path from the nearest safe node (or the root,
// if none below it was safe) down to the leaf. txn owns every retained
// latch.
func (b *bplusTree[K, V]) findLeafForWrite(key K, mode accessMode, txn *transaction) (*buffer.WritePageGuard, error) {
	for {
		rootId := b.getRootPageId()
		if rootId == disk.INVALID_PAGE_ID {
			return nil, util.NewError(util.ErrNotFound, "index is empty")
		}

		guard, err := b.bpm.WritePage(rootId)
		if err != nil {
			return nil, err
		}
		if b.getRootPageId() != rootId {
			guard.Drop()
			continue
		}

		txn.push(guard)
		cur := guard

		for {
			if peekPageType(cur.GetData()) == LEAF_PAGE {
				return cur, nil
			}

			internal, err := decodeInternal[K](cur.GetData())
			if err != nil {
				txn.releaseAll()
				return nil, err
			}

			childGuard, err := b.bpm.WritePage(internal.childForKey(key))
			if err != nil {
				txn.releaseAll()
				return nil, err
			}

			var childSafe bool
			switch peekPageType(childGuard.GetData()) {
			case LEAF_PAGE:
				childLeaf, err := decodeLeaf[K, V](childGuard.GetData())
				if err != nil {
					childGuard.Drop()
					txn.releaseAll()
					return nil, err
				}
				childSafe = isSafeLeaf(mode, false, childLeaf.Size, b.leafMaxSize)
			default:
				childInternal, err := decodeInternal[K](childGuard.GetData())
				if err != nil {
					childGuard.Drop()
					txn.releaseAll()
					return nil, err
				}
				childSafe = isSafeInternal(mode, false, childInternal.Size, b.internalMaxSize)
			}

			txn.push(childGuard)
			if childSafe {
				txn.releaseAncestorsAbove()
			}
			cur = childGuard
		}
	}
}

// reparent updates a page's parent pointer in place.
func (b *bplusTree[K, V]) reparent(pageId, newParentId int64) error {
	guard, err := b.bpm.WritePage(pageId)
	if err != nil {
		return err
	}
	defer guard.Drop()

	switch peekPageType(guard.GetData()) {
	case LEAF_PAGE:
		leaf, err := decodeLeaf[K, V](guard.GetData())
		if err != nil {
			return err
		}
		leaf.ParentPageId = newParentId
		return writeLeaf(guard, leaf)
	default:
		internal, err := decodeInternal[K](guard.GetData())
		if err != nil {
			return err
		}
		internal.ParentPageId = newParentId
		return writeInternal(guard, internal)
	}
}

func writeLeaf[K cmp.Ordered, V any](guard *buffer.WritePageGuard, leaf *bplusLeafPage[K, V]) error {
	data, err := encodeLeaf(leaf)
	if err != nil {
		return err
	}
	copy(*guard.GetDataMut(), data)
	return nil
}

func writeInternal[K cmp.Ordered](guard *buffer.WritePageGuard, internal *bplusInternalPage[K]) error {
	data, err := encodeInternal(internal)
	if err != nil {
		return err
	}
	copy(*guard.GetDataMut(), data)
	return nil
}

// --- insert -------------------------------------------------------------

// Insert adds key/value, returning false without error on a duplicate
// key.
func (b *bplusTree[K, V]) Insert(key K, value V) (bool, error) {
	for {
		txn := newTransaction()
		leafGuard, err := b.findLeafForWrite(key, modeInsert, txn)
		if err != nil {
			b.finish(txn)
			if errors.Is(err, util.ErrNotFound) {
				if err := b.createInitialRoot(); err != nil {
					return false, err
				}
				continue
			}
			return false, err
		}

		leaf, err := decodeLeaf[K, V](leafGuard.GetData())
		if err != nil {
			b.finish(txn)
			return false, err
		}

		idx := leaf.findInsertIdx(key)
		if idx < int(leaf.Size) && leaf.Keys[idx] == key {
			b.finish(txn)
			return false, nil
		}

		leaf.insertAt(idx, key, value)

		if leaf.Size < b.leafMaxSize {
			if err := writeLeaf(leafGuard, leaf); err != nil {
				b.finish(txn)
				return false, err
			}
			b.finish(txn)
			return true, nil
		}

		siblingId, siblingGuard, err := b.bpm.NewPage()
		if err != nil {
			b.finish(txn)
			return false, err
		}
		sibling, separator := leaf.splitOff(siblingId)

		if err := writeLeaf(leafGuard, leaf); err != nil {
			siblingGuard.Drop()
			b.finish(txn)
			return false, err
		}
		if err := writeLeaf(siblingGuard, sibling); err != nil {
			siblingGuard.Drop()
			b.finish(txn)
			return false, err
		}
		leafGuard.Drop()
		siblingGuard.Drop()
		txn.popLast() // leafGuard already released above, not an ancestor

		if err := b.insertInParent(txn, leaf.PageId, leaf.ParentPageId, separator, siblingId); err != nil {
			b.finish(txn)
			return false, err
		}

		b.finish(txn)
		return true, nil
	}
}

// createInitialRoot allocates the tree's first leaf when findLeafForWrite
// reports an empty tree. The emptiness check, the allocation and the root
// swap all happen under the tree latch, so concurrent callers racing here
// create exactly one root; the others find it already set and return. The
// caller retries the whole traversal afterward.
func (b *bplusTree[K, V]) createInitialRoot() error {
	b.mu.Lock()
	if b.rootPageId != disk.INVALID_PAGE_ID {
		b.mu.Unlock()
		return nil
	}

	pageId, guard, err := b.bpm.NewPage()
	if err != nil {
		b.mu.Unlock()
		return err
	}
	leaf := newLeafPage[K, V](pageId, disk.INVALID_PAGE_ID, b.leafMaxSize)
	if err := writeLeaf(guard, leaf); err != nil {
		guard.Drop()
		b.mu.Unlock()
		return err
	}
	guard.Drop()
	b.rootPageId = pageId
	b.mu.Unlock()

	return writeRootPageId(b.bpm, b.indexName, pageId)
}

// insertInParent splices (separator -> rightId) into leftId's parent,
// recursively splitting ancestors as needed. leftId/rightId have already
// been written and unlatched by the caller; txn supplies the remaining
// ancestor chain latch crabbing retained.
func (b *bplusTree[K, V]) insertInParent(txn *transaction, leftId, leftParentId int64, separator K, rightId int64) error {
	if leftParentId == disk.INVALID_PAGE_ID {
		newRootId, rootGuard, err := b.bpm.NewPage()
		if err != nil {
			return err
		}

		var unused K
		root := newInternalPage[K](newRootId, disk.INVALID_PAGE_ID, b.internalMaxSize)
		root.Keys = append(root.Keys, unused, separator)
		root.Values = append(root.Values, leftId, rightId)
		root.Size = 2

		if err := writeInternal(rootGuard, root); err != nil {
			rootGuard.Drop()
			return err
		}
		rootGuard.Drop()

		if err := b.reparent(leftId, newRootId); err != nil {
			return err
		}
		if err := b.reparent(rightId, newRootId); err != nil {
			return err
		}
		return b.setRootPageId(newRootId)
	}

	parentGuard, ok := txn.popLast().(*buffer.WritePageGuard)
	if !ok {
		return fmt.Errorf("insertInParent: expected a write guard on the page set")
	}

	parent, err := decodeInternal[K](parentGuard.GetData())
	if err != nil {
		parentGuard.Drop()
		return err
	}

	parent.insertAfter(leftId, separator, rightId)

	if parent.Size <= parent.MaxSize {
		err := writeInternal(parentGuard, parent)
		parentGuard.Drop()
		return err
	}

	siblingId, siblingGuard, err := b.bpm.NewPage()
	if err != nil {
		parentGuard.Drop()
		return err
	}
	sibling, promoted := parent.splitOff(siblingId)

	for _, childId := range sibling.Values {
		if err := b.reparent(childId, siblingId); err != nil {
			parentGuard.Drop()
			siblingGuard.Drop()
			return err
		}
	}

	if err := writeInternal(parentGuard, parent); err != nil {
		parentGuard.Drop()
		siblingGuard.Drop()
		return err
	}
	if err := writeInternal(siblingGuard, sibling); err != nil {
		parentGuard.Drop()
		siblingGuard.Drop()
		return err
	}
	parentGuard.Drop()
	siblingGuard.Drop()

	return b.insertInParent(txn, parent.PageId, parent.ParentPageId, promoted, siblingId)
}

// --- delete ---------------------------------------------------------------

// Delete removes key, returning false without error if it was absent.
func (b *bplusTree[K, V]) Delete(key K) (bool, error) {
	txn := newTransaction()
	leafGuard, err := b.findLeafForWrite(key, modeDelete, txn)
	if err != nil {
		b.finish(txn)
		if errors.Is(err, util.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	leaf, err := decodeLeaf[K, V](leafGuard.GetData())
	if err != nil {
		b.finish(txn)
		return false, err
	}

	idx := leaf.findInsertIdx(key)
	if idx >= int(leaf.Size) || leaf.Keys[idx] != key {
		leafGuard.Drop()
		txn.popLast()
		b.finish(txn)
		return false, nil
	}

	leaf.removeAt(idx)
	if err := writeLeaf(leafGuard, leaf); err != nil {
		leafGuard.Drop()
		txn.popLast()
		b.finish(txn)
		return false, err
	}
	leafGuard.Drop()
	txn.popLast()

	isRoot := leaf.ParentPageId == disk.INVALID_PAGE_ID
	switch {
	case isRoot && leaf.Size == 0:
		if err := b.setRootPageId(disk.INVALID_PAGE_ID); err != nil {
			b.finish(txn)
			return false, err
		}
		txn.markDeleted(leaf.PageId)
	case isRoot:
		// root leaf with room to spare; nothing else to repair.
	case leaf.Size >= leaf.minSize():
		// still within bounds; the write above already persisted it.
	default:
		if err := b.handleUnderflow(txn, leaf.PageId, leaf.ParentPageId, true); err != nil {
			b.finish(txn)
			return false, err
		}
	}

	b.finish(txn)
	return true, nil
}

// handleUnderflow repairs nodeId (known to be below min size) by merging
// with or redistributing from a sibling, preferring the left sibling when
// one exists. parentId's guard is expected to be the next entry on txn's
// page set, per the crabbing invariant that an unsafe node's ancestors
// stay latched until the operation that made it unsafe is resolved.
func (b *bplusTree[K, V]) handleUnderflow(txn *transaction, nodeId, parentId int64, isLeaf bool) error {
	parentGuard, ok := txn.popLast().(*buffer.WritePageGuard)
	if !ok {
		return fmt.Errorf("handleUnderflow: expected a write guard on the page set")
	}

	parent, err := decodeInternal[K](parentGuard.GetData())
	if err != nil {
		parentGuard.Drop()
		return err
	}

	nodeIdx := parent.indexOfChild(nodeId)
	siblingIsLeft := nodeIdx > 0
	siblingIdx := nodeIdx + 1
	if siblingIsLeft {
		siblingIdx = nodeIdx - 1
	}
	siblingId := parent.Values[siblingIdx]

	siblingGuard, err := b.bpm.WritePage(siblingId)
	if err != nil {
		parentGuard.Drop()
		return err
	}
	nodeGuard, err := b.bpm.WritePage(nodeId)
	if err != nil {
		siblingGuard.Drop()
		parentGuard.Drop()
		return err
	}

	if isLeaf {
		return b.resolveLeafUnderflow(txn, parentGuard, parent, nodeGuard, siblingGuard, siblingIsLeft)
	}
	return b.resolveInternalUnderflow(txn, parentGuard, parent, nodeGuard, siblingGuard, siblingIsLeft)
}

func (b *bplusTree[K, V]) resolveLeafUnderflow(
	txn *transaction,
	parentGuard *buffer.WritePageGuard, parent *bplusInternalPage[K],
	nodeGuard, siblingGuard *buffer.WritePageGuard,
	siblingIsLeft bool,
) error {
	node, err := decodeLeaf[K, V](nodeGuard.GetData())
	if err != nil {
		nodeGuard.Drop()
		siblingGuard.Drop()
		parentGuard.Drop()
		return err
	}
	sibling, err := decodeLeaf[K, V](siblingGuard.GetData())
	if err != nil {
		nodeGuard.Drop()
		siblingGuard.Drop()
		parentGuard.Drop()
		return err
	}

	left, leftGuard, right, rightGuard := node, nodeGuard, sibling, siblingGuard
	if siblingIsLeft {
		left, leftGuard, right, rightGuard = sibling, siblingGuard, node, nodeGuard
	}

	if left.Size+right.Size <= b.leafMaxSize {
		left.Keys = append(left.Keys, right.Keys...)
		left.Values = append(left.Values, right.Values...)
		left.Size += right.Size
		left.NextPageId = right.NextPageId

		if err := writeLeaf(leftGuard, left); err != nil {
			leftGuard.Drop()
			rightGuard.Drop()
			parentGuard.Drop()
			return err
		}
		leftGuard.Drop()
		rightGuard.Drop()
		txn.markDeleted(right.PageId)

		parent.removeAt(parent.indexOfChild(right.PageId))
		return b.afterParentShrink(txn, parentGuard, parent)
	}

	parentIdx := parent.indexOfChild(right.PageId)
	if siblingIsLeft {
		n := int(left.Size)
		k, v := left.Keys[n-1], left.Values[n-1]
		left.Keys = left.Keys[:n-1]
		left.Values = left.Values[:n-1]
		left.Size--
		right.insertAt(0, k, v)
	} else {
		k, v := right.Keys[0], right.Values[0]
		right.removeAt(0)
		left.Keys = append(left.Keys, k)
		left.Values = append(left.Values, v)
		left.Size++
	}
	parent.Keys[parentIdx] = right.Keys[0]

	if err := writeLeaf(leftGuard, left); err != nil {
		leftGuard.Drop()
		rightGuard.Drop()
		parentGuard.Drop()
		return err
	}
	if err := writeLeaf(rightGuard, right); err != nil {
		leftGuard.Drop()
		rightGuard.Drop()
		parentGuard.Drop()
		return err
	}
	err = writeInternal(parentGuard, parent)
	leftGuard.Drop()
	rightGuard.Drop()
	parentGuard.Drop()
	return err
}

func (b *bplusTree[K, V]) resolveInternalUnderflow(
	txn *transaction,
	parentGuard *buffer.WritePageGuard, parent *bplusInternalPage[K],
	nodeGuard, siblingGuard *buffer.WritePageGuard,
	siblingIsLeft bool,
) error {
	node, err := decodeInternal[K](nodeGuard.GetData())
	if err != nil {
		nodeGuard.Drop()
		siblingGuard.Drop()
		parentGuard.Drop()
		return err
	}
	sibling, err := decodeInternal[K](siblingGuard.GetData())
	if err != nil {
		nodeGuard.Drop()
		siblingGuard.Drop()
		parentGuard.Drop()
		return err
	}

	left, leftGuard, right, rightGuard := node, nodeGuard, sibling, siblingGuard
	if siblingIsLeft {
		left, leftGuard, right, rightGuard = sibling, siblingGuard, node, nodeGuard
	}
	parentIdx := parent.indexOfChild(right.PageId)
	parentSeparator := parent.Keys[parentIdx]

	if left.Size+right.Size <= b.internalMaxSize {
		right.Keys[0] = parentSeparator
		for _, childId := range right.Values {
			if err := b.reparent(childId, left.PageId); err != nil {
				leftGuard.Drop()
				rightGuard.Drop()
				parentGuard.Drop()
				return err
			}
		}
		left.Keys = append(left.Keys, right.Keys...)
		left.Values = append(left.Values, right.Values...)
		left.Size += right.Size

		if err := writeInternal(leftGuard, left); err != nil {
			leftGuard.Drop()
			rightGuard.Drop()
			parentGuard.Drop()
			return err
		}
		leftGuard.Drop()
		rightGuard.Drop()
		txn.markDeleted(right.PageId)

		parent.removeAt(parentIdx)
		return b.afterParentShrink(txn, parentGuard, parent)
	}

	var movedChild int64
	var newSeparator K
	movedChildNewParent := left.PageId
	if siblingIsLeft {
		movedChild, newSeparator = borrowLastChild(left, right, parentSeparator)
		movedChildNewParent = right.PageId
	} else {
		movedChild, newSeparator = borrowFirstChild(left, right, parentSeparator)
	}
	if err := b.reparent(movedChild, movedChildNewParent); err != nil {
		leftGuard.Drop()
		rightGuard.Drop()
		parentGuard.Drop()
		return err
	}
	parent.Keys[parentIdx] = newSeparator

	if err := writeInternal(leftGuard, left); err != nil {
		leftGuard.Drop()
		rightGuard.Drop()
		parentGuard.Drop()
		return err
	}
	if err := writeInternal(rightGuard, right); err != nil {
		leftGuard.Drop()
		rightGuard.Drop()
		parentGuard.Drop()
		return err
	}
	err = writeInternal(parentGuard, parent)
	leftGuard.Drop()
	rightGuard.Drop()
	parentGuard.Drop()
	return err
}

// afterParentShrink persists parent after one of its entries was removed,
// collapsing or further repairing it as needed.
func (b *bplusTree[K, V]) afterParentShrink(txn *transaction, parentGuard *buffer.WritePageGuard, parent *bplusInternalPage[K]) error {
	isRoot := parent.ParentPageId == disk.INVALID_PAGE_ID

	if isRoot {
		if parent.Size == 1 {
			onlyChild := parent.Values[0]
			parentGuard.Drop()
			if err := b.reparent(onlyChild, disk.INVALID_PAGE_ID); err != nil {
				return err
			}
			txn.markDeleted(parent.PageId)
			return b.setRootPageId(onlyChild)
		}
		err := writeInternal(parentGuard, parent)
		parentGuard.Drop()
		return err
	}

	if parent.Size >= parent.minSize() {
		err := writeInternal(parentGuard, parent)
		parentGuard.Drop()
		return err
	}

	if err := writeInternal(parentGuard, parent); err != nil {
		parentGuard.Drop()
		return err
	}
	parentGuard.Drop()
	return b.handleUnderflow(txn, parent.PageId, parent.ParentPageId, false)
}
