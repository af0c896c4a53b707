package index

import (
	"cmp"
	"math"
	"slices"

	"github.com/jobala/petro/storage/disk"
)

// bplusLeafPage stores key/value pairs in sorted key order plus a pointer
// to the next leaf, forming the right-linked list the iterator walks.
type bplusLeafPage[K cmp.Ordered, V any] struct {
	PageType     PageType
	PageId       int64
	ParentPageId int64
	NextPageId   int64
	Size         int32
	MaxSize      int32
	Keys         []K
	Values       []V
}

func newLeafPage[K cmp.Ordered, V any](pageId, parentPageId int64, maxSize int32) *bplusLeafPage[K, V] {
	return &bplusLeafPage[K, V]{
		PageType:     LEAF_PAGE,
		PageId:       pageId,
		ParentPageId: parentPageId,
		NextPageId:   disk.INVALID_PAGE_ID,
		MaxSize:      maxSize,
	}
}

// findInsertIdx returns the first slot whose key is >= key.
func (p *bplusLeafPage[K, V]) findInsertIdx(key K) int {
	lo, hi := 0, int(p.Size)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (p *bplusLeafPage[K, V]) insertAt(idx int, key K, value V) {
	p.Keys = slices.Insert(p.Keys, idx, key)
	p.Values = slices.Insert(p.Values, idx, value)
	p.Size++
}

func (p *bplusLeafPage[K, V]) removeAt(idx int) {
	p.Keys = slices.Delete(p.Keys, idx, idx+1)
	p.Values = slices.Delete(p.Values, idx, idx+1)
	p.Size--
}

// splitOff moves the upper half of p's entries to a fresh sibling and
// links p to it, returning the sibling and its first key (the separator
// that gets promoted to the parent).
func (p *bplusLeafPage[K, V]) splitOff(siblingPageId int64) (*bplusLeafPage[K, V], K) {
	mid := int(p.Size) / 2
	sib := newLeafPage[K, V](siblingPageId, p.ParentPageId, p.MaxSize)
	sib.Keys = append(sib.Keys, p.Keys[mid:]...)
	sib.Values = append(sib.Values, p.Values[mid:]...)
	sib.Size = p.Size - int32(mid)
	sib.NextPageId = p.NextPageId

	p.Keys = p.Keys[:mid]
	p.Values = p.Values[:mid]
	p.Size = int32(mid)
	p.NextPageId = siblingPageId

	return sib, sib.Keys[0]
}

func (p *bplusLeafPage[K, V]) minSize() int32 {
	return int32(math.Ceil(float64(p.MaxSize) / 2))
}
