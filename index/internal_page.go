package index

import (
	"cmp"
	"math"
	"slices"
)

// bplusInternalPage routes keys to children. Slot 0's key is never read:
// Values[0] is the leftmost child pointer, and for i >= 1, Keys[i] is the
// separator below which Values[i-1] is searched and at or above which
// Values[i] is searched.
type bplusInternalPage[K cmp.Ordered] struct {
	PageType     PageType
	PageId       int64
	ParentPageId int64
	Size         int32
	MaxSize      int32
	Keys         []K
	Values       []int64
}

func newInternalPage[K cmp.Ordered](pageId, parentPageId int64, maxSize int32) *bplusInternalPage[K] {
	return &bplusInternalPage[K]{
		PageType:     INTERNAL_PAGE,
		PageId:       pageId,
		ParentPageId: parentPageId,
		MaxSize:      maxSize,
	}
}

// childForKey returns the child pointer key routes to.
func (p *bplusInternalPage[K]) childForKey(key K) int64 {
	idx := 0
	for i := 1; i < int(p.Size); i++ {
		if key < p.Keys[i] {
			break
		}
		idx = i
	}
	return p.Values[idx]
}

func (p *bplusInternalPage[K]) indexOfChild(pageId int64) int {
	return slices.Index(p.Values, pageId)
}

// insertAfter inserts (key, value) immediately after childPageId's entry.
func (p *bplusInternalPage[K]) insertAfter(childPageId int64, key K, value int64) {
	idx := p.indexOfChild(childPageId) + 1
	p.Keys = slices.Insert(p.Keys, idx, key)
	p.Values = slices.Insert(p.Values, idx, value)
	p.Size++
}

func (p *bplusInternalPage[K]) removeAt(idx int) {
	p.Keys = slices.Delete(p.Keys, idx, idx+1)
	p.Values = slices.Delete(p.Values, idx, idx+1)
	p.Size--
}

// splitOff moves the upper half of p's entries to a fresh sibling,
// returning it and the key promoted to the parent (the sibling's unused
// slot-0 key, which the caller is expected to also use as the separator
// between the two nodes).
func (p *bplusInternalPage[K]) splitOff(siblingPageId int64) (*bplusInternalPage[K], K) {
	mid := int(p.Size) / 2
	sib := newInternalPage[K](siblingPageId, p.ParentPageId, p.MaxSize)
	sib.Keys = append(sib.Keys, p.Keys[mid:]...)
	sib.Values = append(sib.Values, p.Values[mid:]...)
	sib.Size = p.Size - int32(mid)

	promoted := sib.Keys[0]

	p.Keys = p.Keys[:mid]
	p.Values = p.Values[:mid]
	p.Size = int32(mid)

	return sib, promoted
}

func (p *bplusInternalPage[K]) minSize() int32 {
	return int32(math.Ceil(float64(p.MaxSize) / 2))
}

// borrowFirstChild moves right's leftmost child onto left's end, given the
// separator currently between left and right in the parent. It returns
// the new parent separator (right's new leftmost boundary).
func borrowFirstChild[K cmp.Ordered](left, right *bplusInternalPage[K], parentSeparator K) (movedChild int64, newSeparator K) {
	movedChild = right.Values[0]
	newSeparator = right.Keys[1]

	right.Values = right.Values[1:]
	right.Keys = right.Keys[1:]
	right.Size--

	left.Keys = append(left.Keys, parentSeparator)
	left.Values = append(left.Values, movedChild)
	left.Size++

	return movedChild, newSeparator
}

// borrowLastChild moves left's rightmost child onto right's front, given
// the separator currently between left and right in the parent. It
// returns the new parent separator (left's new rightmost boundary).
func borrowLastChild[K cmp.Ordered](left, right *bplusInternalPage[K], parentSeparator K) (movedChild int64, newSeparator K) {
	n := len(left.Values)
	movedChild = left.Values[n-1]
	newSeparator = left.Keys[n-1]

	left.Values = left.Values[:n-1]
	left.Keys = left.Keys[:n-1]
	left.Size--

	var unused K
	right.Values = slices.Insert(right.Values, 0, movedChild)
	right.Keys = slices.Insert(right.Keys, 0, unused)
	right.Keys[1] = parentSeparator
	right.Size++

	return movedChild, newSeparator
}
