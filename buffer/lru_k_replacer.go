package buffer

import (
	"sync"

	"github.com/jobala/petro/util"
)

// lrukReplacer chooses which unpinned frame to evict using LRU-K distance
// semantics: frames with fewer than k recorded accesses (the history list)
// are preferred victims over frames that have proven themselves "hot" (the
// cache list), and within each list the least-recently-touched entry sits
// at the back.
type lrukReplacer struct {
	mu           sync.Mutex
	nodeStore    map[int]*lrukNode
	replacerSize int
	currSize     int
	k            int

	historyHead, historyTail *lrukNode
	cacheHead, cacheTail     *lrukNode
}

func NewLrukReplacer(capacity, k int) *lrukReplacer {
	historyHead, historyTail := newSentinelPair()
	cacheHead, cacheTail := newSentinelPair()

	return &lrukReplacer{
		k:            k,
		nodeStore:    map[int]*lrukNode{},
		replacerSize: capacity,
		historyHead:  historyHead,
		historyTail:  historyTail,
		cacheHead:    cacheHead,
		cacheTail:    cacheTail,
	}
}

func newSentinelPair() (*lrukNode, *lrukNode) {
	head := &lrukNode{frameId: INVALID_FRAME_ID}
	tail := &lrukNode{frameId: INVALID_FRAME_ID}
	head.next = tail
	tail.prev = head
	return head, tail
}

func (lru *lrukReplacer) checkFrameId(frameId int) {
	if frameId < 0 || frameId >= lru.replacerSize {
		util.Precondition("lru-k: frame id out of range")
	}
}

// pushFront inserts node just after head, making it the most recent entry
// of that list.
func pushFront(head, node *lrukNode) {
	tmp := head.next
	head.next = node
	node.prev = head
	node.next = tmp
	tmp.prev = node
}

// unlink removes node from whatever list currently holds it. It is a
// no-op on a node that isn't linked into anything.
func unlink(node *lrukNode) {
	if node.prev == nil && node.next == nil {
		return
	}
	node.prev.next = node.next
	node.next.prev = node.prev
	node.prev = nil
	node.next = nil
}

func (lru *lrukReplacer) recordAccess(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.checkFrameId(frameId)

	node, ok := lru.nodeStore[frameId]
	if !ok {
		node = &lrukNode{frameId: frameId}
		lru.nodeStore[frameId] = node
	}

	node.accessCount++

	switch {
	case node.accessCount >= lru.k:
		// Reached k on this access (promotion out of history) or moved
		// within cache on a later access -- both are "unlink, then
		// become the most recent cache entry".
		unlink(node)
		pushFront(lru.cacheHead, node)
	default:
		// Fewer than k accesses so far. Per the eviction design, a
		// frame already waiting in history keeps its position; only
		// its first-ever access inserts it at the front.
		if node.prev == nil && node.next == nil {
			pushFront(lru.historyHead, node)
		}
	}
}

// evict scans the history list back to front for the first evictable
// frame, falling back to the cache list if history holds none. Frames
// with fewer than k accesses are always preferred.
func (lru *lrukReplacer) evict() (int, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if lru.currSize == 0 {
		return INVALID_FRAME_ID, false
	}

	if node := lru.scanForEvictable(lru.historyTail, lru.historyHead); node != nil {
		return lru.doEvict(node), true
	}
	if node := lru.scanForEvictable(lru.cacheTail, lru.cacheHead); node != nil {
		return lru.doEvict(node), true
	}

	return INVALID_FRAME_ID, false
}

func (lru *lrukReplacer) scanForEvictable(tail, head *lrukNode) *lrukNode {
	for n := tail.prev; n != head; n = n.prev {
		if n.isEvictable {
			return n
		}
	}
	return nil
}

func (lru *lrukReplacer) doEvict(node *lrukNode) int {
	frameId := node.frameId
	unlink(node)
	node.accessCount = 0
	node.isEvictable = false
	lru.currSize--
	return frameId
}

func (lru *lrukReplacer) setEvictable(frameId int, evictable bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.checkFrameId(frameId)

	node, ok := lru.nodeStore[frameId]
	if !ok || node.accessCount == 0 {
		return
	}

	if node.isEvictable == evictable {
		return
	}

	node.isEvictable = evictable
	if evictable {
		lru.currSize++
	} else {
		lru.currSize--
	}
}

// remove forcibly evicts a frame the caller has reclaimed through some
// other path (delete_page). It is a no-op on a frame never accessed.
func (lru *lrukReplacer) remove(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.checkFrameId(frameId)

	node, ok := lru.nodeStore[frameId]
	if !ok || node.accessCount == 0 {
		return
	}

	unlink(node)
	if node.isEvictable {
		lru.currSize--
	}
	node.accessCount = 0
	node.isEvictable = false
}

func (lru *lrukReplacer) size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.currSize
}
