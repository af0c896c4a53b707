package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jobala/petro/storage/disk"
	"github.com/jobala/petro/storage/hash"
	"github.com/jobala/petro/util"
)

// pageTableBucketSize bounds how many page-id/frame-id pairs an
// extendible hash bucket holds before it splits. The buffer pool's page
// table is rarely more than a few hundred entries (bounded by pool size),
// so a small bucket keeps directory growth gentle.
const pageTableBucketSize = 4

// BufferpoolManager caches disk pages in a fixed-size array of frames. It
// composes the page table (an extendible hash table mapping page id to
// frame id), the LRU-K replacer, and the free list, serializing every
// change to that metadata with a single mutex. Per-page contents are
// governed separately by each frame's own reader/writer latch.
type BufferpoolManager struct {
	mu            sync.Mutex
	frames        []*frame
	pageTable     *hash.ExtendibleHashTable[int64, int]
	nextPageId    atomic.Int64
	diskScheduler *disk.DiskScheduler
	replacer      *lrukReplacer
	freeFrames    []int
}

func NewBufferpoolManager(size int, replacer *lrukReplacer, diskScheduler *disk.DiskScheduler) *BufferpoolManager {
	frames := make([]*frame, size)
	freeFrames := make([]int, size)

	for i := range size {
		frames[i] = newFrame(i)
		// Stored back-to-front so the tail-pop in findVictim hands out
		// frame 0 first, matching the natural reading order of tests
		// and diagnostics; the spec only fixes pop-from-tail ordering,
		// not which id a fresh pool starts with.
		freeFrames[size-1-i] = i
	}

	bpm := &BufferpoolManager{
		frames:        frames,
		pageTable:     hash.NewExtendibleHashTable[int64, int](pageTableBucketSize),
		replacer:      replacer,
		diskScheduler: diskScheduler,
		freeFrames:    freeFrames,
	}
	// Page id 0 is reserved (index.HEADER_PAGE_ID); the allocator starts
	// handing out ids at 1.
	bpm.nextPageId.Store(1)
	return bpm
}

// NewPage allocates a fresh page id, pins a zeroed frame for it, and
// hands back a writer guard ready for the caller to initialize. It fails
// only when every frame is pinned.
func (b *BufferpoolManager) NewPage() (int64, *WritePageGuard, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.findVictim()
	if !ok {
		return disk.INVALID_PAGE_ID, nil, util.NewBufferpoolExhaustedError("new_page: no evictable frame available")
	}

	pageId := b.nextPageId.Add(1) - 1
	f.pageId = pageId
	b.pageTable.Insert(pageId, f.id)
	f.pin()
	b.replacer.recordAccess(f.id)
	b.replacer.setEvictable(f.id, false)

	f.mu.Lock()
	return pageId, NewWritePageGuard(f, b), nil
}

// ReadPage pins pageId and returns it under a reader latch, loading it
// from disk on first access.
func (b *BufferpoolManager) ReadPage(pageId int64) (*ReadPageGuard, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameId, ok := b.pageTable.Find(pageId); ok {
		f := b.frames[frameId]
		f.pin()
		b.replacer.recordAccess(f.id)
		b.replacer.setEvictable(f.id, false)
		f.mu.RLock()
		return NewReadPageGuard(f, b), nil
	}

	f, ok := b.findVictim()
	if !ok {
		return nil, util.NewBufferpoolExhaustedError("fetch_page: no evictable frame available")
	}

	if err := b.load(f, pageId); err != nil {
		b.freeFrames = append(b.freeFrames, f.id)
		return nil, err
	}

	f.pin()
	b.replacer.recordAccess(f.id)
	b.replacer.setEvictable(f.id, false)
	f.mu.RLock()
	return NewReadPageGuard(f, b), nil
}

// WritePage pins pageId and returns it under a writer latch, loading it
// from disk on first access.
func (b *BufferpoolManager) WritePage(pageId int64) (*WritePageGuard, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameId, ok := b.pageTable.Find(pageId); ok {
		f := b.frames[frameId]
		f.pin()
		b.replacer.recordAccess(f.id)
		b.replacer.setEvictable(f.id, false)
		f.mu.Lock()
		return NewWritePageGuard(f, b), nil
	}

	f, ok := b.findVictim()
	if !ok {
		return nil, util.NewBufferpoolExhaustedError("fetch_page: no evictable frame available")
	}

	if err := b.load(f, pageId); err != nil {
		b.freeFrames = append(b.freeFrames, f.id)
		return nil, err
	}

	f.pin()
	b.replacer.recordAccess(f.id)
	b.replacer.setEvictable(f.id, false)
	f.mu.Lock()
	return NewWritePageGuard(f, b), nil
}

// load installs pageId into frame f: registers it in the page table and
// reads its bytes in from disk. Callers hold b.mu throughout.
func (b *BufferpoolManager) load(f *frame, pageId int64) error {
	f.pageId = pageId
	b.pageTable.Insert(pageId, f.id)

	data, err := b.diskScheduler.ReadSync(pageId)
	if err != nil {
		b.pageTable.Remove(pageId)
		f.pageId = INVALID_PAGE_ID
		return fmt.Errorf("fetch page %d: %w", pageId, err)
	}
	copy(f.data, data)
	return nil
}

// findVictim returns a frame ready to host a new page: one from the free
// list if any is idle, otherwise whatever the replacer evicts (flushing
// it first if dirty). Callers hold b.mu.
func (b *BufferpoolManager) findVictim() (*frame, bool) {
	if n := len(b.freeFrames); n > 0 {
		id := b.freeFrames[n-1]
		b.freeFrames = b.freeFrames[:n-1]
		return b.frames[id], true
	}

	frameId, ok := b.replacer.evict()
	if !ok {
		return nil, false
	}

	f := b.frames[frameId]
	if f.dirty {
		if err := b.diskScheduler.WriteSync(f.pageId, f.data); err != nil {
			panic(fmt.Errorf("evict dirty page %d: %w", f.pageId, err))
		}
	}
	b.pageTable.Remove(f.pageId)
	f.reset()
	return f, true
}

// release is invoked by a guard's Drop: it decrements the frame's pin
// count and, once it reaches zero, tells the replacer the frame is
// eligible for eviction again.
func (b *BufferpoolManager) release(f *frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if f.unpin() {
		b.replacer.setEvictable(f.id, true)
	}
}

// UnpinPage is the guard-free counterpart to ReadPage/WritePage's
// implicit pinning: it decrements pageId's pin count directly, without
// requiring the caller to have held a frame latch. Returns false if the
// page isn't resident or is already unpinned.
func (b *BufferpoolManager) UnpinPage(pageId int64, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		return false
	}
	f := b.frames[frameId]
	if f.pins == 0 {
		return false
	}

	if isDirty {
		f.dirty = true
	}
	if f.unpin() {
		b.replacer.setEvictable(f.id, true)
	}
	return true
}

// FlushPage writes pageId back regardless of its dirty flag and clears
// it. Returns false iff the page isn't resident or pageId is invalid. Held
// under b.mu for the whole write-back, the same as a victim eviction's
// flush, so a concurrent NewPage/ReadPage/WritePage can't reassign the
// frame mid-write.
func (b *BufferpoolManager) FlushPage(pageId int64) bool {
	if pageId == disk.INVALID_PAGE_ID {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		return false
	}
	b.flush(b.frames[frameId])
	return true
}

// flush is the unconditional write-back used by FlushPage and
// FlushAllPages; it writes regardless of the dirty flag and always clears
// it afterward. Victim eviction in findVictim writes a dirty frame back
// directly instead.
func (b *BufferpoolManager) flush(f *frame) {
	f.mu.RLock()
	data := make([]byte, len(f.data))
	copy(data, f.data)
	f.mu.RUnlock()

	if err := b.diskScheduler.WriteSync(f.pageId, data); err != nil {
		panic(fmt.Errorf("flush page %d: %w", f.pageId, err))
	}

	f.mu.Lock()
	f.dirty = false
	f.mu.Unlock()
}

// FlushAllPages flushes every resident frame, holding b.mu for the whole
// pass so no frame can be reassigned mid-write (see FlushPage).
func (b *BufferpoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range b.frames {
		if f.pageId != disk.INVALID_PAGE_ID {
			b.flush(f)
		}
	}
}

// DeletePage reclaims pageId's frame. It is idempotent: deleting an
// absent page succeeds trivially. A still-pinned page cannot be deleted.
func (b *BufferpoolManager) DeletePage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		return true
	}

	f := b.frames[frameId]
	if f.pins > 0 {
		return false
	}

	b.replacer.remove(f.id)
	b.pageTable.Remove(pageId)
	f.reset()
	b.freeFrames = append(b.freeFrames, f.id)

	if err := b.diskScheduler.DeleteSync(pageId); err != nil {
		panic(fmt.Errorf("deallocate page %d: %w", pageId, err))
	}
	return true
}

// NewPageId reserves the next page id without allocating a frame for it.
func (b *BufferpoolManager) NewPageId() int64 {
	return b.nextPageId.Add(1) - 1
}
