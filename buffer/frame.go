package buffer

import (
	"sync"

	"github.com/jobala/petro/storage/disk"
)

const INVALID_PAGE_ID = disk.INVALID_PAGE_ID

// frame is one slot in the buffer pool's fixed-size array. Its contents
// are protected by mu: readers take an RLock, a single writer takes the
// full Lock. pins tracks how many callers currently hold a guard on it;
// the replacer treats pins > 0 as non-evictable.
type frame struct {
	mu     sync.RWMutex
	id     int
	data   []byte
	pins   int
	dirty  bool
	pageId int64
}

func newFrame(id int) *frame {
	return &frame{
		id:     id,
		data:   make([]byte, disk.PAGE_SIZE),
		pageId: INVALID_PAGE_ID,
	}
}

func (f *frame) pin() {
	f.pins++
}

// unpin decrements the pin count and reports whether it reached zero.
func (f *frame) unpin() bool {
	f.pins--
	return f.pins == 0
}

// reset clears a frame's identity before it is reused for a different
// page. Callers must hold the buffer pool mutex; the frame's own latch is
// acquired separately by whoever is about to read or write its data.
func (f *frame) reset() {
	f.dirty = false
	f.pins = 0
	f.pageId = INVALID_PAGE_ID
	for i := range f.data {
		f.data[i] = 0
	}
}
