package buffer

// INVALID_FRAME_ID marks the absence of a frame, mirroring
// disk.INVALID_PAGE_ID for the replacer's own id space.
const INVALID_FRAME_ID = -1

// lrukNode is one frame's bookkeeping entry. It lives in exactly one of
// the replacer's two lists at a time -- history while accessCount < k,
// cache once it reaches k -- and is relinked between them in place rather
// than reallocated, so nodeStore never needs to change its pointer.
type lrukNode struct {
	prev        *lrukNode
	next        *lrukNode
	frameId     int
	accessCount int
	isEvictable bool
}
