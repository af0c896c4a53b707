package disk

import "sync"

// DiskScheduler funnels page I/O through per-page worker goroutines so
// callers never block on disk latency while holding the buffer pool's
// mutex for longer than the request itself, and requests against
// different pages never serialize behind one another.
type DiskScheduler struct {
	reqCh       chan DiskReq
	diskManager *diskManager

	pageQueueMu sync.Mutex
	pageQueue   map[int]chan DiskReq
}

type opKind int

const (
	opRead opKind = iota
	opWrite
	opDelete
)

type DiskReq struct {
	PageId int
	Data   []byte
	Op     opKind
	Write  bool // kept for the teacher's original field name; mirrors Op == opWrite
	RespCh chan DiskResp
}

type DiskResp struct {
	Success bool
	Data    []byte
	Err     error
}

func NewScheduler(diskManager *diskManager) *DiskScheduler {
	ds := &DiskScheduler{
		reqCh:       make(chan DiskReq, 100),
		diskManager: diskManager,
		pageQueue:   make(map[int]chan DiskReq),
	}

	go ds.dispatch()
	return ds
}

func NewRequest(pageId int64, data []byte, isWrite bool) DiskReq {
	op := opRead
	if isWrite {
		op = opWrite
	}
	return DiskReq{
		PageId: int(pageId),
		Data:   data,
		Op:     op,
		Write:  isWrite,
		RespCh: make(chan DiskResp),
	}
}

func NewDeleteRequest(pageId int64) DiskReq {
	return DiskReq{
		PageId: int(pageId),
		Op:     opDelete,
		RespCh: make(chan DiskResp),
	}
}

// Schedule enqueues req and returns its response channel, without blocking
// on the I/O itself.
func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	ds.reqCh <- req
	return req.RespCh
}

// dispatch routes every incoming request to the worker goroutine for its
// page, spawning one if none is currently running for that page. The send
// into the per-page channel happens while pageQueueMu is still held, so a
// worker's idle-teardown check -- which takes the same mutex -- can never
// delete the queue entry after dispatch has already decided to reuse it;
// the teacher's original version raced here because the worker's default
// branch span its decision to exit across an unlocked read of the channel.
func (ds *DiskScheduler) dispatch() {
	for req := range ds.reqCh {
		ds.pageQueueMu.Lock()
		ch, ok := ds.pageQueue[req.PageId]
		if !ok {
			ch = make(chan DiskReq, 16)
			ds.pageQueue[req.PageId] = ch
		}
		ch <- req
		ds.pageQueueMu.Unlock()

		if !ok {
			go ds.pageWorker(req.PageId, ch)
		}
	}
}

// pageWorker drains ch until it has sat idle, then tears itself down.
func (ds *DiskScheduler) pageWorker(pageId int, ch chan DiskReq) {
	for {
		select {
		case req := <-ch:
			ds.handle(req)
		default:
			ds.pageQueueMu.Lock()
			if len(ch) == 0 {
				delete(ds.pageQueue, pageId)
				ds.pageQueueMu.Unlock()
				return
			}
			ds.pageQueueMu.Unlock()
		}
	}
}

func (ds *DiskScheduler) handle(req DiskReq) {
	switch req.Op {
	case opWrite:
		if err := ds.diskManager.writePage(req.PageId, req.Data); err != nil {
			req.RespCh <- DiskResp{Success: false, Err: err}
			return
		}
		req.RespCh <- DiskResp{Success: true}
	case opDelete:
		ds.diskManager.deletePage(req.PageId)
		req.RespCh <- DiskResp{Success: true}
	default:
		data, err := ds.diskManager.readPage(req.PageId)
		if err != nil {
			req.RespCh <- DiskResp{Success: false, Err: err}
			return
		}
		req.RespCh <- DiskResp{Success: true, Data: data}
	}
}

// ReadSync reads pageId, blocking until the scheduler's worker services
// the request.
func (ds *DiskScheduler) ReadSync(pageId int64) ([]byte, error) {
	req := NewRequest(pageId, nil, false)
	resp := <-ds.Schedule(req)
	if !resp.Success {
		return nil, resp.Err
	}
	return resp.Data, nil
}

// WriteSync writes data to pageId, blocking until persisted.
func (ds *DiskScheduler) WriteSync(pageId int64, data []byte) error {
	req := NewRequest(pageId, data, true)
	resp := <-ds.Schedule(req)
	if !resp.Success {
		return resp.Err
	}
	return nil
}

// DeleteSync reclaims pageId's on-disk slot.
func (ds *DiskScheduler) DeleteSync(pageId int64) error {
	req := NewDeleteRequest(pageId)
	resp := <-ds.Schedule(req)
	if !resp.Success {
		return resp.Err
	}
	return nil
}
