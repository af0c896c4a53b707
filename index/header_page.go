package index

import (
	"fmt"

	"github.com/jobala/petro/buffer"
	"github.com/jobala/petro/storage/disk"
	"github.com/jobala/petro/util"
)

// headerPage is the sole resident of HEADER_PAGE_ID: a directory mapping
// an index's name to its current root page id, letting several named
// trees share one buffer pool and disk file.
type headerPage struct {
	Directory map[string]int64
}

// isUninitialized reports whether a page has never been written: the disk
// manager hands back a zero-filled buffer for any page id it hasn't seen
// before, which isn't valid msgpack for any struct.
func isUninitialized(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func readRootPageId(bpm *buffer.BufferpoolManager, name string) (int64, error) {
	guard, err := bpm.ReadPage(HEADER_PAGE_ID)
	if err != nil {
		return disk.INVALID_PAGE_ID, fmt.Errorf("read header page: %w", err)
	}
	defer guard.Drop()

	if isUninitialized(guard.GetData()) {
		return disk.INVALID_PAGE_ID, nil
	}

	hp, err := util.ToStruct[headerPage](guard.GetData())
	if err != nil {
		return disk.INVALID_PAGE_ID, fmt.Errorf("decode header page: %w", err)
	}

	if id, ok := hp.Directory[name]; ok {
		return id, nil
	}
	return disk.INVALID_PAGE_ID, nil
}

func writeRootPageId(bpm *buffer.BufferpoolManager, name string, rootId int64) error {
	guard, err := bpm.WritePage(HEADER_PAGE_ID)
	if err != nil {
		return fmt.Errorf("write header page: %w", err)
	}
	defer guard.Drop()

	var hp headerPage
	if isUninitialized(guard.GetData()) {
		hp = headerPage{Directory: make(map[string]int64)}
	} else {
		hp, err = util.ToStruct[headerPage](guard.GetData())
		if err != nil {
			return fmt.Errorf("decode header page: %w", err)
		}
		if hp.Directory == nil {
			hp.Directory = make(map[string]int64)
		}
	}
	hp.Directory[name] = rootId

	data, err := util.ToByteSlice(hp)
	if err != nil {
		return fmt.Errorf("encode header page: %w", err)
	}
	copy(*guard.GetDataMut(), data)
	return nil
}
