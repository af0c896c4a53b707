package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// diskManager maps logical page ids onto byte offsets inside a single
// growable file. Page ids are assigned by the caller (the buffer pool);
// the disk manager only owns the offset each id is stored at.
type diskManager struct {
	dbFile       *os.File
	pages        map[int]int
	freeSlots    []int
	pageCapacity int
}

func NewDiskManager(file *os.File) *diskManager {
	return &diskManager{
		dbFile:       file,
		pageCapacity: DEFAULT_PAGE_CAPACITY,
		freeSlots:    []int{},
		pages:        map[int]int{},
	}
}

func (dm *diskManager) writePage(pageId int, data []byte) error {
	offset, pageFound := dm.pages[pageId]

	if !pageFound {
		off, err := dm.allocatePage()
		if err != nil {
			return err
		}
		dm.pages[pageId] = off
		offset = off
	}

	if _, err := dm.dbFile.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("error writing at offset %d: %w", offset, err)
	}

	return nil
}

func (dm *diskManager) readPage(pageId int) ([]byte, error) {
	offset, pageFound := dm.pages[pageId]
	buf := make([]byte, PAGE_SIZE)

	if !pageFound {
		off, err := dm.allocatePage()
		if err != nil {
			return nil, err
		}
		dm.pages[pageId] = off
		// A page id seen for the first time has no contents yet: it reads
		// back as zeros, whatever bytes its offset currently holds.
		return buf, nil
	}

	// A page whose offset lies past the end of the file has never been
	// written; the unread tail of buf stays zero.
	if _, err := dm.dbFile.ReadAt(buf, int64(offset)); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error reading from offset %d: %w", offset, err)
	}

	return buf, nil
}

func (dm *diskManager) deletePage(pageId int) {
	if offset, ok := dm.pages[pageId]; ok {
		dm.freeSlots = append(dm.freeSlots, offset)
		delete(dm.pages, pageId)
	}
}

func (dm *diskManager) allocatePage() (int, error) {
	if len(dm.freeSlots) > 0 {
		offset := dm.freeSlots[0]
		dm.freeSlots = dm.freeSlots[1:]

		return offset, nil
	}

	if len(dm.pages)+1 > dm.pageCapacity {
		dm.pageCapacity *= 2
		if err := os.Truncate(dm.dbFile.Name(), int64(dm.pageCapacity)*PAGE_SIZE); err != nil {
			return -1, fmt.Errorf("error resizing db file: %w", err)
		}
	}

	return dm.getNextOffset(), nil
}

func (dm *diskManager) getNextOffset() int {
	return len(dm.pages) * PAGE_SIZE
}
