package index

import (
	"cmp"
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack"

	"github.com/jobala/petro/storage/disk"
)

// typeTagLen is the width of the raw page-type prefix every leaf/internal
// page carries ahead of its msgpack body. Peeking it lets a traversal
// decide whether to decode a page as a leaf or an internal without first
// knowing the tree's key/value types.
const typeTagLen = 4

func peekPageType(data []byte) PageType {
	return PageType(binary.LittleEndian.Uint32(data[:typeTagLen]))
}

func encodeLeaf[K cmp.Ordered, V any](p *bplusLeafPage[K, V]) ([]byte, error) {
	buf := make([]byte, disk.PAGE_SIZE)
	binary.LittleEndian.PutUint32(buf[:typeTagLen], uint32(LEAF_PAGE))

	body, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode leaf page %d: %w", p.PageId, err)
	}
	if len(body) > len(buf)-typeTagLen {
		return nil, fmt.Errorf("leaf page %d: encoded body of %d bytes exceeds page capacity", p.PageId, len(body))
	}
	copy(buf[typeTagLen:], body)
	return buf, nil
}

func decodeLeaf[K cmp.Ordered, V any](data []byte) (*bplusLeafPage[K, V], error) {
	p := &bplusLeafPage[K, V]{}
	if err := msgpack.Unmarshal(data[typeTagLen:], p); err != nil {
		return nil, fmt.Errorf("decode leaf page: %w", err)
	}
	return p, nil
}

func encodeInternal[K cmp.Ordered](p *bplusInternalPage[K]) ([]byte, error) {
	buf := make([]byte, disk.PAGE_SIZE)
	binary.LittleEndian.PutUint32(buf[:typeTagLen], uint32(INTERNAL_PAGE))

	body, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode internal page %d: %w", p.PageId, err)
	}
	if len(body) > len(buf)-typeTagLen {
		return nil, fmt.Errorf("internal page %d: encoded body of %d bytes exceeds page capacity", p.PageId, len(body))
	}
	copy(buf[typeTagLen:], body)
	return buf, nil
}

func decodeInternal[K cmp.Ordered](data []byte) (*bplusInternalPage[K], error) {
	p := &bplusInternalPage[K]{}
	if err := msgpack.Unmarshal(data[typeTagLen:], p); err != nil {
		return nil, fmt.Errorf("decode internal page: %w", err)
	}
	return p, nil
}
