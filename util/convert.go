package util

import (
	"fmt"

	"github.com/jobala/petro/storage/disk"
	"github.com/vmihailenco/msgpack"
)

// ToByteSlice marshals obj into a page-sized buffer, msgpack-encoded and
// zero-padded to disk.PAGE_SIZE.
func ToByteSlice[T any](obj T) ([]byte, error) {
	res := make([]byte, disk.PAGE_SIZE)

	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal page payload: %w", err)
	}
	if len(data) > disk.PAGE_SIZE {
		return nil, fmt.Errorf("encoded payload of %d bytes exceeds page size %d", len(data), disk.PAGE_SIZE)
	}
	copy(res, data)

	return res, nil
}

// ToStruct unmarshals a page-sized buffer back into T.
func ToStruct[T any](data []byte) (T, error) {
	var res T

	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("unmarshal page payload: %w", err)
	}

	return res, nil
}
