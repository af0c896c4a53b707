// Package hash implements a generic extendible hash table: a directory of
// shared bucket references indexed by the low global-depth bits of a key's
// hash, with bucket splitting and directory doubling on overflow.
//
// The buffer pool uses an instantiation of this table keyed by page id to
// map page ids onto frame indices, but the table itself knows nothing about
// pages; any comparable key and any value type will do.
package hash

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack"

	"github.com/jobala/petro/util"
)

// ExtendibleHashTable maps keys of type K to values of type V. A single
// mutex guards the whole structure; callers needing finer-grained
// concurrency should wrap it rather than reach into the directory.
type ExtendibleHashTable[K comparable, V any] struct {
	mu          sync.Mutex
	bucketSize  int
	globalDepth int
	numBuckets  int
	dir         []*bucket[K, V]
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

type bucket[K comparable, V any] struct {
	depth int
	items []entry[K, V]
}

func newBucket[K comparable, V any](depth int) *bucket[K, V] {
	return &bucket[K, V]{depth: depth}
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, it := range b.items {
		if it.key == key {
			return it.value, true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, it := range b.items {
		if it.key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

func (b *bucket[K, V]) isFull(bucketSize int) bool {
	return len(b.items) >= bucketSize
}

// hashKey hashes key via its msgpack encoding, giving every instantiation
// of the table a stable, type-agnostic hash without requiring K to
// implement a hashing interface of its own.
func hashKey[K any](key K) uint64 {
	data, err := msgpack.Marshal(key)
	if err != nil {
		panic(fmt.Sprintf("hash: cannot encode key %v: %v", key, err))
	}
	return xxhash.Sum64(data)
}

// NewExtendibleHashTable builds a table starting at global depth 0 with a
// single bucket, each bucket holding at most bucketSize entries.
func NewExtendibleHashTable[K comparable, V any](bucketSize int) *ExtendibleHashTable[K, V] {
	if bucketSize <= 0 {
		util.Precondition("hash: bucketSize must be positive")
	}
	return &ExtendibleHashTable[K, V]{
		bucketSize: bucketSize,
		numBuckets: 1,
		dir:        []*bucket[K, V]{newBucket[K, V](0)},
	}
}

func (h *ExtendibleHashTable[K, V]) indexOf(key K) int {
	mask := uint64((1 << h.globalDepth) - 1)
	return int(hashKey(key) & mask)
}

// Find returns the value stored under key, if any.
func (h *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dir[h.indexOf(key)].find(key)
}

// Remove deletes key's entry, if present, and reports whether it was found.
func (h *ExtendibleHashTable[K, V]) Remove(key K) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dir[h.indexOf(key)].remove(key)
}

// Insert stores value under key, updating an existing entry in place.
// Overflowing buckets are split, doubling the directory first if the
// target bucket's local depth has caught up with the global depth.
func (h *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if target := h.dir[h.indexOf(key)]; h.updateInPlace(target, key, value) {
		return
	}

	for h.dir[h.indexOf(key)].isFull(h.bucketSize) {
		target := h.dir[h.indexOf(key)]
		localDepth := target.depth

		if h.globalDepth == localDepth {
			h.doubleDirectory()
		}

		mask := uint64(1 << localDepth)
		bucket0 := newBucket[K, V](localDepth + 1)
		bucket1 := newBucket[K, V](localDepth + 1)

		for _, it := range target.items {
			if hashKey(it.key)&mask != 0 {
				bucket1.items = append(bucket1.items, it)
			} else {
				bucket0.items = append(bucket0.items, it)
			}
		}

		if len(bucket0.items) > 0 && len(bucket1.items) > 0 {
			h.numBuckets++
		}

		for i := range h.dir {
			if h.dir[i] != target {
				continue
			}
			if uint64(i)&mask != 0 {
				h.dir[i] = bucket1
			} else {
				h.dir[i] = bucket0
			}
		}
	}

	target := h.dir[h.indexOf(key)]
	target.items = append(target.items, entry[K, V]{key: key, value: value})
}

// updateInPlace overwrites key's value in target if it's already present,
// reporting whether it found it. Called before any overflow check: an
// update to an existing key is never a reason to split a bucket.
func (h *ExtendibleHashTable[K, V]) updateInPlace(target *bucket[K, V], key K, value V) bool {
	for i := range target.items {
		if target.items[i].key == key {
			target.items[i].value = value
			return true
		}
	}
	return false
}

// doubleDirectory duplicates the directory so that slot capacity+i points
// at the same bucket as slot i, then bumps the global depth.
func (h *ExtendibleHashTable[K, V]) doubleDirectory() {
	capacity := len(h.dir)
	h.dir = append(h.dir, make([]*bucket[K, V], capacity)...)
	for i := 0; i < capacity; i++ {
		h.dir[capacity+i] = h.dir[i]
	}
	h.globalDepth++
}

// GlobalDepth returns the number of low hash bits currently used to index
// the directory.
func (h *ExtendibleHashTable[K, V]) GlobalDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.globalDepth
}

// LocalDepth returns the local depth of the bucket occupying dirIndex.
func (h *ExtendibleHashTable[K, V]) LocalDepth(dirIndex int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir[dirIndex].depth
}

// NumBuckets returns the bucket count. It starts at 1 and grows by one for
// each split that leaves both halves non-empty; a split that leaves one
// half empty is not counted, so the value can be lower than the number of
// distinct buckets in the directory.
func (h *ExtendibleHashTable[K, V]) NumBuckets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.numBuckets
}
