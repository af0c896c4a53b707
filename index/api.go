package index

// GetKeyRange returns every value whose key falls within [start, stop].
func (b *bplusTree[K, V]) GetKeyRange(start, stop K) ([]V, error) {
	it, err := b.BeginAt(start)
	if err != nil {
		return nil, err
	}

	res := []V{}
	for it.Valid() && it.Key() <= stop {
		res = append(res, it.Value())
		if err := it.Next(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// BatchInsert inserts every item, stopping at the first error.
func (b *bplusTree[K, V]) BatchInsert(items map[K]V) error {
	for k, v := range items {
		if _, err := b.Insert(k, v); err != nil {
			return err
		}
	}
	return nil
}
