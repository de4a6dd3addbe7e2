package layered

import "iter"

// Record is an immutable key/value association with two layers: a base of
// committed entries, and a cache of point updates that shadow the base.
// Updates go to the cache, which is cheap to copy while it is small;
// MergeCache folds it into the base. The zero Record is empty and ready to
// use.
type Record[K Key, V any] struct {
	base  layer[K, V]
	cache layer[K, V]
}

// New returns a record whose base holds the entries of initial, entered in
// ascending key order. The map is copied and not retained.
func New[K Key, V any](initial map[K]V) Record[K, V] {
	return FromEntries(sortedEntries(initial)...)
}

// FromEntries returns a record whose base holds the given entries in order.
// A repeated key keeps its first position and its last value.
func FromEntries[K Key, V any](entries ...Entry[K, V]) Record[K, V] {
	return Record[K, V]{base: layer[K, V]{}.withEntries(entries)}
}

// Fetch returns the value for key from the cache, else from the base. The
// bool is false if neither layer has the key.
func (r Record[K, V]) Fetch(key K) (V, bool) {
	if v, ok := r.cache.get(key); ok {
		return v, true
	}
	return r.base.get(key)
}

// FetchOrError is like Fetch, but returns a *KeyNotFoundError matching
// ErrKeyNotFound when the key is absent.
func (r Record[K, V]) FetchOrError(key K) (V, error) {
	v, ok := r.Fetch(key)
	if !ok {
		return v, &KeyNotFoundError{Key: key}
	}
	return v, nil
}

// FetchOrDefault is like Fetch, but returns def when the key is absent.
func (r Record[K, V]) FetchOrDefault(key K, def V) V {
	if v, ok := r.Fetch(key); ok {
		return v
	}
	return def
}

// Has reports whether either layer has the key.
func (r Record[K, V]) Has(key K) bool {
	return r.cache.has(key) || r.base.has(key)
}

// Len returns the number of entries in the merged view.
func (r Record[K, V]) Len() int {
	n := r.base.len()
	for _, e := range r.cache.entries {
		if !r.base.has(e.Key) {
			n++
		}
	}
	return n
}

// CacheLen returns the number of pending updates.
func (r Record[K, V]) CacheLen() int {
	return r.cache.len()
}

// IsDirty signifies that updates have been Put that haven't been merged.
func (r Record[K, V]) IsDirty() bool {
	return !r.cache.isEmpty()
}

// Put returns a record with key set to value in the cache. The base is
// shared with the receiver.
func (r Record[K, V]) Put(key K, value V) Record[K, V] {
	return Record[K, V]{base: r.base, cache: r.cache.with(key, value)}
}

// PutAll is like Put for every entry of updates. Keys new to the cache are
// added in ascending key order.
func (r Record[K, V]) PutAll(updates map[K]V) Record[K, V] {
	return r.PutEntries(sortedEntries(updates)...)
}

// PutEntries is like Put for each of entries, in order.
func (r Record[K, V]) PutEntries(entries ...Entry[K, V]) Record[K, V] {
	return Record[K, V]{base: r.base, cache: r.cache.withEntries(entries)}
}

// Remove returns a record without key in either layer. Removal is not
// cached: each layer holding the key is copied. Removing an absent key
// returns an equivalent record.
func (r Record[K, V]) Remove(key K) Record[K, V] {
	return Record[K, V]{base: r.base.without(key), cache: r.cache.without(key)}
}

// MergeCache returns a record whose base is the merged view of the receiver
// and whose cache is empty.
func (r Record[K, V]) MergeCache() Record[K, V] {
	if r.cache.isEmpty() {
		return r
	}
	return Record[K, V]{base: r.base.merge(r.cache)}
}

// Map returns a merged record with every value replaced by fn(value, key).
func (r Record[K, V]) Map(fn func(value V, key K) V) Record[K, V] {
	return MapValues(r, fn)
}

// MapValues is Map for functions that change the value type.
func MapValues[K Key, V, W any](r Record[K, V], fn func(value V, key K) W) Record[K, W] {
	return Record[K, W]{base: mapValues(r.merged(), fn)}
}

// Filter returns a merged record holding only the entries for which
// fn(value, key) is true.
func (r Record[K, V]) Filter(fn func(value V, key K) bool) Record[K, V] {
	return Record[K, V]{base: r.merged().filter(fn)}
}

// Stream iterates over the merged view. The receiver is not changed; each
// iteration merges again.
func (r Record[K, V]) Stream() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, e := range r.merged().entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// ToSlice returns the entries of the merged view.
func (r Record[K, V]) ToSlice() []Entry[K, V] {
	entries := make([]Entry[K, V], 0, r.Len())
	for k, v := range r.Stream() {
		entries = append(entries, Entry[K, V]{k, v})
	}
	return entries
}

// Keys returns the keys of the merged view.
func (r Record[K, V]) Keys() []K {
	keys := make([]K, 0, r.Len())
	for k := range r.Stream() {
		keys = append(keys, k)
	}
	return keys
}

func (r Record[K, V]) merged() layer[K, V] {
	return r.base.merge(r.cache)
}
