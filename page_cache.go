package layered

import lru "github.com/hashicorp/golang-lru"

// PageCache caches decoded pages from a remote storage source. It is also
// used to avoid re-storing pages, so care should be taken to switch or
// invalidate the PageCache when the Persist is changed.
type PageCache interface {
	// Add adds a freshly-persisted or freshly-loaded page to the cache.
	Add(key, value interface{})
	// Contains indicates the page with the given name has already been persisted.
	Contains(key interface{}) bool
	// Get retrieves the already-decoded page with the given name, if cached.
	Get(key interface{}) (value interface{}, ok bool)
}

// NewPageCache creates a new LRU-based page cache of the given size. One
// cache can be shared by any number of records.
func NewPageCache(size int) PageCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}
