/*
Package layered provides an immutable key/value record that batches
point updates in a small overlay, so that building up a record one key at
a time doesn't copy the whole thing on every update.

A Record has two layers. The base holds committed entries; the cache
holds updates that shadow the base. Put and PutAll only copy the cache,
which stays small between merges. MergeCache folds the cache into the base
and empties it. Every operation returns a new Record and never changes the
receiver, so a Record can be shared between goroutines without locking,
and older versions stay valid.

	r := layered.New(map[string]int{"a": 1, "b": 2})
	r2 := r.Put("b", 3)   // r is unchanged
	r2.Fetch("b")         // 3, true
	r3 := r2.MergeCache() // base a:1 b:3, empty cache

Removal is not cached: Remove deletes the key from both layers at once,
copying each layer that holds it. Whole-record operations (Map, Filter,
Stream, ToSlice) work on the merged view; Stream and ToSlice merge
privately and leave the receiver as it was.

Order

Entries iterate in insertion order. A key keeps its position when its
value is updated. Merging keeps the base's order and appends keys that are
new to it in the order they were put. Maps given to New and PutAll are
unordered, so their keys are entered in ascending order.

Versions

A Record can be stored as immutable, content-addressed pages with
MakeRoot, and loaded again from the resulting Root with LoadRecord. Pages
go to anything implementing Persist: memory, files (persist/file), S3
(persist/s3), or bbolt (persist/bolt). Unchanged pages are shared between
versions, and a PageCache avoids storing or decoding them twice.
*/
package layered
