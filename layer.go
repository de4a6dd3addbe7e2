package layered

// layer is an insertion-ordered association that is never modified after
// construction. Every method that changes contents returns a new layer,
// sharing whatever it can with the receiver.
type layer[K Key, V any] struct {
	index   map[K]int
	entries []Entry[K, V]
}

func newLayer[K Key, V any](capacity int) layer[K, V] {
	return layer[K, V]{
		index:   make(map[K]int, capacity),
		entries: make([]Entry[K, V], 0, capacity),
	}
}

func (l layer[K, V]) len() int {
	return len(l.entries)
}

func (l layer[K, V]) isEmpty() bool {
	return len(l.entries) == 0
}

func (l layer[K, V]) get(key K) (V, bool) {
	if i, ok := l.index[key]; ok {
		return l.entries[i].Value, true
	}
	var zero V
	return zero, false
}

func (l layer[K, V]) has(key K) bool {
	_, ok := l.index[key]
	return ok
}

// withEntries returns a layer with the given entries applied in order.
// Keys already present keep their position. If only values change, the key
// index is shared with the receiver.
func (l layer[K, V]) withEntries(updates []Entry[K, V]) layer[K, V] {
	if len(updates) == 0 {
		return l
	}
	added := 0
	for _, u := range updates {
		if !l.has(u.Key) {
			added++
		}
	}
	entries := make([]Entry[K, V], len(l.entries), len(l.entries)+added)
	copy(entries, l.entries)
	index := l.index
	if added > 0 {
		index = make(map[K]int, len(l.entries)+added)
		for k, i := range l.index {
			index[k] = i
		}
	}
	for _, u := range updates {
		if i, ok := index[u.Key]; ok {
			entries[i].Value = u.Value
			continue
		}
		index[u.Key] = len(entries)
		entries = append(entries, u)
	}
	return layer[K, V]{index: index, entries: entries}
}

func (l layer[K, V]) with(key K, value V) layer[K, V] {
	return l.withEntries([]Entry[K, V]{{key, value}})
}

// without returns a layer lacking key. An absent key yields the receiver.
func (l layer[K, V]) without(key K) layer[K, V] {
	at, ok := l.index[key]
	if !ok {
		return l
	}
	if len(l.entries) == 1 {
		return layer[K, V]{}
	}
	n := newLayer[K, V](len(l.entries) - 1)
	n.entries = append(n.entries, l.entries[:at]...)
	n.entries = append(n.entries, l.entries[at+1:]...)
	for i, e := range n.entries {
		n.index[e.Key] = i
	}
	return n
}

// merge lays over on top of l: l's order is kept, keys new to l follow in
// over's order, and over's values win.
func (l layer[K, V]) merge(over layer[K, V]) layer[K, V] {
	if over.isEmpty() {
		return l
	}
	if l.isEmpty() {
		return over
	}
	return l.withEntries(over.entries)
}

// mapValues applies fn to every entry. The key index is shared, since keys
// and positions do not change.
func mapValues[K Key, V, W any](l layer[K, V], fn func(V, K) W) layer[K, W] {
	if l.isEmpty() {
		return layer[K, W]{}
	}
	entries := make([]Entry[K, W], len(l.entries))
	for i, e := range l.entries {
		entries[i] = Entry[K, W]{e.Key, fn(e.Value, e.Key)}
	}
	return layer[K, W]{index: l.index, entries: entries}
}

func (l layer[K, V]) filter(fn func(V, K) bool) layer[K, V] {
	n := newLayer[K, V](0)
	for _, e := range l.entries {
		if fn(e.Value, e.Key) {
			n.index[e.Key] = len(n.entries)
			n.entries = append(n.entries, e)
		}
	}
	if len(n.entries) == len(l.entries) {
		return l
	}
	return n
}
