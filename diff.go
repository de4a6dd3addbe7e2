package layered

import "fmt"

// DiffIter invokes f for every entry that differs between old and the
// receiver, comparing values with eq. added&&!removed is a new key,
// removed&&!added a key that is gone, and added&&removed a key whose value
// changed. The iteration stops if f returns keepGoing==false or an error.
func (r Record[K, V]) DiffIter(
	old Record[K, V],
	eq func(a, b V) bool,
	f func(added, removed bool, key K, addedValue, removedValue V) (bool, error),
) error {
	newView, oldView := r.merged(), old.merged()
	var zero V
	for _, e := range newView.entries {
		was, ok := oldView.get(e.Key)
		var keepGoing bool
		var err error
		switch {
		case !ok:
			keepGoing, err = f(true, false, e.Key, e.Value, zero)
		case !eq(was, e.Value):
			keepGoing, err = f(true, true, e.Key, e.Value, was)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("callback: %w", err)
		}
		if !keepGoing {
			return nil
		}
	}
	for _, e := range oldView.entries {
		if newView.has(e.Key) {
			continue
		}
		keepGoing, err := f(false, true, e.Key, zero, e.Value)
		if err != nil {
			return fmt.Errorf("callback: %w", err)
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}
