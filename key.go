package layered

import (
	"fmt"
	"reflect"
	"slices"
)

// A Key is any string or integer type. Floating-point and composite keys are
// not supported.
type Key interface {
	~string |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Entry is a key and its value.
type Entry[K Key, V any] struct {
	Key   K
	Value V
}

type keyKind uint8

const (
	stringKey keyKind = iota + 1
	signedKey
	unsignedKey
)

func kindOf[K Key]() keyKind {
	var k K
	switch reflect.TypeOf(k).Kind() {
	case reflect.String:
		return stringKey
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return signedKey
	default:
		return unsignedKey
	}
}

func keyString[K Key](k K) string {
	return reflect.ValueOf(k).String()
}

func keyInt[K Key](k K) int64 {
	return reflect.ValueOf(k).Int()
}

func keyUint[K Key](k K) uint64 {
	return reflect.ValueOf(k).Uint()
}

func keyFromString[K Key](s string) (K, error) {
	var k K
	v := reflect.ValueOf(&k).Elem()
	if v.Kind() != reflect.String {
		return k, fmt.Errorf("string key for %T", k)
	}
	v.SetString(s)
	return k, nil
}

func keyFromInt[K Key](i int64) (K, error) {
	var k K
	v := reflect.ValueOf(&k).Elem()
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return k, fmt.Errorf("signed key for %T", k)
	}
	if v.OverflowInt(i) {
		return k, fmt.Errorf("key %d overflows %T", i, k)
	}
	v.SetInt(i)
	return k, nil
}

func keyFromUint[K Key](u uint64) (K, error) {
	var k K
	v := reflect.ValueOf(&k).Elem()
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return k, fmt.Errorf("unsigned key for %T", k)
	}
	if v.OverflowUint(u) {
		return k, fmt.Errorf("key %d overflows %T", u, k)
	}
	v.SetUint(u)
	return k, nil
}

// sortedEntries returns the entries of m in ascending key order, which is
// the order unordered input enters a record.
func sortedEntries[K Key, V any](m map[K]V) []Entry[K, V] {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	entries := make([]Entry[K, V], len(keys))
	for i, k := range keys {
		entries[i] = Entry[K, V]{k, m[k]}
	}
	return entries
}
