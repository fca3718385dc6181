package ldtable

import (
	"fmt"
	"reflect"
)

// emptySeqKey is the sentinel index key for an empty sequence value.
type emptySeqKey struct{}

// EMPTY is the distinguished value-key under which an empty-sequence
// attribute value is posted. Queryable like any other key: Eq(attr, EMPTY).
var EMPTY = emptySeqKey{}

// normalize canonicalizes a stored or queried value into the hashable index
// keys it should be posted/looked-up under. A string yields itself
// unchanged; any other ordered sequence expands element-wise (empty yields
// EMPTY); a map is rejected outright; everything else passes through as
// itself provided it is comparable.
func normalize(v any) ([]any, error) {
	if v == nil {
		return []any{v}, nil
	}
	if s, ok := v.(string); ok {
		return []any{s}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		if n == 0 {
			return []any{EMPTY}, nil
		}
		keys := make([]any, 0, n)
		for i := 0; i < n; i++ {
			el := rv.Index(i).Interface()
			if !hashable(el) {
				return nil, fmt.Errorf("ldtable: element %d of %v: %w", i, v, ErrUnhashable)
			}
			keys = append(keys, el)
		}
		return keys, nil

	case reflect.Map:
		return nil, fmt.Errorf("ldtable: mapping value %v is not indexable: %w", v, ErrUnhashable)

	default:
		if !hashable(v) {
			return nil, fmt.Errorf("ldtable: value %v: %w", v, ErrUnhashable)
		}
		return []any{v}, nil
	}
}

// hashable reports whether v may be used as a Go map key.
func hashable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).Comparable()
}
