package ldtable

import (
	"reflect"
	"strings"
)

// CmpOp names the ordering/inequality operators a Cmp node may apply.
type CmpOp int

const (
	OpLT CmpOp = iota
	OpLE
	OpGT
	OpGE
	OpNE
)

func (op CmpOp) String() string {
	switch op {
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpNE:
		return "!="
	default:
		return "?"
	}
}

// orderedCompare reports the ordering of key relative to value (-1, 0, 1)
// when the two are comparable under a total order this package knows about,
// and false otherwise. Mixed-type keys that aren't mutually ordered (e.g. a
// string key against an int query value) are reported incomparable rather
// than erroring; callers skip them, per the documented Cmp policy.
func orderedCompare(key, value any) (order int, ok bool) {
	if ks, kok := key.(string); kok {
		if vs, vok := value.(string); vok {
			return strings.Compare(ks, vs), true
		}
		return 0, false
	}

	kf, kok := asFloat(key)
	vf, vok := asFloat(value)
	if kok && vok {
		switch {
		case kf < vf:
			return -1, true
		case kf > vf:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// asFloat converts numeric and bool scalars to a float64 for ordering
// comparisons. Bool is ordered false < true, matching Python's int-like
// bool semantics that the original query language relies on.
func asFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// keysEqual reports whether two normalized keys are equal. Numeric keys of
// differing concrete types (int32 vs int64, say) still compare equal.
func keysEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}
