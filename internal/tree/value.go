package tree

import (
	"math"
)

// Clone returns a deep copy of v. Mappings and sequences are copied
// recursively; scalars are returned as-is.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether a and b are structurally equal. Integer and float
// kinds compare by numeric value so that trees decoded from the wire match
// trees built in memory.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, achild := range av {
			bchild, found := bv[k]
			if !found || !Equal(achild, bchild) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case uint64:
			return av >= 0 && uint64(av) == bv
		}
	case uint64:
		switch bv := b.(type) {
		case uint64:
			return av == bv
		case int64:
			return bv >= 0 && uint64(bv) == av
		}
	case nil:
		return b == nil
	}
	an, aok := number(a)
	bn, bok := number(b)
	return aok && bok && an == bn
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
