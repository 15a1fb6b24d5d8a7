package store

import (
	"cmp"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
)

// Value type ranks, in sort order.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTimestamp
	rankString
	rankArray
	rankMap
)

func rank(v any) int {
	switch t := v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case json.Number, float64, float32, int, int32, int64:
		return rankNumber
	case string:
		return rankString
	case []any:
		return rankArray
	case map[string]any:
		if _, ok := AsTimestamp(t); ok {
			return rankTimestamp
		}
		return rankMap
	case Timestamp:
		return rankTimestamp
	}
	return rankMap
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// compareValues orders two field values: first by type rank, then by value.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case rankNumber:
		return cmp.Compare(asFloat(a), asFloat(b))
	case rankTimestamp:
		ta, _ := AsTimestamp(a)
		tb, _ := AsTimestamp(b)
		if c := cmp.Compare(ta.Seconds, tb.Seconds); c != 0 {
			return c
		}
		return cmp.Compare(ta.Nanoseconds, tb.Nanoseconds)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankArray:
		xa, xb := a.([]any), b.([]any)
		for i := 0; i < len(xa) && i < len(xb); i++ {
			if c := compareValues(xa[i], xb[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(xa), len(xb))
	}
	return 0
}

func equalValues(a, b any) bool {
	ea, okA := encodeScalar(a)
	eb, okB := encodeScalar(b)
	if okA || okB {
		return okA && okB && ea == eb
	}
	return reflect.DeepEqual(a, b)
}

// matches reports whether the document fields satisfy every filter.
func matches(fields map[string]any, filters []domain.Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case domain.OpEqual:
			if !equalValues(v, f.Value) {
				return false
			}
		case domain.OpArrayContains:
			elems, ok := v.([]any)
			if !ok {
				return false
			}
			found := false
			for _, e := range elems {
				if equalValues(e, f.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}
