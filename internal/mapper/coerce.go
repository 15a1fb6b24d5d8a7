package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	"github.com/Lydia02/E-Library-sub000/internal/store"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds: no
// seconds value this large is a plausible catalog date.
const epochMillisThreshold = 1e11

// NormalizeTime converts t to the canonical instant representation.
func NormalizeTime(t time.Time) time.Time {
	return domain.NormalizeTime(t)
}

func asString(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case domain.ReadingStatus:
		return string(s), nil
	case json.Number:
		return s.String(), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n)
		}
		return floatToInt(f)
	case string:
		if n == "" {
			return 0, nil
		}
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func floatToInt(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	return int(f), nil
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	case string:
		if n == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func asBool(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("expected boolean, got %q", b)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("expected boolean, got %T", v)
}

// asTime accepts every instant representation found in stored documents:
// native times, epoch-seconds structures, RFC3339 strings and bare epoch
// numbers in seconds or milliseconds. The zero time means absent.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return NormalizeTime(t), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return NormalizeTime(*t), nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected RFC3339 time, got %q", t)
		}
		return NormalizeTime(parsed), nil
	}
	if ts, ok := store.AsTimestamp(v); ok {
		return NormalizeTime(ts.Time()), nil
	}
	if f, err := asFloat(v); err == nil {
		if f == 0 {
			return time.Time{}, nil
		}
		if math.Abs(f) >= epochMillisThreshold {
			return NormalizeTime(time.UnixMilli(int64(f))), nil
		}
		sec, frac := math.Modf(f)
		return NormalizeTime(time.Unix(int64(sec), int64(frac*1e9))), nil
	}
	return time.Time{}, fmt.Errorf("expected time, got %T", v)
}

func asStrings(v any) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", e)
			}
			out = append(out, str)
		}
		return out, nil
	case string:
		// Legacy scalar category.
		if s == "" {
			return nil, nil
		}
		return []string{s}, nil
	}
	return nil, fmt.Errorf("expected string list, got %T", v)
}

// coerce converts v to the storage value of a field type. Zero values become
// nil, which removes the field from a document and stores NULL in a row.
func coerce(f field, v any) (any, error) {
	switch f.typ {
	case typeString:
		s, err := asString(v)
		if err != nil || s == "" {
			return nil, err
		}
		return s, nil
	case typeInt:
		n, err := asInt(v)
		if err != nil || n == 0 {
			return nil, err
		}
		return n, nil
	case typeFloat:
		n, err := asFloat(v)
		if err != nil || n == 0 {
			return nil, err
		}
		return n, nil
	case typeBool:
		return asBool(v)
	case typeTime:
		t, err := asTime(v)
		if err != nil || t.IsZero() {
			return nil, err
		}
		return t, nil
	case typeStrings:
		s, err := asStrings(v)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported field type %d", f.typ)
}
