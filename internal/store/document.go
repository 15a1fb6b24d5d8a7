package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Document is a stored document in its native shape.
type Document struct {
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
	CreateTime Timestamp      `json:"createTime"`
	UpdateTime Timestamp      `json:"updateTime"`
}

// Timestamp is the store's native instant: seconds since the Unix epoch plus a
// nanosecond remainder. It serializes as {"_seconds": n, "_nanoseconds": n}.
type Timestamp struct {
	Seconds     int64 `json:"_seconds"`
	Nanoseconds int32 `json:"_nanoseconds"`
}

// TimestampOf converts t to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int32(t.Nanosecond())} //nolint:gosec // always < 1e9
}

// Time converts the timestamp to a UTC time.
func (ts Timestamp) Time() time.Time {
	if ts.IsZero() {
		return time.Time{}
	}
	return time.Unix(ts.Seconds, int64(ts.Nanoseconds)).UTC()
}

// IsZero reports whether the timestamp is unset.
func (ts Timestamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Nanoseconds == 0
}

// AsTimestamp recognizes a decoded {"_seconds", "_nanoseconds"} map.
func AsTimestamp(v any) (Timestamp, bool) {
	switch t := v.(type) {
	case Timestamp:
		return t, true
	case *Timestamp:
		if t == nil {
			return Timestamp{}, false
		}
		return *t, true
	case map[string]any:
		secs, ok := t["_seconds"]
		if !ok {
			return Timestamp{}, false
		}
		s, ok := asInt(secs)
		if !ok {
			return Timestamp{}, false
		}
		n, _ := asInt(t["_nanoseconds"])
		return Timestamp{Seconds: s, Nanoseconds: int32(n)}, true //nolint:gosec // bounded by the writer
	}
	return Timestamp{}, false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// record is the persisted form of a document.
type record struct {
	Document
	Claims []claim `json:"claims,omitempty"`
}

// claim records a held uniqueness key so it can be released on update or delete.
type claim struct {
	Fields []string `json:"fields"`
	Key    string   `json:"key"`
}

func encodeRecord(r *record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", r.ID, err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	return &r, nil
}

// normalizeValue brings a caller supplied value into the shape it has after a
// JSON round trip, so stored and freshly written documents compare alike.
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return TimestampOf(t), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return TimestampOf(*t), nil
	case nil, string, bool, json.Number, Timestamp:
		return t, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported field value %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeScalar returns the canonical index encoding of an indexable value.
// Numbers encode by value so 7, 7.0 and json.Number("7") share one key.
func encodeScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return "s" + t, true
	case bool:
		if t {
			return "btrue", true
		}
		return "bfalse", true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return "", false
		}
		return encodeFloat(f), true
	case float64:
		return encodeFloat(t), true
	case float32:
		return encodeFloat(float64(t)), true
	case int:
		return encodeFloat(float64(t)), true
	case int32:
		return encodeFloat(float64(t)), true
	case int64:
		return encodeFloat(float64(t)), true
	}
	if ts, ok := AsTimestamp(v); ok {
		return "t" + strconv.FormatInt(ts.Seconds, 10) + "." + strconv.Itoa(int(ts.Nanoseconds)), true
	}
	return "", false
}

func encodeFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "n" + strconv.FormatInt(int64(f), 10)
	}
	return "n" + strconv.FormatFloat(f, 'g', -1, 64)
}
