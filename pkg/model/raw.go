package model

import (
	"encoding/json"
	"strconv"
)

// RawRecord is a single record as delivered by the upstream API. The shape is
// not contractually fixed: it varies across tenants and API versions, so all
// field access goes through Dig and the typed helpers, which tolerate missing
// or malformed fields instead of failing.
type RawRecord map[string]any

// Dig walks a nested path of object keys. The second return value is false
// when any hop is missing or is not an object.
func (r RawRecord) Dig(path ...string) (any, bool) {
	var cur any = map[string]any(r)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// DigString digs path and coerces the value to a non-empty string.
func (r RawRecord) DigString(path ...string) (string, bool) {
	v, ok := r.Dig(path...)
	if !ok {
		return "", false
	}
	s := Stringify(v)
	return s, s != ""
}

// DigRecord digs path and returns the value as a child record.
func (r RawRecord) DigRecord(path ...string) (RawRecord, bool) {
	v, ok := r.Dig(path...)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return RawRecord(obj), true
}

// DigRecords digs path and returns the value as a list of child records.
// Non-object elements are skipped.
func (r RawRecord) DigRecords(path ...string) ([]RawRecord, bool) {
	v, ok := r.Dig(path...)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	records := make([]RawRecord, 0, len(list))
	for _, elem := range list {
		if obj, ok := elem.(map[string]any); ok {
			records = append(records, RawRecord(obj))
		}
	}
	return records, true
}

// Stringify converts a scalar JSON value to its string form. Numeric IDs
// arrive as float64 or json.Number depending on the decoder; both must
// round-trip without an exponent. Objects and arrays yield "".
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// UnwrapID reduces the id-wrapper shapes the upstream uses interchangeably
// ({"native": 123}, {"id": "abc"}, plain scalar) to a plain string. Unknown
// shapes yield "".
func UnwrapID(v any) string {
	if obj, ok := v.(map[string]any); ok {
		for _, key := range []string{"native", "id", "partner"} {
			if inner, ok := obj[key]; ok {
				if s := Stringify(inner); s != "" {
					return s
				}
			}
		}
		return ""
	}
	return Stringify(v)
}
