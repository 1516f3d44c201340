// Package record defines the records that flow between pipeline stages and
// the defensive field lookups used to read loosely shaped upstream JSON.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SourceIDKey is the field every enriched record carries with the identifier
// of the listing item it was produced from.
const SourceIDKey = "source_id"

// Item is one entry of a bulk listing, as decoded from upstream JSON.
type Item = any

// Enriched is a listing item joined with its enrichment results. It is the
// unit appended to the checkpoint store.
type Enriched map[string]any

// SourceID returns the listing identifier the record was produced from.
func (e Enriched) SourceID() string {
	id, _ := e[SourceIDKey].(string)
	return id
}

// Normalized is one row of the canonical output.
type Normalized struct {
	ID          string
	Latitude    float64
	Longitude   float64
	StakeWeight json.Number
}

// ErrNotNumeric is returned when a field holds a value that cannot be read as a number.
var ErrNotNumeric = errors.New("value is not numeric")

// Lookup walks a dotted path ("stake.total", "location.ll.0") through nested
// objects and arrays. It returns nil when any segment is missing, null or of
// the wrong shape. An empty path returns v itself.
func Lookup(v any, path string) any {
	if path == "" {
		return v
	}

	cur := v
	for _, segment := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

// LookupString returns the value at path as a string. Numbers are rendered in
// their JSON form; anything else yields "".
func LookupString(v any, path string) string {
	switch s := Lookup(v, path).(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

// Float reads a JSON value as a finite float64. nil reads as def. NaN and
// infinities are ErrNotNumeric.
func Float(v any, def float64) (float64, error) {
	switch n := v.(type) {
	case nil:
		return def, nil
	case json.Number:
		f, ok := parseFinite(string(n))
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return f, nil
	case float64:
		if !finite(n) {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, n)
		}
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return def, nil
		}
		f, ok := parseFinite(s)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

// Number reads a JSON value as a decimal number without losing precision.
// nil and "" read as def.
func Number(v any, def json.Number) (json.Number, error) {
	switch n := v.(type) {
	case nil:
		return def, nil
	case json.Number:
		if _, ok := parseFinite(string(n)); !ok {
			return "", fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return n, nil
	case float64:
		if !finite(n) {
			return "", fmt.Errorf("%w: %v", ErrNotNumeric, n)
		}
		return json.Number(strconv.FormatFloat(n, 'f', -1, 64)), nil
	case int:
		return json.Number(strconv.Itoa(n)), nil
	case int64:
		return json.Number(strconv.FormatInt(n, 10)), nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return def, nil
		}
		if _, ok := parseFinite(s); !ok {
			return "", fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return json.Number(s), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// parseFinite parses s as a decimal. "NaN", "Inf" and values that overflow
// float64 are rejected.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

// Clone returns a shallow copy of an object item, or an empty map when the
// item is not an object.
func Clone(item Item) map[string]any {
	src, ok := item.(map[string]any)
	out := make(map[string]any, len(src)+4)
	if !ok {
		return out
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
