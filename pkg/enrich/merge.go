package enrich

import (
	"fmt"

	"github.com/Sternrassler/validator-atlas/pkg/record"
)

// OverlayDetail copies every detail field onto the item.
func OverlayDetail(item, detail map[string]any) (map[string]any, error) {
	for k, v := range detail {
		item[k] = v
	}
	return item, nil
}

// DetailObject returns a MergeFunc that keeps only the detail's object at
// path, discarding the listing item.
func DetailObject(path string) MergeFunc {
	return func(_, detail map[string]any) (map[string]any, error) {
		obj, ok := record.Lookup(detail, path).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("detail has no %q object", path)
		}
		return record.Clone(obj), nil
	}
}

// DetailValue returns a MergeFunc that copies the detail value at path onto
// the item under key. A missing value, or a degraded lookup, stores def.
func DetailValue(path, key string, def any) MergeFunc {
	return func(item, detail map[string]any) (map[string]any, error) {
		v := record.Lookup(detail, path)
		if v == nil {
			v = def
		}
		item[key] = v
		return item, nil
	}
}

// CollapseCounts replaces each named field with the length of its list
// value. Absent fields and non-list values become 0.
func CollapseCounts(rec map[string]any, fields []string) {
	for _, f := range fields {
		if list, ok := rec[f].([]any); ok {
			rec[f] = len(list)
		} else {
			rec[f] = 0
		}
	}
}
