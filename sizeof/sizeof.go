// Package sizeof implements the upper-bound byte-size heuristic used by
// the engine for policy enforcement (max_size) and by analytics for
// eviction-pressure accounting.
package sizeof

import (
	"encoding/json"
	"reflect"
	"time"
)

const (
	// listOverhead and mapOverhead are the fixed per-container overheads
	// added on top of element-recursive sizing.
	listOverhead = 16
	mapOverhead  = 32

	// jsonFallbackSize is used when a value can't be reflected and JSON
	// marshaling also fails.
	jsonFallbackSize = 100

	// itemBaseOverhead is the fixed cost of CacheItem metadata (timestamps,
	// flags, counters) added by EstimateItemSize.
	itemBaseOverhead = 64
	// expiryFieldOverhead is the per-optional-timestamp cost added when a
	// field such as expiry or sliding TTL is set.
	expiryFieldOverhead = 8
)

// Estimate returns an upper-bound byte-size estimate for an arbitrary Go
// value:
//   - strings: len*2 (worst-case UTF-16-ish accounting)
//   - bool 1; int, int32, uint32, float32 4; int64, uint64, float64,
//     time.Time, time.Duration 8 (other numeric kinds take the JSON path)
//   - slices/arrays: element-recursive + listOverhead
//   - maps: key+value recursive + mapOverhead
//   - byte slices: exact length
//   - anything else: JSON-encode and size the result, else jsonFallbackSize
func Estimate(value interface{}) int {
	if value == nil {
		return 0
	}
	switch v := value.(type) {
	case string:
		return len(v) * 2
	case []byte:
		return len(v)
	case bool:
		return 1
	case int, int32, uint32:
		return 4
	case int64, uint64, float64:
		return 8
	case float32:
		return 4
	case time.Time:
		return 8
	case time.Duration:
		return 8
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return 0
		}
		return Estimate(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		total := listOverhead
		for i := 0; i < rv.Len(); i++ {
			total += Estimate(rv.Index(i).Interface())
		}
		return total
	case reflect.Map:
		total := mapOverhead
		iter := rv.MapRange()
		for iter.Next() {
			total += Estimate(iter.Key().Interface())
			total += Estimate(iter.Value().Interface())
		}
		return total
	case reflect.Struct:
		if data, err := json.Marshal(value); err == nil {
			return len(data) * 2
		}
		return jsonFallbackSize
	}

	if data, err := json.Marshal(value); err == nil {
		return len(data) * 2
	}
	return jsonFallbackSize
}

// ItemSizeFlags carries the optional fields EstimateItemSize adds
// overhead for, plus the compressed-payload substitution inputs.
type ItemSizeFlags struct {
	HasExpiry        bool
	HasSlidingTTL    bool
	IsCompressed     bool
	CompressedLength int
}

// EstimateItemSize estimates the full on-disk size of a CacheItem: the
// value's own size plus per-field metadata overhead, substituting the
// compressed payload size when applicable.
func EstimateItemSize(value interface{}, flags ItemSizeFlags) int {
	size := itemBaseOverhead
	if flags.HasExpiry {
		size += expiryFieldOverhead
	}
	if flags.HasSlidingTTL {
		size += expiryFieldOverhead
	}
	if flags.IsCompressed {
		return size + flags.CompressedLength
	}
	return size + Estimate(value)
}
