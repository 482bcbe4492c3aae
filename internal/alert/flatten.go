package alert

import (
	"errors"
	"strconv"
)

// ErrNotAggregate is returned when the root of a record is neither an object nor a list.
var ErrNotAggregate = errors.New("alert: record root must be an object or a list")

// Record maps dotted/indexed paths (e.g. "enrichments[0].data.positives") to leaf values.
type Record map[string]any

func Flatten(v any) (Record, error) {
	return FlattenLimit(v, -1)
}

// FlattenLimit behaves like Flatten but only descends into the first maxItems
// elements of every list. A negative maxItems means no limit.
func FlattenLimit(v any, maxItems int) (Record, error) {
	out := Record{}
	switch v.(type) {
	case map[string]any, []any:
	default:
		return out, ErrNotAggregate
	}
	flattenInto(out, "", v, maxItems)
	return out, nil
}

func flattenInto(out Record, prefix string, v any, maxItems int) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(out, key, child, maxItems)
		}
	case []any:
		n := len(t)
		if maxItems >= 0 && n > maxItems {
			n = maxItems
		}
		for i := 0; i < n; i++ {
			flattenInto(out, prefix+"["+strconv.Itoa(i)+"]", t[i], maxItems)
		}
	default:
		out[prefix] = v
	}
}

func (r Record) String(key string) string {
	s, _ := AsString(r[key])
	return s
}

func (r Record) Int(key string) int64 {
	n, _ := AsInt(r[key])
	return n
}
