package record

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/lineage/internal/field"
)

// identical reports strict equality: same dynamic type and same value.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if t, ok := a.(time.Time); ok {
		return t.Equal(b.(time.Time))
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// looseEqual reports equality after type juggling: both empty, equal as
// numbers, or equal when rendered as text.
func looseEqual(a, b any) bool {
	if isEmpty(a) && isEmpty(b) {
		return true
	}
	na, okA := numeric(a)
	nb, okB := numeric(b)
	if okA && okB {
		return na == nb
	}
	return field.ToString(a) == field.ToString(b)
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case time.Time:
		return val.IsZero()
	}
	if n, ok := numeric(v); ok {
		if _, isStr := v.(string); !isStr {
			return n == 0
		}
	}
	return false
}

func numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := field.ToInt64(val)
		return float64(n), err == nil
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
