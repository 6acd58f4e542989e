package field

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/lineage/internal/errors"
)

// ToInt64 converts integers, whole floats, booleans and numeric strings.
// nil and "" convert to 0.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return ToInt64(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Newf("not an integer: %q", n)
		}
		return floatToInt(f)
	default:
		return 0, errors.Newf("cannot convert %T to integer", v)
	}
}

func uintToInt(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, errors.Newf("integer %d out of range", n)
	}
	return int64(n), nil
}

func floatToInt(f float64) (int64, error) {
	if f != float64(int64(f)) {
		return 0, errors.Newf("not a whole number: %v", f)
	}
	return int64(f), nil
}

// ToFloat64 converts any numeric value or numeric string.
func ToFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case []byte:
		return ToFloat64(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Newf("not a number: %q", n)
		}
		return f, nil
	default:
		i, err := ToInt64(v)
		if err != nil {
			return 0, err
		}
		return float64(i), nil
	}
}

// ToString renders a value as text. nil renders as "".
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		if s.IsZero() {
			return ""
		}
		return s.UTC().Format(DatetimeLayout)
	case fmt.Stringer:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
