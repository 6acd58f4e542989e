package field

import (
	"strings"
	"time"

	"github.com/roach88/lineage/internal/errors"
)

// Stored layouts. Both sort lexically in time order.
const (
	DatetimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
)

var parseLayouts = []string{
	DatetimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseTime reads a stored or user supplied timestamp. nil, "" and the
// zero time all decode to the zero time.
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return t.UTC(), nil
	case []byte:
		return ParseTime(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range parseLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, errors.Newf("not a timestamp: %q", t)
	default:
		return time.Time{}, errors.Newf("cannot convert %T to time", v)
	}
}

// Datetime stores a UTC timestamp with second precision.
type Datetime struct{}

func (Datetime) Decode(raw any) (any, error) {
	return ParseTime(raw)
}

func (Datetime) Encode(value any) (any, error) {
	t, err := ParseTime(value)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return t.Format(DatetimeLayout), nil
}

func (Datetime) ColumnType() string { return "TEXT" }

// Date stores a calendar day.
type Date struct{}

func (Date) Decode(raw any) (any, error) {
	t, err := ParseTime(raw)
	if err != nil || t.IsZero() {
		return t, err
	}
	return t.Truncate(24 * time.Hour), nil
}

func (Date) Encode(value any) (any, error) {
	t, err := ParseTime(value)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return t.Format(DateLayout), nil
}

func (Date) ColumnType() string { return "TEXT" }
