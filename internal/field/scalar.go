package field

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/lineage/internal/errors"
)

// Int stores whole numbers.
type Int struct{}

func (Int) Decode(raw any) (any, error)   { return ToInt64(raw) }
func (Int) Encode(value any) (any, error) { return ToInt64(value) }
func (Int) ColumnType() string            { return "INTEGER NOT NULL DEFAULT 0" }

// ForeignKey stores the identity of a related record. 0 means no relation.
type ForeignKey struct{}

func (ForeignKey) Decode(raw any) (any, error) { return ToInt64(raw) }

func (ForeignKey) Encode(value any) (any, error) {
	id, err := ToInt64(value)
	if err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, errors.Newf("negative foreign key %d", id)
	}
	return id, nil
}

func (ForeignKey) ColumnType() string { return "INTEGER NOT NULL DEFAULT 0" }

// Boolean stores true and false as 1 and 0.
type Boolean struct{}

func (Boolean) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false", "no", "off":
			return false, nil
		case "1", "true", "yes", "on":
			return true, nil
		}
		return nil, errors.Newf("not a boolean: %q", v)
	}
	n, err := ToInt64(raw)
	if err != nil {
		return nil, err
	}
	return n != 0, nil
}

func (b Boolean) Encode(value any) (any, error) {
	v, err := b.Decode(value)
	if err != nil {
		return nil, err
	}
	if v.(bool) {
		return int64(1), nil
	}
	return int64(0), nil
}

func (Boolean) ColumnType() string { return "INTEGER NOT NULL DEFAULT 0" }

// Decimal stores fixed-scale numbers.
type Decimal struct {
	Precision int
	Scale     int
}

func newDecimal(args []string) (Codec, error) {
	d := Decimal{Precision: 9, Scale: 2}
	if len(args) > 2 {
		return nil, errors.Newf("takes at most 2 arguments, got %d", len(args))
	}
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p <= 0 {
			return nil, errors.Newf("invalid precision %q", args[0])
		}
		d.Precision = p
	}
	if len(args) > 1 {
		s, err := strconv.Atoi(args[1])
		if err != nil || s < 0 || s > d.Precision {
			return nil, errors.Newf("invalid scale %q", args[1])
		}
		d.Scale = s
	}
	return d, nil
}

func (d Decimal) Decode(raw any) (any, error) { return d.round(raw) }

func (d Decimal) Encode(value any) (any, error) { return d.round(value) }

func (d Decimal) round(v any) (float64, error) {
	f, err := ToFloat64(v)
	if err != nil {
		return 0, err
	}
	pow := math.Pow10(d.Scale)
	return math.Round(f*pow) / pow, nil
}

func (d Decimal) ColumnType() string {
	return "DECIMAL(" + strconv.Itoa(d.Precision) + "," + strconv.Itoa(d.Scale) + ") NOT NULL DEFAULT 0"
}

// Varchar stores bounded text.
type Varchar struct {
	Size int
}

func newVarchar(args []string) (Codec, error) {
	v := Varchar{Size: 255}
	if len(args) > 1 {
		return nil, errors.Newf("takes at most 1 argument, got %d", len(args))
	}
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return nil, errors.Newf("invalid size %q", args[0])
		}
		v.Size = n
	}
	return v, nil
}

func (Varchar) Decode(raw any) (any, error) { return ToString(raw), nil }

func (v Varchar) Encode(value any) (any, error) {
	s := ToString(value)
	if len([]rune(s)) > v.Size {
		return nil, errors.Newf("value exceeds %d characters", v.Size)
	}
	return s, nil
}

func (v Varchar) ColumnType() string { return "VARCHAR(" + strconv.Itoa(v.Size) + ")" }

// Text stores unbounded text.
type Text struct{}

func (Text) Decode(raw any) (any, error)   { return ToString(raw), nil }
func (Text) Encode(value any) (any, error) { return ToString(value), nil }
func (Text) ColumnType() string            { return "TEXT" }

// Enum stores one of a fixed set of strings. The first value is the default.
type Enum struct {
	Values []string
}

func newEnum(args []string) (Codec, error) {
	if len(args) == 0 {
		return nil, errors.New("requires at least one value")
	}
	return Enum{Values: args}, nil
}

func (e Enum) Decode(raw any) (any, error) {
	s := ToString(raw)
	if s == "" {
		return e.Values[0], nil
	}
	return s, nil
}

func (e Enum) Encode(value any) (any, error) {
	s := ToString(value)
	if s == "" {
		return e.Values[0], nil
	}
	if !slices.Contains(e.Values, s) {
		return nil, errors.Newf("%q is not one of %s", s, strings.Join(e.Values, ", "))
	}
	return s, nil
}

func (e Enum) ColumnType() string { return "VARCHAR(255)" }
