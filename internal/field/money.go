package field

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/queryir"
)

// Column suffixes of a Money field.
const (
	MoneyAmountSuffix   = "Amount"
	MoneyCurrencySuffix = "Currency"
)

// Money is an amount in a currency. It is held by pointer in records so
// that SetAmount and SetCurrency are visible to the write path.
type Money struct {
	amount   float64
	currency string
	changed  bool
}

// NewMoney returns a Money value.
func NewMoney(amount float64, currency string) *Money {
	return &Money{amount: roundCents(amount), currency: currency}
}

func (m *Money) Amount() float64  { return m.amount }
func (m *Money) Currency() string { return m.currency }

// SetAmount updates the amount in place.
func (m *Money) SetAmount(amount float64) {
	amount = roundCents(amount)
	if amount != m.amount {
		m.amount = amount
		m.changed = true
	}
}

// SetCurrency updates the currency in place.
func (m *Money) SetCurrency(currency string) {
	if currency != m.currency {
		m.currency = currency
		m.changed = true
	}
}

// IsChanged reports whether the value was mutated since the last write.
func (m *Money) IsChanged() bool { return m.changed }

// ResetChanged marks the value as written.
func (m *Money) ResetChanged() { m.changed = false }

// Clone returns an unchanged copy.
func (m *Money) Clone() *Money {
	if m == nil {
		return nil
	}
	return &Money{amount: m.amount, currency: m.currency}
}

// Equal compares amount and currency.
func (m *Money) Equal(other *Money) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.amount == other.amount && m.currency == other.currency
}

func (m *Money) String() string {
	if m == nil {
		return ""
	}
	s := strconv.FormatFloat(m.amount, 'f', 2, 64)
	if m.currency != "" {
		s += " " + m.currency
	}
	return s
}

func roundCents(f float64) float64 {
	return math.Round(f*100) / 100
}

// MoneyCodec stores Money as <name>Amount and <name>Currency.
type MoneyCodec struct{}

var _ Composite = MoneyCodec{}

// Decode accepts *Money, Money, a number or "12.50 NZD".
func (MoneyCodec) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return NewMoney(0, ""), nil
	case *Money:
		if v == nil {
			return NewMoney(0, ""), nil
		}
		return NewMoney(v.amount, v.currency), nil
	case Money:
		return NewMoney(v.amount, v.currency), nil
	case string:
		parts := strings.Fields(v)
		if len(parts) == 0 {
			return NewMoney(0, ""), nil
		}
		amount, err := ToFloat64(parts[0])
		if err != nil {
			return nil, err
		}
		currency := ""
		if len(parts) > 1 {
			currency = parts[1]
		}
		return NewMoney(amount, currency), nil
	default:
		amount, err := ToFloat64(raw)
		if err != nil {
			return nil, errors.Wrap(err, "money")
		}
		return NewMoney(amount, ""), nil
	}
}

// Encode renders the value as text.
func (c MoneyCodec) Encode(value any) (any, error) {
	m, err := c.Decode(value)
	if err != nil {
		return nil, err
	}
	return m.(*Money).String(), nil
}

// ColumnType is empty: Money has no column of its own.
func (MoneyCodec) ColumnType() string { return "" }

func (MoneyCodec) Columns(name string) []Column {
	return []Column{
		{Name: name + MoneyAmountSuffix, Type: "DECIMAL(19,4) NOT NULL DEFAULT 0"},
		{Name: name + MoneyCurrencySuffix, Type: "VARCHAR(3)"},
	}
}

func (c MoneyCodec) ExpandQuery(sel *queryir.Select, table, name string) {
	for _, col := range c.Columns(name) {
		sel.AddColumn(queryir.Column{Table: table, Field: col.Name})
	}
}

func (c MoneyCodec) EncodeColumns(name string, value any) (map[string]any, error) {
	v, err := c.Decode(value)
	if err != nil {
		return nil, err
	}
	m := v.(*Money)
	var currency any
	if m.currency != "" {
		currency = m.currency
	}
	return map[string]any{
		name + MoneyAmountSuffix:   m.amount,
		name + MoneyCurrencySuffix: currency,
	}, nil
}

func (MoneyCodec) DecodeColumns(name string, row map[string]any) (any, error) {
	amount, err := ToFloat64(row[name+MoneyAmountSuffix])
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	return NewMoney(amount, ToString(row[name+MoneyCurrencySuffix])), nil
}
