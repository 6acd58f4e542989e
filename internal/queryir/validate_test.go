package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSelect() Select {
	return Select{
		From:    "SiteTree",
		Columns: []Column{{Table: "SiteTree", Field: "ID"}},
		Joins: []Join{{
			Table: "Page",
			On:    ColumnEquals{LeftTable: "Page", LeftField: "ID", RightTable: "SiteTree", RightField: "ID"},
		}},
		Where: And{Predicates: []Predicate{
			Equals{Table: "SiteTree", Field: "Title", Value: "Home"},
			Raw{SQL: `"Sort" > ?`, Args: []any{1}},
		}},
	}
}

func TestValidate_Valid(t *testing.T) {
	result := Validate(validSelect())
	assert.True(t, result.Valid)
	assert.Empty(t, result.Problems)

	sel := validSelect()
	assert.True(t, Validate(&sel).Valid)
}

func TestValidate_Problems(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Select)
		want   string
	}{
		{"no source", func(s *Select) { s.From = "" }, "no source table"},
		{"no columns", func(s *Select) { s.Columns = nil }, "columns must be explicit"},
		{"expression without alias", func(s *Select) { s.Columns = append(s.Columns, Column{Expr: "1"}) }, "needs an alias"},
		{"join without condition", func(s *Select) { s.Joins = append(s.Joins, Join{Table: "X"}) }, "has no condition"},
		{"negative limit", func(s *Select) { s.Limit = -1 }, "negative limit"},
		{"raw arg mismatch", func(s *Select) { s.Where = Raw{SQL: "A = ? AND B = ?", Args: []any{1}} }, "2 placeholders but 1 args"},
		{"empty column", func(s *Select) { s.Columns = []Column{{}} }, "neither a field nor an expression"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel := validSelect()
			tc.mutate(&sel)

			result := Validate(sel)
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Problems)
			assert.Contains(t, result.Error(), tc.want)
		})
	}
}

func TestValidate_CountNeedsNoColumns(t *testing.T) {
	sel := validSelect()
	sel.Columns = nil
	sel.Count = true
	assert.True(t, Validate(sel).Valid)
}

func TestValidate_Nil(t *testing.T) {
	assert.False(t, Validate(nil).Valid)
	var sel *Select
	assert.False(t, Validate(sel).Valid)
}
