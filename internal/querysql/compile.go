// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/queryir"
)

// SQLCompiler compiles queryir to parameterized SQL for SQLite.
//
// All values are parameterized, never interpolated. Every row query carries
// an ORDER BY ending in the source table's ID so results are deterministic.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to SQL and its parameters, in placeholder order.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if result := queryir.Validate(q); !result.Valid {
		return "", nil, errors.Newf("invalid query: %s", result.Error())
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, errors.Newf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	if q.Count {
		return c.compileCount(q)
	}

	var sb strings.Builder
	var params []any

	cols, colParams := c.compileColumns(q.Columns)
	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(cols)
	params = append(params, colParams...)

	source, sourceParams, err := c.compileSource(q)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(source)
	params = append(params, sourceParams...)

	if len(q.GroupBy) > 0 {
		group, groupParams := c.compileColumnRefs(q.GroupBy)
		sb.WriteString(" GROUP BY ")
		sb.WriteString(group)
		params = append(params, groupParams...)
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(c.compileOrder(q))

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, int64(q.Limit))
	} else if q.Offset > 0 {
		sb.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		params = append(params, int64(q.Offset))
	}

	return sb.String(), params, nil
}

// compileCount counts the rows the select would return. Grouped, distinct
// or limited selects are counted through a subquery.
func (c *SQLCompiler) compileCount(q queryir.Select) (string, []any, error) {
	if len(q.GroupBy) == 0 && !q.Distinct && q.Limit == 0 && q.Offset == 0 {
		source, params, err := c.compileSource(q)
		if err != nil {
			return "", nil, err
		}
		return `SELECT COUNT(*) AS "Count"` + source, params, nil
	}

	inner := q
	inner.Count = false
	if len(inner.Columns) == 0 {
		inner.Columns = []queryir.Column{{Table: q.From, Field: "ID"}}
	}
	sql, params, err := c.compileSelect(inner)
	if err != nil {
		return "", nil, err
	}
	return `SELECT COUNT(*) AS "Count" FROM (` + sql + `) AS "counted"`, params, nil
}

// compileSource renders FROM, joins and WHERE.
func (c *SQLCompiler) compileSource(q queryir.Select) (string, []any, error) {
	var sb strings.Builder
	var params []any

	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdent(q.From))

	for _, j := range q.Joins {
		on, onParams, err := c.CompilePredicate(j.On)
		if err != nil {
			return "", nil, fmt.Errorf("compile join %s: %w", j.Table, err)
		}
		fmt.Fprintf(&sb, " %s %s ON %s", j.Kind, QuoteIdent(j.Table), on)
		params = append(params, onParams...)
	}

	if q.Where != nil {
		where, whereParams, err := c.CompilePredicate(q.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = append(params, whereParams...)
	}

	return sb.String(), params, nil
}

func (c *SQLCompiler) compileColumns(cols []queryir.Column) (string, []any) {
	parts := make([]string, 0, len(cols))
	var params []any
	for _, col := range cols {
		expr, args := columnExpr(col)
		if col.Alias != "" {
			expr += " AS " + QuoteIdent(col.Alias)
		}
		parts = append(parts, expr)
		params = append(params, args...)
	}
	return strings.Join(parts, ", "), params
}

func (c *SQLCompiler) compileColumnRefs(cols []queryir.Column) (string, []any) {
	parts := make([]string, 0, len(cols))
	var params []any
	for _, col := range cols {
		expr, args := columnExpr(col)
		parts = append(parts, expr)
		params = append(params, args...)
	}
	return strings.Join(parts, ", "), params
}

func columnExpr(col queryir.Column) (string, []any) {
	if col.Expr != "" {
		return col.Expr, col.Args
	}
	return fieldRef(col.Table, col.Field), nil
}

// compileOrder renders the sort keys followed by the ID tiebreaker.
// Grouped queries get no tiebreaker.
func (c *SQLCompiler) compileOrder(q queryir.Select) string {
	var parts []string
	hasID := false
	for _, o := range q.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, fieldRef(o.Table, o.Field)+" "+dir)
		if o.Field == "ID" && (o.Table == "" || o.Table == q.From) {
			hasID = true
		}
	}
	if !hasID && len(q.GroupBy) == 0 {
		parts = append(parts, fieldRef(q.From, "ID")+" ASC")
	}
	if len(parts) == 0 {
		return "1"
	}
	return strings.Join(parts, ", ")
}

// CompilePredicate compiles a predicate to a WHERE fragment and its params.
func (c *SQLCompiler) CompilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		if pred.Value == nil {
			return fieldRef(pred.Table, pred.Field) + " IS NULL", nil, nil
		}
		return fieldRef(pred.Table, pred.Field) + " = ?", []any{pred.Value}, nil
	case queryir.ColumnEquals:
		return fieldRef(pred.LeftTable, pred.LeftField) + " = " + fieldRef(pred.RightTable, pred.RightField), nil, nil
	case queryir.In:
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(pred.Values)), ", ")
		return fieldRef(pred.Table, pred.Field) + " IN (" + marks + ")", append([]any{}, pred.Values...), nil
	case queryir.Raw:
		return "(" + pred.SQL + ")", append([]any{}, pred.Args...), nil
	case queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		sql, params, err := c.compileJunction(pred.Predicates, " OR ", "1 = 0")
		if err != nil || len(pred.Predicates) < 2 {
			return sql, params, err
		}
		return "(" + sql + ")", params, nil
	default:
		return "", nil, errors.Newf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileJunction(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []any
	for _, sub := range preds {
		sql, subParams, err := c.CompilePredicate(sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, subParams...)
	}
	return strings.Join(parts, sep), params, nil
}

// CompileOrder renders sort keys without a tiebreaker. Used for cache keys.
func (c *SQLCompiler) CompileOrder(orders []queryir.Order) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, fieldRef(o.Table, o.Field)+" "+dir)
	}
	return strings.Join(parts, ", ")
}

// CompileGroupBy renders a GROUP BY column list without the keyword.
func (c *SQLCompiler) CompileGroupBy(cols []queryir.Column) (string, []any) {
	return c.compileColumnRefs(cols)
}

// CompileJoin renders a single join clause.
func (c *SQLCompiler) CompileJoin(j queryir.Join) (string, []any, error) {
	on, params, err := c.CompilePredicate(j.On)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s ON %s", j.Kind, QuoteIdent(j.Table), on), params, nil
}

// QuoteIdent quotes an identifier for SQLite.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func fieldRef(table, field string) string {
	if table == "" {
		return QuoteIdent(field)
	}
	return QuoteIdent(table) + "." + QuoteIdent(field)
}
