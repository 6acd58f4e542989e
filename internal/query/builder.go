// Package query builds the select for loading records of a class.
//
// A class's record is spread over the tables of its ancestors. The builder
// selects every stored column from each of those tables, left-joined on ID,
// and restricts the rows to the class and its subclasses.
package query

import (
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/querysql"
	"github.com/roach88/lineage/internal/schema"
)

// Params narrows a class query. The zero value selects every record.
type Params struct {
	Filter  queryir.Predicate
	Sort    []queryir.Order
	Join    []queryir.Join
	Limit   int
	Offset  int
	GroupBy []queryir.Column
}

// Builder builds class queries from the registry's layout.
type Builder struct {
	schema *schema.Registry
	codecs *field.Registry
}

// NewBuilder creates a Builder.
func NewBuilder(reg *schema.Registry, codecs *field.Registry) *Builder {
	return &Builder{schema: reg, codecs: codecs}
}

// Build returns the select for class narrowed by p.
func (b *Builder) Build(class string, p Params) (queryir.Select, error) {
	sel, err := b.source(class, p)
	if err != nil {
		return queryir.Select{}, err
	}

	layout, err := b.schema.Layout(class)
	if err != nil {
		return queryir.Select{}, err
	}
	baseClass, err := b.schema.BaseClass(class)
	if err != nil {
		return queryir.Select{}, err
	}
	base := layout[0].Table

	sel.AddColumn(queryir.Column{Table: base, Field: schema.FieldID})
	for _, l := range layout {
		for _, name := range l.Fields {
			if err := b.addField(&sel, class, l.Table, name); err != nil {
				return queryir.Select{}, err
			}
		}
	}

	className := querysql.QuoteIdent(base) + "." + querysql.QuoteIdent(schema.FieldClassName)
	sel.AddColumn(queryir.Column{
		Expr:  "CASE WHEN " + className + " IS NOT NULL AND " + className + " <> '' THEN " + className + " ELSE ? END",
		Args:  []any{baseClass},
		Alias: schema.FieldRecordClassName,
	})

	sel.OrderBy = p.Sort
	sel.GroupBy = p.GroupBy
	sel.Limit = p.Limit
	sel.Offset = p.Offset
	return sel, nil
}

// Count returns a select counting the records Build would return.
func (b *Builder) Count(class string, p Params) (queryir.Select, error) {
	sel, err := b.source(class, p)
	if err != nil {
		return queryir.Select{}, err
	}
	sel.GroupBy = p.GroupBy
	sel.Limit = p.Limit
	sel.Offset = p.Offset
	sel.Count = true
	return sel, nil
}

// source builds FROM, joins and WHERE shared by Build and Count.
func (b *Builder) source(class string, p Params) (queryir.Select, error) {
	layout, err := b.schema.Layout(class)
	if err != nil {
		return queryir.Select{}, err
	}
	baseClass, err := b.schema.BaseClass(class)
	if err != nil {
		return queryir.Select{}, err
	}
	base := layout[0].Table

	sel := queryir.Select{From: base}
	for _, l := range layout[1:] {
		sel.AddJoin(queryir.Join{
			Kind:  queryir.LeftJoin,
			Table: l.Table,
			On: queryir.ColumnEquals{
				LeftTable: l.Table, LeftField: schema.FieldID,
				RightTable: base, RightField: schema.FieldID,
			},
		})
	}
	for _, j := range p.Join {
		sel.AddJoin(j)
	}

	if class != baseClass {
		classes := b.schema.Subclasses(class)
		values := make([]any, len(classes))
		for i, c := range classes {
			values[i] = c
		}
		sel.AddWhere(queryir.In{Table: base, Field: schema.FieldClassName, Values: values})
	}
	sel.AddWhere(p.Filter)
	return sel, nil
}

func (b *Builder) addField(sel *queryir.Select, class, table, name string) error {
	typ, ok := b.schema.FieldType(class, name)
	if !ok {
		return errors.AssertionFailedf("field %s.%s in layout but not in field map", class, name)
	}
	codec, err := b.codecs.Lookup(typ)
	if err != nil {
		return errors.Wrapf(err, "%s.%s", class, name)
	}
	if composite, ok := codec.(field.Composite); ok {
		composite.ExpandQuery(sel, table, name)
		return nil
	}
	sel.AddColumn(queryir.Column{Table: table, Field: name})
	return nil
}
