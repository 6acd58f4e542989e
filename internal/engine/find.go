package engine

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/cache"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/query"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/schema"
	"github.com/roach88/lineage/internal/store"
)

// Get loads every record of class, or a subclass, matching p.
//
// Each record is built as the class named by its discriminator. Fields of
// a subclass that live in tables the query did not join are loaded with
// one extra query per subclass.
func (e *Engine) Get(ctx context.Context, class string, p query.Params) ([]*record.Record, error) {
	sel, err := e.builder.Build(class, p)
	if err != nil {
		return nil, err
	}
	return e.load(ctx, class, sel)
}

// GetOne returns the first record of class matching filter in order,
// or nil when there is none. Results are served from the lookup cache.
func (e *Engine) GetOne(ctx context.Context, class string, filter queryir.Predicate, order []queryir.Order) (*record.Record, error) {
	key, err := e.lookupKey(filter, order)
	if err != nil {
		return nil, err
	}
	if e.lookup != nil {
		if rec, ok := e.lookup.Get(class, key); ok {
			return rec, nil
		}
	}

	recs, err := e.Get(ctx, class, query.Params{Filter: filter, Sort: order, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	if e.lookup != nil {
		e.lookup.Put(class, key, recs[0])
	}
	return recs[0], nil
}

// GetByID returns the record of class with the given identity, or nil.
func (e *Engine) GetByID(ctx context.Context, class string, id int64) (*record.Record, error) {
	if id <= 0 {
		return nil, nil
	}
	base, err := e.schema.BaseTable(class)
	if err != nil {
		return nil, err
	}
	return e.GetOne(ctx, class, queryir.Equals{Table: base, Field: schema.FieldID, Value: id}, nil)
}

// Count returns the number of records Get would load.
func (e *Engine) Count(ctx context.Context, class string, p query.Params) (int64, error) {
	sel, err := e.builder.Count(class, p)
	if err != nil {
		return 0, err
	}
	rows, err := e.run(ctx, sel)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return field.ToInt64(rows[0]["Count"])
}

// SQL returns the compiled select Get would run.
func (e *Engine) SQL(class string, p query.Params) (string, []any, error) {
	sel, err := e.builder.Build(class, p)
	if err != nil {
		return "", nil, err
	}
	return e.compiler.Compile(sel)
}

func (e *Engine) lookupKey(filter queryir.Predicate, order []queryir.Order) (string, error) {
	where, args, err := e.compiler.CompilePredicate(filter)
	if err != nil {
		return "", err
	}
	return cache.Key(cache.DomainLookup, where, args, e.compiler.CompileOrder(order)), nil
}

func (e *Engine) run(ctx context.Context, sel queryir.Select) ([]store.Row, error) {
	sql, args, err := e.compiler.Compile(sel)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query", zap.String("sql", sql), zap.Any("params", args))
	rows, err := e.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", sel.From)
	}
	return rows, nil
}

// load runs sel and hydrates the rows as records of class.
func (e *Engine) load(ctx context.Context, class string, sel queryir.Select) ([]*record.Record, error) {
	rows, err := e.run(ctx, sel)
	if err != nil {
		return nil, err
	}

	classes := make([]string, len(rows))
	values := make([]map[string]any, len(rows))
	for i, row := range rows {
		classes[i] = e.concreteClass(class, row)
		values[i], err = e.decodeRow(class, classes[i], row)
		if err != nil {
			return nil, err
		}
	}

	if err := e.fillSubclassFields(ctx, class, classes, values); err != nil {
		return nil, err
	}

	recs := make([]*record.Record, len(rows))
	for i := range rows {
		recs[i] = record.Hydrate(classes[i], values[i])
	}
	return recs, nil
}

// concreteClass picks the class a row is built as: its discriminator when
// the registry knows it, else the requested class.
func (e *Engine) concreteClass(requested string, row store.Row) string {
	name := field.ToString(row[schema.FieldRecordClassName])
	if name == "" || !e.schema.Has(name) || !e.schema.IsA(name, requested) {
		return requested
	}
	return name
}

// decodeRow decodes the columns selected for queried into values of class.
func (e *Engine) decodeRow(queried, class string, row store.Row) (map[string]any, error) {
	fields, err := e.schema.Fields(class)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	id, err := field.ToInt64(row[schema.FieldID])
	if err != nil {
		return nil, errors.Wrap(err, "decode ID")
	}
	values[schema.FieldID] = id

	for name, typ := range fields {
		if _, ok := e.schema.FieldTable(queried, name); !ok {
			continue
		}
		v, err := e.decodeField(name, typ, row)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s.%s", class, name)
		}
		values[name] = v
	}

	// Junction extra columns and other columns outside the class layout.
	for col, v := range row {
		if _, declared := fields[col]; declared || col == schema.FieldRecordClassName {
			continue
		}
		if _, ok := values[col]; !ok && !e.isCompositeColumn(fields, col) {
			values[col] = v
		}
	}
	return values, nil
}

func (e *Engine) decodeField(name, typ string, row store.Row) (any, error) {
	codec, err := e.codecs.Lookup(typ)
	if err != nil {
		return nil, err
	}
	if composite, ok := codec.(field.Composite); ok {
		return composite.DecodeColumns(name, row)
	}
	return codec.Decode(row[name])
}

func (e *Engine) isCompositeColumn(fields map[string]string, col string) bool {
	for name, typ := range fields {
		codec, err := e.codecs.Lookup(typ)
		if err != nil {
			continue
		}
		composite, ok := codec.(field.Composite)
		if !ok {
			continue
		}
		for _, c := range composite.Columns(name) {
			if c.Name == col {
				return true
			}
		}
	}
	return false
}

// fillSubclassFields loads fields of rows whose concrete class has tables
// the original query did not join.
func (e *Engine) fillSubclassFields(ctx context.Context, queried string, classes []string, values []map[string]any) error {
	byClass := map[string][]int{}
	for i, c := range classes {
		if c != queried {
			byClass[c] = append(byClass[c], i)
		}
	}
	if len(byClass) == 0 {
		return nil
	}

	queriedTables, err := e.schema.Tables(queried)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(byClass))
	for c := range byClass {
		names = append(names, c)
	}
	sort.Strings(names)

	for _, class := range names {
		tables, err := e.schema.Tables(class)
		if err != nil {
			return err
		}
		if len(tables) == len(queriedTables) {
			continue
		}

		idx := byClass[class]
		ids := make([]any, len(idx))
		for j, i := range idx {
			ids[j] = values[i][schema.FieldID]
		}
		sel, err := e.builder.Build(class, query.Params{
			Filter: queryir.In{Table: tables[0], Field: schema.FieldID, Values: ids},
		})
		if err != nil {
			return err
		}
		rows, err := e.run(ctx, sel)
		if err != nil {
			return err
		}

		byID := make(map[int64]store.Row, len(rows))
		for _, row := range rows {
			id, _ := field.ToInt64(row[schema.FieldID])
			byID[id] = row
		}
		for _, i := range idx {
			id := values[i][schema.FieldID].(int64)
			row, ok := byID[id]
			if !ok {
				continue
			}
			full, err := e.decodeRow(class, class, row)
			if err != nil {
				return err
			}
			for k, v := range full {
				if _, ok := values[i][k]; !ok {
					values[i][k] = v
				}
			}
		}
	}
	return nil
}
