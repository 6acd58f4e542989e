package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/cache"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/query"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/schema"
)

// singleKey is the component cache key of a has_one.
const singleKey = ""

func (e *Engine) relation(owner *record.Record, name string, kinds ...schema.RelationKind) (schema.RelationDescriptor, error) {
	if owner.IsDestroyed() {
		return schema.RelationDescriptor{}, errors.WithStack(errors.ErrRecordDestroyed)
	}
	rel, err := e.schema.Relation(owner.ClassName(), name)
	if err != nil {
		return schema.RelationDescriptor{}, err
	}
	for _, k := range kinds {
		if rel.Kind == k {
			return rel, nil
		}
	}
	return schema.RelationDescriptor{}, errors.Newf("%s.%s is a %s relation", owner.ClassName(), name, rel.Kind)
}

// Component resolves a has_one.
//
// The related record is loaded by the owner's <name>ID. An unsaved owner, a
// zero key or a key with no matching row yields an unsaved placeholder of
// the target class; a dangling key is reset to zero. The result, including
// a placeholder, is cached on the owner.
func (e *Engine) Component(ctx context.Context, owner *record.Record, name string) (*record.Record, error) {
	rel, err := e.relation(owner, name, schema.OneToOne)
	if err != nil {
		return nil, err
	}

	comps := owner.Components()
	if v, ok := comps.Get(name, singleKey); ok {
		return v.(*record.Record), nil
	}

	var comp *record.Record
	fk, _ := field.ToInt64(owner.Get(rel.ForeignKey))
	if owner.Exists() && fk > 0 {
		comp, err = e.GetByID(ctx, rel.Target, fk)
		if err != nil {
			return nil, err
		}
		if comp == nil {
			e.logger.Warn("orphaned foreign key reset",
				zap.Stringer("record", owner),
				zap.String("field", rel.ForeignKey),
				zap.Int64("id", fk),
			)
			owner.Set(rel.ForeignKey, int64(0))
		}
	}
	if comp == nil {
		comp, err = e.NewRecord(rel.Target)
		if err != nil {
			return nil, err
		}
	}

	comps.Put(name, singleKey, comp)
	return comp, nil
}

// Components resolves a has_many. p narrows the set; its Filter is
// conjoined with the join condition.
func (e *Engine) Components(ctx context.Context, owner *record.Record, name string, p query.Params) (*ComponentSet, error) {
	rel, err := e.relation(owner, name, schema.OneToMany)
	if err != nil {
		return nil, err
	}
	if rel.Inferred {
		e.logger.Warn("has_many join column inferred",
			zap.String("class", rel.Owner),
			zap.String("relation", rel.Name),
			zap.String("column", rel.ForeignKey),
		)
	}

	key, err := e.componentKey(p)
	if err != nil {
		return nil, err
	}
	comps := owner.Components()
	if v, ok := comps.Get(name, key); ok {
		return v.(*ComponentSet), nil
	}

	set := newComponentSet(e, owner, rel)
	if owner.Exists() {
		table, ok := e.schema.FieldTable(rel.Target, rel.ForeignKey)
		if !ok {
			return nil, errors.WithHintf(
				errors.NewConfigError(errors.ErrCodeUnresolvedInverse, rel.Owner, rel.Name,
					"join column %s is not a field of %s", rel.ForeignKey, rel.Target),
				"declare has_one on %s pointing at %s, or a %s field", rel.Target, rel.Owner, rel.ForeignKey)
		}
		p.Filter = conjoin(queryir.Equals{Table: table, Field: rel.ForeignKey, Value: owner.ID()}, p.Filter)
		set.items, err = e.Get(ctx, rel.Target, p)
		if err != nil {
			return nil, err
		}
	}

	comps.Put(name, key, set)
	return set, nil
}

// ManyManyComponents resolves a many_many or belongs_many_many through its
// junction table. Junction extra columns are loaded onto each record.
func (e *Engine) ManyManyComponents(ctx context.Context, owner *record.Record, name string, p query.Params) (*ComponentSet, error) {
	rel, err := e.relation(owner, name, schema.ManyToMany, schema.BelongsManyMany)
	if err != nil {
		return nil, err
	}

	key, err := e.componentKey(p)
	if err != nil {
		return nil, err
	}
	comps := owner.Components()
	if v, ok := comps.Get(name, key); ok {
		return v.(*ComponentSet), nil
	}

	set := newComponentSet(e, owner, rel)
	if owner.Exists() {
		join, err := e.manyManyJoin(rel)
		if err != nil {
			return nil, err
		}
		p.Join = append([]queryir.Join{join}, p.Join...)
		p.Filter = conjoin(manyManyFilter(rel, owner.ID()), p.Filter)

		sel, err := e.builder.Build(rel.Target, p)
		if err != nil {
			return nil, err
		}
		for _, col := range sortedKeys(rel.Extra) {
			sel.AddColumn(queryir.Column{Table: rel.Junction, Field: col})
		}
		set.items, err = e.load(ctx, rel.Target, sel)
		if err != nil {
			return nil, err
		}
	}

	comps.Put(name, key, set)
	return set, nil
}

// ManyManyJoin returns the join clause that brings a many-many relation's
// junction table into a query over the relation's target class.
func (e *Engine) ManyManyJoin(class, name string) (queryir.Join, error) {
	rel, err := e.schema.Relation(class, name)
	if err != nil {
		return queryir.Join{}, err
	}
	if !rel.IsManyMany() {
		return queryir.Join{}, errors.Newf("%s.%s is a %s relation", class, name, rel.Kind)
	}
	return e.manyManyJoin(rel)
}

// ManyManyFilter returns the predicate restricting a query joined with
// ManyManyJoin to the owner's components.
func (e *Engine) ManyManyFilter(owner *record.Record, name string) (queryir.Predicate, error) {
	rel, err := e.relation(owner, name, schema.ManyToMany, schema.BelongsManyMany)
	if err != nil {
		return nil, err
	}
	return manyManyFilter(rel, owner.ID()), nil
}

func (e *Engine) manyManyJoin(rel schema.RelationDescriptor) (queryir.Join, error) {
	base, err := e.schema.BaseTable(rel.Target)
	if err != nil {
		return queryir.Join{}, err
	}
	return queryir.Join{
		Kind:  queryir.InnerJoin,
		Table: rel.Junction,
		On: queryir.ColumnEquals{
			LeftTable: rel.Junction, LeftField: rel.RemoteKey,
			RightTable: base, RightField: schema.FieldID,
		},
	}, nil
}

func manyManyFilter(rel schema.RelationDescriptor, ownerID int64) queryir.Predicate {
	return queryir.Equals{Table: rel.Junction, Field: rel.LocalKey, Value: ownerID}
}

// ResolveRelation resolves any declared relation by name. A has_one comes
// back as a set holding the single component.
func (e *Engine) ResolveRelation(ctx context.Context, owner *record.Record, name string) (*ComponentSet, error) {
	if owner.IsDestroyed() {
		return nil, errors.WithStack(errors.ErrRecordDestroyed)
	}
	rel, err := e.schema.Relation(owner.ClassName(), name)
	if err != nil {
		return nil, err
	}
	switch rel.Kind {
	case schema.OneToOne:
		comp, err := e.Component(ctx, owner, name)
		if err != nil {
			return nil, err
		}
		set := newComponentSet(e, owner, rel)
		set.items = []*record.Record{comp}
		return set, nil
	case schema.OneToMany:
		return e.Components(ctx, owner, name, query.Params{})
	default:
		return e.ManyManyComponents(ctx, owner, name, query.Params{})
	}
}

// componentKey hashes the parts of p that change a relation's result.
func (e *Engine) componentKey(p query.Params) (string, error) {
	where, args, err := e.compiler.CompilePredicate(p.Filter)
	if err != nil {
		return "", err
	}
	joins := make([]any, 0, len(p.Join))
	for _, j := range p.Join {
		sql, jargs, err := e.compiler.CompileJoin(j)
		if err != nil {
			return "", err
		}
		joins = append(joins, sql, jargs)
	}
	group, groupArgs := e.compiler.CompileGroupBy(p.GroupBy)
	return cache.Key(cache.DomainComponent, where, args, e.compiler.CompileOrder(p.Sort), joins,
		group, groupArgs, p.Limit, p.Offset), nil
}

func conjoin(base, extra queryir.Predicate) queryir.Predicate {
	if extra == nil {
		return base
	}
	return queryir.And{Predicates: []queryir.Predicate{base, extra}}
}
