package engine

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/schema"
	"github.com/roach88/lineage/internal/store"
)

// ComponentSet is the resolved value of a relation on one owner.
//
// It remembers the owner and the relation so that Add and Remove can write
// the join without re-deriving it. While the owner is unsaved, Add and
// Remove only change the set in memory; the additions are written when the
// owner is persisted.
type ComponentSet struct {
	engine   *Engine
	owner    *record.Record
	relation schema.RelationDescriptor
	items    []*record.Record
	pending  []pendingAdd
}

type pendingAdd struct {
	rec   *record.Record
	extra map[string]any
}

func newComponentSet(e *Engine, owner *record.Record, rel schema.RelationDescriptor) *ComponentSet {
	return &ComponentSet{engine: e, owner: owner, relation: rel}
}

// Owner returns the record the relation hangs off.
func (s *ComponentSet) Owner() *record.Record { return s.owner }

// Relation returns the resolved relation.
func (s *ComponentSet) Relation() schema.RelationDescriptor { return s.relation }

// JoinField is the column linking components to the owner: the foreign key
// for has_one and has_many, the owner's junction key for many-many.
func (s *ComponentSet) JoinField() string {
	if s.relation.IsManyMany() {
		return s.relation.LocalKey
	}
	return s.relation.ForeignKey
}

// JunctionTable names the junction table, empty unless many-many.
func (s *ComponentSet) JunctionTable() string { return s.relation.Junction }

// Records returns the components in query order.
func (s *ComponentSet) Records() []*record.Record {
	out := make([]*record.Record, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of components.
func (s *ComponentSet) Len() int { return len(s.items) }

// First returns the first component, or nil.
func (s *ComponentSet) First() *record.Record {
	if len(s.items) == 0 {
		return nil
	}
	return s.items[0]
}

// IDs returns the identities of the persisted components.
func (s *ComponentSet) IDs() []int64 {
	var ids []int64
	for _, r := range s.items {
		if r.Exists() {
			ids = append(ids, r.ID())
		}
	}
	return ids
}

// Pending reports how many additions wait for the owner to be persisted.
func (s *ComponentSet) Pending() int { return len(s.pending) }

func (s *ComponentSet) indexOf(rec *record.Record) int {
	for i, r := range s.items {
		if r == rec || (rec.Exists() && r.ID() == rec.ID()) {
			return i
		}
	}
	return -1
}

// Add links rec to the owner. extra sets junction columns of a many-many.
//
// For a has_many the component's join column is set and the component is
// persisted. For a many-many an unsaved component is persisted first and a
// junction row is written.
func (s *ComponentSet) Add(ctx context.Context, rec *record.Record, extra map[string]any) error {
	if rec.IsDestroyed() || s.owner.IsDestroyed() {
		return errors.WithStack(errors.ErrRecordDestroyed)
	}
	if s.relation.Kind == schema.OneToOne {
		return errors.Newf("%s.%s is a has_one; set %s on the owner instead",
			s.relation.Owner, s.relation.Name, s.relation.ForeignKey)
	}
	if !s.engine.schema.IsA(rec.ClassName(), s.relation.Target) {
		return errors.Newf("%s is not a %s", rec.ClassName(), s.relation.Target)
	}

	if s.indexOf(rec) < 0 {
		s.items = append(s.items, rec)
	}
	if !s.owner.Exists() {
		s.pending = append(s.pending, pendingAdd{rec: rec, extra: extra})
		return nil
	}
	return s.write(ctx, rec, extra)
}

func (s *ComponentSet) write(ctx context.Context, rec *record.Record, extra map[string]any) error {
	e := s.engine
	if s.relation.Kind == schema.OneToMany {
		rec.Set(s.relation.ForeignKey, s.owner.ID())
		_, err := e.Persist(ctx, rec)
		return err
	}

	if !rec.Exists() {
		if _, err := e.Persist(ctx, rec); err != nil {
			return err
		}
	}
	fields := make(map[string]any, len(extra))
	for k, v := range extra {
		if err := e.encodeExtra(s.relation, k, v, fields); err != nil {
			return err
		}
	}
	_, err := e.exec.Manipulate(ctx, []store.TableWrite{{
		Table:   s.relation.Junction,
		Command: store.Insert,
		Where:   s.junctionKey(rec),
		Fields:  fields,
	}})
	if err != nil {
		return errors.Wrapf(err, "add %s to %s.%s", rec, s.relation.Owner, s.relation.Name)
	}
	e.logger.Info("component added",
		zap.Stringer("owner", s.owner),
		zap.String("relation", s.relation.Name),
		zap.Stringer("component", rec),
	)
	return nil
}

// Remove unlinks rec from the owner. The component itself is kept: a
// has_many component gets a zero join column, a many-many junction row is
// deleted.
func (s *ComponentSet) Remove(ctx context.Context, rec *record.Record) error {
	if rec.IsDestroyed() || s.owner.IsDestroyed() {
		return errors.WithStack(errors.ErrRecordDestroyed)
	}
	if s.relation.Kind == schema.OneToOne {
		return errors.Newf("%s.%s is a has_one; set %s on the owner instead",
			s.relation.Owner, s.relation.Name, s.relation.ForeignKey)
	}

	if i := s.indexOf(rec); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	for i, p := range s.pending {
		if p.rec == rec {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	if !s.owner.Exists() || !rec.Exists() {
		return nil
	}

	e := s.engine
	if s.relation.Kind == schema.OneToMany {
		rec.Set(s.relation.ForeignKey, int64(0))
		_, err := e.Persist(ctx, rec)
		return err
	}
	_, err := e.exec.Manipulate(ctx, []store.TableWrite{{
		Table:   s.relation.Junction,
		Command: store.Delete,
		Where:   s.junctionKey(rec),
	}})
	if err != nil {
		return errors.Wrapf(err, "remove %s from %s.%s", rec, s.relation.Owner, s.relation.Name)
	}
	return nil
}

func (s *ComponentSet) junctionKey(rec *record.Record) map[string]any {
	return map[string]any{
		s.relation.LocalKey:  s.owner.ID(),
		s.relation.RemoteKey: rec.ID(),
	}
}

// flush writes the additions held while the owner was unsaved.
func (s *ComponentSet) flush(ctx context.Context) error {
	pending := s.pending
	s.pending = nil
	for _, p := range pending {
		if err := s.write(ctx, p.rec, p.extra); err != nil {
			return err
		}
	}
	return nil
}

// flushComponents writes pending additions of every cached set of rec.
func (e *Engine) flushComponents(ctx context.Context, rec *record.Record) error {
	var sets []*ComponentSet
	rec.Components().Each(func(_, _ string, v any) {
		if set, ok := v.(*ComponentSet); ok && len(set.pending) > 0 {
			sets = append(sets, set)
		}
	})
	sort.Slice(sets, func(i, j int) bool { return sets[i].relation.Name < sets[j].relation.Name })
	for _, set := range sets {
		if err := set.flush(ctx); err != nil {
			return errors.Wrapf(err, "flush %s.%s", rec.ClassName(), set.relation.Name)
		}
	}
	return nil
}

func (e *Engine) encodeExtra(rel schema.RelationDescriptor, name string, value any, into map[string]any) error {
	typ, ok := rel.Extra[name]
	if !ok {
		return errors.Newf("%s has no extra field %s", rel.Junction, name)
	}
	codec, err := e.codecs.Lookup(typ)
	if err != nil {
		return err
	}
	encoded, err := codec.Encode(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s.%s", rel.Junction, name)
	}
	into[name] = encoded
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
