package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/schema"
	"github.com/roach88/lineage/internal/store"
)

// PersistOption configures a Persist call.
type PersistOption func(*persistOptions)

type persistOptions struct {
	force bool
}

// WithForceWrite writes the record even when nothing changed.
func WithForceWrite() PersistOption {
	return func(o *persistOptions) {
		o.force = true
	}
}

// Persist writes the record's changes and returns its identity.
//
// A record that exists and has no changes is left alone unless
// WithForceWrite is given. Validation failures and encoding errors abort
// before any I/O. On success the record's original snapshot is replaced,
// its change set cleared, the lookup cache invalidated for its ancestry,
// pending component changes flushed and its component cache cleared.
func (e *Engine) Persist(ctx context.Context, rec *record.Record, opts ...PersistOption) (int64, error) {
	if rec.IsDestroyed() {
		return 0, errors.WithStack(errors.ErrRecordDestroyed)
	}
	var o persistOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := e.validate(rec); err != nil {
		return 0, err
	}

	class := rec.ClassName()
	fields, err := e.schema.Fields(class)
	if err != nil {
		return 0, err
	}
	for name := range fields {
		if t, ok := rec.Get(name).(field.ChangeTracker); ok && t.IsChanged() {
			rec.MarkChanged(name, record.Strict)
		}
	}

	isNew := !rec.Exists()
	if !isNew && !o.force && !hasChanges(rec) {
		e.logger.Debug("persist skipped", zap.Stringer("record", rec))
		return rec.ID(), nil
	}

	now := e.clock.Now().UTC()
	writes, err := e.buildWrites(rec, isNew, now)
	if err != nil {
		return 0, err
	}

	id, err := e.exec.Manipulate(ctx, writes)
	if err != nil {
		return 0, errors.Wrapf(err, "persist %s", rec)
	}
	if !isNew {
		id = rec.ID()
	}

	if isNew {
		rec.Set(schema.FieldClassName, class)
		rec.Set(schema.FieldCreated, now)
	}
	rec.Set(schema.FieldLastEdited, now)
	rec.MarkWritten(id)

	e.invalidateAncestry(class)
	e.logger.Info("persisted",
		zap.Stringer("record", rec),
		zap.Bool("insert", isNew),
		zap.Int("writes", len(writes)),
	)

	if err := e.flushComponents(ctx, rec); err != nil {
		return id, err
	}
	rec.Components().Clear()
	return id, nil
}

func hasChanges(rec *record.Record) bool {
	for _, name := range rec.ChangedFields(record.Loose) {
		if name != schema.FieldID {
			return true
		}
	}
	return false
}

// buildWrites turns the change set into one write per ancestor table.
func (e *Engine) buildWrites(rec *record.Record, isNew bool, now time.Time) ([]store.TableWrite, error) {
	class := rec.ClassName()
	layout, err := e.schema.Layout(class)
	if err != nil {
		return nil, err
	}

	id := rec.ID()
	stamp := now.Format(field.DatetimeLayout)

	var writes []store.TableWrite
	if isNew {
		id = 0
		writes = append(writes, store.TableWrite{
			Table:   layout[0].Table,
			Command: store.Insert,
			Fields: map[string]any{
				schema.FieldClassName: class,
				schema.FieldCreated:   stamp,
			},
		})
	}

	for i, l := range layout {
		values := map[string]any{}
		for _, name := range l.Fields {
			switch name {
			case schema.FieldLastEdited:
				continue
			case schema.FieldClassName, schema.FieldCreated:
				if isNew {
					continue
				}
			}
			if !rec.IsChanged(name, record.Loose) {
				continue
			}
			if err := e.encodeField(class, name, rec.Get(name), values); err != nil {
				return nil, err
			}
		}

		switch {
		case i == 0:
			values[schema.FieldLastEdited] = stamp
			writes = append(writes, store.TableWrite{Table: l.Table, Command: store.Update, ID: id, Fields: values})
		case isNew:
			writes = append(writes, store.TableWrite{Table: l.Table, Command: store.Insert, Fields: values})
		case len(values) > 0:
			writes = append(writes, store.TableWrite{Table: l.Table, Command: store.Update, ID: id, Fields: values})
		}
	}
	return writes, nil
}

func (e *Engine) encodeField(class, name string, value any, into map[string]any) error {
	typ, _ := e.schema.FieldType(class, name)
	codec, err := e.codecs.Lookup(typ)
	if err != nil {
		return errors.Wrapf(err, "%s.%s", class, name)
	}
	if composite, ok := codec.(field.Composite); ok {
		cols, err := composite.EncodeColumns(name, value)
		if err != nil {
			return errors.Wrapf(err, "encode %s.%s", class, name)
		}
		for k, v := range cols {
			into[k] = v
		}
		return nil
	}
	encoded, err := codec.Encode(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s.%s", class, name)
	}
	into[name] = encoded
	return nil
}

// Delete removes the record's row from every ancestor table, zeroes its
// identity and marks it destroyed.
func (e *Engine) Delete(ctx context.Context, rec *record.Record) error {
	if rec.IsDestroyed() {
		return errors.WithStack(errors.ErrRecordDestroyed)
	}
	if !rec.Exists() {
		return errors.Newf("delete %s: record was never persisted", rec.ClassName())
	}

	class := rec.ClassName()
	tables, err := e.schema.Tables(class)
	if err != nil {
		return err
	}

	id := rec.ID()
	writes := make([]store.TableWrite, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		writes = append(writes, store.TableWrite{Table: tables[i], Command: store.Delete, ID: id})
	}
	if _, err := e.exec.Manipulate(ctx, writes); err != nil {
		return errors.Wrapf(err, "delete %s", rec)
	}

	e.invalidateAncestry(class)
	e.logger.Info("deleted", zap.String("class", class), zap.Int64("id", id))
	rec.Destroy()
	return nil
}
