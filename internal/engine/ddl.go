package engine

import (
	"sort"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/schema"
	"github.com/roach88/lineage/internal/store"
)

// TableDefs derives the tables of every registered class and every
// many-many junction, in a stable order: class tables by class name, then
// junction tables by name.
func TableDefs(reg *schema.Registry, codecs *field.Registry) ([]store.TableDef, error) {
	var defs []store.TableDef
	junctions := map[string]store.TableDef{}

	for _, class := range reg.Classes() {
		layout, err := reg.Layout(class)
		if err != nil {
			if errors.ConfigCode(err) == errors.ErrCodeMissingTable {
				continue
			}
			return nil, err
		}

		for i, l := range layout {
			if l.Table != class {
				continue
			}
			def := store.TableDef{Name: class, AutoIncrement: i == 0}
			for _, name := range l.Fields {
				typ, _ := reg.FieldType(class, name)
				cols, err := columnsFor(codecs, name, typ)
				if err != nil {
					return nil, errors.Wrapf(err, "%s.%s", class, name)
				}
				def.Columns = append(def.Columns, cols...)
				if name == schema.FieldClassName || typ == "ForeignKey" {
					def.Indexes = append(def.Indexes, []string{name})
				}
			}
			defs = append(defs, def)
		}

		rels, err := reg.Relations(class)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			if rel.Kind != schema.ManyToMany || rel.DeclaredOn != class {
				continue
			}
			if _, done := junctions[rel.Junction]; done {
				continue
			}
			def := store.TableDef{
				Name:          rel.Junction,
				AutoIncrement: true,
				Columns: []store.ColumnDef{
					{Name: rel.LocalKey, Type: "INTEGER NOT NULL DEFAULT 0"},
					{Name: rel.RemoteKey, Type: "INTEGER NOT NULL DEFAULT 0"},
				},
				Indexes: [][]string{{rel.LocalKey}, {rel.RemoteKey}},
			}
			for _, name := range sortedKeys(rel.Extra) {
				cols, err := columnsFor(codecs, name, rel.Extra[name])
				if err != nil {
					return nil, errors.Wrapf(err, "%s.%s", rel.Junction, name)
				}
				def.Columns = append(def.Columns, cols...)
			}
			junctions[rel.Junction] = def
		}
	}

	names := make([]string, 0, len(junctions))
	for n := range junctions {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		defs = append(defs, junctions[n])
	}
	return defs, nil
}

func columnsFor(codecs *field.Registry, name, typ string) ([]store.ColumnDef, error) {
	codec, err := codecs.Lookup(typ)
	if err != nil {
		return nil, err
	}
	if composite, ok := codec.(field.Composite); ok {
		var cols []store.ColumnDef
		for _, c := range composite.Columns(name) {
			cols = append(cols, store.ColumnDef{Name: c.Name, Type: c.Type})
		}
		return cols, nil
	}
	return []store.ColumnDef{{Name: name, Type: codec.ColumnType()}}, nil
}
