// Package schema resolves class declarations into the shape the engine works
// with: ancestry, merged fields, per-table storage layout and relations.
//
// Classes form single-inheritance chains under one common root (DataObject
// by default). The root declares the bookkeeping fields (ClassName, Created,
// LastEdited) but owns no table; its fields live in the base table, owned by
// the least-derived class below the root. Every other class owns a table when
// it declares fields or has-one relations, or sets Table explicitly.
//
// Declarations are merged root-first and the most-derived declaration wins on
// a name collision. Results are memoized per class until Reload.
//
// Relation kinds:
//
//	OneToOne         has_one           FK column <Name>ID on the owner
//	OneToMany        has_many          join column on the target
//	ManyToMany       many_many         junction <DeclaringClass>_<Name>
//	BelongsManyMany  belongs_many_many inverse of a many_many on the target
package schema
