package schema

// RelationKind identifies the variant of a RelationDescriptor.
type RelationKind int

const (
	// OneToOne is a has_one: the owner holds a <Name>ID column.
	OneToOne RelationKind = iota + 1

	// OneToMany is a has_many: the target holds the join column.
	OneToMany

	// ManyToMany is the declaring side of a junction-table relation.
	ManyToMany

	// BelongsManyMany is the inverse side of a ManyToMany declared on the target.
	BelongsManyMany
)

// String returns the declaration keyword for the kind.
func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "has_one"
	case OneToMany:
		return "has_many"
	case ManyToMany:
		return "many_many"
	case BelongsManyMany:
		return "belongs_many_many"
	default:
		return "unknown"
	}
}

// RelationDescriptor is a fully resolved relation.
//
// Field usage per kind:
//
//	OneToOne:        ForeignKey is the owner's column (<Name>ID)
//	OneToMany:       ForeignKey is the target's join column
//	ManyToMany,
//	BelongsManyMany: Junction, LocalKey (points at the owner),
//	                 RemoteKey (points at the component), Extra
type RelationDescriptor struct {
	Kind  RelationKind `json:"kind"`
	Name  string       `json:"name"`
	Owner string       `json:"owner"`

	// DeclaredOn is the ancestor of Owner that carries the declaration.
	DeclaredOn string `json:"declared_on"`
	Target     string `json:"target"`

	ForeignKey string            `json:"foreign_key,omitempty"`
	Junction   string            `json:"junction,omitempty"`
	LocalKey   string            `json:"local_key,omitempty"`
	RemoteKey  string            `json:"remote_key,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`

	// Inferred is set when a has_many fell back to DefaultParentField.
	Inferred bool `json:"inferred,omitempty"`
}

// IsManyMany reports whether the relation is backed by a junction table.
func (d RelationDescriptor) IsManyMany() bool {
	return d.Kind == ManyToMany || d.Kind == BelongsManyMany
}

// ManyManyKeys derives the junction key columns for a many_many declared on
// declaringClass pointing at target. The target key becomes ChildID when the
// relation is self-referencing.
func ManyManyKeys(declaringClass, target string) (parentKey, childKey string) {
	parentKey = declaringClass + FieldID
	if declaringClass == target {
		return parentKey, "Child" + FieldID
	}
	return parentKey, target + FieldID
}

// JunctionTable names the junction table for a many_many declaration.
func JunctionTable(declaringClass, relation string) string {
	return declaringClass + "_" + relation
}
