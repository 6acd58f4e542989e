package schema

import (
	"sort"

	"github.com/roach88/lineage/internal/errors"
)

// Relation resolves a declared relation of any kind. Kinds are tried in the
// order has_one, has_many, many_many, belongs_many_many. An undeclared name
// is a configuration error; use the per-kind lookups to probe without one.
func (r *Registry) Relation(class, name string) (RelationDescriptor, error) {
	res, err := r.resolve(class)
	if err != nil {
		return RelationDescriptor{}, err
	}

	r.mu.RLock()
	desc, ok := res.relations[name]
	r.mu.RUnlock()
	if ok {
		return desc, nil
	}

	switch {
	case res.hasOne[name] != "":
		desc, err = r.resolveHasOne(class, name, res)
	case res.hasMany[name].Class != "":
		desc, err = r.resolveHasMany(class, name, res)
	case res.manyMany[name].decl.Class != "":
		desc, err = r.resolveManyMany(class, name, res)
	case res.belongs[name].Class != "":
		desc, err = r.resolveBelongsManyMany(class, name, res)
	default:
		return RelationDescriptor{}, errors.NewConfigError(errors.ErrCodeUnknownRelation, class, name, "relation is not declared")
	}
	if err != nil {
		return RelationDescriptor{}, err
	}

	r.mu.Lock()
	res.relations[name] = desc
	r.mu.Unlock()
	return desc, nil
}

// Relations resolves every relation declared on class and its ancestors,
// sorted by name.
func (r *Registry) Relations(class string) ([]RelationDescriptor, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	var names []string
	for n := range res.hasOne {
		names = append(names, n)
	}
	for n := range res.hasMany {
		names = append(names, n)
	}
	for n := range res.manyMany {
		names = append(names, n)
	}
	for n := range res.belongs {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]RelationDescriptor, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		desc, err := r.Relation(class, n)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

func (r *Registry) requireClass(owner, relation, target string) error {
	if !r.Has(target) {
		return errors.NewConfigError(errors.ErrCodeUnknownClass, owner, relation, "target class %q is not declared", target)
	}
	return nil
}

func (r *Registry) resolveHasOne(class, name string, res *resolved) (RelationDescriptor, error) {
	target := res.hasOne[name]
	if err := r.requireClass(class, name, target); err != nil {
		return RelationDescriptor{}, err
	}
	return RelationDescriptor{
		Kind:       OneToOne,
		Name:       name,
		Owner:      class,
		DeclaredOn: res.hasOneOn[name],
		Target:     target,
		ForeignKey: name + FieldID,
	}, nil
}

func (r *Registry) resolveHasMany(class, name string, res *resolved) (RelationDescriptor, error) {
	decl := res.hasMany[name]
	if err := r.requireClass(class, name, decl.Class); err != nil {
		return RelationDescriptor{}, err
	}
	desc := RelationDescriptor{
		Kind:       OneToMany,
		Name:       name,
		Owner:      class,
		DeclaredOn: res.hasManyOn[name],
		Target:     decl.Class,
	}

	if decl.Inverse != "" {
		back, ok := r.HasOneTarget(decl.Class, decl.Inverse)
		if !ok {
			return RelationDescriptor{}, errors.NewConfigError(errors.ErrCodeUnresolvedInverse, class, name,
				"%s declares no has_one %q", decl.Class, decl.Inverse)
		}
		if !r.IsA(class, back) {
			return RelationDescriptor{}, errors.NewConfigError(errors.ErrCodeUnresolvedInverse, class, name,
				"%s.%s points at %s, not at %s", decl.Class, decl.Inverse, back, class)
		}
		desc.ForeignKey = decl.Inverse + FieldID
		return desc, nil
	}

	if fk, ok := r.reverseHasOne(class, decl.Class); ok {
		desc.ForeignKey = fk
		return desc, nil
	}

	desc.ForeignKey = DefaultParentField
	desc.Inferred = true
	return desc, nil
}

// reverseHasOne scans the target's ancestry from most- to least-derived for
// a has_one whose target is owner or one of its ancestors.
func (r *Registry) reverseHasOne(owner, target string) (string, bool) {
	ancestry, err := r.Ancestry(target)
	if err != nil {
		return "", false
	}
	for i := len(ancestry) - 1; i >= 0; i-- {
		c := ancestry[i]
		names := make([]string, 0, len(c.HasOne))
		for n := range c.HasOne {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if r.IsA(owner, c.HasOne[n]) {
				return n + FieldID, true
			}
		}
	}
	return "", false
}

func (r *Registry) resolveManyMany(class, name string, res *resolved) (RelationDescriptor, error) {
	entry := res.manyMany[name]
	if err := r.requireClass(class, name, entry.decl.Class); err != nil {
		return RelationDescriptor{}, err
	}
	parentKey, childKey := ManyManyKeys(entry.declaredOn, entry.decl.Class)
	return RelationDescriptor{
		Kind:       ManyToMany,
		Name:       name,
		Owner:      class,
		DeclaredOn: entry.declaredOn,
		Target:     entry.decl.Class,
		Junction:   JunctionTable(entry.declaredOn, name),
		LocalKey:   parentKey,
		RemoteKey:  childKey,
		Extra:      copyStrings(entry.decl.Extra),
	}, nil
}

// resolveBelongsManyMany finds the many_many on the target that this
// relation is the inverse of. Exactly one candidate must exist.
func (r *Registry) resolveBelongsManyMany(class, name string, res *resolved) (RelationDescriptor, error) {
	decl := res.belongs[name]
	if err := r.requireClass(class, name, decl.Class); err != nil {
		return RelationDescriptor{}, err
	}
	targetRes, err := r.resolve(decl.Class)
	if err != nil {
		return RelationDescriptor{}, err
	}

	var candidates []string
	if decl.Inverse != "" {
		entry, ok := targetRes.manyMany[decl.Inverse]
		if !ok || !r.IsA(class, entry.decl.Class) {
			return RelationDescriptor{}, errors.NewConfigError(errors.ErrCodeUnresolvedInverse, class, name,
				"%s declares no many_many %q pointing at %s", decl.Class, decl.Inverse, class)
		}
		candidates = []string{decl.Inverse}
	} else {
		for n, entry := range targetRes.manyMany {
			if r.IsA(class, entry.decl.Class) {
				candidates = append(candidates, n)
			}
		}
		sort.Strings(candidates)
	}

	switch len(candidates) {
	case 0:
		return RelationDescriptor{}, errors.WithHintf(
			errors.NewConfigError(errors.ErrCodeUnresolvedInverse, class, name,
				"%s declares no many_many pointing at %s", decl.Class, class),
			"declare a many_many on %s or set inverse on the belongs_many_many", decl.Class)
	case 1:
	default:
		return RelationDescriptor{}, errors.WithHint(
			errors.NewConfigError(errors.ErrCodeAmbiguousInverse, class, name,
				"%s declares several many_many relations pointing at %s: %v", decl.Class, class, candidates),
			"set inverse on the belongs_many_many declaration")
	}

	inverse := targetRes.manyMany[candidates[0]]
	parentKey, childKey := ManyManyKeys(inverse.declaredOn, inverse.decl.Class)
	return RelationDescriptor{
		Kind:       BelongsManyMany,
		Name:       name,
		Owner:      class,
		DeclaredOn: res.belongsOn[name],
		Target:     decl.Class,
		Junction:   JunctionTable(inverse.declaredOn, candidates[0]),
		LocalKey:   childKey,
		RemoteKey:  parentKey,
		Extra:      copyStrings(inverse.decl.Extra),
	}, nil
}
