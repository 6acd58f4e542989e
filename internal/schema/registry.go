package schema

import (
	"sort"
	"sync"

	"github.com/roach88/lineage/internal/errors"
)

// TableLayout lists the fields whose storage lives in one table.
type TableLayout struct {
	Table  string
	Fields []string // sorted
}

// manyManyEntry remembers which ancestor declared a many_many, since the
// junction table is named after the declaring class.
type manyManyEntry struct {
	decl       ManyManyDecl
	declaredOn string
}

// resolved holds the memoized per-class views.
type resolved struct {
	ancestry  []*ClassDescriptor
	fields    map[string]string
	storage   map[string]string // field -> table
	layout    []TableLayout
	defaults  map[string]any
	hasOne    map[string]string
	hasOneOn  map[string]string // relation -> declaring class
	hasMany   map[string]HasManyDecl
	hasManyOn map[string]string
	manyMany  map[string]manyManyEntry
	belongs   map[string]BelongsManyManyDecl
	belongsOn map[string]string
	relations map[string]RelationDescriptor
}

// Registry resolves declared classes. Safe for concurrent use.
//
// Per-class results are memoized for the lifetime of the registry and only
// discarded by Reload.
type Registry struct {
	mu       sync.RWMutex
	root     string
	classes  map[string]*ClassDescriptor
	children map[string][]string
	memo     map[string]*resolved
}

// Option configures a Registry.
type Option func(*Registry)

// WithRootClass overrides the name of the common root class.
func WithRootClass(name string) Option {
	return func(r *Registry) {
		r.root = name
	}
}

// NewRegistry creates a registry holding only the root class.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{root: DefaultRootClass}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.classes = map[string]*ClassDescriptor{
		r.root: {
			Name: r.root,
			DB: map[string]string{
				FieldClassName:  "Varchar",
				FieldCreated:    "Datetime",
				FieldLastEdited: "Datetime",
			},
		},
	}
	r.children = make(map[string][]string)
	r.memo = make(map[string]*resolved)
}

// Root returns the name of the common root class.
func (r *Registry) Root() string {
	return r.root
}

// Register adds class declarations. Declarations may arrive in any order;
// parents are resolved lazily. Register all classes before resolving any of
// them: memoized results are not recomputed until Reload.
func (r *Registry) Register(decls ...ClassDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(decls)
}

// Reload discards every declaration and memoized result, then registers decls.
func (r *Registry) Reload(decls ...ClassDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	return r.register(decls)
}

func (r *Registry) register(decls []ClassDescriptor) error {
	for i := range decls {
		d := decls[i].clone()
		if d.Name == "" {
			return errors.NewConfigError(errors.ErrCodeInvalidDeclaration, "", "", "class declaration without a name")
		}
		if _, exists := r.classes[d.Name]; exists {
			return errors.NewConfigError(errors.ErrCodeInvalidDeclaration, d.Name, "", "class declared twice")
		}
		if d.Extends == "" {
			d.Extends = r.root
		}
		if d.Extends == d.Name {
			return errors.NewConfigError(errors.ErrCodeInvalidDeclaration, d.Name, "", "class extends itself")
		}
		r.classes[d.Name] = d
		r.children[d.Extends] = append(r.children[d.Extends], d.Name)
		sort.Strings(r.children[d.Extends])
	}
	return nil
}

// Class returns the declaration for name.
func (r *Registry) Class(name string) (*ClassDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Has reports whether name is a declared class.
func (r *Registry) Has(name string) bool {
	_, ok := r.Class(name)
	return ok
}

// Classes returns all declared class names except the root, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		if name != r.root {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// resolve returns the memoized view for class, computing it on first use.
func (r *Registry) resolve(class string) (*resolved, error) {
	r.mu.RLock()
	res, ok := r.memo[class]
	r.mu.RUnlock()
	if ok {
		return res, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.memo[class]; ok {
		return res, nil
	}
	res, err := r.build(class)
	if err != nil {
		return nil, err
	}
	r.memo[class] = res
	return res, nil
}

// build computes the merged view. Caller holds the write lock.
func (r *Registry) build(class string) (*resolved, error) {
	ancestry, err := r.ancestryLocked(class)
	if err != nil {
		return nil, err
	}

	res := &resolved{
		ancestry:  ancestry,
		fields:    make(map[string]string),
		storage:   make(map[string]string),
		defaults:  make(map[string]any),
		hasOne:    make(map[string]string),
		hasOneOn:  make(map[string]string),
		hasMany:   make(map[string]HasManyDecl),
		hasManyOn: make(map[string]string),
		manyMany:  make(map[string]manyManyEntry),
		belongs:   make(map[string]BelongsManyManyDecl),
		belongsOn: make(map[string]string),
		relations: make(map[string]RelationDescriptor),
	}

	baseTable := ""
	if len(ancestry) > 1 {
		baseTable = ancestry[1].Name
	}

	for _, c := range ancestry {
		table := ""
		switch {
		case c.Name == r.root:
			table = baseTable
		case r.ownsTable(c):
			table = c.Name
		}

		for name, typ := range c.DB {
			res.fields[name] = typ
			if _, stored := res.storage[name]; !stored && table != "" {
				res.storage[name] = table
			}
		}
		for name, target := range c.HasOne {
			fk := name + FieldID
			res.fields[fk] = "ForeignKey"
			if _, stored := res.storage[fk]; !stored && table != "" {
				res.storage[fk] = table
			}
			res.hasOne[name] = target
			res.hasOneOn[name] = c.Name
		}
		for name, decl := range c.HasMany {
			res.hasMany[name] = decl
			res.hasManyOn[name] = c.Name
		}
		for name, decl := range c.ManyMany {
			res.manyMany[name] = manyManyEntry{decl: decl, declaredOn: c.Name}
		}
		for name, decl := range c.BelongsManyMany {
			res.belongs[name] = decl
			res.belongsOn[name] = c.Name
		}
		for name, v := range c.Defaults {
			res.defaults[name] = v
		}
	}

	if baseTable != "" {
		res.storage[FieldID] = baseTable
	}

	byTable := make(map[string][]string)
	for field, table := range res.storage {
		if field == FieldID {
			continue
		}
		byTable[table] = append(byTable[table], field)
	}
	for _, c := range ancestry {
		if c.Name == r.root || !r.ownsTable(c) {
			continue
		}
		fields := byTable[c.Name]
		sort.Strings(fields)
		res.layout = append(res.layout, TableLayout{Table: c.Name, Fields: fields})
	}

	return res, nil
}

// ownsTable decides whether a non-root class has its own table.
func (r *Registry) ownsTable(c *ClassDescriptor) bool {
	if c.Name == r.root {
		return false
	}
	if c.Extends == r.root {
		return true
	}
	return c.Table || len(c.DB) > 0 || len(c.HasOne) > 0
}

// ancestryLocked walks Extends up to the root. Caller holds a lock.
func (r *Registry) ancestryLocked(class string) ([]*ClassDescriptor, error) {
	var chain []*ClassDescriptor
	seen := make(map[string]bool)
	name := class
	for {
		c, ok := r.classes[name]
		if !ok {
			if name == class {
				return nil, errors.NewConfigError(errors.ErrCodeUnknownClass, class, "", "class is not declared")
			}
			return nil, errors.NewConfigError(errors.ErrCodeUnknownClass, class, "", "ancestor %q is not declared", name)
		}
		if seen[name] {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidDeclaration, class, "", "inheritance cycle through %q", name)
		}
		seen[name] = true
		chain = append(chain, c)
		if name == r.root {
			break
		}
		name = c.Extends
	}

	// Reverse to root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Ancestry returns the class and its ancestors, root first.
func (r *Registry) Ancestry(class string) ([]*ClassDescriptor, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	return res.ancestry, nil
}

// AncestryNames returns Ancestry as class names, root first.
func (r *Registry) AncestryNames(class string) ([]string, error) {
	ancestry, err := r.Ancestry(class)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ancestry))
	for i, c := range ancestry {
		names[i] = c.Name
	}
	return names, nil
}

// Fields returns the merged field map (name -> type tag), including the root
// bookkeeping fields and has_one foreign keys. The returned map must not be
// modified.
//
// A subclass that re-declares an inherited field overrides its type tag
// only. The column stays in the ancestor's table; see FieldTable.
func (r *Registry) Fields(class string) (map[string]string, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	return res.fields, nil
}

// FieldType returns the type tag of one merged field.
func (r *Registry) FieldType(class, field string) (string, bool) {
	res, err := r.resolve(class)
	if err != nil {
		return "", false
	}
	typ, ok := res.fields[field]
	return typ, ok
}

// FieldTable returns the table storing field for class. Fields are stored in
// the table of the least-derived ancestor declaring them, so a re-declaration
// further down never moves or duplicates the column.
func (r *Registry) FieldTable(class, field string) (string, bool) {
	res, err := r.resolve(class)
	if err != nil {
		return "", false
	}
	table, ok := res.storage[field]
	return table, ok
}

// Layout returns the per-table storage layout, root-first. A hierarchy with
// no table is a configuration error.
func (r *Registry) Layout(class string) ([]TableLayout, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	if len(res.layout) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeMissingTable, class, "", "no table exists for this hierarchy")
	}
	return res.layout, nil
}

// Tables returns the ancestor tables of class, root first.
func (r *Registry) Tables(class string) ([]string, error) {
	layout, err := r.Layout(class)
	if err != nil {
		return nil, err
	}
	tables := make([]string, len(layout))
	for i, l := range layout {
		tables[i] = l.Table
	}
	return tables, nil
}

// BaseClass returns the least-derived class below the root, which owns the
// base table.
func (r *Registry) BaseClass(class string) (string, error) {
	res, err := r.resolve(class)
	if err != nil {
		return "", err
	}
	if len(res.ancestry) < 2 {
		return "", errors.NewConfigError(errors.ErrCodeMissingTable, class, "", "the root class has no base table")
	}
	return res.ancestry[1].Name, nil
}

// BaseTable returns the table holding identity and bookkeeping columns.
func (r *Registry) BaseTable(class string) (string, error) {
	layout, err := r.Layout(class)
	if err != nil {
		return "", err
	}
	return layout[0].Table, nil
}

// Defaults returns the merged default values, leaf wins.
func (r *Registry) Defaults(class string) (map[string]any, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	return res.defaults, nil
}

// Subclasses returns class followed by every descendant, in depth-first
// order with siblings sorted by name.
func (r *Registry) Subclasses(class string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	var walk func(name string)
	walk = func(name string) {
		out = append(out, name)
		for _, child := range r.children[name] {
			walk(child)
		}
	}
	walk(class)
	return out
}

// IsA reports whether class equals ancestor or descends from it.
func (r *Registry) IsA(class, ancestor string) bool {
	names, err := r.AncestryNames(class)
	if err != nil {
		return false
	}
	for _, n := range names {
		if n == ancestor {
			return true
		}
	}
	return false
}

// HasOne returns the merged has_one map (relation -> target class).
func (r *Registry) HasOne(class string) (map[string]string, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	return res.hasOne, nil
}

// HasOneTarget looks up a single has_one. ok is false when not declared.
func (r *Registry) HasOneTarget(class, name string) (target string, ok bool) {
	res, err := r.resolve(class)
	if err != nil {
		return "", false
	}
	target, ok = res.hasOne[name]
	return target, ok
}

// HasMany returns the merged has_many map.
func (r *Registry) HasMany(class string) (map[string]HasManyDecl, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	return res.hasMany, nil
}

// HasManyDecl looks up a single has_many. ok is false when not declared.
func (r *Registry) HasManyDecl(class, name string) (decl HasManyDecl, ok bool) {
	res, err := r.resolve(class)
	if err != nil {
		return HasManyDecl{}, false
	}
	decl, ok = res.hasMany[name]
	return decl, ok
}

// ManyMany returns the merged many_many map.
func (r *Registry) ManyMany(class string) (map[string]ManyManyDecl, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ManyManyDecl, len(res.manyMany))
	for name, e := range res.manyMany {
		out[name] = e.decl
	}
	return out, nil
}

// ManyManyDecl looks up a single many_many. ok is false when not declared.
func (r *Registry) ManyManyDecl(class, name string) (decl ManyManyDecl, ok bool) {
	res, err := r.resolve(class)
	if err != nil {
		return ManyManyDecl{}, false
	}
	e, ok := res.manyMany[name]
	return e.decl, ok
}

// BelongsManyMany returns the merged belongs_many_many map.
func (r *Registry) BelongsManyMany(class string) (map[string]BelongsManyManyDecl, error) {
	res, err := r.resolve(class)
	if err != nil {
		return nil, err
	}
	return res.belongs, nil
}

// BelongsManyManyDecl looks up a single belongs_many_many.
func (r *Registry) BelongsManyManyDecl(class, name string) (decl BelongsManyManyDecl, ok bool) {
	res, err := r.resolve(class)
	if err != nil {
		return BelongsManyManyDecl{}, false
	}
	decl, ok = res.belongs[name]
	return decl, ok
}
