package field

import (
	"sort"
	"strings"
	"sync"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/queryir"
)

// Codec converts between a field's in-memory value and its stored form.
type Codec interface {
	// Decode converts a raw column value into the field value.
	Decode(raw any) (any, error)
	// Encode converts a field value into a query parameter.
	Encode(value any) (any, error)
	// ColumnType is the SQLite column definition for the field.
	ColumnType() string
}

// Column is one physical column backing a composite field.
type Column struct {
	Name string
	Type string
}

// Composite is a Codec whose value spans several columns.
type Composite interface {
	Codec
	Columns(name string) []Column
	// ExpandQuery adds the field's columns to sel, reading from table.
	ExpandQuery(sel *queryir.Select, table, name string)
	EncodeColumns(name string, value any) (map[string]any, error)
	DecodeColumns(name string, row map[string]any) (any, error)
}

// ChangeTracker is implemented by mutable field values that can change
// without going through a record setter.
type ChangeTracker interface {
	IsChanged() bool
	ResetChanged()
}

// Factory builds a codec from the arguments of a type tag.
type Factory func(args []string) (Codec, error)

// Registry maps type tags to codecs.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	parsed    map[string]Codec
}

// NewRegistry returns a registry holding the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		parsed:    make(map[string]Codec),
	}
	r.Register("Int", noArgs(Int{}))
	r.Register("ForeignKey", noArgs(ForeignKey{}))
	r.Register("Boolean", noArgs(Boolean{}))
	r.Register("Decimal", newDecimal)
	r.Register("Varchar", newVarchar)
	r.Register("Text", noArgs(Text{}))
	r.Register("Enum", newEnum)
	r.Register("Datetime", noArgs(Datetime{}))
	r.Register("Date", noArgs(Date{}))
	r.Register("Money", noArgs(MoneyCodec{}))
	return r
}

// Register adds or replaces the factory for a type name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	for tag := range r.parsed {
		if n, _ := ParseTag(tag); n == name {
			delete(r.parsed, tag)
		}
	}
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the codec for a type tag.
func (r *Registry) Lookup(tag string) (Codec, error) {
	r.mu.RLock()
	c, ok := r.parsed[tag]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	name, args := ParseTag(tag)
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidDeclaration, "", "",
			"unknown field type %q", tag)
	}
	c, err := f(args)
	if err != nil {
		return nil, errors.Wrapf(err, "field type %q", tag)
	}
	r.parsed[tag] = c
	return c, nil
}

// IsComposite reports whether the tag names a composite codec.
func (r *Registry) IsComposite(tag string) bool {
	c, err := r.Lookup(tag)
	if err != nil {
		return false
	}
	_, ok := c.(Composite)
	return ok
}

// ParseTag splits "Name(a, b)" into its name and trimmed, unquoted arguments.
func ParseTag(tag string) (string, []string) {
	tag = strings.TrimSpace(tag)
	open := strings.IndexByte(tag, '(')
	if open < 0 || !strings.HasSuffix(tag, ")") {
		return tag, nil
	}
	name := strings.TrimSpace(tag[:open])
	inner := strings.TrimSpace(tag[open+1 : len(tag)-1])
	if inner == "" {
		return name, nil
	}
	var args []string
	for _, a := range strings.Split(inner, ",") {
		a = strings.TrimSpace(a)
		a = strings.Trim(a, `'"`)
		args = append(args, a)
	}
	return name, args
}

func noArgs(c Codec) Factory {
	return func(args []string) (Codec, error) {
		if len(args) > 0 {
			return nil, errors.Newf("takes no arguments, got %d", len(args))
		}
		return c, nil
	}
}
