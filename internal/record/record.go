package record

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/roach88/lineage/internal/cache"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/schema"
)

// Severity classifies a field change.
type Severity int

const (
	// Unchanged means the field was not touched since the last write.
	Unchanged Severity = iota
	// Loose means the new value differs only in representation.
	Loose
	// Strict means the new value differs.
	Strict
)

func (s Severity) String() string {
	switch s {
	case Loose:
		return "loose"
	case Strict:
		return "strict"
	default:
		return "unchanged"
	}
}

// Record is one logical entity spread across its class's ancestor tables.
//
// Get and Set panic on a destroyed record. Records are not safe for
// concurrent mutation.
type Record struct {
	class      string
	values     map[string]any
	original   map[string]any
	changed    map[string]Severity
	destroyed  bool
	components *cache.Components
}

// New constructs an unsaved record. Declared defaults are applied and, when
// there are any, every held field is marked changed.
func New(class string, defaults map[string]any) *Record {
	r := &Record{
		class:      class,
		values:     map[string]any{schema.FieldID: int64(0), schema.FieldClassName: class},
		original:   map[string]any{},
		changed:    map[string]Severity{},
		components: cache.NewComponents(),
	}
	for k, v := range defaults {
		r.values[k] = v
	}
	if len(defaults) > 0 {
		r.ForceAllChanged()
	}
	return r
}

// Hydrate builds a record from a stored row. The row becomes the original
// snapshot and nothing is marked changed.
func Hydrate(class string, row map[string]any) *Record {
	values := maps.Clone(row)
	if values == nil {
		values = map[string]any{}
	}
	return &Record{
		class:      class,
		values:     values,
		original:   snapshot(values),
		changed:    map[string]Severity{},
		components: cache.NewComponents(),
	}
}

func (r *Record) mustLive(op string) {
	if r.destroyed {
		panic(fmt.Sprintf("record: %s on destroyed %s", op, r.class))
	}
}

// Get returns the current value of a field, or nil.
func (r *Record) Get(name string) any {
	r.mustLive("Get")
	return r.values[name]
}

// Has reports whether the field holds a value.
func (r *Record) Has(name string) bool {
	r.mustLive("Has")
	_, ok := r.values[name]
	return ok
}

// Set assigns a field. Assigning the identical value is a no-op. A value
// that is only loosely equal records Loose, anything else Strict. A
// recorded Strict is never downgraded.
//
// Setting a foreign key field <rel>ID drops the cached <rel> component.
func (r *Record) Set(name string, value any) {
	r.mustLive("Set")

	old := r.values[name]
	if identical(old, value) {
		return
	}

	sev := Strict
	if looseEqual(old, value) {
		sev = Loose
	}
	if r.changed[name] < sev {
		r.changed[name] = sev
	}
	r.values[name] = value

	if rel, ok := strings.CutSuffix(name, "ID"); ok && rel != "" {
		r.components.InvalidateRelation(rel)
	}
}

// IsChanged reports whether name changed at minSeverity or above.
// A minSeverity below Loose is treated as Loose.
func (r *Record) IsChanged(name string, minSeverity Severity) bool {
	return r.changed[name] >= max(minSeverity, Loose)
}

// Severity returns the recorded change severity of a field.
func (r *Record) Severity(name string) Severity {
	return r.changed[name]
}

// ChangedFields returns the fields changed at minSeverity or above, sorted.
func (r *Record) ChangedFields(minSeverity Severity) []string {
	floor := max(minSeverity, Loose)
	var out []string
	for name, sev := range r.changed {
		if sev >= floor {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// MarkChanged records a change without assigning a value.
func (r *Record) MarkChanged(name string, sev Severity) {
	if r.changed[name] < sev {
		r.changed[name] = sev
	}
}

// ForceAllChanged marks every held field as Strict changed.
func (r *Record) ForceAllChanged() {
	for name := range r.values {
		r.changed[name] = Strict
	}
}

// ID returns the identity, 0 when unsaved.
func (r *Record) ID() int64 {
	id, err := field.ToInt64(r.values[schema.FieldID])
	if err != nil {
		return 0
	}
	return id
}

// Exists reports whether the record has a persisted identity.
func (r *Record) Exists() bool {
	return r.ID() > 0
}

// ClassName is the concrete class the record was built as.
func (r *Record) ClassName() string {
	return r.class
}

// Values returns a copy of the current values.
func (r *Record) Values() map[string]any {
	return maps.Clone(r.values)
}

// Original returns a copy of the last persisted values.
func (r *Record) Original() map[string]any {
	return snapshot(r.original)
}

// Components returns the record's component cache.
func (r *Record) Components() *cache.Components {
	return r.components
}

// Duplicate returns an unsaved copy with every field marked changed.
// Identity and timestamps are not copied.
func (r *Record) Duplicate() *Record {
	r.mustLive("Duplicate")
	d := New(r.class, nil)
	for k, v := range r.values {
		switch k {
		case schema.FieldID, schema.FieldCreated, schema.FieldLastEdited:
			continue
		}
		d.values[k] = copyValue(v)
	}
	d.ForceAllChanged()
	return d
}

// MarkWritten records a successful write under id: the current values
// become the original snapshot and the change set is cleared.
func (r *Record) MarkWritten(id int64) {
	r.values[schema.FieldID] = id
	for _, v := range r.values {
		if t, ok := v.(field.ChangeTracker); ok {
			t.ResetChanged()
		}
	}
	r.original = snapshot(r.values)
	r.changed = map[string]Severity{}
}

// snapshot copies values so that in-place mutation of a composite does not
// reach the copy.
func snapshot(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	if m, ok := v.(*field.Money); ok {
		return m.Clone()
	}
	return v
}

// Destroy zeroes the identity and marks the record gone.
func (r *Record) Destroy() {
	r.values[schema.FieldID] = int64(0)
	r.destroyed = true
	r.components.Clear()
}

// IsDestroyed reports whether Destroy was called.
func (r *Record) IsDestroyed() bool {
	return r.destroyed
}

func (r *Record) String() string {
	return fmt.Sprintf("%s#%d", r.class, r.ID())
}
