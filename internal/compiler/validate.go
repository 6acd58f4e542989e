package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/schema"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidName        = "E101" // class, field or relation name is not an identifier
	ErrUnknownParent      = "E102" // extends names an undeclared class
	ErrUnknownTarget      = "E103" // relation target is undeclared
	ErrInvalidFieldType   = "E104" // type tag has no codec
	ErrDuplicateName      = "E105" // class declared twice or name reused within a class
	ErrReservedField      = "E106" // bookkeeping column redeclared
	ErrUnresolvedRelation = "E107" // the registry rejected the hierarchy or a relation
	ErrInheritanceCycle   = "E108" // class is its own ancestor
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// identPattern matches names usable as SQL identifiers without quoting
// surprises.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reservedFields = map[string]bool{
	schema.FieldID:              true,
	schema.FieldClassName:       true,
	schema.FieldCreated:         true,
	schema.FieldLastEdited:      true,
	schema.FieldRecordClassName: true,
}

// Validate checks class declarations against each other and the codec
// registry. Returns all errors found (does not fail-fast), sorted by field.
//
// Structural checks run first. Only when they pass are the declarations
// loaded into a scratch registry rooted at root, so that relation and table
// resolution errors are reported too.
func Validate(decls []schema.ClassDescriptor, codecs *field.Registry, root string) []ValidationError {
	var errs []ValidationError

	declared := map[string]bool{root: true}
	for i, d := range decls {
		path := fmt.Sprintf("class[%d]", i)
		if d.Name != "" {
			path = "class." + d.Name
		}
		if !identPattern.MatchString(d.Name) {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("invalid class name %q", d.Name), Code: ErrInvalidName})
			continue
		}
		if declared[d.Name] {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("class %q declared more than once", d.Name), Code: ErrDuplicateName})
		}
		declared[d.Name] = true
	}

	for _, d := range decls {
		if !identPattern.MatchString(d.Name) {
			continue
		}
		errs = append(errs, validateClass(d, declared, codecs)...)
	}

	for _, w := range AnalyzeCycles(decls) {
		if w.Level != LevelError {
			continue
		}
		errs = append(errs, ValidationError{Field: "class." + w.Path[0] + ".extends", Message: w.Message, Code: ErrInheritanceCycle})
	}

	if len(errs) == 0 {
		errs = append(errs, validateResolution(decls, root)...)
	}

	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

func validateClass(d schema.ClassDescriptor, declared map[string]bool, codecs *field.Registry) []ValidationError {
	var errs []ValidationError
	prefix := "class." + d.Name

	if d.Extends != "" && !declared[d.Extends] {
		errs = append(errs, ValidationError{
			Field:   prefix + ".extends",
			Message: fmt.Sprintf("parent class %q is not declared", d.Extends),
			Code:    ErrUnknownParent,
		})
	}

	columns := map[string]string{} // column -> declaring entry
	for _, name := range sortedKeys(d.DB) {
		path := prefix + ".db." + name
		switch {
		case !identPattern.MatchString(name):
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("invalid field name %q", name), Code: ErrInvalidName})
			continue
		case reservedFields[name]:
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("%s is a bookkeeping column", name), Code: ErrReservedField})
			continue
		}
		if _, err := codecs.Lookup(d.DB[name]); err != nil {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("invalid type %q for field %q", d.DB[name], name), Code: ErrInvalidFieldType})
		}
		columns[name] = path
	}

	relations := map[string]string{} // relation -> kind
	addRelation := func(kind, name, target string) {
		path := fmt.Sprintf("%s.%s.%s", prefix, kind, name)
		if !identPattern.MatchString(name) {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("invalid relation name %q", name), Code: ErrInvalidName})
			return
		}
		if other, ok := relations[name]; ok {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("relation %q is also declared as %s", name, other), Code: ErrDuplicateName})
		}
		relations[name] = kind
		if !declared[target] {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("target class %q is not declared", target), Code: ErrUnknownTarget})
		}
	}

	for _, name := range sortedKeys(d.HasOne) {
		addRelation("has_one", name, d.HasOne[name])
		fk := name + schema.FieldID
		if other, ok := columns[fk]; ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.has_one.%s", prefix, name),
				Message: fmt.Sprintf("foreign key %s collides with %s", fk, other),
				Code:    ErrDuplicateName,
			})
		}
	}
	for _, name := range sortedKeys(d.HasMany) {
		addRelation("has_many", name, d.HasMany[name].Class)
	}
	for _, name := range sortedKeys(d.ManyMany) {
		decl := d.ManyMany[name]
		addRelation("many_many", name, decl.Class)
		for _, col := range sortedKeys(decl.Extra) {
			path := fmt.Sprintf("%s.many_many.%s.extra.%s", prefix, name, col)
			if !identPattern.MatchString(col) {
				errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("invalid column name %q", col), Code: ErrInvalidName})
				continue
			}
			codec, err := codecs.Lookup(decl.Extra[col])
			if err != nil {
				errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("invalid type %q for column %q", decl.Extra[col], col), Code: ErrInvalidFieldType})
				continue
			}
			if _, composite := codec.(field.Composite); composite {
				errs = append(errs, ValidationError{Field: path, Message: "junction columns cannot be composite", Code: ErrInvalidFieldType})
			}
		}
	}
	for _, name := range sortedKeys(d.BelongsManyMany) {
		addRelation("belongs_many_many", name, d.BelongsManyMany[name].Class)
	}
	return errs
}

// validateResolution registers decls and resolves every class's layout and
// relations.
func validateResolution(decls []schema.ClassDescriptor, root string) []ValidationError {
	reg := schema.NewRegistry(schema.WithRootClass(root))
	if err := reg.Register(decls...); err != nil {
		return []ValidationError{resolutionError("class", err)}
	}

	var errs []ValidationError
	for _, class := range reg.Classes() {
		if _, err := reg.Layout(class); err != nil {
			errs = append(errs, resolutionError("class."+class, err))
			continue
		}
		rels, err := reg.Relations(class)
		if err != nil {
			path := "class." + class
			var cfg *errors.ConfigError
			if errors.As(err, &cfg) && cfg.Relation != "" {
				path += "." + cfg.Relation
			}
			errs = append(errs, resolutionError(path, err))
			continue
		}
		for _, rel := range rels {
			if rel.Kind != schema.OneToMany || rel.DeclaredOn != class {
				continue
			}
			if _, ok := reg.FieldTable(rel.Target, rel.ForeignKey); !ok {
				msg := fmt.Sprintf("join column %s is not a field of %s; declare has_one on %s pointing at %s",
					rel.ForeignKey, rel.Target, rel.Target, class)
				errs = append(errs, ValidationError{
					Field:   "class." + class + ".has_many." + rel.Name,
					Message: msg,
					Code:    ErrUnresolvedRelation,
				})
			}
		}
	}
	return errs
}

func resolutionError(path string, err error) ValidationError {
	msg := err.Error()
	if hints := errors.FlattenHints(err); hints != "" {
		msg += " (" + strings.ReplaceAll(hints, "\n", "; ") + ")"
	}
	return ValidationError{Field: path, Message: msg, Code: ErrUnresolvedRelation}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
