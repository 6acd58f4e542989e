// Package compiler turns CUE class declarations into schema descriptors
// and checks them before they reach a registry.
//
// A declaration file holds a top-level "class" struct keyed by class name:
//
//	class: Post: {
//		db: {Title: "Varchar(200)", Price: "Money"}
//		has_one: Author: "Author"
//		many_many: Tags: {class: "Tag", extra: Weight: "Int"}
//		defaults: Title: "Untitled"
//	}
package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/lineage/internal/schema"
)

// CompileClass parses a CUE value into a ClassDescriptor.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the class struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`class: Page: { extends: "SiteTree" }`)
//	decl, err := CompileClass(v.LookupPath(cue.ParsePath("class.Page")))
func CompileClass(v cue.Value) (*schema.ClassDescriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decl := &schema.ClassDescriptor{}

	// Class name comes from the struct label.
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		decl.Name = labels[len(labels)-1].Unquoted()
	}

	var err error
	if decl.Extends, err = optionalString(v, "extends"); err != nil {
		return nil, err
	}

	if tableVal := v.LookupPath(cue.ParsePath("table")); tableVal.Exists() {
		decl.Table, err = tableVal.Bool()
		if err != nil {
			return nil, &CompileError{Field: "table", Message: "must be a boolean", Pos: tableVal.Pos()}
		}
	}

	if decl.DB, err = stringMap(v, "db"); err != nil {
		return nil, err
	}
	if decl.HasOne, err = stringMap(v, "has_one"); err != nil {
		return nil, err
	}
	if decl.HasMany, err = parseHasMany(v); err != nil {
		return nil, err
	}
	if decl.ManyMany, err = parseManyMany(v); err != nil {
		return nil, err
	}
	if decl.BelongsManyMany, err = parseBelongsManyMany(v); err != nil {
		return nil, err
	}
	if decl.Defaults, err = parseDefaults(v); err != nil {
		return nil, err
	}

	return decl, nil
}

// CompileClasses compiles every class under the top-level "class" struct,
// sorted by name.
func CompileClasses(root cue.Value) ([]schema.ClassDescriptor, []error) {
	classesVal := root.LookupPath(cue.ParsePath("class"))
	if !classesVal.Exists() {
		return nil, nil
	}
	iter, err := classesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		decls []schema.ClassDescriptor
		errs  []error
	)
	for iter.Next() {
		decl, err := CompileClass(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		decls = append(decls, *decl)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls, errs
}

func optionalString(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: "must be a string", Pos: val.Pos()}
	}
	return s, nil
}

// stringMap reads a struct of string values, e.g. db or has_one.
func stringMap(v cue.Value, path string) (map[string]string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]string)
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.%s", path, iter.Selector().Unquoted()),
				Message: "must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		out[iter.Selector().Unquoted()] = s
	}
	return out, nil
}

// relationEntries walks a relation struct whose entries are either a bare
// class name or a struct. fn receives the class and, for the struct form,
// the struct value.
func relationEntries(v cue.Value, path string, fn func(name, class string, body cue.Value, hasBody bool) error) error {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil
	}
	iter, err := val.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		entry := iter.Value()
		field := fmt.Sprintf("%s.%s", path, name)

		if class, err := entry.String(); err == nil {
			if err := fn(name, class, entry, false); err != nil {
				return err
			}
			continue
		}

		classVal := entry.LookupPath(cue.ParsePath("class"))
		if !classVal.Exists() {
			return &CompileError{Field: field, Message: "must be a class name or a struct with class", Pos: entry.Pos()}
		}
		class, err := classVal.String()
		if err != nil {
			return &CompileError{Field: field + ".class", Message: "must be a string", Pos: classVal.Pos()}
		}
		if err := fn(name, class, entry, true); err != nil {
			return err
		}
	}
	return nil
}

func parseHasMany(v cue.Value) (map[string]schema.HasManyDecl, error) {
	var out map[string]schema.HasManyDecl
	err := relationEntries(v, "has_many", func(name, class string, body cue.Value, hasBody bool) error {
		decl := schema.HasManyDecl{Class: class}
		if hasBody {
			inverse, err := optionalString(body, "inverse")
			if err != nil {
				return err
			}
			decl.Inverse = inverse
		}
		if out == nil {
			out = make(map[string]schema.HasManyDecl)
		}
		out[name] = decl
		return nil
	})
	return out, err
}

func parseManyMany(v cue.Value) (map[string]schema.ManyManyDecl, error) {
	var out map[string]schema.ManyManyDecl
	err := relationEntries(v, "many_many", func(name, class string, body cue.Value, hasBody bool) error {
		decl := schema.ManyManyDecl{Class: class}
		if hasBody {
			extra, err := stringMap(body, "extra")
			if err != nil {
				return err
			}
			decl.Extra = extra
		}
		if out == nil {
			out = make(map[string]schema.ManyManyDecl)
		}
		out[name] = decl
		return nil
	})
	return out, err
}

func parseBelongsManyMany(v cue.Value) (map[string]schema.BelongsManyManyDecl, error) {
	var out map[string]schema.BelongsManyManyDecl
	err := relationEntries(v, "belongs_many_many", func(name, class string, body cue.Value, hasBody bool) error {
		decl := schema.BelongsManyManyDecl{Class: class}
		if hasBody {
			inverse, err := optionalString(body, "inverse")
			if err != nil {
				return err
			}
			decl.Inverse = inverse
		}
		if out == nil {
			out = make(map[string]schema.BelongsManyManyDecl)
		}
		out[name] = decl
		return nil
	})
	return out, err
}

// parseDefaults reads scalar default values. Integers become int64 and
// other numbers float64.
func parseDefaults(v cue.Value) (map[string]any, error) {
	val := v.LookupPath(cue.ParsePath("defaults"))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]any)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		dv, err := scalarValue(iter.Value())
		if err != nil {
			return nil, &CompileError{Field: "defaults." + name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out[name] = dv
	}
	return out, nil
}

func scalarValue(v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return nil, nil
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	default:
		return nil, fmt.Errorf("unsupported default kind: %v", v.IncompleteKind())
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
