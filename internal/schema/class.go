package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Bookkeeping columns present on every record.
const (
	FieldID         = "ID"
	FieldClassName  = "ClassName"
	FieldCreated    = "Created"
	FieldLastEdited = "LastEdited"

	// FieldRecordClassName is the synthetic column holding the resolved
	// concrete class of a queried row.
	FieldRecordClassName = "RecordClassName"

	// DefaultParentField is the join column assumed for a has_many when the
	// target declares no has_one pointing back at the owner.
	DefaultParentField = "ParentID"
)

// DefaultRootClass is the common base of every hierarchy.
const DefaultRootClass = "DataObject"

// ClassDescriptor is one node of an inheritance chain as declared.
type ClassDescriptor struct {
	Name    string `yaml:"name" json:"name"`
	Extends string `yaml:"extends,omitempty" json:"extends,omitempty"`

	// Table forces a table even when the class declares no columns.
	Table bool `yaml:"table,omitempty" json:"table,omitempty"`

	DB              map[string]string              `yaml:"db,omitempty" json:"db,omitempty"`
	HasOne          map[string]string              `yaml:"has_one,omitempty" json:"has_one,omitempty"`
	HasMany         map[string]HasManyDecl         `yaml:"has_many,omitempty" json:"has_many,omitempty"`
	ManyMany        map[string]ManyManyDecl        `yaml:"many_many,omitempty" json:"many_many,omitempty"`
	BelongsManyMany map[string]BelongsManyManyDecl `yaml:"belongs_many_many,omitempty" json:"belongs_many_many,omitempty"`
	Defaults        map[string]any                 `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// HasManyDecl declares a one-to-many relation.
// Inverse optionally names the has_one on Class that points back.
type HasManyDecl struct {
	Class   string `yaml:"class" json:"class"`
	Inverse string `yaml:"inverse,omitempty" json:"inverse,omitempty"`
}

// ManyManyDecl declares the owning side of a many-to-many relation.
// Extra lists additional junction columns (name -> type tag).
type ManyManyDecl struct {
	Class string            `yaml:"class" json:"class"`
	Extra map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// BelongsManyManyDecl declares the inverse side of a many-to-many relation.
// Inverse optionally names the many_many on Class.
type BelongsManyManyDecl struct {
	Class   string `yaml:"class" json:"class"`
	Inverse string `yaml:"inverse,omitempty" json:"inverse,omitempty"`
}

// UnmarshalYAML accepts either a bare class name or the full mapping.
func (d *HasManyDecl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Class = node.Value
		return nil
	}
	type plain HasManyDecl
	return node.Decode((*plain)(d))
}

// UnmarshalYAML accepts either a bare class name or the full mapping.
func (d *ManyManyDecl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Class = node.Value
		return nil
	}
	type plain ManyManyDecl
	return node.Decode((*plain)(d))
}

// UnmarshalYAML accepts either a bare class name or the full mapping.
func (d *BelongsManyManyDecl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Class = node.Value
		return nil
	}
	type plain BelongsManyManyDecl
	return node.Decode((*plain)(d))
}

// clone returns a deep copy so registered declarations cannot be mutated
// by the caller afterwards.
func (c *ClassDescriptor) clone() *ClassDescriptor {
	out := &ClassDescriptor{
		Name:    c.Name,
		Extends: c.Extends,
		Table:   c.Table,
	}
	out.DB = copyStrings(c.DB)
	out.HasOne = copyStrings(c.HasOne)
	if c.HasMany != nil {
		out.HasMany = make(map[string]HasManyDecl, len(c.HasMany))
		for k, v := range c.HasMany {
			out.HasMany[k] = v
		}
	}
	if c.ManyMany != nil {
		out.ManyMany = make(map[string]ManyManyDecl, len(c.ManyMany))
		for k, v := range c.ManyMany {
			out.ManyMany[k] = ManyManyDecl{Class: v.Class, Extra: copyStrings(v.Extra)}
		}
	}
	if c.BelongsManyMany != nil {
		out.BelongsManyMany = make(map[string]BelongsManyManyDecl, len(c.BelongsManyMany))
		for k, v := range c.BelongsManyMany {
			out.BelongsManyMany[k] = v
		}
	}
	if c.Defaults != nil {
		out.Defaults = make(map[string]any, len(c.Defaults))
		for k, v := range c.Defaults {
			out.Defaults[k] = v
		}
	}
	return out
}

func (c *ClassDescriptor) String() string {
	if c.Extends == "" {
		return c.Name
	}
	return fmt.Sprintf("%s extends %s", c.Name, c.Extends)
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
