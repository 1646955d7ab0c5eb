package types

import (
	"maps"
	"slices"
)

// Attribute describes one field of a model as declared by the ORM.
type Attribute struct {
	Type          string `json:"type,omitempty" yaml:"type,omitempty"`
	Unique        bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
	Index         bool   `json:"index,omitempty" yaml:"index,omitempty"`
	PrimaryKey    bool   `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	AutoIncrement bool   `json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
	Required      bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Schema maps attribute names to their declarations.
type Schema map[string]Attribute

// Fields returns the attribute names in lexical order.
func (s Schema) Fields() []string {
	return slices.Sorted(maps.Keys(s))
}

// Clone returns a copy of the schema.
func (s Schema) Clone() Schema {
	return maps.Clone(s)
}
