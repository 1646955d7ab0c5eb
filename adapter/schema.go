package adapter

import (
	"github.com/arthur-debert/nedb-adapter/types"
)

// NormalizeSchema returns a copy of raw with auto-increment flags cleared.
// The store generates string identifiers, so sequences do not apply.
func NormalizeSchema(raw types.Schema) types.Schema {
	out := make(types.Schema, len(raw))
	for name, attr := range raw {
		attr.AutoIncrement = false
		out[name] = attr
	}
	return out
}

// PrimaryKeyName returns the attribute flagged as primary key, or "id".
func PrimaryKeyName(schema types.Schema) string {
	for _, name := range schema.Fields() {
		if schema[name].PrimaryKey {
			return name
		}
	}
	return types.DefaultPrimaryKey
}
