package types

import "maps"

// DefaultPrimaryKey is the identifier attribute used when a schema does not
// flag one explicitly.
const DefaultPrimaryKey = "id"

// Record is a model-facing record: attribute name to value.
// Records carry the model's primary key, never the store's internal identifier.
type Record map[string]any

// Clone returns a shallow copy of the record. Nested values are shared.
func (r Record) Clone() Record {
	return maps.Clone(r)
}
