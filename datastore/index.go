package datastore

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// IndexOptions declares an index on one field.
type IndexOptions struct {
	FieldName string `json:"fieldName"`
	Unique    bool   `json:"unique,omitempty"`
	// Sparse indexes skip documents where the field is missing or null.
	Sparse bool `json:"sparse,omitempty"`
}

type indexEntry struct {
	value any
	id    string
}

// index buckets document ids by the hash of the indexed value. Entries keep
// the value so hash collisions are resolved by comparison.
type index struct {
	opts    IndexOptions
	buckets map[uint64][]indexEntry
}

func newIndex(opts IndexOptions) *index {
	return &index{opts: opts, buckets: make(map[uint64][]indexEntry)}
}

func hashKey(v any) uint64 {
	var key string
	switch x := v.(type) {
	case nil:
		key = "z"
	case float64:
		key = "n" + strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		key = "s" + x
	case bool:
		key = "b" + strconv.FormatBool(x)
	default:
		data, _ := json.Marshal(x)
		key = "j" + string(data)
	}
	return xxhash.Sum64String(key)
}

// keys returns the values doc contributes to the index. Array fields
// contribute each distinct element.
func (ix *index) keys(doc Document) []any {
	val, present := lookupPath(doc, ix.opts.FieldName)
	if !present || val == nil {
		if ix.opts.Sparse {
			return nil
		}
		return []any{nil}
	}
	arr, ok := val.([]any)
	if !ok {
		return []any{val}
	}
	var out []any
	for _, e := range arr {
		if !slices.ContainsFunc(out, func(o any) bool { return valuesEqual(o, e) }) {
			out = append(out, e)
		}
	}
	if len(out) == 0 && !ix.opts.Sparse {
		return []any{nil}
	}
	return out
}

// insert adds doc's keys. A unique index rejects any existing entry with the
// same value, including one for the same id, so callers remove a document's
// old entries before re-adding it.
func (ix *index) insert(doc Document) error {
	id, _ := doc[IDField].(string)
	keys := ix.keys(doc)
	if ix.opts.Unique {
		for _, k := range keys {
			for _, e := range ix.buckets[hashKey(k)] {
				if valuesEqual(e.value, k) {
					return &ConstraintError{Field: ix.opts.FieldName, Value: k}
				}
			}
		}
	}
	for _, k := range keys {
		h := hashKey(k)
		ix.buckets[h] = append(ix.buckets[h], indexEntry{value: k, id: id})
	}
	return nil
}

func (ix *index) remove(doc Document) {
	id, _ := doc[IDField].(string)
	for _, k := range ix.keys(doc) {
		h := hashKey(k)
		bucket := slices.DeleteFunc(ix.buckets[h], func(e indexEntry) bool {
			return e.id == id && valuesEqual(e.value, k)
		})
		if len(bucket) == 0 {
			delete(ix.buckets, h)
		} else {
			ix.buckets[h] = bucket
		}
	}
}

// lookup returns the ids of documents whose field equals value.
func (ix *index) lookup(value any) []string {
	var ids []string
	for _, e := range ix.buckets[hashKey(value)] {
		if valuesEqual(e.value, value) {
			ids = append(ids, e.id)
		}
	}
	return ids
}
