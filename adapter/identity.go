package adapter

import (
	"fmt"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/types"
)

// ToStore converts a model record to a store document: the primary key
// moves to _id as a string. A nil or empty key is dropped so the store
// generates one. rec is not modified.
func ToStore(rec types.Record, pk string) datastore.Document {
	doc := make(datastore.Document, len(rec))
	for k, v := range rec {
		doc[k] = v
	}
	delete(doc, datastore.IDField)

	id, ok := rec[pk]
	if !ok || id == nil || id == "" {
		delete(doc, pk)
		return doc
	}
	delete(doc, pk)
	if s, isString := id.(string); isString {
		doc[datastore.IDField] = s
	} else {
		doc[datastore.IDField] = fmt.Sprint(id)
	}
	return doc
}

// FromStore converts a store document back to a model record. Documents
// without _id come back unchanged, so applying it twice is harmless.
func FromStore(doc datastore.Document, pk string) types.Record {
	rec := make(types.Record, len(doc))
	for k, v := range doc {
		rec[k] = v
	}
	id, ok := doc[datastore.IDField]
	if !ok {
		return rec
	}
	delete(rec, datastore.IDField)
	rec[pk] = id
	return rec
}
