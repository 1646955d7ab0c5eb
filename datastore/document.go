package datastore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tiendc/go-deepcopy"
)

// IDField is the store's internal identifier field. It always holds a string.
const IDField = "_id"

// Document is a stored record.
type Document = map[string]any

// Query is a native filter, written in the NeDB query dialect.
type Query = map[string]any

// normalizeDocument converts doc to its stored JSON shape: numbers become
// float64, times become RFC 3339 strings, structs become maps.
func normalizeDocument(doc Document) (Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if out == nil {
		out = Document{}
	}
	if err := checkKeys(out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkKeys rejects field names the query language cannot address.
func checkKeys(v any) error {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if strings.HasPrefix(k, "$") {
				return fmt.Errorf("%w: field names cannot begin with '$' (%s)", ErrInvalidDocument, k)
			}
			if strings.Contains(k, ".") {
				return fmt.Errorf("%w: field names cannot contain '.' (%s)", ErrInvalidDocument, k)
			}
			if err := checkKeys(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range node {
			if err := checkKeys(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// cloneDocument deep-copies a normalized document so callers never alias
// stored state.
func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	var out Document
	if err := deepcopy.Copy(&out, doc); err != nil {
		// stored documents hold JSON types only
		panic(fmt.Sprintf("datastore: deep copy failed: %v", err))
	}
	return out
}

// lookupPath resolves a dot-notation path. Numeric segments index arrays.
func lookupPath(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setPath assigns value at path, creating intermediate objects as needed.
func setPath(doc map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok || next == nil {
			child := map[string]any{}
			cur[part] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: cannot set %s, %s is not an object", ErrInvalidUpdate, path, part)
		}
		cur = child
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// unsetPath removes the field at path. Missing paths are ignored.
func unsetPath(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		child, ok := cur[part].(map[string]any)
		if !ok {
			return
		}
		cur = child
	}
	delete(cur, parts[len(parts)-1])
}
