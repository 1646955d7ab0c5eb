package datastore

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// UpdateOptions controls how many documents Update touches.
type UpdateOptions struct {
	// Multi updates every match instead of the first one.
	Multi bool
	// Upsert inserts a document built from the query when nothing matches.
	Upsert bool
}

var modifierOps = map[string]bool{
	"$set": true, "$unset": true, "$inc": true, "$push": true,
	"$addToSet": true, "$pull": true, "$min": true, "$max": true,
}

// isModifierUpdate tells a modifier update ({"$set": ...}) from a whole
// document replacement. Mixing the two is rejected.
func isModifierUpdate(update Document) (bool, error) {
	var mods, fields int
	for k := range update {
		if strings.HasPrefix(k, "$") {
			mods++
		} else {
			fields++
		}
	}
	if mods > 0 && fields > 0 {
		return false, fmt.Errorf("%w: cannot mix modifiers and plain fields", ErrInvalidUpdate)
	}
	return mods > 0, nil
}

func validateUpdate(update Document) error {
	modifier, err := isModifierUpdate(update)
	if err != nil || !modifier {
		return err
	}
	for op, args := range update {
		if !modifierOps[op] {
			return fmt.Errorf("%w: unknown modifier %s", ErrInvalidUpdate, op)
		}
		fields, ok := args.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s expects an object of fields", ErrInvalidUpdate, op)
		}
		for field := range fields {
			if field == "" || strings.HasPrefix(field, "$") {
				return fmt.Errorf("%w: bad field name %q in %s", ErrInvalidUpdate, field, op)
			}
		}
	}
	return nil
}

// applyUpdate returns the updated copy of doc. doc itself is not modified.
func applyUpdate(doc Document, update Document) (Document, error) {
	modifier, err := isModifierUpdate(update)
	if err != nil {
		return nil, err
	}

	var next Document
	if !modifier {
		next = maps.Clone(update)
		if id, ok := next[IDField]; ok && !valuesEqual(normalizeValue(id), doc[IDField]) {
			return nil, ErrCannotModifyID
		}
		if id, ok := doc[IDField]; ok {
			next[IDField] = id
		}
		return normalizeDocument(next)
	}

	next = cloneDocument(doc)
	if next == nil {
		next = Document{}
	}
	for _, op := range slices.Sorted(maps.Keys(update)) {
		fields, _ := update[op].(map[string]any)
		for _, field := range slices.Sorted(maps.Keys(fields)) {
			arg := fields[field]
			if field == IDField || strings.HasPrefix(field, IDField+".") {
				if op == "$set" && valuesEqual(normalizeValue(arg), doc[IDField]) {
					continue
				}
				return nil, ErrCannotModifyID
			}
			if err := applyModifier(next, op, field, arg); err != nil {
				return nil, err
			}
		}
	}
	return normalizeDocument(next)
}

func applyModifier(doc Document, op, field string, arg any) error {
	cur, present := lookupPath(doc, field)
	switch op {
	case "$set":
		return setPath(doc, field, arg)
	case "$unset":
		unsetPath(doc, field)
		return nil
	case "$inc":
		n, ok := toFloat(arg)
		if !ok {
			return fmt.Errorf("%w: $inc on %s expects a number", ErrInvalidUpdate, field)
		}
		if !present {
			return setPath(doc, field, n)
		}
		base, ok := toFloat(cur)
		if !ok {
			return fmt.Errorf("%w: cannot $inc non-number field %s", ErrInvalidUpdate, field)
		}
		return setPath(doc, field, base+n)
	case "$push", "$addToSet":
		items := []any{arg}
		if each, ok := arg.(map[string]any); ok {
			if list, ok := toList(each["$each"]); ok && len(each) == 1 {
				items = list
			}
		}
		arr, err := arrayField(cur, present, op, field)
		if err != nil {
			return err
		}
		for _, item := range items {
			item = normalizeValue(item)
			if op == "$addToSet" && slices.ContainsFunc(arr, func(e any) bool { return valuesEqual(e, item) }) {
				continue
			}
			arr = append(arr, item)
		}
		return setPath(doc, field, arr)
	case "$pull":
		if !present {
			return nil
		}
		arr, err := arrayField(cur, present, op, field)
		if err != nil {
			return err
		}
		want := normalizeValue(arg)
		arr = slices.DeleteFunc(arr, func(e any) bool { return valuesEqual(e, want) })
		return setPath(doc, field, arr)
	case "$min", "$max":
		want := normalizeValue(arg)
		if !present {
			return setPath(doc, field, want)
		}
		c := compareValues(want, cur)
		if (op == "$min" && c < 0) || (op == "$max" && c > 0) {
			return setPath(doc, field, want)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown modifier %s", ErrInvalidUpdate, op)
}

func arrayField(cur any, present bool, op, field string) ([]any, error) {
	if !present || cur == nil {
		return []any{}, nil
	}
	arr, ok := cur.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s on non-array field %s", ErrInvalidUpdate, op, field)
	}
	return slices.Clone(arr), nil
}

// upsertBase seeds an upserted document with the query's plain equality fields.
func upsertBase(q Query) Document {
	base := Document{}
	for k, v := range q {
		if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			continue
		}
		if _, isOps := operatorDoc(v); isOps {
			continue
		}
		base[k] = v
	}
	return base
}
