package datastore

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var regexCache sync.Map // pattern -> *regexp.Regexp

func compileRegex(arg any) (*regexp.Regexp, error) {
	switch re := arg.(type) {
	case *regexp.Regexp:
		return re, nil
	case string:
		if cached, ok := regexCache.Load(re); ok {
			return cached.(*regexp.Regexp), nil
		}
		compiled, err := regexp.Compile(re)
		if err != nil {
			return nil, fmt.Errorf("%w: bad $regex %q: %v", ErrInvalidQuery, re, err)
		}
		regexCache.Store(re, compiled)
		return compiled, nil
	}
	return nil, fmt.Errorf("%w: $regex expects a string or *regexp.Regexp, got %T", ErrInvalidQuery, arg)
}

func asQuery(v any) (Query, bool) {
	q, ok := v.(map[string]any)
	return q, ok
}

func asQueryList(v any) ([]Query, bool) {
	switch list := v.(type) {
	case []Query:
		return list, true
	case []any:
		out := make([]Query, 0, len(list))
		for _, item := range list {
			q, ok := asQuery(item)
			if !ok {
				return nil, false
			}
			out = append(out, q)
		}
		return out, true
	}
	return nil, false
}

// operatorDoc returns cond as an operator object ({"$gt": 1, ...}) when
// every key is an operator.
func operatorDoc(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func toList(arg any) ([]any, bool) {
	list, ok := normalizeValue(arg).([]any)
	return list, ok
}

// validateQuery checks q's structure once so matching can assume it is sound.
func validateQuery(q Query) error {
	for key, cond := range q {
		if strings.HasPrefix(key, "$") {
			switch key {
			case "$and", "$or", "$nor":
				subs, ok := asQueryList(cond)
				if !ok || len(subs) == 0 {
					return fmt.Errorf("%w: %s expects a non-empty list of queries", ErrInvalidQuery, key)
				}
				for _, sub := range subs {
					if err := validateQuery(sub); err != nil {
						return err
					}
				}
			case "$not":
				sub, ok := asQuery(cond)
				if !ok {
					return fmt.Errorf("%w: $not expects a query", ErrInvalidQuery)
				}
				if err := validateQuery(sub); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: unknown logical operator %s", ErrInvalidQuery, key)
			}
			continue
		}
		if key == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidQuery)
		}
		if err := validateCondition(key, cond); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(field string, cond any) error {
	m, ok := cond.(map[string]any)
	if !ok {
		return nil
	}
	ops := 0
	for k := range m {
		if strings.HasPrefix(k, "$") {
			ops++
		}
	}
	if ops == 0 {
		return nil
	}
	if ops != len(m) {
		return fmt.Errorf("%w: %s mixes operators and plain fields", ErrInvalidQuery, field)
	}
	for op, arg := range m {
		switch op {
		case "$eq", "$ne", "$lt", "$lte", "$gt", "$gte":
		case "$in", "$nin":
			if _, ok := toList(arg); !ok {
				return fmt.Errorf("%w: %s on %s expects a list", ErrInvalidQuery, op, field)
			}
		case "$regex":
			if _, err := compileRegex(arg); err != nil {
				return err
			}
		case "$exists":
			if _, ok := arg.(bool); !ok {
				return fmt.Errorf("%w: $exists on %s expects a boolean", ErrInvalidQuery, field)
			}
		case "$size":
			n, ok := toFloat(arg)
			if !ok || n < 0 || n != float64(int(n)) {
				return fmt.Errorf("%w: $size on %s expects a non-negative integer", ErrInvalidQuery, field)
			}
		default:
			return fmt.Errorf("%w: unknown comparison operator %s", ErrInvalidQuery, op)
		}
	}
	return nil
}

// matchDocument reports whether doc satisfies a validated query.
func matchDocument(doc Document, q Query) bool {
	for key, cond := range q {
		if !matchClause(doc, key, cond) {
			return false
		}
	}
	return true
}

func matchClause(doc Document, key string, cond any) bool {
	switch key {
	case "$and":
		subs, _ := asQueryList(cond)
		for _, sub := range subs {
			if !matchDocument(doc, sub) {
				return false
			}
		}
		return true
	case "$or":
		subs, _ := asQueryList(cond)
		for _, sub := range subs {
			if matchDocument(doc, sub) {
				return true
			}
		}
		return false
	case "$nor":
		subs, _ := asQueryList(cond)
		for _, sub := range subs {
			if matchDocument(doc, sub) {
				return false
			}
		}
		return true
	case "$not":
		sub, _ := asQuery(cond)
		return !matchDocument(doc, sub)
	}

	val, present := lookupPath(doc, key)
	if ops, ok := operatorDoc(cond); ok {
		for op, arg := range ops {
			if !matchOperator(val, present, op, arg) {
				return false
			}
		}
		return true
	}
	return matchEqual(val, present, normalizeValue(cond))
}

// matchEqual treats a null wanted value as "null or missing", and lets a
// scalar match any element of an array field.
func matchEqual(val any, present bool, want any) bool {
	if want == nil {
		return !present || val == nil
	}
	if !present {
		return false
	}
	if valuesEqual(val, want) {
		return true
	}
	if arr, ok := val.([]any); ok {
		if _, wantArr := want.([]any); !wantArr {
			for _, e := range arr {
				if valuesEqual(e, want) {
					return true
				}
			}
		}
	}
	return false
}

func anyElement(val any, fn func(any) bool) bool {
	if arr, ok := val.([]any); ok {
		for _, e := range arr {
			if fn(e) {
				return true
			}
		}
		return false
	}
	return fn(val)
}

// ordered applies a range operator. Only numbers with numbers and strings
// with strings are comparable.
func ordered(a, b any, op string) bool {
	ra := typeRank(a)
	if ra != typeRank(b) || (ra != rankNumber && ra != rankString) {
		return false
	}
	c := compareValues(a, b)
	switch op {
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	}
	return false
}

func matchOperator(val any, present bool, op string, arg any) bool {
	switch op {
	case "$eq":
		return matchEqual(val, present, normalizeValue(arg))
	case "$ne":
		return !matchEqual(val, present, normalizeValue(arg))
	case "$lt", "$lte", "$gt", "$gte":
		if !present {
			return false
		}
		want := normalizeValue(arg)
		return anyElement(val, func(v any) bool { return ordered(v, want, op) })
	case "$in", "$nin":
		list, _ := toList(arg)
		found := false
		for _, want := range list {
			if matchEqual(val, present, want) {
				found = true
				break
			}
		}
		return found == (op == "$in")
	case "$regex":
		if !present {
			return false
		}
		re, err := compileRegex(arg)
		if err != nil {
			return false
		}
		return anyElement(val, func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		})
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$size":
		arr, ok := val.([]any)
		n, _ := toFloat(arg)
		return ok && len(arr) == int(n)
	}
	return false
}
