package query

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/arthur-debert/nedb-adapter/types"
)

var directives = map[string]bool{
	"where":  true,
	"sort":   true,
	"skip":   true,
	"limit":  true,
	"select": true,
}

var operatorAliases = map[string]types.Operator{
	"eq":                 types.OpEq,
	"ne":                 types.OpNe,
	"!":                  types.OpNe,
	"!=":                 types.OpNe,
	"not":                types.OpNe,
	"lt":                 types.OpLt,
	"<":                  types.OpLt,
	"lessThan":           types.OpLt,
	"lte":                types.OpLte,
	"<=":                 types.OpLte,
	"lessThanOrEqual":    types.OpLte,
	"gt":                 types.OpGt,
	">":                  types.OpGt,
	"greaterThan":        types.OpGt,
	"gte":                types.OpGte,
	">=":                 types.OpGte,
	"greaterThanOrEqual": types.OpGte,
	"in":                 types.OpIn,
	"nin":                types.OpNin,
	"like":               types.OpLike,
	"contains":           types.OpContains,
	"startsWith":         types.OpStartsWith,
	"endsWith":           types.OpEndsWith,
	"exists":             types.OpExists,
}

// Parse reads criteria in the loose shape the ORM hands over, e.g.
//
//	{"where": {"age": {">": 2}, "name": ["Rex", "Fido"]}, "sort": "age DESC", "limit": 10}
//
// Without a where key, every non-directive key is a where field.
func Parse(raw map[string]any) (types.Criteria, error) {
	var c types.Criteria
	if len(raw) == 0 {
		return c, nil
	}

	whereRaw, hasWhere := raw["where"]
	if !hasWhere {
		implicit := map[string]any{}
		for k, v := range raw {
			if !directives[k] {
				implicit[k] = v
			}
		}
		whereRaw = implicit
	} else {
		for k := range raw {
			if !directives[k] {
				return c, invalid(k, "unexpected key alongside where")
			}
		}
	}

	if whereRaw != nil {
		m, ok := asMap(whereRaw)
		if !ok {
			return c, invalid("where", "must be an object, got %T", whereRaw)
		}
		node, err := parseWhere(m, "where")
		if err != nil {
			return c, err
		}
		c.Where = node
	}

	if v, ok := raw["sort"]; ok && v != nil {
		sort, err := parseSort(v)
		if err != nil {
			return c, err
		}
		c.Sort = sort
	}
	for _, key := range []string{"skip", "limit"} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		n, err := parseCount(key, v)
		if err != nil {
			return c, err
		}
		if key == "skip" {
			c.Skip = &n
		} else {
			c.Limit = &n
		}
	}
	return c, nil
}

// ParseWhere reads a bare where object.
func ParseWhere(raw map[string]any) (types.Node, error) {
	return parseWhere(raw, "where")
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case types.Record:
		return m, true
	}
	return nil, false
}

func join(nodes []types.Node) types.Node {
	switch len(nodes) {
	case 0:
		return nil
	case 1:
		return nodes[0]
	}
	return types.And{Nodes: nodes}
}

func parseWhere(m map[string]any, path string) (types.Node, error) {
	var nodes []types.Node
	for _, key := range slices.Sorted(maps.Keys(m)) {
		value := m[key]
		switch key {
		case "or", "and":
			list, ok := asList(value)
			if !ok || len(list) == 0 {
				return nil, invalid(path+"."+key, "needs a non-empty list of clauses")
			}
			children := make([]types.Node, 0, len(list))
			for i, item := range list {
				itemPath := fmt.Sprintf("%s.%s[%d]", path, key, i)
				sub, ok := asMap(item)
				if !ok {
					return nil, invalid(itemPath, "must be an object, got %T", item)
				}
				child, err := parseWhere(sub, itemPath)
				if err != nil {
					return nil, err
				}
				if child == nil {
					return nil, invalid(itemPath, "empty clause")
				}
				children = append(children, child)
			}
			if key == "or" {
				nodes = append(nodes, types.Or{Nodes: children})
			} else {
				nodes = append(nodes, types.And{Nodes: children})
			}
		case "not":
			sub, ok := asMap(value)
			if !ok {
				return nil, invalid(path+".not", "must be an object, got %T", value)
			}
			child, err := parseWhere(sub, path+".not")
			if err != nil {
				return nil, err
			}
			if child == nil {
				return nil, invalid(path+".not", "empty clause")
			}
			nodes = append(nodes, types.Not{Node: child})
		default:
			node, err := parseField(key, value, path+"."+key)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
	}
	return join(nodes), nil
}

func parseField(field string, value any, path string) (types.Node, error) {
	if field == "" {
		return nil, invalid(path, "field name is empty")
	}
	if ops, ok := asMap(value); ok {
		if len(ops) == 0 {
			return nil, invalid(path, "empty operator object")
		}
		var nodes []types.Node
		for _, key := range slices.Sorted(maps.Keys(ops)) {
			op, known := operatorAliases[key]
			if !known {
				return nil, unknownOperator(path, key)
			}
			arg := ops[key]
			if op == types.OpNe {
				if _, isList := asList(arg); isList {
					op = types.OpNin
				}
			}
			nodes = append(nodes, types.Cmp(field, op, arg))
		}
		return join(nodes), nil
	}
	if _, isList := asList(value); isList {
		if _, isBytes := value.([]byte); !isBytes {
			return types.Cmp(field, types.OpIn, value), nil
		}
	}
	return types.Eq(field, value), nil
}

func parseSort(v any) ([]types.SortClause, error) {
	switch s := v.(type) {
	case string:
		return parseSortString(s, "sort")
	case map[string]any, types.Record:
		m, _ := asMap(s)
		clause, err := parseSortMap(m, "sort")
		if err != nil {
			return nil, err
		}
		return []types.SortClause{clause}, nil
	}
	list, ok := asList(v)
	if !ok {
		return nil, invalid("sort", "unsupported sort value %T", v)
	}
	var out []types.SortClause
	for i, item := range list {
		path := fmt.Sprintf("sort[%d]", i)
		switch x := item.(type) {
		case string:
			clauses, err := parseSortString(x, path)
			if err != nil {
				return nil, err
			}
			out = append(out, clauses...)
		default:
			m, ok := asMap(item)
			if !ok {
				return nil, invalid(path, "unsupported sort value %T", item)
			}
			clause, err := parseSortMap(m, path)
			if err != nil {
				return nil, err
			}
			out = append(out, clause)
		}
	}
	return out, nil
}

func parseSortString(s, path string) ([]types.SortClause, error) {
	var out []types.SortClause
	for i, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		partPath := fmt.Sprintf("%s[%d]", path, i)
		switch len(fields) {
		case 1:
			out = append(out, types.SortClause{Field: fields[0]})
		case 2:
			desc, err := parseDirection(fields[1], partPath)
			if err != nil {
				return nil, err
			}
			out = append(out, types.SortClause{Field: fields[0], Descending: desc})
		default:
			return nil, invalid(partPath, "expected \"field [ASC|DESC]\", got %q", strings.TrimSpace(part))
		}
	}
	return out, nil
}

func parseSortMap(m map[string]any, path string) (types.SortClause, error) {
	if len(m) != 1 {
		return types.SortClause{}, invalid(path, "sort objects must name exactly one field, got %d", len(m))
	}
	for field, dir := range m {
		if field == "" {
			return types.SortClause{}, invalid(path, "field name is empty")
		}
		desc, err := parseDirection(dir, path+"."+field)
		if err != nil {
			return types.SortClause{}, err
		}
		return types.SortClause{Field: field, Descending: desc}, nil
	}
	return types.SortClause{}, nil
}

func parseDirection(v any, path string) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "1":
			return false, nil
		case "desc", "-1":
			return true, nil
		}
		return false, invalid(path, "invalid sort direction %q", s)
	}
	if n, ok := integral(v); ok {
		switch n {
		case 1:
			return false, nil
		case -1:
			return true, nil
		}
	}
	return false, invalid(path, "invalid sort direction %v", v)
}

func parseCount(key string, v any) (int, error) {
	n, ok := integral(v)
	if !ok {
		return 0, invalid(key, "must be an integer, got %T", v)
	}
	if n < 0 {
		return 0, invalid(key, "must not be negative, got %d", n)
	}
	return n, nil
}

// integral accepts Go integer kinds and whole-valued floats.
func integral(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return 0, false
		}
		return int(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}
