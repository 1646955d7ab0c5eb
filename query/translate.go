// Package query turns ORM criteria into native datastore queries.
package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/types"
)

// ModifierKind identifies a cursor modifier.
type ModifierKind int

const (
	SortModifier ModifierKind = iota
	SkipModifier
	LimitModifier
)

func (k ModifierKind) String() string {
	switch k {
	case SortModifier:
		return "sort"
	case SkipModifier:
		return "skip"
	case LimitModifier:
		return "limit"
	}
	return fmt.Sprintf("ModifierKind(%d)", int(k))
}

// Modifier is one cursor step derived from criteria.
type Modifier struct {
	Kind ModifierKind
	Sort []datastore.SortField
	N    int
}

// Apply chains the modifier onto cur.
func (m Modifier) Apply(cur *datastore.Cursor) *datastore.Cursor {
	switch m.Kind {
	case SortModifier:
		return cur.Sort(m.Sort...)
	case SkipModifier:
		return cur.Skip(m.N)
	case LimitModifier:
		return cur.Limit(m.N)
	}
	return cur
}

// Translation is the native form of a criteria value.
type Translation struct {
	Filter    datastore.Query
	Modifiers []Modifier
}

// Translator rewrites criteria for one model. The model's primary key is
// mapped onto the store's _id field and its values are stringified.
type Translator struct {
	pk string
}

// NewTranslator returns a translator for a model whose primary key is pk.
func NewTranslator(pk string) *Translator {
	if pk == "" {
		pk = types.DefaultPrimaryKey
	}
	return &Translator{pk: pk}
}

// Translate converts criteria into a filter and an ordered modifier list.
// Select is ignored. The result depends only on the input.
func (t *Translator) Translate(c types.Criteria) (*Translation, error) {
	filter, err := t.node(c.Where, "where", true)
	if err != nil {
		return nil, err
	}
	tr := &Translation{Filter: filter}

	if len(c.Sort) > 0 {
		fields := make([]datastore.SortField, 0, len(c.Sort))
		for i, s := range c.Sort {
			if s.Field == "" {
				return nil, invalid(fmt.Sprintf("sort[%d]", i), "field name is empty")
			}
			order := 1
			if s.Descending {
				order = -1
			}
			fields = append(fields, datastore.SortField{Field: t.field(s.Field), Order: order})
		}
		tr.Modifiers = append(tr.Modifiers, Modifier{Kind: SortModifier, Sort: fields})
	}
	if c.Skip != nil {
		if *c.Skip < 0 {
			return nil, invalid("skip", "must not be negative, got %d", *c.Skip)
		}
		tr.Modifiers = append(tr.Modifiers, Modifier{Kind: SkipModifier, N: *c.Skip})
	}
	if c.Limit != nil {
		if *c.Limit < 0 {
			return nil, invalid("limit", "must not be negative, got %d", *c.Limit)
		}
		tr.Modifiers = append(tr.Modifiers, Modifier{Kind: LimitModifier, N: *c.Limit})
	}
	return tr, nil
}

// Filter translates only the where clause, still validating the rest.
func (t *Translator) Filter(c types.Criteria) (datastore.Query, error) {
	tr, err := t.Translate(c)
	if err != nil {
		return nil, err
	}
	return tr.Filter, nil
}

func (t *Translator) field(name string) string {
	if name == t.pk {
		return datastore.IDField
	}
	return name
}

func (t *Translator) node(n types.Node, path string, top bool) (datastore.Query, error) {
	switch n := n.(type) {
	case nil:
		if top {
			return datastore.Query{}, nil
		}
		return nil, invalid(path, "empty clause")
	case types.Comparison:
		return t.comparison(n, path)
	case *types.Comparison:
		if n == nil {
			return nil, invalid(path, "empty clause")
		}
		return t.comparison(*n, path)
	case types.And:
		return t.group("$and", n.Nodes, path+".and")
	case *types.And:
		if n == nil {
			return nil, invalid(path, "empty clause")
		}
		return t.group("$and", n.Nodes, path+".and")
	case types.Or:
		return t.group("$or", n.Nodes, path+".or")
	case *types.Or:
		if n == nil {
			return nil, invalid(path, "empty clause")
		}
		return t.group("$or", n.Nodes, path+".or")
	case types.Not:
		return t.not(n, path)
	case *types.Not:
		if n == nil {
			return nil, invalid(path, "empty clause")
		}
		return t.not(*n, path)
	}
	return nil, invalid(path, "unsupported clause type %T", n)
}

func (t *Translator) group(op string, nodes []types.Node, path string) (datastore.Query, error) {
	if len(nodes) == 0 {
		return nil, invalid(path, "needs at least one clause")
	}
	subs := make([]any, 0, len(nodes))
	for i, child := range nodes {
		q, err := t.node(child, fmt.Sprintf("%s[%d]", path, i), false)
		if err != nil {
			return nil, err
		}
		subs = append(subs, q)
	}
	return datastore.Query{op: subs}, nil
}

func (t *Translator) not(n types.Not, path string) (datastore.Query, error) {
	q, err := t.node(n.Node, path+".not", false)
	if err != nil {
		return nil, err
	}
	return datastore.Query{"$nor": []any{q}}, nil
}

func (t *Translator) comparison(c types.Comparison, path string) (datastore.Query, error) {
	if c.Field == "" {
		return nil, invalid(path, "field name is empty")
	}
	path = path + "." + c.Field
	field := t.field(c.Field)
	isPK := field == datastore.IDField

	value := func(v any) any {
		v = scalar(v)
		if isPK && v != nil {
			return fmt.Sprint(v)
		}
		return v
	}

	switch c.Op {
	case types.OpEq, "":
		v := value(c.Value)
		if _, isMap := v.(map[string]any); isMap {
			return datastore.Query{field: map[string]any{"$eq": v}}, nil
		}
		return datastore.Query{field: v}, nil
	case types.OpNe:
		return datastore.Query{field: map[string]any{"$ne": value(c.Value)}}, nil
	case types.OpLt, types.OpLte, types.OpGt, types.OpGte:
		v := value(c.Value)
		if _, isString := v.(string); !isString && !isNumber(v) {
			return nil, invalid(path, "%s needs a number, string or time, got %T", c.Op, c.Value)
		}
		return datastore.Query{field: map[string]any{"$" + string(c.Op): v}}, nil
	case types.OpIn, types.OpNin:
		list, ok := asList(c.Value)
		if !ok {
			return nil, invalid(path, "%s needs a list, got %T", c.Op, c.Value)
		}
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = value(v)
		}
		return datastore.Query{field: map[string]any{"$" + string(c.Op): out}}, nil
	case types.OpLike, types.OpContains, types.OpStartsWith, types.OpEndsWith:
		s, ok := c.Value.(string)
		if !ok {
			return nil, invalid(path, "%s needs a string, got %T", c.Op, c.Value)
		}
		return datastore.Query{field: map[string]any{"$regex": pattern(c.Op, s)}}, nil
	case types.OpExists:
		b, ok := c.Value.(bool)
		if !ok {
			return nil, invalid(path, "exists needs a boolean, got %T", c.Value)
		}
		return datastore.Query{field: map[string]any{"$exists": b}}, nil
	}
	return nil, unknownOperator(path, string(c.Op))
}

// pattern builds a case-insensitive regular expression for text operators.
// For like, % matches any run of characters and _ matches one character.
func pattern(op types.Operator, s string) string {
	switch op {
	case types.OpLike:
		var b strings.Builder
		for _, r := range s {
			switch r {
			case '%':
				b.WriteString(".*")
			case '_':
				b.WriteByte('.')
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		return "(?is)^" + b.String() + "$"
	case types.OpStartsWith:
		return "(?i)^" + regexp.QuoteMeta(s)
	case types.OpEndsWith:
		return "(?i)" + regexp.QuoteMeta(s) + "$"
	}
	return "(?i)" + regexp.QuoteMeta(s)
}

// scalar converts times to the RFC3339Nano strings stored documents hold.
func scalar(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format(time.RFC3339Nano)
	}
	return v
}

func isNumber(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// asList accepts any slice or array and returns its elements.
func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
