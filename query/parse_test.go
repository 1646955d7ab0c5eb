package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nedb-adapter/types"
)

func TestParse_Empty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, types.Criteria{}, c)
}

func TestParse_ImplicitWhere(t *testing.T) {
	c, err := Parse(map[string]any{"ownerId": "A1", "limit": 2})
	require.NoError(t, err)

	assert.Equal(t, types.Eq("ownerId", "A1"), c.Where)
	require.NotNil(t, c.Limit)
	assert.Equal(t, 2, *c.Limit)
}

func TestParse_WhereShapes(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]any
		want  types.Node
	}{
		{
			name:  "scalar is equality",
			where: map[string]any{"name": "Rex"},
			want:  types.Eq("name", "Rex"),
		},
		{
			name:  "list is in",
			where: map[string]any{"name": []any{"Rex", "Fido"}},
			want:  types.Cmp("name", types.OpIn, []any{"Rex", "Fido"}),
		},
		{
			name:  "operator aliases",
			where: map[string]any{"age": map[string]any{">": 2, "lessThanOrEqual": 9}},
			want: types.And{Nodes: []types.Node{
				types.Cmp("age", types.OpGt, 2),
				types.Cmp("age", types.OpLte, 9),
			}},
		},
		{
			name:  "not with a list is nin",
			where: map[string]any{"name": map[string]any{"!": []any{"Rex"}}},
			want:  types.Cmp("name", types.OpNin, []any{"Rex"}),
		},
		{
			name:  "not with a scalar is ne",
			where: map[string]any{"name": map[string]any{"not": "Rex"}},
			want:  types.Cmp("name", types.OpNe, "Rex"),
		},
		{
			name:  "fields are joined in key order",
			where: map[string]any{"b": 2, "a": 1},
			want:  types.And{Nodes: []types.Node{types.Eq("a", 1), types.Eq("b", 2)}},
		},
		{
			name: "or and not",
			where: map[string]any{
				"or":  []any{map[string]any{"name": "Rex"}, map[string]any{"age": map[string]any{"<": 2}}},
				"not": map[string]any{"ownerId": nil},
			},
			want: types.And{Nodes: []types.Node{
				types.Not{Node: types.Eq("ownerId", nil)},
				types.Or{Nodes: []types.Node{types.Eq("name", "Rex"), types.Cmp("age", types.OpLt, 2)}},
			}},
		},
		{
			name:  "text operators",
			where: map[string]any{"name": map[string]any{"startsWith": "R", "contains": "e"}},
			want: types.And{Nodes: []types.Node{
				types.Cmp("name", types.OpContains, "e"),
				types.Cmp("name", types.OpStartsWith, "R"),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(map[string]any{"where": tt.where})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Where)
		})
	}
}

func TestParse_Sort(t *testing.T) {
	tests := []struct {
		name string
		sort any
		want []types.SortClause
	}{
		{"string", "age DESC, name", []types.SortClause{{Field: "age", Descending: true}, {Field: "name"}}},
		{"lowercase direction", "age asc", []types.SortClause{{Field: "age"}}},
		{"single key map", map[string]any{"age": -1}, []types.SortClause{{Field: "age", Descending: true}}},
		{"float direction", map[string]any{"age": 1.0}, []types.SortClause{{Field: "age"}}},
		{"list of maps", []any{map[string]any{"age": "desc"}, map[string]any{"name": 1}}, []types.SortClause{{Field: "age", Descending: true}, {Field: "name"}}},
		{"list of strings", []string{"age DESC", "name ASC"}, []types.SortClause{{Field: "age", Descending: true}, {Field: "name"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(map[string]any{"sort": tt.sort})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Sort)
		})
	}
}

func TestParse_SelectIsDiscarded(t *testing.T) {
	c, err := Parse(map[string]any{"where": map[string]any{"name": "Rex"}, "select": []any{"name"}})
	require.NoError(t, err)
	assert.Nil(t, c.Select)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		unknown bool
	}{
		{"where not an object", map[string]any{"where": "name = 1"}, false},
		{"stray key next to where", map[string]any{"where": map[string]any{}, "name": "Rex"}, false},
		{"unknown operator", map[string]any{"where": map[string]any{"age": map[string]any{"between": 1}}}, true},
		{"empty operator object", map[string]any{"where": map[string]any{"age": map[string]any{}}}, false},
		{"or needs a list", map[string]any{"where": map[string]any{"or": map[string]any{"a": 1}}}, false},
		{"empty or", map[string]any{"where": map[string]any{"or": []any{}}}, false},
		{"or item not an object", map[string]any{"where": map[string]any{"or": []any{1}}}, false},
		{"ambiguous sort map", map[string]any{"sort": map[string]any{"a": 1, "b": -1}}, false},
		{"bad sort direction", map[string]any{"sort": "a SIDEWAYS"}, false},
		{"bad sort value", map[string]any{"sort": 3}, false},
		{"fractional limit", map[string]any{"limit": 1.5}, false},
		{"string skip", map[string]any{"skip": "2"}, false},
		{"negative skip", map[string]any{"skip": -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCriteria)
			if tt.unknown {
				assert.ErrorIs(t, err, ErrUnknownOperator)
			}
		})
	}
}

func TestIntegral(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
		ok   bool
	}{
		{"int", 3, 3, true},
		{"whole float", 4.0, 4, true},
		{"fraction", 4.5, 0, false},
		{"largest exact float below 2^63", float64(1 << 62), 1 << 62, true},
		{"2^63 overflows", math.Pow(2, 63), 0, false},
		{"-2^63 is out of range", -math.Pow(2, 63), 0, false},
		{"huge uint", uint64(math.MaxUint64), 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := integral(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	_, err := Parse(map[string]any{"limit": math.Pow(2, 63)})
	require.ErrorIs(t, err, ErrInvalidCriteria)
	assert.Contains(t, err.Error(), "must be an integer")
}

func TestParse_ThenTranslate(t *testing.T) {
	c, err := Parse(map[string]any{
		"where": map[string]any{"id": []any{1, "2"}},
		"sort":  "id DESC",
		"skip":  1.0,
	})
	require.NoError(t, err)

	tr, err := NewTranslator("id").Translate(c)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_id": map[string]any{"$in": []any{"1", "2"}}}, tr.Filter)
	require.Len(t, tr.Modifiers, 2)
	assert.Equal(t, "_id", tr.Modifiers[0].Sort[0].Field)
	assert.Equal(t, Modifier{Kind: SkipModifier, N: 1}, tr.Modifiers[1])
}
