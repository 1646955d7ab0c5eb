package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/types"
)

func TestTranslate_EmptyCriteriaMatchesAll(t *testing.T) {
	tr, err := NewTranslator("id").Translate(types.Criteria{})
	require.NoError(t, err)

	assert.Equal(t, datastore.Query{}, tr.Filter)
	assert.Empty(t, tr.Modifiers)
}

func TestTranslate_Comparisons(t *testing.T) {
	born := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		node types.Node
		want datastore.Query
	}{
		{"eq", types.Eq("name", "Rex"), datastore.Query{"name": "Rex"}},
		{"eq null", types.Eq("name", nil), datastore.Query{"name": nil}},
		{"eq object", types.Eq("owner", map[string]any{"a": 1}), datastore.Query{"owner": map[string]any{"$eq": map[string]any{"a": 1}}}},
		{"ne", types.Cmp("name", types.OpNe, "Rex"), datastore.Query{"name": map[string]any{"$ne": "Rex"}}},
		{"lt", types.Cmp("age", types.OpLt, 3), datastore.Query{"age": map[string]any{"$lt": 3}}},
		{"lte", types.Cmp("age", types.OpLte, 3), datastore.Query{"age": map[string]any{"$lte": 3}}},
		{"gt", types.Cmp("age", types.OpGt, 2.5), datastore.Query{"age": map[string]any{"$gt": 2.5}}},
		{"gte time", types.Cmp("born", types.OpGte, born), datastore.Query{"born": map[string]any{"$gte": "2021-06-01T12:00:00Z"}}},
		{"in", types.Cmp("name", types.OpIn, []string{"a", "b"}), datastore.Query{"name": map[string]any{"$in": []any{"a", "b"}}}},
		{"nin", types.Cmp("name", types.OpNin, []any{"a"}), datastore.Query{"name": map[string]any{"$nin": []any{"a"}}}},
		{"like", types.Cmp("name", types.OpLike, "r_x%"), datastore.Query{"name": map[string]any{"$regex": "(?is)^r.x.*$"}}},
		{"like quotes metacharacters", types.Cmp("name", types.OpLike, "a.b%"), datastore.Query{"name": map[string]any{"$regex": `(?is)^a\.b.*$`}}},
		{"contains", types.Cmp("name", types.OpContains, "e+"), datastore.Query{"name": map[string]any{"$regex": `(?i)e\+`}}},
		{"startsWith", types.Cmp("name", types.OpStartsWith, "Re"), datastore.Query{"name": map[string]any{"$regex": "(?i)^Re"}}},
		{"endsWith", types.Cmp("name", types.OpEndsWith, "ex"), datastore.Query{"name": map[string]any{"$regex": "(?i)ex$"}}},
		{"exists", types.Cmp("name", types.OpExists, false), datastore.Query{"name": map[string]any{"$exists": false}}},
		{"pointer comparison", &types.Comparison{Field: "a", Op: types.OpEq, Value: 1}, datastore.Query{"a": 1}},
	}

	tl := NewTranslator("id")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := tl.Translate(types.Where(tt.node))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, tr.Filter); diff != "" {
				t.Errorf("filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTranslate_PrimaryKeyMapsToStoreID(t *testing.T) {
	tl := NewTranslator("code")

	tr, err := tl.Translate(types.Criteria{
		Where: types.Or{Nodes: []types.Node{
			types.Eq("code", 42),
			types.Cmp("code", types.OpIn, []int{1, 2}),
		}},
		Sort: []types.SortClause{{Field: "code", Descending: true}},
	})
	require.NoError(t, err)

	want := datastore.Query{"$or": []any{
		datastore.Query{"_id": "42"},
		datastore.Query{"_id": map[string]any{"$in": []any{"1", "2"}}},
	}}
	if diff := cmp.Diff(want, tr.Filter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, tr.Modifiers, 1)
	assert.Equal(t, []datastore.SortField{{Field: "_id", Order: -1}}, tr.Modifiers[0].Sort)
}

func TestTranslate_LogicalNodes(t *testing.T) {
	tr, err := NewTranslator("id").Translate(types.Where(types.And{Nodes: []types.Node{
		types.Cmp("age", types.OpGt, 2),
		types.Not{Node: types.Eq("name", "Rex")},
	}}))
	require.NoError(t, err)

	want := datastore.Query{"$and": []any{
		datastore.Query{"age": map[string]any{"$gt": 2}},
		datastore.Query{"$nor": []any{datastore.Query{"name": "Rex"}}},
	}}
	if diff := cmp.Diff(want, tr.Filter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslate_ModifiersAreOrdered(t *testing.T) {
	tr, err := NewTranslator("id").Translate(types.Criteria{
		Limit:  types.IntPtr(5),
		Skip:   types.IntPtr(2),
		Sort:   []types.SortClause{{Field: "age"}, {Field: "name", Descending: true}},
		Select: []string{"name"},
	})
	require.NoError(t, err)
	require.Len(t, tr.Modifiers, 3)

	assert.Equal(t, SortModifier, tr.Modifiers[0].Kind)
	assert.Equal(t, []datastore.SortField{{Field: "age", Order: 1}, {Field: "name", Order: -1}}, tr.Modifiers[0].Sort)
	assert.Equal(t, Modifier{Kind: SkipModifier, N: 2}, tr.Modifiers[1])
	assert.Equal(t, Modifier{Kind: LimitModifier, N: 5}, tr.Modifiers[2])
}

func TestTranslate_SelectIsIgnored(t *testing.T) {
	tl := NewTranslator("id")
	base := types.Where(types.Eq("name", "Rex"))
	withSelect := base
	withSelect.Select = []string{"name", "age"}

	a, err := tl.Translate(base)
	require.NoError(t, err)
	b, err := tl.Translate(withSelect)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestTranslate_Deterministic(t *testing.T) {
	tl := NewTranslator("id")
	c := types.Criteria{
		Where: types.Or{Nodes: []types.Node{types.Eq("a", 1), types.Cmp("b", types.OpLike, "x%")}},
		Sort:  []types.SortClause{{Field: "a"}},
		Limit: types.IntPtr(3),
	}
	first, err := tl.Translate(c)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := tl.Translate(c)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("translation changed on run %d:\n%s", i, diff)
		}
	}
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		criteria types.Criteria
		path     string
		unknown  bool
	}{
		{"unknown operator", types.Where(types.Cmp("age", "between", 1)), "where.age", true},
		{"empty field", types.Where(types.Eq("", 1)), "where", false},
		{"empty and", types.Where(types.And{}), "where.and", false},
		{"nil child", types.Where(types.Or{Nodes: []types.Node{nil}}), "where.or[0]", false},
		{"in needs a list", types.Where(types.Cmp("a", types.OpIn, "x")), "where.a", false},
		{"range needs a scalar", types.Where(types.Cmp("a", types.OpGt, true)), "where.a", false},
		{"like needs a string", types.Where(types.Cmp("a", types.OpLike, 3)), "where.a", false},
		{"exists needs a bool", types.Where(types.Cmp("a", types.OpExists, "yes")), "where.a", false},
		{"negative skip", types.Criteria{Skip: types.IntPtr(-1)}, "skip", false},
		{"negative limit", types.Criteria{Limit: types.IntPtr(-1)}, "limit", false},
		{"empty sort field", types.Criteria{Sort: []types.SortClause{{}}}, "sort[0]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTranslator("id").Translate(tt.criteria)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCriteria)

			var terr *TranslationError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.path, terr.Path)
			if tt.unknown {
				assert.ErrorIs(t, err, ErrUnknownOperator)
			} else {
				assert.NotErrorIs(t, err, ErrUnknownOperator)
			}
		})
	}
}

func TestTranslate_FilterRunsOnDatastore(t *testing.T) {
	ctx := context.Background()
	ds := datastore.New(datastore.WithInMemoryOnly(true))
	require.NoError(t, ds.LoadDatabase(ctx))
	_, err := ds.Insert(ctx,
		datastore.Document{"_id": "1", "name": "Rex", "age": 3},
		datastore.Document{"_id": "2", "name": "rexy", "age": 5},
		datastore.Document{"_id": "3", "name": "Fido", "age": 1},
	)
	require.NoError(t, err)

	tl := NewTranslator("id")
	tr, err := tl.Translate(types.Criteria{
		Where: types.Cmp("name", types.OpStartsWith, "REX"),
		Sort:  []types.SortClause{{Field: "age", Descending: true}},
		Limit: types.IntPtr(1),
	})
	require.NoError(t, err)

	cur := ds.Find(tr.Filter)
	for _, m := range tr.Modifiers {
		cur = m.Apply(cur)
	}
	docs, err := cur.Exec(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "rexy", docs[0]["name"])

	byID, err := tl.Filter(types.Where(types.Eq("id", 3)))
	require.NoError(t, err)
	n, err := ds.Count(ctx, byID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
