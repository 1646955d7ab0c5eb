package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/types"
)

func TestNormalizeSchema(t *testing.T) {
	raw := types.Schema{
		"id":   {Type: "number", PrimaryKey: true, AutoIncrement: true},
		"name": {Type: "string", Index: true},
	}
	got := NormalizeSchema(raw)

	want := types.Schema{
		"id":   {Type: "number", PrimaryKey: true},
		"name": {Type: "string", Index: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
	if !raw["id"].AutoIncrement {
		t.Error("input schema was modified")
	}
}

func TestPrimaryKeyName(t *testing.T) {
	tests := []struct {
		name   string
		schema types.Schema
		want   string
	}{
		{"default", types.Schema{"name": {Type: "string"}}, "id"},
		{"flagged", types.Schema{"code": {PrimaryKey: true}, "name": {}}, "code"},
		{"empty schema", types.Schema{}, "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrimaryKeyName(tt.schema); got != tt.want {
				t.Errorf("PrimaryKeyName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIndexPlan(t *testing.T) {
	schema := types.Schema{
		"id":      {PrimaryKey: true, Unique: true},
		"email":   {Unique: true, Index: true},
		"ownerId": {Index: true},
		"age":     {Type: "number"},
	}
	col := newCollection("Pet", schema, datastore.New(), zerolog.Nop(), nil)

	want := []datastore.IndexOptions{
		{FieldName: "email", Unique: true, Sparse: true},
		{FieldName: "ownerId"},
	}
	if diff := cmp.Diff(want, col.indexPlan()); diff != "" {
		t.Errorf("index plan mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildIndexIsIdempotent(t *testing.T) {
	schema := types.Schema{
		"tag":     {Unique: true},
		"ownerId": {Index: true},
	}
	db := datastore.New()
	col := newCollection("Pet", schema, db, zerolog.Nop(), nil)
	ctx := context.Background()

	if err := col.BuildIndex(ctx); err != nil {
		t.Fatalf("first BuildIndex: %v", err)
	}
	if err := col.BuildIndex(ctx); err != nil {
		t.Fatalf("second BuildIndex: %v", err)
	}

	want := []datastore.IndexOptions{
		{FieldName: "_id", Unique: true},
		{FieldName: "ownerId"},
		{FieldName: "tag", Unique: true, Sparse: true},
	}
	if diff := cmp.Diff(want, db.Indexes()); diff != "" {
		t.Errorf("indexes mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildIndexReportsViolation(t *testing.T) {
	db := datastore.New()
	ctx := context.Background()
	if _, err := db.Insert(ctx, datastore.Document{"tag": "T"}, datastore.Document{"tag": "T"}); err != nil {
		t.Fatal(err)
	}
	col := newCollection("Pet", types.Schema{"tag": {Unique: true}}, db, zerolog.Nop(), nil)

	err := col.BuildIndex(ctx)
	if !errors.Is(err, datastore.ErrConstraintViolated) {
		t.Fatalf("expected ErrConstraintViolated, got %v", err)
	}
	if len(db.Indexes()) != 1 {
		t.Errorf("expected only the _id index, got %v", db.Indexes())
	}
}
