package adapter

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/types"
)

func TestToStoreFromStoreRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pk   string
		rec  types.Record
		want types.Record
	}{
		{
			name: "string id",
			pk:   "id",
			rec:  types.Record{"id": "p1", "name": "Rex"},
			want: types.Record{"id": "p1", "name": "Rex"},
		},
		{
			name: "numeric id is stringified",
			pk:   "id",
			rec:  types.Record{"id": 42, "name": "Rex"},
			want: types.Record{"id": "42", "name": "Rex"},
		},
		{
			name: "custom primary key",
			pk:   "code",
			rec:  types.Record{"code": "X9", "name": "Rex"},
			want: types.Record{"code": "X9", "name": "Rex"},
		},
		{
			name: "no id",
			pk:   "id",
			rec:  types.Record{"name": "Rex"},
			want: types.Record{"name": "Rex"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromStore(ToStore(tt.rec, tt.pk), tt.pk)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToStore(t *testing.T) {
	rec := types.Record{"id": 7, "name": "Rex", "_id": "stale"}
	doc := ToStore(rec, "id")

	want := datastore.Document{"_id": "7", "name": "Rex"}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("ToStore mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(types.Record{"id": 7, "name": "Rex", "_id": "stale"}, rec); diff != "" {
		t.Errorf("input record was modified (-want +got):\n%s", diff)
	}

	for _, id := range []any{nil, ""} {
		t.Run(fmt.Sprintf("id %#v is left for the store", id), func(t *testing.T) {
			doc := ToStore(types.Record{"id": id, "name": "Rex"}, "id")
			if diff := cmp.Diff(datastore.Document{"name": "Rex"}, doc); diff != "" {
				t.Errorf("ToStore mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromStore(t *testing.T) {
	doc := datastore.Document{"_id": "p1", "name": "Rex"}
	rec := FromStore(doc, "id")

	if _, ok := rec["_id"]; ok {
		t.Error("store identifier leaked into record")
	}
	if rec["id"] != "p1" {
		t.Errorf("id = %v, want p1", rec["id"])
	}
	if _, ok := doc["id"]; ok {
		t.Error("input document was modified")
	}

	again := FromStore(datastore.Document(rec), "id")
	if diff := cmp.Diff(rec, again); diff != "" {
		t.Errorf("second FromStore changed the record (-want +got):\n%s", diff)
	}
}
