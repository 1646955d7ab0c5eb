package testutil

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nedb-adapter/types"
)

// IDs returns the pk values of recs in result order.
func IDs(recs []types.Record, pk string) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = fmt.Sprint(rec[pk])
	}
	return out
}

// AssertRecordCount fails the test when recs does not hold want records.
func AssertRecordCount(t *testing.T, recs []types.Record, want int, context string) {
	t.Helper()
	if len(recs) != want {
		t.Errorf("expected %d records %s, got %d", want, context, len(recs))
	}
}

// AssertIDs compares the "id" values of recs with want, in order.
func AssertIDs(t *testing.T, recs []types.Record, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	if diff := cmp.Diff(want, IDs(recs, types.DefaultPrimaryKey)); diff != "" {
		t.Errorf("record ids mismatch (-want +got):\n%s", diff)
	}
}

// AssertIDSet is AssertIDs ignoring order.
func AssertIDSet(t *testing.T, recs []types.Record, want ...string) {
	t.Helper()
	got := IDs(recs, types.DefaultPrimaryKey)
	sort.Strings(got)
	want = append([]string{}, want...)
	sort.Strings(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record id set mismatch (-want +got):\n%s", diff)
	}
}
