package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nedb-adapter/adapter"
	"github.com/arthur-debert/nedb-adapter/testutil"
	"github.com/arthur-debert/nedb-adapter/types"
)

var exportTime = time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

func TestGenerate(t *testing.T) {
	a, u := testutil.LoadUniverse(t)
	lookup := a.Lookup(testutil.Connection)

	data, err := Generate(context.Background(), lookup, Options{
		Connection: testutil.Connection,
		Models:     []string{"Owner", "Pet", "Owner"},
		Now:        exportTime,
	})
	if err != nil {
		t.Fatal(err)
	}

	if data.ArchiveFilename != "nedb-default-20240309-143005.zip" {
		t.Errorf("archive filename = %q", data.ArchiveFilename)
	}
	wantManifest := Manifest{
		Connection: "default",
		ExportedAt: exportTime,
		Models: map[string]ModelEntry{
			"Owner": {Filename: "Owner.json", PrimaryKey: "id", Records: len(u.Owners)},
			"Pet":   {Filename: "Pet.json", PrimaryKey: "id", Records: len(u.Pets)},
		},
	}
	if diff := cmp.Diff(wantManifest, data.Manifest); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
	if len(data.Models) != 2 || data.Models[0].Model != "Owner" || data.Models[1].Model != "Pet" {
		t.Fatalf("unexpected model order: %+v", data.Models)
	}
	testutil.AssertIDs(t, data.Models[1].Records, "p1", "p2", "p3", "p4", "p5")
}

func TestGenerateWithCriteria(t *testing.T) {
	a, _ := testutil.LoadUniverse(t)

	data, err := Generate(context.Background(), a.Lookup(testutil.Connection), Options{
		Connection: testutil.Connection,
		Models:     []string{"Pet"},
		Criteria:   types.Where(types.Eq("species", "dog")),
		Now:        exportTime,
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertIDs(t, data.Models[0].Records, "p1", "p3", "p5")
	if data.Manifest.Models["Pet"].Records != 3 {
		t.Errorf("manifest count = %d, want 3", data.Manifest.Models["Pet"].Records)
	}
}

func TestGenerateErrors(t *testing.T) {
	a, _ := testutil.NewAdapter(t)
	lookup := a.Lookup(testutil.Connection)

	if _, err := Generate(context.Background(), lookup, Options{}); err == nil {
		t.Error("expected error without models")
	}
	_, err := Generate(context.Background(), lookup, Options{Models: []string{"Cat"}})
	if !errors.Is(err, adapter.ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	a, _ := testutil.LoadUniverse(t)
	data, err := Generate(context.Background(), a.Lookup(testutil.Connection), Options{
		Connection: testutil.Connection,
		Models:     []string{"Owner", "Pet"},
		Now:        exportTime,
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteArchive(&buf, data); err != nil {
		t.Fatal(err)
	}
	got, err := ReadArchive(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(data.Manifest, got.Manifest); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(data.Models, got.Models); diff != "" {
		t.Errorf("models mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"default", "default"},
		{"my shelter", "my-shelter"},
		{"a/b\\c", "abc"},
		{"--x--", "x"},
		{"", "export"},
		{"!!!", "export"},
		{"ünïcode ok", "ünïcode-ok"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in, "export"); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
