package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/goccy/go-json"

	"github.com/arthur-debert/nedb-adapter/adapter"
	"github.com/arthur-debert/nedb-adapter/types"
)

// Connection is the identity every fixture connection is registered under.
const Connection = "default"

// OwnerSchema flags "id" as primary key explicitly; PetSchema relies on the
// default.
func OwnerSchema() types.Schema {
	return types.Schema{
		"id":    {Type: "string", PrimaryKey: true},
		"name":  {Type: "string", Required: true},
		"email": {Type: "string", Unique: true},
	}
}

func PetSchema() types.Schema {
	return types.Schema{
		"name":    {Type: "string", Index: true},
		"species": {Type: "string", Index: true},
		"age":     {Type: "number"},
		"ownerId": {Type: "string", Index: true},
		"tag":     {Type: "string", Unique: true},
	}
}

// Models returns the Owner and Pet definitions.
func Models() []adapter.ModelDefinition {
	return []adapter.ModelDefinition{
		{Name: "Owner", Attributes: OwnerSchema()},
		{Name: "Pet", Attributes: PetSchema()},
	}
}

// NewAdapter registers the fixture models on a fresh directory and tears the
// connection down when the test ends. It returns the adapter and the
// connection's dbPath.
func NewAdapter(t *testing.T, opts ...adapter.Option) (*adapter.Adapter, string) {
	t.Helper()
	dir := t.TempDir()
	a := adapter.New(opts...)
	cfg := adapter.ConnectionConfig{Identity: Connection, DBPath: dir}
	if err := a.RegisterConnection(context.Background(), cfg, Models()); err != nil {
		t.Fatalf("failed to register connection: %v", err)
	}
	t.Cleanup(func() { _ = a.Teardown(context.Background(), "") })
	return a, dir
}

// fixturePath locates testdata/universe.json from this file, so tests in any
// package directory can load it.
func fixturePath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "testdata", "universe.json")
}

// Universe gives named access to the fixture records as stored.
type Universe struct {
	Alice, Bob, Carol types.Record

	Rex, Tom, Fido, Nemo, Bella types.Record

	Owners map[string]types.Record // by id
	Pets   map[string]types.Record // by id
}

type fixtureData struct {
	Owners []types.Record `json:"owners"`
	Pets   []types.Record `json:"pets"`
}

// LoadUniverse returns an adapter whose default connection holds the
// records from testdata/universe.json.
func LoadUniverse(t *testing.T, opts ...adapter.Option) (*adapter.Adapter, *Universe) {
	t.Helper()
	a, _ := NewAdapter(t, opts...)

	data, err := os.ReadFile(fixturePath())
	if err != nil {
		t.Fatalf("failed to read fixture file: %v", err)
	}
	var fixture fixtureData
	if err := json.Unmarshal(data, &fixture); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	ctx := context.Background()
	owners, err := a.CreateEach(ctx, Connection, "Owner", fixture.Owners)
	if err != nil {
		t.Fatalf("failed to load owners: %v", err)
	}
	pets, err := a.CreateEach(ctx, Connection, "Pet", fixture.Pets)
	if err != nil {
		t.Fatalf("failed to load pets: %v", err)
	}

	u := &Universe{
		Owners: make(map[string]types.Record),
		Pets:   make(map[string]types.Record),
	}
	for _, rec := range owners {
		u.Owners[rec["id"].(string)] = rec
		switch rec["name"] {
		case "Alice":
			u.Alice = rec
		case "Bob":
			u.Bob = rec
		case "Carol":
			u.Carol = rec
		}
	}
	for _, rec := range pets {
		u.Pets[rec["id"].(string)] = rec
		switch rec["name"] {
		case "Rex":
			u.Rex = rec
		case "Tom":
			u.Tom = rec
		case "Fido":
			u.Fido = rec
		case "Nemo":
			u.Nemo = rec
		case "Bella Rose":
			u.Bella = rec
		}
	}
	return a, u
}

// PetsOf returns the ids of the pets owned by ownerID, sorted.
func (u *Universe) PetsOf(ownerID string) []string {
	var ids []string
	for id, rec := range u.Pets {
		if rec["ownerId"] == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// PetsWhere returns the ids of pets for which keep is true, sorted.
func (u *Universe) PetsWhere(keep func(types.Record) bool) []string {
	var ids []string
	for id, rec := range u.Pets {
		if keep(rec) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
