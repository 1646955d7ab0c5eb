package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/internal/export"
)

const testConfig = `connection:
  identity: shelter
models:
  - name: Pet
    attributes:
      name: {type: string, index: true}
      age: {type: number}
      ownerId: {type: string, index: true}
      tag: {type: string, unique: true}
  - name: Owner
    attributes:
      id: {type: string, primaryKey: true}
      name: {type: string}
`

// testEnv holds a config file and a data directory.
type testEnv struct {
	config string
	dbPath string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		config: filepath.Join(dir, "nedb.yaml"),
		dbPath: filepath.Join(dir, "data"),
	}
	if err := os.Mkdir(env.dbPath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.config, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cli := NewCLI(&out, &errOut)
	all := append([]string{"--config", e.config, "--db-path", e.dbPath}, args...)
	err := cli.Run(context.Background(), all)
	return out.String(), err
}

func (e testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("nedb %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("failed to decode output %q: %v", out, err)
	}
	return v
}

func TestCLIRecordLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := decode[[]map[string]any](t, env.mustRun(t, "create", "Pet", `{"name": "Rex", "age": 3, "ownerId": "A1"}`))
	if len(created) != 1 {
		t.Fatalf("expected 1 created record, got %d", len(created))
	}
	id, ok := created[0]["id"].(string)
	if !ok || id == "" {
		t.Fatalf("expected string id, got %#v", created[0]["id"])
	}

	found := decode[[]map[string]any](t, env.mustRun(t, "find", "Pet", "--where", `{"age": {">": 2}}`))
	if len(found) != 1 || found[0]["id"] != id {
		t.Fatalf("unexpected find result: %v", found)
	}
	if _, leaked := found[0]["_id"]; leaked {
		t.Error("store identifier leaked into output")
	}

	updated := decode[map[string]int](t, env.mustRun(t, "update", "Pet", "--where", `{"name": "Rex"}`, "--values", `{"age": 4}`))
	if updated["updated"] != 1 {
		t.Errorf("expected 1 updated, got %v", updated)
	}

	found = decode[[]map[string]any](t, env.mustRun(t, "find", "Pet"))
	if found[0]["age"] != float64(4) || found[0]["id"] != id {
		t.Errorf("unexpected record after update: %v", found[0])
	}

	destroyed := decode[map[string]int](t, env.mustRun(t, "destroy", "Pet", "--where", `{"name": "Rex"}`))
	if destroyed["destroyed"] != 1 {
		t.Errorf("expected 1 destroyed, got %v", destroyed)
	}

	count := decode[map[string]int](t, env.mustRun(t, "count", "Pet"))
	if count["count"] != 0 {
		t.Errorf("expected count 0, got %v", count)
	}
}

func TestCLIFindModifiers(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "create", "Pet", `[
		{"id": "p1", "name": "Rex", "age": 3},
		{"id": "p2", "name": "Tom", "age": 5},
		{"id": "p3", "name": "Fido", "age": 1},
		{"id": "p4", "name": "Nemo", "age": 2}
	]`)

	out := env.mustRun(t, "find", "Pet", "--sort", "age DESC", "--skip", "1", "--limit", "2")
	var ids []string
	for _, rec := range decode[[]map[string]any](t, out) {
		ids = append(ids, rec["id"].(string))
	}
	if diff := cmp.Diff([]string{"p1", "p4"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	count := decode[map[string]int](t, env.mustRun(t, "count", "Pet", "--where", `{"name": ["Rex", "Tom"]}`))
	if count["count"] != 2 {
		t.Errorf("expected count 2, got %v", count)
	}
}

func TestCLIDescribeAndReindex(t *testing.T) {
	env := newTestEnv(t)

	desc := decode[map[string]any](t, env.mustRun(t, "describe", "Owner"))
	if desc["primaryKey"] != "id" {
		t.Errorf("primaryKey = %v, want id", desc["primaryKey"])
	}
	if desc["file"] != filepath.Join(env.dbPath, "Owner.nedb") {
		t.Errorf("file = %v", desc["file"])
	}

	indexes := decode[[]datastore.IndexOptions](t, env.mustRun(t, "reindex", "Pet"))
	var fields []string
	for _, ix := range indexes {
		fields = append(fields, ix.FieldName)
	}
	if diff := cmp.Diff([]string{"_id", "name", "ownerId", "tag"}, fields); diff != "" {
		t.Errorf("indexes mismatch (-want +got):\n%s", diff)
	}
}

func TestCLIYAMLOutput(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "create", "Pet", `{"id": "p1", "name": "Rex"}`)

	out := env.mustRun(t, "--format", "yaml", "find", "Pet")
	var recs []map[string]any
	if err := yaml.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if len(recs) != 1 || recs[0]["name"] != "Rex" {
		t.Errorf("unexpected records: %v", recs)
	}
}

func TestCLIDrop(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "create", "Pet", `{"name": "Rex"}`)
	dataFile := filepath.Join(env.dbPath, "Pet.nedb")
	if _, err := os.Stat(dataFile); err != nil {
		t.Fatalf("expected data file: %v", err)
	}

	env.mustRun(t, "drop", "Pet")
	if _, err := os.Stat(dataFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected data file to be removed, stat error: %v", err)
	}
}

func TestCLIErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"malformed where", []string{"find", "Pet", "--where", "{nope"}, "invalid --where"},
		{"unknown operator", []string{"find", "Pet", "--where", `{"age": {"~": 1}}`}, "invalid criteria"},
		{"malformed record", []string{"create", "Pet", "[1]"}, "invalid record"},
		{"unique violation", []string{"create", "Pet", `[{"tag": "T"}, {"tag": "T"}]`}, "unique constraint violated"},
		{"bad format", []string{"--format", "xml", "count", "Pet"}, "unknown format"},
		{"bad log level", []string{"--log-level", "loud", "count", "Pet"}, "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	t.Run("missing dbPath", func(t *testing.T) {
		var out, errOut bytes.Buffer
		err := NewCLI(&out, &errOut).Run(context.Background(),
			[]string{"--config", env.config, "--db-path", filepath.Join(env.dbPath, "missing"), "count", "Pet"})
		var cliErr *CLIError
		if !errors.As(err, &cliErr) {
			t.Fatalf("expected CLIError, got %v", err)
		}
		if !strings.Contains(cliErr.Error(), "Suggestions:") {
			t.Errorf("expected suggestions in %q", cliErr.Error())
		}
	})
}

func TestCLIEnvironment(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("NEDB_DB_PATH", env.dbPath)
	t.Setenv("NEDB_FORMAT", "yaml")

	var out, errOut bytes.Buffer
	err := NewCLI(&out, &errOut).Run(context.Background(), []string{"--config", env.config, "count", "Pet"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "count: 0" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestCLIInMemory(t *testing.T) {
	var out, errOut bytes.Buffer
	err := NewCLI(&out, &errOut).Run(context.Background(), []string{"--in-memory", "create", "Pet", `{"name": "Rex"}`})
	if err != nil {
		t.Fatal(err)
	}
	recs := decode[[]map[string]any](t, out.String())
	if len(recs) != 1 || recs[0]["name"] != "Rex" {
		t.Errorf("unexpected records: %v", recs)
	}
}

func TestCLIExport(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "create", "Pet", `[{"id": "p1", "name": "Rex"}, {"id": "p2", "name": "Tom"}]`)
	env.mustRun(t, "create", "Owner", `{"id": "A1", "name": "Alice"}`)

	outDir := t.TempDir()
	result := decode[map[string]any](t, env.mustRun(t, "export", "--output", outDir))
	path, _ := result["archive"].(string)
	if filepath.Dir(path) != outDir || !strings.HasPrefix(filepath.Base(path), "nedb-shelter-") {
		t.Fatalf("unexpected archive path %q", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data, err := export.ReadArchive(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for name, entry := range data.Manifest.Models {
		counts[name] = entry.Records
	}
	if diff := cmp.Diff(map[string]int{"Owner": 1, "Pet": 2}, counts); diff != "" {
		t.Errorf("record counts mismatch (-want +got):\n%s", diff)
	}
}
