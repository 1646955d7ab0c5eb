// Package export snapshots the models of a connection into a zip archive.
//
// Exporting happens in two steps so the first can be tested without a file
// system:
//  1. Generate collects records through the lookup contract into Data.
//  2. WriteArchive serializes Data as a zip stream.
package export

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/arthur-debert/nedb-adapter/adapter"
	"github.com/arthur-debert/nedb-adapter/types"
)

// ManifestFilename names the archive entry describing the export.
const ManifestFilename = "manifest.json"

// Data is everything an archive will contain.
type Data struct {
	ArchiveFilename string      `json:"archiveFilename"`
	Manifest        Manifest    `json:"manifest"`
	Models          []ModelFile `json:"models"`
}

// Manifest is written as manifest.json.
type Manifest struct {
	Connection string                `json:"connection"`
	ExportedAt time.Time             `json:"exportedAt"`
	Models     map[string]ModelEntry `json:"models"`
}

// ModelEntry summarizes one exported model.
type ModelEntry struct {
	Filename   string `json:"filename"`
	PrimaryKey string `json:"primaryKey"`
	Records    int    `json:"records"`
}

// ModelFile is one model's records in ORM shape.
type ModelFile struct {
	Model    string         `json:"model"`
	Filename string         `json:"filename"`
	Records  []types.Record `json:"records"`
}

// Options selects what to export.
type Options struct {
	Connection string
	// Models to export, in archive order. Required.
	Models []string
	// Criteria filters every model. Sort, skip and limit apply per model.
	Criteria types.Criteria
	// Now stamps the manifest and archive name; zero means time.Now.
	Now time.Time
}

// Generate reads each model through lookup and assembles the export.
func Generate(ctx context.Context, lookup adapter.Lookup, opts Options) (*Data, error) {
	if len(opts.Models) == 0 {
		return nil, fmt.Errorf("no models to export")
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	data := &Data{
		ArchiveFilename: ArchiveFilename(opts.Connection, now),
		Manifest: Manifest{
			Connection: opts.Connection,
			ExportedAt: now.UTC(),
			Models:     make(map[string]ModelEntry, len(opts.Models)),
		},
	}
	for _, model := range opts.Models {
		if _, dup := data.Manifest.Models[model]; dup {
			continue
		}
		pk, err := lookup.PrimaryKeyName(model)
		if err != nil {
			return nil, err
		}
		recs, err := lookup.FindByCriteria(ctx, model, opts.Criteria)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", model, err)
		}
		file := ModelFile{Model: model, Filename: modelFilename(model), Records: recs}
		data.Models = append(data.Models, file)
		data.Manifest.Models[model] = ModelEntry{Filename: file.Filename, PrimaryKey: pk, Records: len(recs)}
	}
	return data, nil
}

// ArchiveFilename returns "nedb-<connection>-<UTC timestamp>.zip" with the
// connection name sanitized.
func ArchiveFilename(connection string, now time.Time) string {
	return fmt.Sprintf("nedb-%s-%s.zip", sanitize(connection, "export"), now.UTC().Format("20060102-150405"))
}

func modelFilename(model string) string {
	return sanitize(model, "model") + ".json"
}

var dashes = regexp.MustCompile("-+")

// sanitize keeps letters, digits, dash and underscore, turns spaces into
// dashes and truncates to 40 bytes. fallback replaces an empty result.
func sanitize(name, fallback string) string {
	name = strings.ReplaceAll(name, " ", "-")
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	out := strings.Trim(dashes.ReplaceAllString(b.String(), "-"), "-")
	if len(out) > 40 {
		out = out[:40]
	}
	if out == "" {
		return fallback
	}
	return out
}
