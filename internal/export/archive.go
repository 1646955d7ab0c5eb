package export

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
)

// WriteArchive writes data to w as a zip: manifest.json first, then one
// JSON file per model.
func WriteArchive(w io.Writer, data *Data) error {
	zw := zip.NewWriter(w)
	modified := data.Manifest.ExportedAt
	if err := addJSON(zw, ManifestFilename, modified, data.Manifest); err != nil {
		return err
	}
	for _, m := range data.Models {
		if err := addJSON(zw, m.Filename, modified, m.Records); err != nil {
			return fmt.Errorf("failed to add %s: %w", m.Model, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func addJSON(zw *zip.Writer, name string, modified time.Time, v any) error {
	writer, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s in zip: %w", name, err)
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if _, err := writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ReadArchive parses an archive written by WriteArchive.
func ReadArchive(r io.ReaderAt, size int64) (*Data, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	data := &Data{}
	mf, ok := files[ManifestFilename]
	if !ok {
		return nil, fmt.Errorf("archive has no %s", ManifestFilename)
	}
	if err := readJSON(mf, &data.Manifest); err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name == ManifestFilename {
			continue
		}
		model := ""
		for name, entry := range data.Manifest.Models {
			if entry.Filename == f.Name {
				model = name
				break
			}
		}
		if model == "" {
			return nil, fmt.Errorf("archive entry %s is not in the manifest", f.Name)
		}
		file := ModelFile{Model: model, Filename: f.Name}
		if err := readJSON(f, &file.Records); err != nil {
			return nil, err
		}
		data.Models = append(data.Models, file)
	}
	return data, nil
}

func readJSON(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", f.Name, err)
	}
	return nil
}
