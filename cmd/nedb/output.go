package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// render writes v in the configured format.
func (cli *CLI) render(v any) error {
	return writeValue(cli.out, cli.v.GetString(keyFormat), v)
}

func writeValue(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	}
	return NewConfigError("write output", fmt.Sprintf("unknown format %q", format), "Use --format json or --format yaml")
}
