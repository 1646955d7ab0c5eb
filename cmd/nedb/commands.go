package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/nedb-adapter/adapter"
	"github.com/arthur-debert/nedb-adapter/internal/export"
	"github.com/arthur-debert/nedb-adapter/query"
	"github.com/arthur-debert/nedb-adapter/types"
)

// withModel opens the connection, runs fn against it and tears the
// connection down again. models are registered even when the config file
// does not list them.
func (cli *CLI) withModel(cmd *cobra.Command, operation string, models []string, fn func(ctx context.Context, a *adapter.Adapter, conn string) error) error {
	ctx := cmd.Context()
	a, conn, err := cli.open(ctx, operation, models...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Teardown(context.Background(), ""); err != nil {
			cli.logger.Warn().Err(err).Msg("teardown failed")
		}
	}()
	if err := fn(ctx, a, conn); err != nil {
		if _, ok := err.(*CLIError); ok {
			return err
		}
		return NewStoreError(operation, err)
	}
	return nil
}

func parseObject(operation, field, raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, NewInputError(operation, field, err, CommonSuggestions.CheckJSON)
	}
	return m, nil
}

// criteriaFromFlags builds criteria from --where, --sort, --skip and --limit.
func criteriaFromFlags(cmd *cobra.Command, operation string) (types.Criteria, error) {
	where, _ := cmd.Flags().GetString("where")
	whereMap, err := parseObject(operation, "--where", where)
	if err != nil {
		return types.Criteria{}, err
	}
	raw := map[string]any{"where": whereMap}
	if f := cmd.Flags().Lookup("sort"); f != nil && f.Changed {
		raw["sort"] = f.Value.String()
	}
	for _, name := range []string{"skip", "limit"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			n, _ := cmd.Flags().GetInt(name)
			raw[name] = n
		}
	}
	c, err := query.Parse(raw)
	if err != nil {
		return types.Criteria{}, NewInputError(operation, "criteria", err, CommonSuggestions.CheckWhere)
	}
	return c, nil
}

func (cli *CLI) addFindCommand() {
	cmd := &cobra.Command{
		Use:   "find <model>",
		Short: "List records matching criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := criteriaFromFlags(cmd, "find records")
			if err != nil {
				return err
			}
			return cli.withModel(cmd, "find records", args[:1], func(ctx context.Context, a *adapter.Adapter, conn string) error {
				recs, err := a.Find(ctx, conn, args[0], criteria)
				if err != nil {
					return err
				}
				return cli.render(recs)
			})
		},
	}
	cmd.Flags().String("where", "", "Where clause as a JSON object")
	cmd.Flags().String("sort", "", `Sort order, e.g. "age DESC, name"`)
	cmd.Flags().Int("skip", 0, "Records to skip")
	cmd.Flags().Int("limit", 0, "Maximum records to return (0 for no limit)")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addCountCommand() {
	cmd := &cobra.Command{
		Use:   "count <model>",
		Short: "Count records matching criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := criteriaFromFlags(cmd, "count records")
			if err != nil {
				return err
			}
			return cli.withModel(cmd, "count records", args[:1], func(ctx context.Context, a *adapter.Adapter, conn string) error {
				n, err := a.Count(ctx, conn, args[0], criteria)
				if err != nil {
					return err
				}
				return cli.render(map[string]int{"count": n})
			})
		},
	}
	cmd.Flags().String("where", "", "Where clause as a JSON object")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addCreateCommand() {
	cmd := &cobra.Command{
		Use:   "create <model> <json>",
		Short: "Insert a record, or a JSON array of records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "create records"
			var payload any
			if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
				return NewInputError(op, "record", err, CommonSuggestions.CheckJSON)
			}
			var recs []types.Record
			switch p := payload.(type) {
			case map[string]any:
				recs = []types.Record{p}
			case []any:
				for i, item := range p {
					m, ok := item.(map[string]any)
					if !ok {
						return NewInputError(op, "record", fmt.Errorf("element %d is %T, not an object", i, item))
					}
					recs = append(recs, m)
				}
			default:
				return NewInputError(op, "record", fmt.Errorf("expected an object or array, got %T", payload))
			}
			return cli.withModel(cmd, op, args[:1], func(ctx context.Context, a *adapter.Adapter, conn string) error {
				created, err := a.CreateEach(ctx, conn, args[0], recs)
				if err != nil {
					return err
				}
				return cli.render(created)
			})
		},
	}
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addUpdateCommand() {
	cmd := &cobra.Command{
		Use:   "update <model>",
		Short: "Set values on records matching criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "update records"
			criteria, err := criteriaFromFlags(cmd, op)
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetString("values")
			values, err := parseObject(op, "--values", raw)
			if err != nil {
				return err
			}
			return cli.withModel(cmd, op, args[:1], func(ctx context.Context, a *adapter.Adapter, conn string) error {
				n, err := a.Update(ctx, conn, args[0], criteria, values)
				if err != nil {
					return err
				}
				return cli.render(map[string]int{"updated": n})
			})
		},
	}
	cmd.Flags().String("where", "", "Where clause as a JSON object")
	cmd.Flags().String("values", "", "Values to set as a JSON object")
	_ = cmd.MarkFlagRequired("where")
	_ = cmd.MarkFlagRequired("values")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addDestroyCommand() {
	cmd := &cobra.Command{
		Use:   "destroy <model>",
		Short: "Remove records matching criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "destroy records"
			criteria, err := criteriaFromFlags(cmd, op)
			if err != nil {
				return err
			}
			return cli.withModel(cmd, op, args[:1], func(ctx context.Context, a *adapter.Adapter, conn string) error {
				n, err := a.Destroy(ctx, conn, args[0], criteria)
				if err != nil {
					return err
				}
				return cli.render(map[string]int{"destroyed": n})
			})
		},
	}
	cmd.Flags().String("where", "", `Where clause as a JSON object ('{}' removes everything)`)
	_ = cmd.MarkFlagRequired("where")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addDescribeCommand() {
	cmd := &cobra.Command{
		Use:   "describe <model>",
		Short: "Show a model's schema, primary key and indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withModel(cmd, "describe model", args[:1], func(ctx context.Context, a *adapter.Adapter, conn string) error {
				col, err := a.Collection(conn, args[0])
				if err != nil {
					return err
				}
				desc := map[string]any{
					"model":      col.Name(),
					"primaryKey": col.PrimaryKey(),
					"attributes": col.Schema(),
					"indexes":    col.Native().Indexes(),
					"file":       col.Native().Filename(),
				}
				return cli.render(desc)
			})
		},
	}
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addReindexCommand() {
	cmd := &cobra.Command{
		Use:   "reindex <model>",
		Short: "Create any indexes the model's schema declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withModel(cmd, "reindex model", args[:1], func(ctx context.Context, a *adapter.Adapter, conn string) error {
				if err := a.Define(ctx, conn, args[0]); err != nil {
					return err
				}
				db, err := a.Native(conn, args[0])
				if err != nil {
					return err
				}
				return cli.render(db.Indexes())
			})
		},
	}
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addExportCommand() {
	cmd := &cobra.Command{
		Use:   "export [model...]",
		Short: "Write models to a zip archive of JSON files",
		Long: `Export writes one JSON file per model plus manifest.json into a zip archive.
Without model arguments every model in the config file is exported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "export models"
			criteria, err := criteriaFromFlags(cmd, op)
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			return cli.withModel(cmd, op, args, func(ctx context.Context, a *adapter.Adapter, conn string) error {
				models := args
				if len(models) == 0 {
					c, err := a.Connection(conn)
					if err != nil {
						return err
					}
					models = c.Models()
				}
				data, err := export.Generate(ctx, a.Lookup(conn), export.Options{
					Connection: conn,
					Models:     models,
					Criteria:   criteria,
				})
				if err != nil {
					return err
				}
				path := output
				if path == "" {
					path = data.ArchiveFilename
				} else if info, err := os.Stat(path); err == nil && info.IsDir() {
					path = filepath.Join(path, data.ArchiveFilename)
				}
				if err := writeArchiveFile(path, data); err != nil {
					return err
				}
				return cli.render(map[string]any{"archive": path, "models": data.Manifest.Models})
			})
		},
	}
	cmd.Flags().String("where", "", "Where clause applied to every model")
	cmd.Flags().StringP("output", "o", "", "Archive path or directory (default ./nedb-<connection>-<time>.zip)")
	cli.rootCmd.AddCommand(cmd)
}

func writeArchiveFile(path string, data *export.Data) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()
	return export.WriteArchive(f, data)
}

func (cli *CLI) addDropCommand() {
	cmd := &cobra.Command{
		Use:   "drop <model>",
		Short: "Delete a model's data file and every record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withModel(cmd, "drop model", args[:1], func(ctx context.Context, a *adapter.Adapter, conn string) error {
				if err := a.Drop(ctx, conn, args[0]); err != nil {
					return err
				}
				return cli.render(map[string]string{"dropped": args[0]})
			})
		},
	}
	cli.rootCmd.AddCommand(cmd)
}
