package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/nedb-adapter/adapter"
)

// modelsFile is the part of the config file viper cannot carry: viper
// lowercases keys, and attribute names are case sensitive.
type modelsFile struct {
	Models []adapter.ModelDefinition `yaml:"models"`
}

func (cli *CLI) loadModels() ([]adapter.ModelDefinition, error) {
	path := cli.v.ConfigFileUsed()
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var file modelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return file.Models, nil
}

func (cli *CLI) connectionConfig() adapter.ConnectionConfig {
	return adapter.ConnectionConfig{
		Identity:     cli.v.GetString(keyIdentity),
		DBPath:       cli.v.GetString(keyDBPath),
		InMemoryOnly: cli.v.GetBool(keyInMemory),
	}
}

// open registers the configured connection. Models named on the command
// line but missing from the config file are registered schemaless.
func (cli *CLI) open(ctx context.Context, operation string, models ...string) (*adapter.Adapter, string, error) {
	defs, err := cli.loadModels()
	if err != nil {
		return nil, "", NewConfigError(operation, err.Error(), CommonSuggestions.CheckConfig)
	}
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}
	for _, m := range models {
		if !known[m] {
			cli.logger.Debug().Str("model", m).Msg("model not in config, registering without schema")
			defs = append(defs, adapter.ModelDefinition{Name: m})
			known[m] = true
		}
	}

	cfg := cli.connectionConfig()
	a := adapter.New(adapter.WithLogger(cli.logger))
	if err := a.RegisterConnection(ctx, cfg, defs); err != nil {
		return nil, "", NewConfigError(operation, err.Error(),
			CommonSuggestions.CheckDBPath, CommonSuggestions.CheckConfig)
	}
	return a, cfg.Identity, nil
}
