package adapter

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/arthur-debert/nedb-adapter/types"
)

// DataFileExt is appended to the model name to form its data file.
const DataFileExt = ".nedb"

// ConnectionConfig describes where a connection keeps its data.
type ConnectionConfig struct {
	Identity string `json:"identity" yaml:"identity" mapstructure:"identity"`
	// DBPath is the directory holding one data file per model.
	DBPath string `json:"dbPath" yaml:"dbPath" mapstructure:"dbPath"`
	// InMemoryOnly skips the file system entirely; DBPath is not required.
	InMemoryOnly bool `json:"inMemoryOnly" yaml:"inMemoryOnly" mapstructure:"inMemoryOnly"`
}

// ModelDefinition is a model as registered by the ORM.
type ModelDefinition struct {
	Name       string       `json:"name" yaml:"name"`
	Attributes types.Schema `json:"attributes" yaml:"attributes"`
}

// DataFile returns the data file path for model under dbPath.
func DataFile(dbPath, model string) string {
	return filepath.Join(dbPath, model+DataFileExt)
}

// Connection is a registered set of collections sharing one directory.
type Connection struct {
	config      ConnectionConfig
	collections map[string]*Collection
}

// Config returns the settings the connection was registered with.
func (c *Connection) Config() ConnectionConfig {
	return c.config
}

// Models lists the registered model names in lexical order.
func (c *Connection) Models() []string {
	return slices.Sorted(maps.Keys(c.collections))
}

// Collection returns the named model's collection.
func (c *Connection) Collection(model string) (*Collection, error) {
	col, ok := c.collections[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q on connection %q", ErrUnknownModel, model, c.config.Identity)
	}
	return col, nil
}

func (c *Connection) close() error {
	var errs []error
	for _, name := range c.Models() {
		if err := c.collections[name].db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("model %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
