// Package validation checks connection settings and model schemas before
// any datastore is opened.
package validation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/arthur-debert/nedb-adapter/types"
)

var (
	ErrDBPathMissing      = errors.New("dbPath is not configured")
	ErrDBPathNotExist     = errors.New("dbPath does not exist")
	ErrDBPathNotDirectory = errors.New("dbPath is not a directory")
)

// reservedFields are managed by the store and cannot be declared.
var reservedFields = map[string]bool{
	"_id": true,
}

// IsReservedFieldName reports whether name is owned by the store.
func IsReservedFieldName(name string) bool {
	return reservedFields[name]
}

// ValidateDBPath checks that path names an existing directory.
func ValidateDBPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrDBPathMissing
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrDBPathNotExist, path)
	}
	if err != nil {
		return fmt.Errorf("cannot stat dbPath %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDBPathNotDirectory, path)
	}
	return nil
}

// ValidateModelName checks that name can be used as a data file name.
func ValidateModelName(name string) error {
	if name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("model name %q is not a valid file name", name)
	}
	return nil
}

// ValidateSchema checks attribute names and primary key declarations.
func ValidateSchema(model string, schema types.Schema) error {
	var primaryKeys []string
	for _, name := range schema.Fields() {
		attr := schema[name]
		if name == "" {
			return fmt.Errorf("model %s: attribute name cannot be empty", model)
		}
		if IsReservedFieldName(name) {
			return fmt.Errorf("model %s: '%s' is a reserved field name", model, name)
		}
		if strings.HasPrefix(name, "$") || strings.Contains(name, ".") {
			return fmt.Errorf("model %s: attribute '%s' cannot start with '$' or contain '.'", model, name)
		}
		if attr.PrimaryKey {
			primaryKeys = append(primaryKeys, name)
		}
	}
	if len(primaryKeys) > 1 {
		return fmt.Errorf("model %s: multiple primary keys declared: %s", model, strings.Join(primaryKeys, ", "))
	}
	return nil
}
