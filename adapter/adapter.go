// Package adapter connects an ORM to NeDB-style datastores: one datastore
// per model, criteria translated to native queries, and a lookup contract
// for cross-model joins.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/internal/validation"
	"github.com/arthur-debert/nedb-adapter/types"
)

const (
	// Identity is the adapter's registered name.
	Identity = "nedb"
	// PKFormat is the type of generated primary keys.
	PKFormat = "string"
)

// Adapter is the registry of connections. It is safe for concurrent use.
type Adapter struct {
	mu            sync.RWMutex
	connections   map[string]*Connection
	logger        zerolog.Logger
	metrics       *Metrics
	datastoreOpts []datastore.Option
}

// New creates an adapter with no connections.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		connections: make(map[string]*Connection),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Identity returns "nedb".
func (a *Adapter) Identity() string { return Identity }

// PKFormat returns "string".
func (a *Adapter) PKFormat() string { return PKFormat }

// Connections lists registered connection names in lexical order.
func (a *Adapter) Connections() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Sorted(maps.Keys(a.connections))
}

// RegisterConnection validates cfg and models, then opens every model's
// datastore concurrently. A model whose data file did not exist yet gets
// its indexes built.
func (a *Adapter) RegisterConnection(ctx context.Context, cfg ConnectionConfig, models []ModelDefinition) error {
	if cfg.Identity == "" {
		return ErrIdentityMissing
	}
	a.mu.RLock()
	_, exists := a.connections[cfg.Identity]
	a.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrIdentityDuplicate, cfg.Identity)
	}

	if !cfg.InMemoryOnly {
		if err := validation.ValidateDBPath(cfg.DBPath); err != nil {
			return &ConfigError{Connection: cfg.Identity, Reason: "invalid dbPath", Err: err}
		}
	}
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if err := validation.ValidateModelName(m.Name); err != nil {
			return &ConfigError{Connection: cfg.Identity, Reason: "invalid model", Err: err}
		}
		if seen[m.Name] {
			return &ConfigError{Connection: cfg.Identity, Reason: "invalid model", Err: fmt.Errorf("%w: %s", ErrModelDuplicate, m.Name)}
		}
		seen[m.Name] = true
		if err := validation.ValidateSchema(m.Name, m.Attributes); err != nil {
			return &ConfigError{Connection: cfg.Identity, Reason: "invalid schema", Err: err}
		}
	}

	conn, err := a.openConnection(ctx, cfg, models)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.connections[cfg.Identity]; exists {
		_ = conn.close()
		return fmt.Errorf("%w: %s", ErrIdentityDuplicate, cfg.Identity)
	}
	a.connections[cfg.Identity] = conn
	a.logger.Info().
		Str("connection", cfg.Identity).
		Str("db_path", cfg.DBPath).
		Bool("in_memory", cfg.InMemoryOnly).
		Strs("models", conn.Models()).
		Msg("connection registered")
	return nil
}

func (a *Adapter) openConnection(ctx context.Context, cfg ConnectionConfig, models []ModelDefinition) (*Connection, error) {
	conn := &Connection{config: cfg, collections: make(map[string]*Collection, len(models))}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range models {
		g.Go(func() error {
			col, err := a.openCollection(gctx, cfg, m)
			if err != nil {
				return fmt.Errorf("model %s: %w", m.Name, err)
			}
			mu.Lock()
			conn.collections[m.Name] = col
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = conn.close()
		return nil, &ConfigError{
			Connection: cfg.Identity,
			Reason:     "failed to open datastores, check that dbPath is configured correctly",
			Err:        err,
		}
	}
	return conn, nil
}

func (a *Adapter) openCollection(ctx context.Context, cfg ConnectionConfig, m ModelDefinition) (*Collection, error) {
	logger := a.logger.With().Str("connection", cfg.Identity).Str("model", m.Name).Logger()
	opts := slices.Clone(a.datastoreOpts)
	opts = append(opts, datastore.WithLogger(logger))
	if cfg.InMemoryOnly {
		opts = append(opts, datastore.WithInMemoryOnly(true))
	} else {
		opts = append(opts, datastore.WithFilename(DataFile(cfg.DBPath, m.Name)), datastore.WithInMemoryOnly(false))
	}
	db := datastore.New(opts...)

	existed, err := db.Exists()
	if err != nil {
		return nil, err
	}
	if err := db.LoadDatabase(ctx); err != nil {
		return nil, err
	}
	col := newCollection(m.Name, NormalizeSchema(m.Attributes), db, logger, a.metrics)
	if !existed {
		if err := col.BuildIndex(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to build indexes: %w", err)
		}
	}
	return col, nil
}

// Teardown closes and forgets the named connection, or every connection
// when name is empty. Unknown names are ignored.
func (a *Adapter) Teardown(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	var targets []*Connection
	if name == "" {
		for _, c := range a.connections {
			targets = append(targets, c)
		}
		a.connections = make(map[string]*Connection)
	} else if c, ok := a.connections[name]; ok {
		targets = append(targets, c)
		delete(a.connections, name)
	}
	a.mu.Unlock()

	var errs []error
	for _, c := range targets {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("connection %s: %w", c.config.Identity, err))
		}
		a.logger.Info().Str("connection", c.config.Identity).Msg("connection torn down")
	}
	return errors.Join(errs...)
}

// Connection returns a registered connection.
func (a *Adapter) Connection(name string) (*Connection, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.connections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnection, name)
	}
	return c, nil
}

// Collection resolves a model on a connection.
func (a *Adapter) Collection(conn, model string) (*Collection, error) {
	c, err := a.Connection(conn)
	if err != nil {
		return nil, err
	}
	return c.Collection(model)
}

// Describe returns the model's normalized schema.
func (a *Adapter) Describe(conn, model string) (types.Schema, error) {
	col, err := a.Collection(conn, model)
	if err != nil {
		return nil, err
	}
	return col.Schema(), nil
}

// Define ensures the model's indexes exist.
func (a *Adapter) Define(ctx context.Context, conn, model string) error {
	col, err := a.Collection(conn, model)
	if err != nil {
		return err
	}
	return col.BuildIndex(ctx)
}

// Alter re-applies the model's indexes. Existing indexes are kept.
func (a *Adapter) Alter(ctx context.Context, conn, model string) error {
	return a.Define(ctx, conn, model)
}

// Drop deletes the model's data.
func (a *Adapter) Drop(ctx context.Context, conn, model string) error {
	col, err := a.Collection(conn, model)
	if err != nil {
		return err
	}
	return col.Drop(ctx)
}

// Native returns the model's datastore.
func (a *Adapter) Native(conn, model string) (*datastore.Datastore, error) {
	col, err := a.Collection(conn, model)
	if err != nil {
		return nil, err
	}
	return col.Native(), nil
}

// Create inserts one record.
func (a *Adapter) Create(ctx context.Context, conn, model string, rec types.Record) (types.Record, error) {
	col, err := a.Collection(conn, model)
	if err != nil {
		return nil, err
	}
	return col.Create(ctx, rec)
}

// CreateEach inserts records as one batch.
func (a *Adapter) CreateEach(ctx context.Context, conn, model string, recs []types.Record) ([]types.Record, error) {
	col, err := a.Collection(conn, model)
	if err != nil {
		return nil, err
	}
	return col.CreateEach(ctx, recs)
}

// Find returns matching records.
func (a *Adapter) Find(ctx context.Context, conn, model string, criteria types.Criteria) ([]types.Record, error) {
	col, err := a.Collection(conn, model)
	if err != nil {
		return nil, err
	}
	return col.Find(ctx, criteria)
}

// Update sets values on matching records and returns the count.
func (a *Adapter) Update(ctx context.Context, conn, model string, criteria types.Criteria, values types.Record) (int, error) {
	col, err := a.Collection(conn, model)
	if err != nil {
		return 0, err
	}
	return col.Update(ctx, criteria, values)
}

// Destroy removes matching records and returns the count.
func (a *Adapter) Destroy(ctx context.Context, conn, model string, criteria types.Criteria) (int, error) {
	col, err := a.Collection(conn, model)
	if err != nil {
		return 0, err
	}
	return col.Destroy(ctx, criteria)
}

// Count returns the number of matching records.
func (a *Adapter) Count(ctx context.Context, conn, model string, criteria types.Criteria) (int, error) {
	col, err := a.Collection(conn, model)
	if err != nil {
		return 0, err
	}
	return col.Count(ctx, criteria)
}
