package adapter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/query"
	"github.com/arthur-debert/nedb-adapter/types"
)

// Collection exposes one model's datastore in ORM terms: records keyed by
// the model's primary key and criteria instead of native queries.
type Collection struct {
	name       string
	schema     types.Schema
	pk         string
	db         *datastore.Datastore
	translator *query.Translator
	logger     zerolog.Logger
	metrics    *Metrics
}

func newCollection(name string, schema types.Schema, db *datastore.Datastore, logger zerolog.Logger, metrics *Metrics) *Collection {
	pk := PrimaryKeyName(schema)
	return &Collection{
		name:       name,
		schema:     schema,
		pk:         pk,
		db:         db,
		translator: query.NewTranslator(pk),
		logger:     logger,
		metrics:    metrics,
	}
}

// Name returns the model name.
func (c *Collection) Name() string { return c.name }

// Schema returns a copy of the normalized schema.
func (c *Collection) Schema() types.Schema { return c.schema.Clone() }

// PrimaryKey returns the model's primary key attribute.
func (c *Collection) PrimaryKey() string { return c.pk }

// Native returns the underlying datastore for direct queries.
func (c *Collection) Native() *datastore.Datastore { return c.db }

func (c *Collection) track(op string, start time.Time, errp *error) {
	err := *errp
	c.metrics.observe(c.name, op, start, err)
	ev := c.logger.Debug()
	if err != nil {
		ev = c.logger.Warn().Err(err)
	}
	ev.Str("operation", op).Dur("elapsed", time.Since(start)).Msg("collection operation")
}

// Create inserts one record and returns it as stored.
func (c *Collection) Create(ctx context.Context, rec types.Record) (out types.Record, err error) {
	defer c.track("create", time.Now(), &err)
	docs, err := c.db.Insert(ctx, ToStore(rec, c.pk))
	if err != nil {
		return nil, err
	}
	return FromStore(docs[0], c.pk), nil
}

// CreateEach inserts records as one batch: all or nothing.
func (c *Collection) CreateEach(ctx context.Context, recs []types.Record) (out []types.Record, err error) {
	defer c.track("createEach", time.Now(), &err)
	docs := make([]datastore.Document, len(recs))
	for i, rec := range recs {
		docs[i] = ToStore(rec, c.pk)
	}
	stored, err := c.db.Insert(ctx, docs...)
	if err != nil {
		return nil, err
	}
	return c.records(stored), nil
}

// Find returns the records matching criteria, sorted, skipped and limited
// as requested.
func (c *Collection) Find(ctx context.Context, criteria types.Criteria) (out []types.Record, err error) {
	defer c.track("find", time.Now(), &err)
	tr, err := c.translator.Translate(criteria.WithoutSelect())
	if err != nil {
		return nil, err
	}
	c.logger.Trace().Interface("filter", tr.Filter).Int("modifiers", len(tr.Modifiers)).Msg("translated criteria")

	cur := c.db.Find(tr.Filter)
	for _, m := range tr.Modifiers {
		cur = m.Apply(cur)
	}
	docs, err := cur.Exec(ctx)
	if err != nil {
		return nil, err
	}
	return c.records(docs), nil
}

// Update sets values on every matching record and returns how many were
// updated. Identifier fields in values are ignored. A "$unset" entry names
// fields to remove, as a list, a single name, or an object keyed by name.
func (c *Collection) Update(ctx context.Context, criteria types.Criteria, values types.Record) (n int, err error) {
	defer c.track("update", time.Now(), &err)
	filter, err := c.translator.Filter(criteria.WithoutSelect())
	if err != nil {
		return 0, err
	}
	return c.db.Update(ctx, filter, c.updateDocument(values), datastore.UpdateOptions{Multi: true})
}

func (c *Collection) isIdentifier(field string) bool {
	return field == c.pk || field == types.DefaultPrimaryKey || field == datastore.IDField
}

func (c *Collection) updateDocument(values types.Record) datastore.Document {
	set := map[string]any{}
	unset := map[string]any{}
	for field, v := range values {
		switch {
		case field == "$unset":
			for _, name := range unsetFields(v) {
				if !c.isIdentifier(name) {
					unset[name] = true
				}
			}
		case c.isIdentifier(field):
		default:
			set[field] = v
		}
	}
	update := datastore.Document{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func unsetFields(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		var out []string
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(x))
		for k := range x {
			out = append(out, k)
		}
		return out
	case types.Record:
		return unsetFields(map[string]any(x))
	}
	return nil
}

// Destroy removes every matching record and returns how many were removed.
func (c *Collection) Destroy(ctx context.Context, criteria types.Criteria) (n int, err error) {
	defer c.track("destroy", time.Now(), &err)
	filter, err := c.translator.Filter(criteria.WithoutSelect())
	if err != nil {
		return 0, err
	}
	return c.db.Remove(ctx, filter, datastore.RemoveOptions{Multi: true})
}

// Count returns the number of matching records. Sort, skip and limit are
// validated but do not affect the count.
func (c *Collection) Count(ctx context.Context, criteria types.Criteria) (n int, err error) {
	defer c.track("count", time.Now(), &err)
	filter, err := c.translator.Filter(criteria.WithoutSelect())
	if err != nil {
		return 0, err
	}
	return c.db.Count(ctx, filter)
}

// Drop deletes the model's data file and all its records.
func (c *Collection) Drop(ctx context.Context) (err error) {
	defer c.track("drop", time.Now(), &err)
	return c.db.Drop(ctx)
}

func (c *Collection) records(docs []datastore.Document) []types.Record {
	out := make([]types.Record, len(docs))
	for i, doc := range docs {
		out[i] = FromStore(doc, c.pk)
	}
	return out
}
