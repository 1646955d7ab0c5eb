package adapter

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/nedb-adapter/datastore"
)

// indexPlan lists the indexes the schema asks for. Unique attributes get a
// sparse unique index so records without the field do not collide.
func (c *Collection) indexPlan() []datastore.IndexOptions {
	var plan []datastore.IndexOptions
	for _, field := range c.schema.Fields() {
		if field == c.pk {
			continue
		}
		attr := c.schema[field]
		switch {
		case attr.Unique:
			plan = append(plan, datastore.IndexOptions{FieldName: field, Unique: true, Sparse: true})
		case attr.Index:
			plan = append(plan, datastore.IndexOptions{FieldName: field})
		}
	}
	return plan
}

// BuildIndex ensures every schema index exists, creating them concurrently.
// The first failure is returned; indexes already created are kept.
func (c *Collection) BuildIndex(ctx context.Context) (err error) {
	defer c.track("buildIndex", time.Now(), &err)
	g, gctx := errgroup.WithContext(ctx)
	for _, opts := range c.indexPlan() {
		g.Go(func() error {
			return c.db.EnsureIndex(gctx, opts)
		})
	}
	return g.Wait()
}
