package datastore

import (
	"context"
	"fmt"
	"slices"

	"github.com/arthur-debert/nedb-adapter/datastore/storage"
)

// SortField orders by one field. Order is 1 for ascending, -1 for descending.
type SortField struct {
	Field string
	Order int
}

// Cursor is a pending find. Modifiers may be chained in any order; Exec
// always filters, then sorts, then skips, then limits.
type Cursor struct {
	ds    *Datastore
	query Query
	sort  []SortField
	skip  int
	limit int
	err   error
}

// Sort appends sort keys. Earlier keys take precedence.
func (c *Cursor) Sort(fields ...SortField) *Cursor {
	c.sort = append(c.sort, fields...)
	return c
}

// Skip drops the first n results.
func (c *Cursor) Skip(n int) *Cursor {
	if n < 0 {
		c.err = fmt.Errorf("%w: skip must not be negative, got %d", ErrInvalidQuery, n)
	}
	c.skip = n
	return c
}

// Limit caps the number of results. Zero means no limit.
func (c *Cursor) Limit(n int) *Cursor {
	if n < 0 {
		c.err = fmt.Errorf("%w: limit must not be negative, got %d", ErrInvalidQuery, n)
	}
	c.limit = n
	return c
}

// Exec runs the query and returns copies of the matching documents.
func (c *Cursor) Exec(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	if err := validateQuery(c.query); err != nil {
		return nil, err
	}
	for _, s := range c.sort {
		if s.Field == "" {
			return nil, fmt.Errorf("%w: sort field is empty", ErrInvalidQuery)
		}
		if s.Order != 1 && s.Order != -1 {
			return nil, fmt.Errorf("%w: sort order for %s must be 1 or -1, got %d", ErrInvalidQuery, s.Field, s.Order)
		}
	}

	return storage.Query(c.ds.locks, storage.ReadOperation, func() ([]Document, error) {
		if c.ds.closed {
			return nil, ErrClosed
		}
		matched := c.ds.matching(c.query)
		if len(c.sort) > 0 {
			slices.SortStableFunc(matched, func(a, b *entry) int {
				for _, s := range c.sort {
					va, _ := lookupPath(a.doc, s.Field)
					vb, _ := lookupPath(b.doc, s.Field)
					if r := compareValues(va, vb); r != 0 {
						return r * s.Order
					}
				}
				return 0
			})
		}
		if c.skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[c.skip:]
		}
		if c.limit > 0 && c.limit < len(matched) {
			matched = matched[:c.limit]
		}
		out := make([]Document, len(matched))
		for i, e := range matched {
			out[i] = cloneDocument(e.doc)
		}
		return out, nil
	})
}
